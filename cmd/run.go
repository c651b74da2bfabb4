package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mobilecheck/api/schemas"
	"github.com/xkilldash9x/mobilecheck/internal/browser"
	"github.com/xkilldash9x/mobilecheck/internal/check"
	"github.com/xkilldash9x/mobilecheck/internal/config"
	"github.com/xkilldash9x/mobilecheck/internal/device"
	"github.com/xkilldash9x/mobilecheck/internal/observability"
	"github.com/xkilldash9x/mobilecheck/internal/preflight"
	"github.com/xkilldash9x/mobilecheck/internal/report"
)

// shutdownTimeout bounds how long the browser gets to exit after the checks.
const shutdownTimeout = 10 * time.Second

// launcher starts a browser and returns a way to open pages in it.
type launcher func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (check.OpenFunc, func(context.Context) error, error)

// launch is replaced in tests.
var launch launcher = launchChromium

func launchChromium(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (check.OpenFunc, func(context.Context) error, error) {
	mgr, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	open := func(ctx context.Context, profile device.Profile) (check.Page, error) {
		s, err := mgr.NewSession(ctx, profile)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return open, mgr.Shutdown, nil
}

// runFlagKeys maps run flags onto config keys.
var runFlagKeys = map[string]string{
	"device":         "check.devices",
	"screenshot":     "check.screenshot",
	"full-page":      "check.full_page",
	"text":           "check.text",
	"settle":         "check.settle_delay",
	"delay":          "check.action_delay",
	"strict":         "check.strict",
	"parallel":       "check.parallel",
	"skip-preflight": "check.skip_preflight",
	"report":         "report.path",
	"report-format":  "report.format",
	"chrome":         "browser.exec_path",
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [page]",
		Short: "Run the mobile check against a survey page",
		Long: `Run loads the page (default index.html in the working directory) in every
requested device profile and reports each step of the keyboard check.

The page may be a relative or absolute path, a file:// URL or an http(s) URL.`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindRunFlags(v, cmd.Flags(), args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cfg, observability.GetLogger(), cmd.OutOrStdout())
		},
	}

	f := runCmd.Flags()
	f.StringSliceP("device", "d", nil, "device profile to emulate, repeatable (default iphone12; see 'mobilecheck devices')")
	f.String("viewport", "", "override the CSS viewport as WIDTHxHEIGHT, e.g. 390x844")
	f.StringP("screenshot", "o", "", "screenshot path (default mobile-test.png)")
	f.Bool("full-page", false, "capture the whole page instead of the viewport")
	f.String("text", "", "text typed into the answer field")
	f.Duration("settle", 0, "wait after the page loads (default 1s)")
	f.Duration("delay", 0, "wait after typing, blur and click (default 500ms)")
	f.Duration("timeout", 0, "per action and navigation timeout (default 30s)")
	f.Bool("headful", false, "show the browser window")
	f.String("chrome", "", "path to the Chrome or Chromium binary")
	f.Bool("strict", false, "fail when scroll positions do not reset after blur")
	f.IntP("parallel", "p", 0, "number of devices checked at once (default 1)")
	f.Bool("skip-preflight", false, "do not inspect the page file before launching the browser")
	f.String("report", "", "write a machine readable report to this path")
	f.String("report-format", "", "report format: json or yaml (default from the report extension)")
	return runCmd
}

// bindRunFlags binds the run flags to their config keys so that flags
// override the config file and environment. Flags without a single key are
// applied with v.Set when they were given.
func bindRunFlags(v *viper.Viper, flags *pflag.FlagSet, args []string) error {
	for name, key := range runFlagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}

	if len(args) == 1 {
		v.Set("check.page", args[0])
	}
	if flags.Changed("viewport") {
		raw, _ := flags.GetString("viewport")
		w, h, err := parseViewport(raw)
		if err != nil {
			return err
		}
		v.Set("check.viewport.width", w)
		v.Set("check.viewport.height", h)
	}
	if flags.Changed("timeout") {
		d, _ := flags.GetDuration("timeout")
		v.Set("browser.navigation_timeout", d)
		v.Set("browser.action_timeout", d)
	}
	if headful, _ := flags.GetBool("headful"); headful {
		v.Set("browser.headless", false)
	}
	return nil
}

// parseViewport parses "390x844" (also "390X844" and "390,844").
func parseViewport(s string) (int, int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == 'x' || r == ',' })
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid viewport %q: want WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid viewport width in %q", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid viewport height in %q", s)
	}
	return w, h, nil
}

// runCheck resolves the page, runs the check on every device and writes the report.
func runCheck(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	profiles, err := device.Resolve(cfg.Check.Devices, cfg.Check.Viewport.Width, cfg.Check.Viewport.Height)
	if err != nil {
		return err
	}
	target, err := preflight.Resolve(cfg.Check.Page)
	if err != nil {
		return err
	}

	console := report.NewConsole(out, len(profiles) > 1)
	rep := &schemas.Report{Page: target.URL}

	if !cfg.Check.SkipPreflight && !target.Remote() {
		res, err := preflight.Inspect(target.Path, cfg.Check.Selectors)
		if err != nil {
			return err
		}
		for _, w := range res.Warnings() {
			console.Warn(w)
		}
		rep.Preflight = res.Warnings()
		logger.Debug("Preflight finished.", zap.String("path", target.Path), zap.Int("warnings", len(rep.Preflight)))
	}

	screenshot, err := homedir.Expand(cfg.Check.Screenshot)
	if err != nil {
		return fmt.Errorf("failed to expand screenshot path: %w", err)
	}
	opts := check.OptionsFromConfig(cfg.Check, target.URL)
	opts.Screenshot = screenshot

	open, shutdown, err := launch(ctx, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("Browser shutdown did not complete cleanly.", zap.Error(err))
		}
	}()

	logger.Info("Running mobile check.",
		zap.String("page", target.URL),
		zap.Int("devices", len(profiles)),
		zap.Int("parallel", cfg.Check.Parallel))

	suite := check.NewSuite(opts, profiles, open, cfg.Check.Parallel, logger, console)
	results, runErr := suite.Run(ctx)
	rep.Runs = results
	rep.Generated = time.Now()
	console.Summary(rep)

	if cfg.Report.Path != "" {
		path, err := report.WriteFile(cfg.Report.Path, cfg.Report.Format, rep)
		if err != nil {
			return err
		}
		logger.Info("Report written.", zap.String("path", path))
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runErr != nil {
		return fmt.Errorf("%d of %d device checks failed: %w", rep.Failures(), len(rep.Runs), runErr)
	}
	return nil
}
