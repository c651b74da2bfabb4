// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mobilecheck/internal/config"
	"github.com/xkilldash9x/mobilecheck/internal/device"
)

// ErrManagerClosed is returned by NewSession after Shutdown.
var ErrManagerClosed = errors.New("browser manager is shut down")

// Manager owns the browser process. Sessions are tabs inside it.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx manages the browser process. browserCtx is the first
	// chromedp context created on it and holds the browser connection; every
	// session is derived from browserCtx.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	// wg tracks open sessions for a graceful shutdown.
	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewManager launches the browser and checks that it responds.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid browser configuration: %w", err)
	}
	m := &Manager{
		logger: logger.Named("browser"),
		cfg:    cfg,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Debug("Initializing browser allocator.",
		zap.Bool("headless", m.cfg.Headless),
		zap.String("exec_path", m.cfg.ExecPath))

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, allocatorOptions(m.cfg)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	// The first Run starts the process. A deadline on that Run would tear the
	// browser down with it, so the launch timeout is enforced from outside.
	err := awaitStart(ctx, m.cfg.LaunchTimeout, func() error {
		return chromedp.Run(m.browserCtx, chromedp.Navigate("about:blank"))
	})
	if err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched.")
	return nil
}

// awaitStart runs fn in the background and gives up after timeout or when ctx ends.
// The caller cancels whatever fn is blocked on, so the goroutine always exits.
func awaitStart(ctx context.Context, timeout time.Duration, fn func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		return fmt.Errorf("no response within %v: %w", timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launchFlag is one Chrome command line switch.
type launchFlag struct {
	Name  string
	Value interface{}
}

// launchFlags computes the switches added on top of chromedp's defaults.
func launchFlags(cfg config.BrowserConfig, goos string) []launchFlag {
	var flags []launchFlag
	if cfg.Headless {
		flags = append(flags, launchFlag{"disable-gpu", true})
	} else {
		flags = append(flags, launchFlag{"headless", false})
	}
	flags = append(flags, launchFlag{"disable-extensions", true})

	// Containers rarely allow the setuid sandbox and ship a tiny /dev/shm.
	if cfg.NoSandbox && goos == "linux" {
		flags = append(flags,
			launchFlag{"no-sandbox", true},
			launchFlag{"disable-setuid-sandbox", true},
			launchFlag{"disable-dev-shm-usage", true},
		)
	}

	// Custom arguments come last so they can override anything above.
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimLeft(parts[0], "-")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags = append(flags, launchFlag{name, parts[1]})
		} else {
			flags = append(flags, launchFlag{name, true})
		}
	}
	return flags
}

func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range launchFlags(cfg, runtime.GOOS) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// NewSession opens a new tab emulating profile. The session must be closed.
func (m *Manager) NewSession(ctx context.Context, profile device.Profile) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	s := newSession(tabCtx, tabCancel, profile, m.cfg, m.logger, m.wg.Done)
	s.listen()

	// Same rule as the launch: the first Run on a tab must not carry a deadline.
	if err := awaitStart(ctx, m.cfg.LaunchTimeout, func() error { return chromedp.Run(tabCtx) }); err != nil {
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("failed to open tab for %s: %w", profile.Key, err)
	}
	if err := s.run(ctx, "emulate "+profile.Key, m.cfg.ActionTimeout, chromedp.Emulate(profile)); err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}

	s.logger.Debug("Session opened.", zap.Stringer("device", profile))
	return s, nil
}

// Shutdown waits for open sessions, bounded by ctx, then stops the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.logger.Debug("Browser shutdown initiated. Waiting for open sessions.")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
		err = ctx.Err()
	}

	m.browserCancel()
	m.allocatorCancel()
	<-m.allocatorCtx.Done()
	m.logger.Info("Browser stopped.")
	return err
}
