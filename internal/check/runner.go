package check

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mobilecheck/api/schemas"
)

// Runner performs the check sequence for one device.
type Runner struct {
	opts     Options
	logger   *zap.Logger
	observer Observer

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
	newID func() string
}

// NewRunner creates a runner. A nil observer discards events.
func NewRunner(opts Options, logger *zap.Logger, observer Observer) *Runner {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Runner{
		opts:     opts,
		logger:   logger.Named("check").With(zap.String("device", opts.Device)),
		observer: observer,
		sleep:    sleepCtx,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

func (r *Runner) emit(status Status, msg, detail string) {
	r.observer.Observe(Event{Device: r.opts.Device, Status: status, Message: msg, Detail: detail})
}

// Run drives page through the check and closes it. The result is always
// returned; on failure it carries the error text as well.
//
// A missing answer input and a scroll that does not reset are warnings. In
// strict mode the latter fails the run with ErrScrollNotReset once the
// screenshot has been taken.
func (r *Runner) Run(ctx context.Context, page Page) (*schemas.CheckResult, error) {
	res := &schemas.CheckResult{
		RunID:   r.newID(),
		Device:  r.opts.Device,
		PageURL: r.opts.PageURL,
		Started: r.now(),
	}
	r.logger.Info("Starting mobile check.", zap.String("run_id", res.RunID), zap.String("url", r.opts.PageURL))

	err := r.steps(ctx, page, res)

	res.Console = page.ConsoleLogs()
	if cerr := page.Close(context.WithoutCancel(ctx)); cerr != nil {
		r.logger.Warn("Failed to close page.", zap.Error(cerr))
	}
	res.Finished = r.now()

	if err != nil {
		res.Error = err.Error()
		r.emit(StatusFailure, fmt.Sprintf("Mobile test failed: %v", err), "")
		r.logger.Error("Mobile check failed.", zap.String("run_id", res.RunID), zap.Error(err))
		return res, err
	}
	r.emit(StatusSuccess, "Mobile test completed!", "")
	r.logger.Info("Mobile check completed.",
		zap.String("run_id", res.RunID),
		zap.Duration("duration", res.Duration()),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

func (r *Runner) warn(res *schemas.CheckResult, msg string) {
	res.Warnings = append(res.Warnings, msg)
	r.emit(StatusWarning, msg, "")
}

func (r *Runner) steps(ctx context.Context, page Page, res *schemas.CheckResult) error {
	sel := r.opts.Selectors

	if err := page.Navigate(ctx, r.opts.PageURL); err != nil {
		return fmt.Errorf("failed to load page: %w", err)
	}
	r.emit(StatusInfo, fmt.Sprintf("Page loaded with %s viewport", r.opts.Device), "")

	if err := r.sleep(ctx, r.opts.SettleDelay); err != nil {
		return err
	}

	if err := page.Evaluate(ctx, cssVariableScript(r.opts.VHVariable), &res.VH); err != nil {
		return fmt.Errorf("failed to read CSS variable %s: %w", r.opts.VHVariable, err)
	}
	r.emit(StatusSuccess, fmt.Sprintf("CSS variable %s: %s", r.opts.VHVariable, res.VH), "")

	if err := page.Evaluate(ctx, globalScript(r.opts.SlideHeightGlobal), &res.SlideHeight); err != nil {
		return fmt.Errorf("failed to read window.%s: %w", r.opts.SlideHeightGlobal, err)
	}
	r.emit(StatusSuccess, "Fixed slide height: "+displayValue(res.SlideHeight), "")

	if err := page.Evaluate(ctx, transformScript(sel.ContainerID), &res.InitialTransform); err != nil {
		return fmt.Errorf("failed to read transform of #%s: %w", sel.ContainerID, err)
	}
	r.emit(StatusSuccess, "Initial transform: "+res.InitialTransform, "")

	n, err := page.Count(ctx, sel.Input)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", sel.Input, err)
	}
	res.InputFound = n > 0

	if res.InputFound {
		if err := r.keyboardSteps(ctx, page, res); err != nil {
			return err
		}
	} else {
		r.warn(res, "No input field found on first question")
	}

	if err := page.Click(ctx, sel.Next); err != nil {
		return fmt.Errorf("failed to click %s: %w", sel.Next, err)
	}
	r.emit(StatusInfo, "Navigated to next question", "")

	if err := r.sleep(ctx, r.opts.ActionDelay); err != nil {
		return err
	}

	if err := page.Evaluate(ctx, transformScript(sel.ContainerID), &res.NavigatedTransform); err != nil {
		return fmt.Errorf("failed to read transform of #%s: %w", sel.ContainerID, err)
	}
	r.emit(StatusSuccess, "Transform after navigation: "+res.NavigatedTransform, "")

	if err := page.Screenshot(ctx, r.opts.Screenshot, r.opts.FullPage); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	res.Screenshot = r.opts.Screenshot
	r.emit(StatusInfo, "Screenshot saved to "+r.opts.Screenshot, "")

	if r.opts.Strict && res.ScrollReset != nil && !*res.ScrollReset {
		return ErrScrollNotReset
	}
	return nil
}

// keyboardSteps types into the first answer field and checks that closing
// the keyboard puts every scroll offset back to zero.
func (r *Runner) keyboardSteps(ctx context.Context, page Page, res *schemas.CheckResult) error {
	sel := r.opts.Selectors
	r.emit(StatusSuccess, "Found input field", "")

	if err := page.Focus(ctx, sel.Input); err != nil {
		return fmt.Errorf("failed to focus %s: %w", sel.Input, err)
	}
	r.emit(StatusInfo, "Input focused", "")

	if err := page.Fill(ctx, sel.Input, r.opts.Text); err != nil {
		return fmt.Errorf("failed to fill %s: %w", sel.Input, err)
	}
	r.emit(StatusSuccess, "Text entered", "")

	if err := r.sleep(ctx, r.opts.ActionDelay); err != nil {
		return err
	}

	afterFocus, err := r.readScroll(ctx, page)
	if err != nil {
		return err
	}
	res.AfterFocus = afterFocus
	r.emit(StatusInfo, "Scroll positions after focus:", prettyJSON(afterFocus))

	if err := page.Blur(ctx); err != nil {
		return fmt.Errorf("failed to blur active element: %w", err)
	}
	r.emit(StatusInfo, "Input blurred (simulating keyboard close)", "")

	if err := r.sleep(ctx, r.opts.ActionDelay); err != nil {
		return err
	}

	afterBlur, err := r.readScroll(ctx, page)
	if err != nil {
		return err
	}
	res.AfterBlur = afterBlur
	r.emit(StatusInfo, "Scroll positions after blur:", prettyJSON(afterBlur))

	reset := afterBlur.IsReset()
	res.ScrollReset = &reset
	if reset {
		r.emit(StatusSuccess, "SUCCESS: Scroll positions reset correctly!", "")
	} else {
		r.warn(res, "WARNING: Scroll positions not fully reset")
		r.logger.Warn("Scroll positions not reset after blur.",
			zap.Float64("window_y", afterBlur.Window.Y),
			zap.Float64s("slides", afterBlur.Slides))
	}
	return nil
}

func (r *Runner) readScroll(ctx context.Context, page Page) (*schemas.ScrollSnapshot, error) {
	var snap schemas.ScrollSnapshot
	if err := page.Evaluate(ctx, scrollScript(r.opts.Selectors.Slides), &snap); err != nil {
		return nil, fmt.Errorf("failed to read scroll positions: %w", err)
	}
	if snap.Slides == nil {
		snap.Slides = []float64{}
	}
	return &snap, nil
}
