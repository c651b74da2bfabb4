// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mobilecheck/api/schemas"
	"github.com/xkilldash9x/mobilecheck/internal/check"
	"github.com/xkilldash9x/mobilecheck/internal/config"
	"github.com/xkilldash9x/mobilecheck/internal/device"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session is one browser tab emulating a device.
type Session struct {
	id      string
	profile device.Profile
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	cfg     config.BrowserConfig

	onClose func()

	mu       sync.Mutex
	console  []schemas.ConsoleLog
	isClosed bool
}

// Ensure Session can be driven by a check.
var _ check.Page = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, profile device.Profile, cfg config.BrowserConfig, logger *zap.Logger, onClose func()) *Session {
	id := uuid.New().String()
	return &Session{
		id:      id,
		profile: profile,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(zap.String("session_id", id), zap.String("device", profile.Key)),
		cfg:     cfg,
		onClose: onClose,
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Profile returns the device the tab emulates.
func (s *Session) Profile() device.Profile {
	return s.profile
}

// listen collects console API calls and uncaught exceptions for the life of the tab.
func (s *Session) listen() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *cdpruntime.EventConsoleAPICalled:
			s.record(schemas.ConsoleLog{Type: string(e.Type), Text: consoleText(e.Args)})
		case *cdpruntime.EventExceptionThrown:
			if e.ExceptionDetails == nil {
				return
			}
			text := e.ExceptionDetails.Text
			if exc := e.ExceptionDetails.Exception; exc != nil && exc.Description != "" {
				text = exc.Description
			}
			s.record(schemas.ConsoleLog{Type: "exception", Text: text})
		}
	})
}

func (s *Session) record(entry schemas.ConsoleLog) {
	s.logger.Debug("Page console.", zap.String("type", entry.Type), zap.String("text", entry.Text))
	s.mu.Lock()
	s.console = append(s.console, entry)
	s.mu.Unlock()
}

func consoleText(args []*cdpruntime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		var val interface{}
		switch {
		case len(arg.Value) > 0 && json.Unmarshal([]byte(arg.Value), &val) == nil:
			parts = append(parts, fmt.Sprintf("%v", val))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, fmt.Sprintf("[%s]", arg.Type))
		}
	}
	return strings.Join(parts, " ")
}

// ConsoleLogs returns a copy of everything the page logged so far.
func (s *Session) ConsoleLogs() []schemas.ConsoleLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := make([]schemas.ConsoleLog, len(s.console))
	copy(logs, s.console)
	return logs
}

// run executes actions bound to both the tab (s.ctx) and the caller (ctx),
// under timeout. Context errors from the caller are returned as-is.
func (s *Session) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, opCancel := context.WithTimeout(ctx, timeout)
	defer opCancel()
	runCtx, cancel := CombineContext(s.ctx, opCtx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.ctx.Err() != nil {
			return fmt.Errorf("%s: session closed: %w", op, s.ctx.Err())
		}
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out after %v: %w", op, timeout, opCtx.Err())
		}
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.run(ctx, "navigate to "+url, s.cfg.NavigationTimeout, chromedp.Navigate(url))
}

// Evaluate runs expression in the page and decodes its value into out.
// undefined and null leave typed targets untouched and set interface{} targets to nil.
// A thrown exception is returned as the error.
func (s *Session) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return s.run(ctx, "evaluate", s.cfg.ActionTimeout, chromedp.ActionFunc(func(c context.Context) error {
		obj, exc, err := cdpruntime.Evaluate(expression).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(c)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return decodeRemoteObject(obj, out)
	}))
}

func decodeRemoteObject(obj *cdpruntime.RemoteObject, out interface{}) error {
	if out == nil {
		return nil
	}
	if obj == nil || obj.Type == cdpruntime.TypeUndefined || obj.Subtype == cdpruntime.SubtypeNull ||
		len(obj.Value) == 0 || string(obj.Value) == "null" {
		// jsoniter zeroes typed targets on null, so only interface{} targets are touched.
		if v, ok := out.(*interface{}); ok {
			*v = nil
		}
		return nil
	}
	if err := json.Unmarshal([]byte(obj.Value), out); err != nil {
		return fmt.Errorf("could not decode evaluation result: %w", err)
	}
	return nil
}

// Count returns how many elements match selector.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	var n int
	if err := s.Evaluate(ctx, fmt.Sprintf("document.querySelectorAll(%s).length", quote(selector)), &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Focus focuses the first element matching selector.
func (s *Session) Focus(ctx context.Context, selector string) error {
	return s.run(ctx, "focus "+selector, s.cfg.ActionTimeout, chromedp.Focus(selector, chromedp.ByQuery))
}

// Fill replaces the value of the first element matching selector with text.
// The field is focused and cleared, then text is inserted the way an IME
// commits it, so the page sees input events.
func (s *Session) Fill(ctx context.Context, selector, text string) error {
	jsClear := fmt.Sprintf(`(function(selector) {
		const el = document.querySelector(selector);
		if (!el || el.disabled || el.readOnly) {
			return false;
		}
		el.value = "";
		el.dispatchEvent(new Event('input', { bubbles: true }));
		return true;
	})(%s)`, quote(selector))

	var cleared bool
	err := s.run(ctx, "fill "+selector, s.cfg.ActionTimeout,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Evaluate(jsClear, &cleared),
	)
	if err != nil {
		return err
	}
	if !cleared {
		return fmt.Errorf("fill %s failed: element is missing, disabled or read-only", selector)
	}
	return s.run(ctx, "fill "+selector, s.cfg.ActionTimeout, chromedp.ActionFunc(func(c context.Context) error {
		return input.InsertText(text).Do(c)
	}))
}

// Blur removes focus from the active element.
func (s *Session) Blur(ctx context.Context) error {
	const jsBlur = `(function() {
		const el = document.activeElement;
		if (el && typeof el.blur === 'function') {
			el.blur();
		}
	})()`
	return s.Evaluate(ctx, jsBlur, nil)
}

// Click clicks the first element matching selector once it is visible.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, "click "+selector, s.cfg.ActionTimeout, chromedp.Click(selector, chromedp.ByQuery))
}

// Screenshot writes a PNG of the viewport, or of the whole page when fullPage is set.
func (s *Session) Screenshot(ctx context.Context, path string, fullPage bool) error {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := s.run(ctx, "screenshot", s.cfg.ActionTimeout, action); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create screenshot directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	s.logger.Debug("Screenshot written.", zap.String("path", path), zap.Int("bytes", len(buf)))
	return nil
}

// Close closes the tab. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing session.")
	// chromedp.Cancel waits for the tab to close, the plain cancel func does not.
	if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("Tab did not close cleanly.", zap.Error(err))
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
