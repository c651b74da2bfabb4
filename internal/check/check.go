// Package check implements the mobile keyboard smoke check.
//
// A check loads the survey page in an emulated phone, reads the layout
// values the page computes for the viewport, types into the first answer
// field, closes the virtual keyboard by blurring it and verifies that every
// scroll offset went back to zero. It then advances to the next question and
// saves a screenshot.
package check

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/mobilecheck/api/schemas"
	"github.com/xkilldash9x/mobilecheck/internal/config"
)

// ErrScrollNotReset is returned in strict mode when the page stays scrolled after blur.
var ErrScrollNotReset = errors.New("scroll positions not fully reset")

// Page is the browser tab a check drives.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JS expression and decodes its value into out (nil discards it).
	Evaluate(ctx context.Context, expression string, out interface{}) error
	Count(ctx context.Context, selector string) (int, error)
	Focus(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	Blur(ctx context.Context) error
	Click(ctx context.Context, selector string) error
	Screenshot(ctx context.Context, path string, fullPage bool) error
	ConsoleLogs() []schemas.ConsoleLog
	Close(ctx context.Context) error
}

// Status classifies a progress event.
type Status int

const (
	StatusInfo Status = iota
	StatusSuccess
	StatusWarning
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	case StatusFailure:
		return "failure"
	default:
		return "info"
	}
}

// Event is one progress line of a run.
type Event struct {
	Device  string
	Status  Status
	Message string
	// Detail is an optional multi-line block printed under the message.
	Detail string
}

// Observer receives progress events. Implementations must be safe for
// concurrent use when devices run in parallel.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// Options configures one run against one device.
type Options struct {
	// Device is the label used in events and the result, e.g. "iPhone 12".
	Device  string
	PageURL string

	Screenshot string
	FullPage   bool
	Text       string

	SettleDelay time.Duration
	ActionDelay time.Duration
	Strict      bool

	VHVariable        string
	SlideHeightGlobal string
	Selectors         config.SelectorConfig
}

// OptionsFromConfig builds run options from the check configuration.
// Device and Screenshot are per device and are filled in by the suite.
func OptionsFromConfig(cfg config.CheckConfig, pageURL string) Options {
	return Options{
		PageURL:           pageURL,
		Screenshot:        cfg.Screenshot,
		FullPage:          cfg.FullPage,
		Text:              cfg.Text,
		SettleDelay:       cfg.SettleDelay,
		ActionDelay:       cfg.ActionDelay,
		Strict:            cfg.Strict,
		VHVariable:        cfg.VHVariable,
		SlideHeightGlobal: cfg.SlideHeightGlobal,
		Selectors:         cfg.Selectors,
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
