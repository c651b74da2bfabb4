package schemas

import (
	"time"
)

// -- Page Reading Schemas --

// WindowScroll is the window scroll offset in CSS pixels.
type WindowScroll struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// ScrollSnapshot captures every scroll offset the keyboard check cares about at one instant.
type ScrollSnapshot struct {
	Window WindowScroll `json:"window" yaml:"window"`
	// Body is document.body.scrollTop.
	Body float64 `json:"body" yaml:"body"`
	// Slides holds the scrollTop of each question slide in document order.
	Slides []float64 `json:"slides" yaml:"slides"`
}

// IsReset reports whether the page scrolled back to the top after the
// keyboard closed. Only the window's vertical offset and the slides count;
// the horizontal offset and body scrollTop are informational.
func (s ScrollSnapshot) IsReset() bool {
	if s.Window.Y != 0 {
		return false
	}
	for _, top := range s.Slides {
		if top != 0 {
			return false
		}
	}
	return true
}

// ConsoleLog represents a single entry from the page console.
type ConsoleLog struct {
	Type string `json:"type" yaml:"type"`
	Text string `json:"text" yaml:"text"`
}

// -- Result Schemas --

// CheckResult is the outcome of one check run against one device profile.
type CheckResult struct {
	RunID    string    `json:"runId" yaml:"runId"`
	Device   string    `json:"device" yaml:"device"`
	PageURL  string    `json:"pageUrl" yaml:"pageUrl"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`

	VH string `json:"vh" yaml:"vh"`
	// SlideHeight is whatever the page stored in its slide height global; nil when unset.
	SlideHeight      interface{} `json:"slideHeight" yaml:"slideHeight"`
	InitialTransform string      `json:"initialTransform" yaml:"initialTransform"`

	InputFound bool            `json:"inputFound" yaml:"inputFound"`
	AfterFocus *ScrollSnapshot `json:"afterFocus,omitempty" yaml:"afterFocus,omitempty"`
	AfterBlur  *ScrollSnapshot `json:"afterBlur,omitempty" yaml:"afterBlur,omitempty"`
	// ScrollReset is nil when no input was found and the keyboard steps were skipped.
	ScrollReset *bool `json:"scrollReset,omitempty" yaml:"scrollReset,omitempty"`

	NavigatedTransform string `json:"navigatedTransform" yaml:"navigatedTransform"`
	Screenshot         string `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`

	Console  []ConsoleLog `json:"console,omitempty" yaml:"console,omitempty"`
	Warnings []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error    string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the run ended with an error.
func (r *CheckResult) Failed() bool {
	return r.Error != ""
}

// Duration is the wall time of the run.
func (r *CheckResult) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Report aggregates the runs of one invocation.
type Report struct {
	Page      string         `json:"page" yaml:"page"`
	Generated time.Time      `json:"generated" yaml:"generated"`
	Preflight []string       `json:"preflightWarnings,omitempty" yaml:"preflightWarnings,omitempty"`
	Runs      []*CheckResult `json:"runs" yaml:"runs"`
}

// Failures counts the runs that ended with an error.
func (r *Report) Failures() int {
	n := 0
	for _, run := range r.Runs {
		if run.Failed() {
			n++
		}
	}
	return n
}

// OK is true when every run completed without error.
func (r *Report) OK() bool {
	return len(r.Runs) > 0 && r.Failures() == 0
}
