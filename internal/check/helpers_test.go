package check

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/mobilecheck/api/schemas"
	"github.com/xkilldash9x/mobilecheck/internal/config"
)

const testURL = "file:///survey/index.html"

// fakePage answers evaluations from canned JSON and records every call in order.
type fakePage struct {
	mu sync.Mutex

	values  map[string]string
	errs    map[string]error
	scrolls []string
	inputs  int

	clickErr error
	shotErr  error

	calls   []string
	console []schemas.ConsoleLog
	closed  bool
}

func newFakePage() *fakePage {
	opts := testOptions()
	p := &fakePage{
		values: map[string]string{},
		errs:   map[string]error{},
		inputs: 1,
	}
	p.values[cssVariableScript(opts.VHVariable)] = `" 8.44px"`
	p.values[globalScript(opts.SlideHeightGlobal)] = `844`
	p.values[transformScript(opts.Selectors.ContainerID)] = `"translateY(0px)"`
	p.scrolls = []string{
		`{"window":{"x":0,"y":0},"body":0,"slides":[120,0,0]}`,
		`{"window":{"x":0,"y":0},"body":0,"slides":[0,0,0]}`,
	}
	p.console = []schemas.ConsoleLog{{Type: "log", Text: "survey ready"}}
	return p
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.record("navigate " + url)
	return nil
}

func (p *fakePage) Evaluate(_ context.Context, expression string, out interface{}) error {
	p.record("eval")
	if err := p.errs[expression]; err != nil {
		return err
	}

	p.mu.Lock()
	raw, ok := p.values[expression]
	if expression == scrollScript(testOptions().Selectors.Slides) {
		ok = len(p.scrolls) > 0
		if ok {
			raw, p.scrolls = p.scrolls[0], p.scrolls[1:]
		}
	}
	// After the click the container reports the next slide's offset.
	if expression == transformScript(testOptions().Selectors.ContainerID) && p.clicked() {
		raw = `"translateY(-844px)"`
	}
	p.mu.Unlock()

	if !ok {
		raw = "null"
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

// clicked must be called with mu held.
func (p *fakePage) clicked() bool {
	for _, c := range p.calls {
		if len(c) > 5 && c[:5] == "click" {
			return true
		}
	}
	return false
}

func (p *fakePage) Count(_ context.Context, selector string) (int, error) {
	p.record("count " + selector)
	return p.inputs, nil
}

func (p *fakePage) Focus(_ context.Context, selector string) error {
	p.record("focus " + selector)
	return nil
}

func (p *fakePage) Fill(_ context.Context, selector, text string) error {
	p.record(fmt.Sprintf("fill %s=%s", selector, text))
	return nil
}

func (p *fakePage) Blur(context.Context) error {
	p.record("blur")
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.record("click " + selector)
	return p.clickErr
}

func (p *fakePage) Screenshot(_ context.Context, path string, fullPage bool) error {
	p.record(fmt.Sprintf("screenshot %s full=%v", path, fullPage))
	return p.shotErr
}

func (p *fakePage) ConsoleLogs() []schemas.ConsoleLog {
	return p.console
}

func (p *fakePage) Close(context.Context) error {
	p.record("close")
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// eventLog collects observer events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) Messages(status Status) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.Status == status {
			out = append(out, e.Message)
		}
	}
	return out
}

func testOptions() Options {
	opts := OptionsFromConfig(config.NewDefaultConfig().Check, testURL)
	opts.Device = "iPhone 12"
	return opts
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// newTestRunner returns a runner whose delays are recorded on page instead of slept.
func newTestRunner(t *testing.T, opts Options, page *fakePage, obs Observer) *Runner {
	t.Helper()
	r := NewRunner(opts, zaptest.NewLogger(t), obs)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		page.record("sleep " + d.String())
		return ctx.Err()
	}
	tick := fixedNow
	r.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	r.newID = func() string { return "run-1" }
	return r
}
