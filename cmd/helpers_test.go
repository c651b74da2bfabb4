package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mobilecheck/api/schemas"
	"github.com/xkilldash9x/mobilecheck/internal/check"
	"github.com/xkilldash9x/mobilecheck/internal/config"
	"github.com/xkilldash9x/mobilecheck/internal/device"
)

func init() {
	color.NoColor = true
}

const surveyHTML = `<!DOCTYPE html>
<html><body>
<div id="questionsContainer">
  <div class="question-slide"><input class="answer-input" type="text"></div>
  <div class="question-slide"><input class="answer-input" type="text"></div>
</div>
<button id="nextBtn">Next</button>
</body></html>`

// executeCommand runs a fresh command tree and returns everything it printed.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// writeSurvey writes a survey page into a temp dir and returns its path.
func writeSurvey(t *testing.T, markup string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte(markup), 0o644))
	return path
}

// stubPage is a page whose evaluations all read as null, which the check
// treats as a page that never scrolled.
type stubPage struct {
	clickErr error
	shots    *[]string
	mu       *sync.Mutex
}

func (p *stubPage) Navigate(context.Context, string) error { return nil }
func (p *stubPage) Evaluate(context.Context, string, interface{}) error { return nil }
func (p *stubPage) Count(context.Context, string) (int, error) { return 1, nil }
func (p *stubPage) Focus(context.Context, string) error { return nil }
func (p *stubPage) Fill(context.Context, string, string) error { return nil }
func (p *stubPage) Blur(context.Context) error { return nil }
func (p *stubPage) Click(context.Context, string) error { return p.clickErr }
func (p *stubPage) ConsoleLogs() []schemas.ConsoleLog { return nil }
func (p *stubPage) Close(context.Context) error { return nil }

func (p *stubPage) Screenshot(_ context.Context, path string, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	*p.shots = append(*p.shots, path)
	return nil
}

// fakeBrowser replaces the Chromium launcher for the duration of a test.
type fakeBrowser struct {
	mu sync.Mutex
	// failing lists device keys whose click fails.
	failing   map[string]bool
	launchErr error

	cfg      config.BrowserConfig
	opened   []string
	shots    []string
	shutdown bool
}

func stubLaunch(t *testing.T) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{failing: map[string]bool{}}
	orig := launch
	launch = func(_ context.Context, cfg config.BrowserConfig, _ *zap.Logger) (check.OpenFunc, func(context.Context) error, error) {
		if fb.launchErr != nil {
			return nil, nil, fb.launchErr
		}
		fb.cfg = cfg
		open := func(_ context.Context, profile device.Profile) (check.Page, error) {
			fb.mu.Lock()
			defer fb.mu.Unlock()
			fb.opened = append(fb.opened, profile.Key)
			p := &stubPage{shots: &fb.shots, mu: &fb.mu}
			if fb.failing[profile.Key] {
				p.clickErr = context.DeadlineExceeded
			}
			return p, nil
		}
		shutdown := func(context.Context) error {
			fb.mu.Lock()
			defer fb.mu.Unlock()
			fb.shutdown = true
			return nil
		}
		return open, shutdown, nil
	}
	t.Cleanup(func() { launch = orig })
	return fb
}
