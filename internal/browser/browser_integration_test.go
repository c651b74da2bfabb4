package browser_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/mobilecheck/internal/browser"
	"github.com/xkilldash9x/mobilecheck/internal/config"
	"github.com/xkilldash9x/mobilecheck/internal/device"
)

const fixturePage = `<!DOCTYPE html>
<html style="--vh: 8.44px">
<head><meta name="viewport" content="width=device-width"></head>
<body>
  <div id="questionsContainer" style="transform: translateY(0px)">
    <div class="question-slide"><input class="answer-input" type="text" value="old answer"></div>
    <div class="question-slide"><input class="answer-input" type="text"></div>
  </div>
  <button id="nextBtn" onclick="document.getElementById('questionsContainer').style.transform='translateY(-844px)'">Next</button>
  <script>
    window.fixedSlideHeight = window.innerHeight;
    console.log("ready", window.innerWidth);
    document.querySelector('.answer-input').addEventListener('input', e => { window.lastInput = e.target.value; });
  </script>
</body>
</html>`

// findChrome skips the test when no browser binary is available.
func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome or Chromium binary found")
	return ""
}

func setupManager(t *testing.T) (*browser.Manager, *zap.Logger) {
	t.Helper()
	execPath := findChrome(t)
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))

	cfg := config.BrowserConfig{
		Headless:          true,
		ExecPath:          execPath,
		NoSandbox:         true,
		LaunchTimeout:     30 * time.Second,
		NavigationTimeout: 15 * time.Second,
		ActionTimeout:     5 * time.Second,
	}
	m, err := browser.NewManager(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, m.Shutdown(ctx))
	})
	return m, logger
}

func TestSessionAgainstFixture(t *testing.T) {
	m, _ := setupManager(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(fixturePage))
	}))
	defer server.Close()

	profile, err := device.Lookup("iphone12")
	require.NoError(t, err)

	ctx := context.Background()
	s, err := m.NewSession(ctx, profile)
	require.NoError(t, err)
	defer s.Close(ctx)

	require.NoError(t, s.Navigate(ctx, server.URL))

	var vh string
	require.NoError(t, s.Evaluate(ctx, `getComputedStyle(document.documentElement).getPropertyValue('--vh')`, &vh))
	assert.Contains(t, vh, "8.44px")

	var width int
	require.NoError(t, s.Evaluate(ctx, `window.innerWidth`, &width))
	assert.Equal(t, 390, width, "device emulation sets the CSS viewport")

	var missing interface{} = "stale"
	require.NoError(t, s.Evaluate(ctx, `window.notDefinedAnywhere`, &missing))
	assert.Nil(t, missing)

	err = s.Evaluate(ctx, `document.getElementById('nope').style.transform`, new(string))
	assert.Error(t, err, "exceptions thrown in the page surface as errors")

	n, err := s.Count(ctx, ".answer-input")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var before string
	require.NoError(t, s.Evaluate(ctx, `document.querySelector('.answer-input').value`, &before))
	require.Equal(t, "old answer", before)

	require.NoError(t, s.Fill(ctx, ".answer-input", "hello"))
	var typed, value string
	require.NoError(t, s.Evaluate(ctx, `window.lastInput`, &typed))
	assert.Equal(t, "hello", typed, "the last input event carries only the new text")
	require.NoError(t, s.Evaluate(ctx, `document.querySelector('.answer-input').value`, &value))
	assert.Equal(t, "hello", value, "fill replaces the existing value")

	require.NoError(t, s.Blur(ctx))
	var active string
	require.NoError(t, s.Evaluate(ctx, `document.activeElement.tagName`, &active))
	assert.Equal(t, "BODY", active)

	require.NoError(t, s.Click(ctx, "#nextBtn"))
	var transform string
	require.NoError(t, s.Evaluate(ctx, `document.getElementById('questionsContainer').style.transform`, &transform))
	assert.Equal(t, "translateY(-844px)", transform)

	shot := filepath.Join(t.TempDir(), "shots", "mobile-test.png")
	require.NoError(t, s.Screenshot(ctx, shot, false))
	data, err := os.ReadFile(shot)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])

	assert.Eventually(t, func() bool {
		for _, l := range s.ConsoleLogs() {
			if l.Type == "log" && l.Text == "ready 390" {
				return true
			}
		}
		return false
	}, 2*time.Second, 50*time.Millisecond)
}

func TestNewSessionAfterShutdown(t *testing.T) {
	m, _ := setupManager(t)
	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.NewSession(context.Background(), device.All()[0])
	assert.ErrorIs(t, err, browser.ErrManagerClosed)
}
