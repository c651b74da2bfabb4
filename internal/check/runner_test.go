package check

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/mobilecheck/api/schemas"
)

func TestRunnerHappyPath(t *testing.T) {
	page := newFakePage()
	events := &eventLog{}
	r := newTestRunner(t, testOptions(), page, events)

	res, err := r.Run(context.Background(), page)
	require.NoError(t, err)

	wantCalls := []string{
		"navigate " + testURL,
		"sleep 1s",
		"eval", // --vh
		"eval", // fixedSlideHeight
		"eval", // initial transform
		"count .answer-input",
		"focus .answer-input",
		"fill .answer-input=Test answer from mobile viewport",
		"sleep 500ms",
		"eval", // scroll after focus
		"blur",
		"sleep 500ms",
		"eval", // scroll after blur
		"click #nextBtn",
		"sleep 500ms",
		"eval", // transform after navigation
		"screenshot mobile-test.png full=false",
		"close",
	}
	if diff := cmp.Diff(wantCalls, page.Calls()); diff != "" {
		t.Errorf("call sequence mismatch (-want +got):\n%s", diff)
	}

	reset := true
	want := &schemas.CheckResult{
		RunID:              "run-1",
		Device:             "iPhone 12",
		PageURL:            testURL,
		Started:            fixedNow.Add(time.Second),
		Finished:           fixedNow.Add(2 * time.Second),
		VH:                 " 8.44px",
		SlideHeight:        float64(844),
		InitialTransform:   "translateY(0px)",
		InputFound:         true,
		AfterFocus:         &schemas.ScrollSnapshot{Slides: []float64{120, 0, 0}},
		AfterBlur:          &schemas.ScrollSnapshot{Slides: []float64{0, 0, 0}},
		ScrollReset:        &reset,
		NavigatedTransform: "translateY(-844px)",
		Screenshot:         "mobile-test.png",
		Console:            []schemas.ConsoleLog{{Type: "log", Text: "survey ready"}},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	assert.Contains(t, events.Messages(StatusSuccess), "CSS variable --vh:  8.44px")
	assert.Contains(t, events.Messages(StatusSuccess), "Fixed slide height: 844")
	assert.Contains(t, events.Messages(StatusSuccess), "SUCCESS: Scroll positions reset correctly!")
	assert.Contains(t, events.Messages(StatusInfo), "Page loaded with iPhone 12 viewport")
	assert.Contains(t, events.Messages(StatusInfo), "Screenshot saved to mobile-test.png")
	assert.Equal(t, "Mobile test completed!", events.events[len(events.events)-1].Message)
	assert.Empty(t, events.Messages(StatusWarning))
}

func TestRunnerScrollNotReset(t *testing.T) {
	stuck := `{"window":{"x":0,"y":312},"body":0,"slides":[0,48,0]}`

	t.Run("warning by default", func(t *testing.T) {
		page := newFakePage()
		page.scrolls[1] = stuck
		events := &eventLog{}

		res, err := newTestRunner(t, testOptions(), page, events).Run(context.Background(), page)
		require.NoError(t, err)
		require.NotNil(t, res.ScrollReset)
		assert.False(t, *res.ScrollReset)
		assert.Equal(t, []string{"WARNING: Scroll positions not fully reset"}, res.Warnings)
		assert.Equal(t, res.Warnings, events.Messages(StatusWarning))
		assert.Equal(t, 312.0, res.AfterBlur.Window.Y)
	})

	t.Run("strict fails after the screenshot", func(t *testing.T) {
		page := newFakePage()
		page.scrolls[1] = stuck
		opts := testOptions()
		opts.Strict = true

		res, err := newTestRunner(t, opts, page, nil).Run(context.Background(), page)
		require.ErrorIs(t, err, ErrScrollNotReset)
		assert.Equal(t, ErrScrollNotReset.Error(), res.Error)
		assert.Equal(t, "mobile-test.png", res.Screenshot)
		assert.Contains(t, page.Calls(), "screenshot mobile-test.png full=false")
		assert.True(t, page.closed)
	})

	t.Run("window x and body are informational", func(t *testing.T) {
		page := newFakePage()
		page.scrolls[1] = `{"window":{"x":30,"y":0},"body":15,"slides":[0,0]}`
		opts := testOptions()
		opts.Strict = true

		res, err := newTestRunner(t, opts, page, nil).Run(context.Background(), page)
		require.NoError(t, err)
		assert.True(t, *res.ScrollReset)
	})
}

func TestRunnerNoInput(t *testing.T) {
	page := newFakePage()
	page.inputs = 0
	events := &eventLog{}

	res, err := newTestRunner(t, testOptions(), page, events).Run(context.Background(), page)
	require.NoError(t, err)

	assert.False(t, res.InputFound)
	assert.Nil(t, res.ScrollReset)
	assert.Nil(t, res.AfterFocus)
	assert.Equal(t, []string{"No input field found on first question"}, events.Messages(StatusWarning))
	for _, c := range page.Calls() {
		assert.NotContains(t, c, "focus")
		assert.NotContains(t, c, "fill")
		assert.NotEqual(t, "blur", c)
	}
	assert.Contains(t, page.Calls(), "click #nextBtn", "navigation still happens without an input")
	assert.Equal(t, "translateY(-844px)", res.NavigatedTransform)
}

func TestRunnerSlideHeightUndefined(t *testing.T) {
	page := newFakePage()
	delete(page.values, globalScript("fixedSlideHeight"))
	events := &eventLog{}

	res, err := newTestRunner(t, testOptions(), page, events).Run(context.Background(), page)
	require.NoError(t, err)
	assert.Nil(t, res.SlideHeight)
	assert.Contains(t, events.Messages(StatusSuccess), "Fixed slide height: undefined")
}

func TestRunnerFailures(t *testing.T) {
	t.Run("missing container", func(t *testing.T) {
		page := newFakePage()
		page.errs[transformScript("questionsContainer")] = errors.New("TypeError: Cannot read properties of null (reading 'style')")
		events := &eventLog{}

		res, err := newTestRunner(t, testOptions(), page, events).Run(context.Background(), page)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "#questionsContainer")
		assert.Contains(t, res.Error, "TypeError")
		assert.NotContains(t, page.Calls(), "count .answer-input", "the run stops at the failing step")
		assert.Equal(t, "close", page.Calls()[len(page.Calls())-1])
		assert.Len(t, events.Messages(StatusFailure), 1)
		assert.Equal(t, []schemas.ConsoleLog{{Type: "log", Text: "survey ready"}}, res.Console)
	})

	t.Run("missing next button", func(t *testing.T) {
		page := newFakePage()
		page.clickErr = context.DeadlineExceeded

		res, err := newTestRunner(t, testOptions(), page, nil).Run(context.Background(), page)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Empty(t, res.Screenshot)
		assert.True(t, page.closed)
	})

	t.Run("canceled while settling", func(t *testing.T) {
		page := newFakePage()
		r := NewRunner(testOptions(), zaptest.NewLogger(t), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := r.Run(ctx, page)
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, page.closed, "the page is closed even when the caller is gone")
	})
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), 0))
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

func TestScripts(t *testing.T) {
	assert.Equal(t, `getComputedStyle(document.documentElement).getPropertyValue("--vh")`, cssVariableScript("--vh"))
	assert.Equal(t, `window["fixedSlideHeight"]`, globalScript("fixedSlideHeight"))
	assert.Equal(t, `document.getElementById("questionsContainer").style.transform`, transformScript("questionsContainer"))
	assert.Contains(t, scrollScript(".question-slide"), `(".question-slide")`)
}

func TestDisplayValue(t *testing.T) {
	assert.Equal(t, "undefined", displayValue(nil))
	assert.Equal(t, "844px", displayValue("844px"))
	assert.Equal(t, "844", displayValue(float64(844)))
	assert.Equal(t, "true", displayValue(true))
}
