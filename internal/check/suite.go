package check

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/mobilecheck/api/schemas"
	"github.com/xkilldash9x/mobilecheck/internal/device"
)

// OpenFunc opens a page emulating profile.
type OpenFunc func(ctx context.Context, profile device.Profile) (Page, error)

// Suite runs the check once per device profile.
type Suite struct {
	base     Options
	profiles []device.Profile
	open     OpenFunc
	parallel int
	logger   *zap.Logger
	observer Observer

	// newRunner is swapped in tests to stub out delays.
	newRunner func(Options) *Runner
}

// NewSuite creates a suite. parallel below 1 means one device at a time.
func NewSuite(base Options, profiles []device.Profile, open OpenFunc, parallel int, logger *zap.Logger, observer Observer) *Suite {
	if parallel < 1 {
		parallel = 1
	}
	if observer == nil {
		observer = nopObserver{}
	}
	s := &Suite{
		base:     base,
		profiles: profiles,
		open:     open,
		parallel: parallel,
		logger:   logger,
		observer: observer,
	}
	s.newRunner = func(o Options) *Runner { return NewRunner(o, s.logger, s.observer) }
	return s
}

// ScreenshotPath names the screenshot of one device. With a single device
// the configured path is used as is; otherwise the device key is appended to
// the file name, e.g. mobile-test-pixel5.png.
func ScreenshotPath(base, key string, multi bool) string {
	if !multi {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + key + ext
}

// Run checks every profile and returns one result per profile in profile
// order. A failing device does not stop the others; the returned error
// joins every run error.
func (s *Suite) Run(ctx context.Context) ([]*schemas.CheckResult, error) {
	results := make([]*schemas.CheckResult, len(s.profiles))
	errs := make([]error, len(s.profiles))
	multi := len(s.profiles) > 1

	var g errgroup.Group
	g.SetLimit(s.parallel)
	for i, profile := range s.profiles {
		g.Go(func() error {
			opts := s.base
			opts.Device = profile.Info.Name
			opts.Screenshot = ScreenshotPath(s.base.Screenshot, profile.Key, multi)
			results[i], errs[i] = s.runOne(ctx, profile, opts)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", s.profiles[i].Key, err))
		}
	}
	return results, errors.Join(failed...)
}

func (s *Suite) runOne(ctx context.Context, profile device.Profile, opts Options) (*schemas.CheckResult, error) {
	r := s.newRunner(opts)
	started := r.now()
	page, err := s.open(ctx, profile)
	if err != nil {
		err = fmt.Errorf("failed to open page: %w", err)
		s.observer.Observe(Event{Device: opts.Device, Status: StatusFailure, Message: err.Error()})
		return &schemas.CheckResult{
			RunID:    r.newID(),
			Device:   opts.Device,
			PageURL:  opts.PageURL,
			Started:  started,
			Finished: r.now(),
			Error:    err.Error(),
		}, err
	}
	return r.Run(ctx, page)
}
