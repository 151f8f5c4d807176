// Package sampler keeps CPU utilisation cheap to read. Utilisation only
// exists over a window between two readings, so the sampler pays for one
// blocking measurement up front and then relies on non-blocking reads that
// measure the time since the previous read.
package sampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// DefaultWindow is the blocking measurement window used for warm-up
const DefaultWindow = 100 * time.Millisecond

// MeasureFunc measures aggregate CPU utilisation over window. A zero window
// must return immediately, measuring against the previous zero-window call.
type MeasureFunc func(ctx context.Context, window time.Duration) (float64, error)

// Sampler holds the last valid utilisation reading. Once initialized, the
// stored value always comes from a real measurement.
type Sampler struct {
	mu          sync.Mutex
	measure     MeasureFunc
	window      time.Duration
	lastValid   float64
	initialized bool
}

// New creates a Sampler. A nil measure uses gopsutil.
func New(measure MeasureFunc) *Sampler {
	if measure == nil {
		measure = Measure
	}
	return &Sampler{measure: measure, window: DefaultWindow}
}

// Measure reads aggregate CPU utilisation from gopsutil
func Measure(ctx context.Context, window time.Duration) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, errors.New("no cpu utilisation reported")
	}
	return percents[0], nil
}

// EnsureInitialized performs the warm-up measurement once. Concurrent
// callers wait for the first one instead of measuring again.
func (s *Sampler) EnsureInitialized(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	return s.measureBlocking(ctx)
}

// Sample returns current utilisation without blocking, except on the first
// call of an uninitialized sampler. A zero read right after a window
// boundary is replaced by the last valid value.
func (s *Sampler) Sample(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.measure(ctx, 0)
	switch {
	case err == nil && v > 0:
		s.lastValid = v
		s.initialized = true
		return v, nil
	case err == nil && s.lastValid > 0:
		return s.lastValid, nil
	case s.initialized:
		return s.lastValid, nil
	}

	if err := s.measureBlocking(ctx); err != nil {
		return 0, err
	}
	return s.lastValid, nil
}

// State returns the last valid reading and whether the sampler is warm
func (s *Sampler) State() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastValid, s.initialized
}

// measureBlocking must be called with s.mu held
func (s *Sampler) measureBlocking(ctx context.Context) error {
	v, err := s.measure(ctx, s.window)
	if err != nil {
		return err
	}
	s.lastValid = v
	s.initialized = true
	return nil
}
