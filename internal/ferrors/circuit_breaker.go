package ferrors

import (
	"sync"
	"sync/atomic"
	"time"
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int32

const (
	// StateClosed allows all calls through
	StateClosed CircuitBreakerState = iota
	// StateOpen refuses all calls
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive tripping failures before opening
	MaxFailures uint32
	// MaxRequests is the number of calls allowed in half-open state
	MaxRequests uint32
	// Timeout is the duration of open state before switching to half-open
	Timeout time.Duration
	// OnStateChange is called with the breaker's name when the state changes
	OnStateChange func(name string, from, to CircuitBreakerState)
	// ShouldTrip determines if an error should count as a failure
	ShouldTrip func(error) bool
}

// DefaultCircuitBreakerConfig trips only when a tool is missing outright.
// A slow or failing tool keeps being called.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures: 3,
		MaxRequests: 1,
		Timeout:     5 * time.Minute,
		ShouldTrip: func(err error) bool {
			return Is(err, ErrToolMissing)
		},
	}
}

// BreakerStats is a point-in-time view of one breaker
type BreakerStats struct {
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	Successes           uint64 `json:"successes"`
	Failures            uint64 `json:"failures"`
}

// CircuitBreaker guards calls to one external tool
type CircuitBreaker struct {
	name   string
	config *CircuitBreakerConfig

	state        atomic.Int32
	failures     atomic.Uint32
	requests     atomic.Uint32
	successCount atomic.Uint64
	failureCount atomic.Uint64

	mu            sync.Mutex
	lastStateTime time.Time
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(name string, config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	cb := &CircuitBreaker{
		name:          name,
		config:        config,
		lastStateTime: time.Now(),
	}
	cb.state.Store(int32(StateClosed))

	return cb
}

// Execute runs fn through the circuit breaker. While open, fn is not called
// and ErrCircuitOpen is returned.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err)

	return err
}

// GetState returns the current state, moving an expired open breaker to
// half-open.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := CircuitBreakerState(cb.state.Load())
	if state == StateOpen && time.Now().After(cb.lastStateTime.Add(cb.config.Timeout)) {
		cb.setState(StateHalfOpen)
		return StateHalfOpen
	}
	return state
}

// Stats returns the breaker's state and counters. Failures counts every
// failed call, tripping or not.
func (cb *CircuitBreaker) Stats() BreakerStats {
	return BreakerStats{
		State:               cb.GetState().String(),
		ConsecutiveFailures: cb.failures.Load(),
		Successes:           cb.successCount.Load(),
		Failures:            cb.failureCount.Load(),
	}
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.failures.Store(0)
	cb.requests.Store(0)
}

func (cb *CircuitBreaker) beforeRequest() error {
	switch cb.GetState() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.requests.Add(1) > cb.config.MaxRequests {
			return ErrCircuitOpen
		}
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	state := CircuitBreakerState(cb.state.Load())

	if err == nil || (cb.config.ShouldTrip != nil && !cb.config.ShouldTrip(err)) {
		cb.onSuccess(state, err == nil)
		return
	}
	cb.onFailure(state)
}

func (cb *CircuitBreaker) onSuccess(state CircuitBreakerState, clean bool) {
	if clean {
		cb.successCount.Add(1)
	} else {
		cb.failureCount.Add(1)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch state {
	case StateClosed:
		cb.failures.Store(0)
	case StateHalfOpen:
		cb.setState(StateClosed)
		cb.failures.Store(0)
		cb.requests.Store(0)
	}
}

func (cb *CircuitBreaker) onFailure(state CircuitBreakerState) {
	cb.failureCount.Add(1)

	switch state {
	case StateClosed:
		if cb.failures.Add(1) >= cb.config.MaxFailures {
			cb.mu.Lock()
			cb.setState(StateOpen)
			cb.mu.Unlock()
		}
	case StateHalfOpen:
		cb.mu.Lock()
		cb.setState(StateOpen)
		cb.mu.Unlock()
	}
}

// setState must be called with cb.mu held
func (cb *CircuitBreaker) setState(state CircuitBreakerState) {
	oldState := CircuitBreakerState(cb.state.Load())
	if oldState == state {
		return
	}

	cb.state.Store(int32(state))
	cb.lastStateTime = time.Now()

	if state == StateOpen {
		cb.requests.Store(0)
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, oldState, state)
	}
}

// CircuitBreakerGroup manages one breaker per name
type CircuitBreakerGroup struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   *CircuitBreakerConfig
}

// NewCircuitBreakerGroup creates a new circuit breaker group
func NewCircuitBreakerGroup(config *CircuitBreakerConfig) *CircuitBreakerGroup {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	return &CircuitBreakerGroup{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
	}
}

// Get returns the circuit breaker for name, creating it on first use
func (g *CircuitBreakerGroup) Get(name string) *CircuitBreaker {
	g.mu.RLock()
	cb, exists := g.breakers[name]
	g.mu.RUnlock()

	if exists {
		return cb
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, exists = g.breakers[name]; exists {
		return cb
	}

	cb = NewCircuitBreaker(name, g.config)
	g.breakers[name] = cb

	return cb
}

// Execute runs fn through the named circuit breaker
func (g *CircuitBreakerGroup) Execute(name string, fn func() error) error {
	return g.Get(name).Execute(fn)
}

// Stats returns the stats of every breaker created so far, by name
func (g *CircuitBreakerGroup) Stats() map[string]BreakerStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := make(map[string]BreakerStats, len(g.breakers))
	for name, cb := range g.breakers {
		stats[name] = cb.Stats()
	}
	return stats
}
