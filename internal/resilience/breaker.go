package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"pqcall/internal/domain"
)

// BreakerState is the circuit state for one named downstream operation.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig tunes one breaker. Zero fields take defaults.
type BreakerConfig struct {
	// FailureThreshold opens the circuit after this many consecutive
	// failures while closed.
	FailureThreshold int
	// SuccessThreshold closes the circuit after this many consecutive
	// half-open trial successes.
	SuccessThreshold int
	// RecoveryTimeout is how long an open circuit rejects before allowing a
	// half-open trial.
	RecoveryTimeout time.Duration
	// CallTimeout is the hard deadline wrapped around every guarded call. A
	// timeout counts as a failure.
	CallTimeout time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	return c
}

// BreakerStats is an observability snapshot of one breaker.
type BreakerStats struct {
	Name            string
	State           BreakerState
	FailureCount    int
	SuccessCount    int
	LastFailureTime *time.Time
	NextAttemptTime *time.Time
}

// Breaker guards one named downstream operation. Created lazily by
// BreakerSet and retained for the process lifetime.
type Breaker struct {
	name  string
	cfg   BreakerConfig
	clock clock.Clock
	log   *zap.Logger

	mu           sync.Mutex
	state        BreakerState
	failures     int
	successes    int
	lastFailure  time.Time
	nextAttempt  time.Time
	halfOpenBusy bool
}

// NewBreaker constructs a closed breaker for the named operation.
func NewBreaker(name string, cfg BreakerConfig, clk clock.Clock, log *zap.Logger) *Breaker {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Breaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		clock: clk,
		log:   log.With(zap.String("breaker", name)),
		state: StateClosed,
	}
}

// Execute runs fn under the breaker. While open it rejects immediately with
// a SERVICE_UNAVAILABLE failure without invoking fn. Every admitted call is
// bounded by the configured CallTimeout.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := b.call(ctx, fn)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.clock.Now().Before(b.nextAttempt) {
			return b.rejectionLocked()
		}
		b.transitionLocked(StateHalfOpen)
		b.halfOpenBusy = true
		return nil
	default: // StateHalfOpen
		if b.halfOpenBusy {
			return b.rejectionLocked()
		}
		b.halfOpenBusy = true
		return nil
	}
}

func (b *Breaker) rejectionLocked() error {
	return domain.NewFailure(domain.KindInfrastructure, domain.CodeServiceUnavailable,
		"circuit "+b.name+" is open")
}

func (b *Breaker) call(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(cctx) }()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return domain.WrapFailure(domain.KindInfrastructure, domain.CodeTimeout,
			"guarded call "+b.name+" timed out", cctx.Err())
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.halfOpenBusy = false
	}
	if err != nil {
		b.onFailureLocked()
		return
	}
	b.onSuccessLocked()
}

func (b *Breaker) onFailureLocked() {
	b.lastFailure = b.clock.Now()
	switch b.state {
	case StateHalfOpen:
		b.openLocked()
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openLocked()
		}
	}
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.closeLocked()
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) openLocked() {
	b.nextAttempt = b.clock.Now().Add(b.cfg.RecoveryTimeout)
	b.successes = 0
	b.transitionLocked(StateOpen)
}

func (b *Breaker) closeLocked() {
	b.failures = 0
	b.successes = 0
	b.transitionLocked(StateClosed)
}

func (b *Breaker) transitionLocked(next BreakerState) {
	if b.state == next {
		return
	}
	b.log.Info("circuit transition",
		zap.String("from", string(b.state)),
		zap.String("to", string(next)))
	b.state = next
}

// ForceOpen trips the breaker for operational overrides. It stays open for
// the recovery timeout like an organically tripped circuit.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openLocked()
}

// ForceClose resets the breaker to closed with cleared counters.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.halfOpenBusy = false
	b.closeLocked()
}

// Stats returns an observability snapshot.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := BreakerStats{
		Name:         b.name,
		State:        b.state,
		FailureCount: b.failures,
		SuccessCount: b.successes,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		stats.LastFailureTime = &t
	}
	if b.state == StateOpen {
		t := b.nextAttempt
		stats.NextAttemptTime = &t
	}
	return stats
}

// BreakerSet holds one breaker per named operation, created lazily on first
// use with the set's shared config.
type BreakerSet struct {
	cfg   BreakerConfig
	clock clock.Clock
	log   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet constructs an empty set.
func NewBreakerSet(cfg BreakerConfig, clk clock.Clock, log *zap.Logger) *BreakerSet {
	return &BreakerSet{
		cfg:      cfg,
		clock:    clk,
		log:      log,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (s *BreakerSet) Get(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[name]
	if !ok {
		b = NewBreaker(name, s.cfg, s.clock, s.log)
		s.breakers[name] = b
	}
	return b
}

// Execute runs fn under the named breaker.
func (s *BreakerSet) Execute(ctx context.Context, name string, fn func(context.Context) error) error {
	return s.Get(name).Execute(ctx, fn)
}

// Stats snapshots every breaker in the set.
func (s *BreakerSet) Stats() map[string]BreakerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]BreakerStats, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.Stats()
	}
	return out
}
