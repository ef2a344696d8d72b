package resilience

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"pqcall/internal/domain"
	"pqcall/internal/event"
)

// LimiterConfig tunes the sliding-window rate limiter. Zero fields take
// defaults.
type LimiterConfig struct {
	// Window is the width of the normal rate window.
	Window time.Duration
	// MaxPerWindow is the number of requests allowed per key per window.
	MaxPerWindow int
	// AbuseWindow is the short burst window for abuse detection.
	AbuseWindow time.Duration
	// AbuseThreshold blocks a key once this many requests land inside the
	// abuse window, regardless of the normal counters.
	AbuseThreshold int
	// BlockDuration is how long an abusive key stays blocked.
	BlockDuration time.Duration
	// PruneInterval is how often stale per-key state is dropped.
	PruneInterval time.Duration
	// IdleEviction drops a key with no requests for this long and no active
	// block.
	IdleEviction time.Duration
}

func (c LimiterConfig) withDefaults() LimiterConfig {
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	if c.MaxPerWindow <= 0 {
		c.MaxPerWindow = 100
	}
	if c.AbuseWindow <= 0 {
		c.AbuseWindow = time.Minute
	}
	if c.AbuseThreshold <= 0 {
		c.AbuseThreshold = 30
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = 30 * time.Minute
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = time.Hour
	}
	if c.IdleEviction <= 0 {
		c.IdleEviction = 24 * time.Hour
	}
	return c
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the window frees up (or the block lifts).
	ResetAt time.Time
	// RetryAfter is the cool-down before the key should retry. Zero when
	// allowed.
	RetryAfter time.Duration
	// Abuse marks decisions where the short-window burst detector fired.
	Abuse bool
}

// Failure converts a denial into the policy failure callers return upstream.
func (d Decision) Failure() error {
	if d.Allowed {
		return nil
	}
	code := domain.CodeRateLimited
	msg := "rate limit exceeded"
	if d.Abuse {
		code = domain.CodeAbuseDetected
		msg = "request burst flagged as abuse"
	}
	f := domain.NewFailure(domain.KindPolicy, code, msg)
	f.RetryAfter = d.RetryAfter
	return f
}

// Limiter tracks request timestamps per client-or-IP key in a sliding
// window. Every attempt is recorded, allowed or not, so sustained abuse
// keeps a key hot.
type Limiter struct {
	cfg    LimiterConfig
	clock  clock.Clock
	log    *zap.Logger
	events domain.EventSink

	mu      sync.Mutex
	entries map[string]*limitEntry

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type limitEntry struct {
	times        []time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

// NewLimiter constructs a limiter. Call Start to run background pruning.
func NewLimiter(cfg LimiterConfig, clk clock.Clock, events domain.EventSink, log *zap.Logger) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if events == nil {
		events = event.Discard
	}
	return &Limiter{
		cfg:     cfg.withDefaults(),
		clock:   clk,
		log:     log,
		events:  events,
		entries: make(map[string]*limitEntry),
		closeCh: make(chan struct{}),
	}
}

// Allow records a request for key and decides whether it may proceed. The
// record-and-decide is atomic under the limiter lock so concurrent requests
// cannot undercount a burst.
func (l *Limiter) Allow(key string) Decision {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &limitEntry{}
		l.entries[key] = e
	}
	e.lastSeen = now

	if e.blockedUntil.After(now) {
		return Decision{
			ResetAt:    e.blockedUntil,
			RetryAfter: e.blockedUntil.Sub(now),
			Abuse:      true,
		}
	}

	e.times = append(e.times, now)
	e.prune(now.Add(-l.cfg.Window))

	// Short-window burst check first: it blocks regardless of the normal
	// window counters.
	burst := 0
	abuseStart := now.Add(-l.cfg.AbuseWindow)
	for i := len(e.times) - 1; i >= 0; i-- {
		if e.times[i].Before(abuseStart) {
			break
		}
		burst++
	}
	if burst >= l.cfg.AbuseThreshold {
		e.blockedUntil = now.Add(l.cfg.BlockDuration)
		l.log.Warn("abusive burst blocked",
			zap.String("key", key),
			zap.Int("burst", burst),
			zap.Duration("block", l.cfg.BlockDuration))
		l.events.Publish(domain.SecurityAlert{
			Alert:  domain.AlertAbuse,
			Source: key,
			Detail: "request burst exceeded abuse threshold",
			At:     now,
		})
		return Decision{
			ResetAt:    e.blockedUntil,
			RetryAfter: l.cfg.BlockDuration,
			Abuse:      true,
		}
	}

	count := len(e.times)
	resetAt := e.times[0].Add(l.cfg.Window)
	if count > l.cfg.MaxPerWindow {
		return Decision{
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}
	return Decision{
		Allowed:   true,
		Remaining: l.cfg.MaxPerWindow - count,
		ResetAt:   resetAt,
	}
}

func (e *limitEntry) prune(cutoff time.Time) {
	keep := 0
	for ; keep < len(e.times); keep++ {
		if !e.times[keep].Before(cutoff) {
			break
		}
	}
	if keep > 0 {
		e.times = append(e.times[:0], e.times[keep:]...)
	}
}

// Start launches the background pruning loop.
func (l *Limiter) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := l.clock.Ticker(l.cfg.PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Prune()
			case <-l.closeCh:
				return
			}
		}
	}()
}

// Prune drops keys with no recent activity and no active block. Safe to call
// concurrently with itself and with Allow.
func (l *Limiter) Prune() {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if e.blockedUntil.After(now) {
			continue
		}
		if now.Sub(e.lastSeen) < l.cfg.IdleEviction {
			continue
		}
		delete(l.entries, key)
		removed++
	}
	if removed > 0 {
		l.log.Debug("rate-limit state pruned", zap.Int("removed", removed))
	}
}

// KeyCount returns the number of tracked keys.
func (l *Limiter) KeyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the pruning loop.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.closeCh) })
	l.wg.Wait()
}
