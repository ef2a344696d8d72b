package callflow

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pqcall/internal/domain"
	"pqcall/internal/event"
	"pqcall/internal/resilience"
	"pqcall/internal/router"
	"pqcall/internal/token"
)

// Breaker names for the guarded downstream operations.
const (
	breakerToken   = "token_resolution"
	breakerSession = "session_creation"
	breakerMedia   = "media_setup"
)

// Config tunes the orchestrator. Zero fields take defaults.
type Config struct {
	// StepTimeout bounds each individual flow step.
	StepTimeout time.Duration
	// RingTimeout fails a session that is never answered.
	RingTimeout time.Duration
	// MaxCallDuration ends a connected call that outlives it.
	MaxCallDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.StepTimeout <= 0 {
		c.StepTimeout = 10 * time.Second
	}
	if c.RingTimeout <= 0 {
		c.RingTimeout = 60 * time.Second
	}
	if c.MaxCallDuration <= 0 {
		c.MaxCallDuration = 4 * time.Hour
	}
	return c
}

// Orchestrator runs the multi-step call flows: outgoing establishment,
// incoming answer, and teardown. Downstream calls to token resolution,
// session creation, and media setup run under circuit breakers so a broken
// dependency sheds load instead of queueing callers.
type Orchestrator struct {
	cfg      Config
	router   *router.Router
	registry domain.SessionRegistry
	media    domain.MediaEngine
	anon     domain.Anonymizer
	breakers *resilience.BreakerSet
	events   domain.EventSink
	clock    clock.Clock
	log      *zap.Logger

	mu        sync.Mutex
	watchdogs map[domain.SessionID]*clock.Timer
	closed    bool
}

// New wires the orchestrator.
func New(cfg Config, rt *router.Router, registry domain.SessionRegistry, media domain.MediaEngine,
	anon domain.Anonymizer, breakers *resilience.BreakerSet, events domain.EventSink,
	clk clock.Clock, log *zap.Logger) *Orchestrator {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if events == nil {
		events = event.Discard
	}
	if breakers == nil {
		breakers = resilience.NewBreakerSet(resilience.BreakerConfig{}, clk, log)
	}
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		router:    rt,
		registry:  registry,
		media:     media,
		anon:      anon,
		breakers:  breakers,
		events:    events,
		clock:     clk,
		log:       log,
		watchdogs: make(map[domain.SessionID]*clock.Timer),
	}
}

// OutgoingRequest starts a call from a scanned QR payload.
type OutgoingRequest struct {
	QRPayload string
	// CallerAnonymous is optional; a fresh anonymous id is minted when empty.
	CallerAnonymous domain.AnonymousID
	// ClientKey feeds the rate limiter: client id or IP.
	ClientKey string
}

// Outgoing runs the outgoing call flow: validate the QR payload, extract the
// token, resolve it, create the anonymous session, bring up media, and arm
// ring monitoring. The report lists every step; the returned error equals
// Report.Err for convenience.
func (o *Orchestrator) Outgoing(ctx context.Context, req OutgoingRequest) (*Report, error) {
	r := o.newRunner(FlowOutgoing)

	var tok domain.SecureToken
	r.step(ctx, "validate_qr", func(context.Context) error {
		return token.ValidateQRShape(req.QRPayload)
	})
	r.step(ctx, "extract_token", func(context.Context) error {
		var err error
		tok, err = token.ParseQR(req.QRPayload)
		return err
	})

	var callee domain.UserID
	r.step(ctx, "validate_token", func(sctx context.Context) error {
		if err := o.router.Allow(req.ClientKey); err != nil {
			return err
		}
		return o.breakers.Execute(sctx, breakerToken, func(bctx context.Context) error {
			var err error
			callee, err = o.router.ValidateToken(bctx, tok, req.ClientKey)
			return err
		})
	})

	var routed router.Result
	r.step(ctx, "create_session", func(sctx context.Context) error {
		return o.breakers.Execute(sctx, breakerSession, func(bctx context.Context) error {
			var err error
			routed, err = o.router.CreateSession(bctx, callee, req.CallerAnonymous)
			return err
		})
	})
	r.report.SessionID = routed.SessionID

	r.step(ctx, "initialize_media", func(sctx context.Context) error {
		err := o.breakers.Execute(sctx, breakerMedia, func(bctx context.Context) error {
			return o.media.Initialize(bctx, routed.SessionID)
		})
		if err != nil {
			// The session exists but cannot carry a call; fail it rather
			// than leave the pair locked out.
			o.failSession(routed.SessionID)
		}
		return err
	})

	r.step(ctx, "setup_monitoring", func(context.Context) error {
		if err := o.registry.UpdateStatus(routed.SessionID, domain.StatusRinging); err != nil {
			return err
		}
		o.armWatchdog(routed.SessionID, o.cfg.RingTimeout, "ring timeout")
		return nil
	})

	report := r.finish()
	return report, report.Err
}

// Incoming runs the answer flow on the callee side: check the session is
// still ringing, join media, mark the call connected, and swap the ring
// watchdog for the call-duration cap.
func (o *Orchestrator) Incoming(ctx context.Context, id domain.SessionID) (*Report, error) {
	r := o.newRunner(FlowIncoming)
	r.report.SessionID = id

	r.step(ctx, "validate_session", func(context.Context) error {
		rec, ok := o.registry.Get(id)
		if !ok {
			return domain.NewFailure(domain.KindResolution, domain.CodeSessionNotFound,
				"no session "+string(id))
		}
		if rec.Status != domain.StatusRinging {
			return domain.NewFailure(domain.KindPolicy, domain.CodeInvalidTransition,
				"session is "+string(rec.Status)+", not answerable")
		}
		return nil
	})

	r.step(ctx, "initialize_media", func(sctx context.Context) error {
		return o.breakers.Execute(sctx, breakerMedia, func(bctx context.Context) error {
			return o.media.Initialize(bctx, id)
		})
	})

	r.step(ctx, "mark_connected", func(context.Context) error {
		return o.registry.UpdateStatus(id, domain.StatusConnected)
	})

	r.step(ctx, "setup_monitoring", func(context.Context) error {
		o.armWatchdog(id, o.cfg.MaxCallDuration, "max call duration")
		return nil
	})

	report := r.finish()
	return report, report.Err
}

// Terminate runs the teardown flow. Terminating a session that is missing or
// already terminal completes without error; media teardown is best effort
// and never blocks registry or mapping cleanup.
func (o *Orchestrator) Terminate(ctx context.Context, id domain.SessionID) (*Report, error) {
	r := o.newRunner(FlowTerminate)
	r.report.SessionID = id

	rec, live := o.registry.Get(id)
	if !live || rec.Status.Terminal() {
		// Nothing left to tear down. The flow still reports its steps.
		for _, name := range []string{"end_media", "close_session", "clear_mappings"} {
			r.report.Steps = append(r.report.Steps, StepResult{Name: name, Status: StepSkipped})
		}
		o.disarmWatchdog(id)
		return r.finish(), nil
	}

	var mediaErr error
	r.step(ctx, "end_media", func(context.Context) error {
		mediaErr = o.media.Teardown(id)
		if mediaErr != nil {
			o.log.Warn("media teardown failed",
				zap.String("session_id", string(id)), zap.Error(mediaErr))
		}
		return nil
	})

	r.step(ctx, "close_session", func(sctx context.Context) error {
		o.disarmWatchdog(id)
		return o.router.Terminate(sctx, id)
	})

	r.step(ctx, "clear_mappings", func(context.Context) error {
		o.anon.Clear(rec.ParticipantA)
		o.anon.Clear(rec.ParticipantB)
		return nil
	})

	report := r.finish()
	return report, multierr.Append(report.Err, mediaErr)
}

// armWatchdog schedules a forced teardown for id after d, replacing any
// earlier watchdog for the same session.
func (o *Orchestrator) armWatchdog(id domain.SessionID, d time.Duration, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if prev, ok := o.watchdogs[id]; ok {
		prev.Stop()
	}
	o.watchdogs[id] = o.clock.AfterFunc(d, func() {
		o.expireSession(id, reason)
	})
}

func (o *Orchestrator) disarmWatchdog(id domain.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if timer, ok := o.watchdogs[id]; ok {
		timer.Stop()
		delete(o.watchdogs, id)
	}
}

// expireSession is the watchdog body: fail the session if it is still live
// and release its media.
func (o *Orchestrator) expireSession(id domain.SessionID, reason string) {
	o.mu.Lock()
	delete(o.watchdogs, id)
	o.mu.Unlock()

	rec, ok := o.registry.Get(id)
	if !ok || rec.Status.Terminal() {
		return
	}
	o.log.Info("session expired by watchdog",
		zap.String("session_id", string(id)),
		zap.String("reason", reason))
	o.failSession(id)
	if err := o.media.Teardown(id); err != nil {
		o.log.Warn("media teardown failed",
			zap.String("session_id", string(id)), zap.Error(err))
	}
}

// failSession moves id to FAILED and schedules registry cleanup. Losing the
// transition race to another terminator is fine.
func (o *Orchestrator) failSession(id domain.SessionID) {
	if err := o.registry.UpdateStatus(id, domain.StatusFailed); err != nil {
		o.log.Debug("session already terminal", zap.String("session_id", string(id)))
	}
	o.registry.Cleanup(id)
}

// Close stops all watchdogs. Sessions themselves are owned by the registry.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for id, timer := range o.watchdogs {
		timer.Stop()
		delete(o.watchdogs, id)
	}
}
