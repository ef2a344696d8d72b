package app

import (
	"encoding/hex"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pqcall/internal/anonymize"
	"pqcall/internal/callflow"
	"pqcall/internal/domain"
	"pqcall/internal/event"
	"pqcall/internal/media"
	"pqcall/internal/resilience"
	"pqcall/internal/router"
	"pqcall/internal/session"
	"pqcall/internal/store"
	"pqcall/internal/token"
)

// Wire is the assembled dependency graph.
type Wire struct {
	Log        *zap.Logger
	Events     *event.Bus
	Store      domain.TokenStore
	Tokens     *token.Authority
	Anonymizer *anonymize.Service
	Registry   *session.Registry
	Limiter    *resilience.Limiter
	Breakers   *resilience.BreakerSet
	Media      domain.MediaEngine
	Router     *router.Router
	Flows      *callflow.Orchestrator
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	clk := clock.New()
	bus := event.NewBus(log.Named("events"))

	tokenStore, err := newTokenStore(cfg)
	if err != nil {
		return nil, err
	}

	var hashSalt []byte
	if cfg.Token.HashSalt != "" {
		hashSalt, err = hex.DecodeString(cfg.Token.HashSalt)
		if err != nil {
			return nil, fmt.Errorf("decoding token hash salt: %w", err)
		}
	}
	tokens, err := token.New(token.Config{
		DefaultLifetime:  cfg.Token.DefaultLifetime.Std(),
		MaxLifetime:      cfg.Token.MaxLifetime.Std(),
		Retention:        cfg.Token.Retention.Std(),
		CleanupInterval:  cfg.Token.CleanupInterval.Std(),
		HashSalt:         hashSalt,
		MonitorThreshold: cfg.Token.MonitorThreshold,
		MonitorCooldown:  cfg.Token.MonitorCooldown.Std(),
	}, tokenStore, clk, bus, log.Named("token"))
	if err != nil {
		return nil, err
	}

	anon := anonymize.New(clk, log.Named("anonymize"))
	registry := session.NewRegistry(anon, clk, cfg.Session.Grace.Std(), bus, log.Named("session"))

	limiter := resilience.NewLimiter(resilience.LimiterConfig{
		Window:         cfg.RateLimit.Window.Std(),
		MaxPerWindow:   cfg.RateLimit.MaxPerWindow,
		AbuseWindow:    cfg.RateLimit.AbuseWindow.Std(),
		AbuseThreshold: cfg.RateLimit.AbuseThreshold,
		BlockDuration:  cfg.RateLimit.BlockDuration.Std(),
		PruneInterval:  cfg.RateLimit.PruneInterval.Std(),
		IdleEviction:   cfg.RateLimit.IdleEviction.Std(),
	}, clk, bus, log.Named("ratelimit"))

	breakers := resilience.NewBreakerSet(resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout.Std(),
		CallTimeout:      cfg.Breaker.CallTimeout.Std(),
	}, clk, log.Named("breaker"))

	var engine domain.MediaEngine = media.NopEngine{}
	if cfg.Media.Enabled {
		engine = media.NewWebRTCEngine(cfg.Media.ICEServers, log.Named("media"))
	}

	rt := router.New(tokens, anon, registry, limiter, log.Named("router"))
	flows := callflow.New(callflow.Config{
		StepTimeout:     cfg.Flow.StepTimeout.Std(),
		RingTimeout:     cfg.Flow.RingTimeout.Std(),
		MaxCallDuration: cfg.Flow.MaxCallDuration.Std(),
	}, rt, registry, engine, anon, breakers, bus, clk, log.Named("callflow"))

	return &Wire{
		Log:        log,
		Events:     bus,
		Store:      tokenStore,
		Tokens:     tokens,
		Anonymizer: anon,
		Registry:   registry,
		Limiter:    limiter,
		Breakers:   breakers,
		Media:      engine,
		Router:     rt,
		Flows:      flows,
	}, nil
}

func newLogger(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Log.Level != "" {
		var err error
		level, err = zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
	}
	zapCfg := zap.NewProductionConfig()
	if cfg.Log.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func newTokenStore(cfg Config) (domain.TokenStore, error) {
	if cfg.Database.DSN == "" {
		return store.NewMemoryTokenStore(), nil
	}
	var cipher store.FieldCipher
	if cfg.Database.FieldSecret != "" {
		env, err := store.NewEnvelope(cfg.Database.FieldSecret)
		if err != nil {
			return nil, err
		}
		cipher = env
	}
	gs, err := store.OpenGorm(cfg.Database.DSN, cipher)
	if err != nil {
		return nil, err
	}
	return gs, nil
}

// Start launches the background tasks: periodic token cleanup and rate-limit
// pruning.
func (w *Wire) Start() {
	w.Tokens.Start()
	w.Limiter.Start()
}

// Close shuts the graph down in reverse dependency order.
func (w *Wire) Close() {
	w.Flows.Close()
	if closer, ok := w.Media.(interface{ Close() }); ok {
		closer.Close()
	}
	w.Registry.Close()
	w.Limiter.Close()
	w.Tokens.Close()
	w.Events.Close()
	_ = w.Log.Sync()
}
