package token

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"pqcall/internal/crypto"
	"pqcall/internal/domain"
	"pqcall/internal/event"
)

// Config tunes the token authority. Zero fields take defaults.
type Config struct {
	// DefaultLifetime is applied to every issued token.
	DefaultLifetime time.Duration
	// MaxLifetime clamps SetExpiration requests.
	MaxLifetime time.Duration
	// Retention keeps revoked tokens queryable before cleanup deletes them.
	Retention time.Duration
	// CleanupInterval drives the periodic cleanup task started by Start.
	CleanupInterval time.Duration

	// HashSalt is the deployment-wide salt for storage-hash derivation. A
	// fresh random salt is drawn when empty, which invalidates stored
	// tokens across restarts; durable deployments must configure it.
	HashSalt []byte

	// MonitorThreshold is the per-source resolution-attempt count that
	// raises an enumeration alert.
	MonitorThreshold int
	// MonitorCooldown expires idle per-source counters.
	MonitorCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultLifetime <= 0 {
		c.DefaultLifetime = 24 * time.Hour
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 30 * 24 * time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	if c.MonitorThreshold <= 0 {
		c.MonitorThreshold = 10
	}
	if c.MonitorCooldown <= 0 {
		c.MonitorCooldown = 5 * time.Minute
	}
	return c
}

// Authority issues, hashes, resolves, expires, and revokes secure tokens.
type Authority struct {
	cfg     Config
	store   domain.TokenStore
	clock   clock.Clock
	log     *zap.Logger
	events  domain.EventSink
	monitor *monitor

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New constructs the authority around a token store. Call Start to run
// periodic cleanup.
func New(cfg Config, ts domain.TokenStore, clk clock.Clock, events domain.EventSink, log *zap.Logger) (*Authority, error) {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if events == nil {
		events = event.Discard
	}
	if len(cfg.HashSalt) == 0 {
		salt, err := crypto.NewSalt(crypto.SaltBytes)
		if err != nil {
			return nil, err
		}
		cfg.HashSalt = salt
		log.Warn("no token hash salt configured; using an ephemeral salt, stored tokens will not survive a restart")
	}
	return &Authority{
		cfg:     cfg,
		store:   ts,
		clock:   clk,
		log:     log,
		events:  events,
		monitor: newMonitor(cfg.MonitorThreshold, cfg.MonitorCooldown, clk, events, log),
		closeCh: make(chan struct{}),
	}, nil
}

// Issue mints a token for user with the default lifetime and persists only
// its storage hash.
func (a *Authority) Issue(ctx context.Context, user domain.UserID) (domain.SecureToken, error) {
	value, err := crypto.NewTokenValue()
	if err != nil {
		return domain.SecureToken{}, domain.WrapFailure(domain.KindInfrastructure,
			domain.CodeDatabaseError, "generating token material", err)
	}
	now := a.clock.Now()
	tok := domain.SecureToken{
		Value:     value,
		Version:   domain.TokenVersion,
		Checksum:  crypto.Checksum(value),
		CreatedAt: now,
	}
	hashed := a.Hash(tok)
	expires := now.Add(a.cfg.DefaultLifetime)
	meta := domain.TokenMetadata{
		Hashed:    hashed,
		UserID:    user,
		CreatedAt: now,
		ExpiresAt: &expires,
	}
	if err := a.store.SaveToken(ctx, meta); err != nil {
		return domain.SecureToken{}, wrapStorage("saving token", err)
	}

	a.events.Publish(domain.TokenIssued{TokenRef: hashed.Prefix(), At: now})
	a.log.Info("token issued", zap.String("token_ref", hashed.Prefix()))
	return tok, nil
}

// Hash derives the storage form of a token. Deterministic for the
// deployment salt; the raw value never leaves this call.
func (a *Authority) Hash(tok domain.SecureToken) domain.HashedToken {
	return domain.HashedToken{
		Algorithm: crypto.StorageHashAlgorithm,
		Hash:      crypto.DeriveStorageHash(tok.Value, a.cfg.HashSalt),
		Salt:      hex.EncodeToString(a.cfg.HashSalt),
	}
}

// Resolve maps a hashed token to its user. Expiration and revocation checks
// fail closed: a record in an ambiguous state is treated as expired.
func (a *Authority) Resolve(ctx context.Context, hashed domain.HashedToken) (domain.UserID, error) {
	meta, ok, err := a.store.LookupToken(ctx, hashed.Hash)
	if err != nil {
		return "", wrapStorage("looking up token", err)
	}
	if !ok {
		return "", domain.NewFailure(domain.KindResolution, domain.CodeTokenResolutionFail,
			"token not found")
	}
	now := a.clock.Now()
	if meta.Expired(now) {
		return "", domain.NewFailure(domain.KindResolution, domain.CodeTokenExpired,
			"token expired")
	}
	if meta.Revoked && !a.withinRevocationGrace(meta, now) {
		return "", domain.NewFailure(domain.KindResolution, domain.CodeTokenRevoked,
			"token revoked")
	}
	return meta.UserID, nil
}

// withinRevocationGrace honors the grace period recorded at revocation: a
// revoked token without a timestamp is ambiguous and rejected outright.
func (a *Authority) withinRevocationGrace(meta domain.TokenMetadata, now time.Time) bool {
	if meta.RevokedAt == nil {
		return false
	}
	return meta.RevocationGrace > 0 && now.Before(meta.RevokedAt.Add(meta.RevocationGrace))
}

// ResolveToken hashes and resolves in one step for callers holding a raw
// token.
func (a *Authority) ResolveToken(ctx context.Context, tok domain.SecureToken) (domain.UserID, error) {
	return a.Resolve(ctx, a.Hash(tok))
}

// SetExpiration reschedules a token's expiry, clamped to the configured
// maximum lifetime.
func (a *Authority) SetExpiration(ctx context.Context, tok domain.SecureToken, lifetime time.Duration) error {
	if lifetime <= 0 {
		return domain.NewFailure(domain.KindFormat, domain.CodeInvalidFormat,
			"lifetime must be positive")
	}
	if lifetime > a.cfg.MaxLifetime {
		lifetime = a.cfg.MaxLifetime
	}
	meta, err := a.lookup(ctx, tok)
	if err != nil {
		return err
	}
	expires := a.clock.Now().Add(lifetime)
	meta.ExpiresAt = &expires
	if err := a.store.UpdateToken(ctx, meta); err != nil {
		return wrapStorage("updating expiration", err)
	}
	return nil
}

// Revoke marks the token revoked. grace lets in-flight resolutions finish;
// after it elapses the token resolves as revoked. Idempotent. The emitted
// event carries only a truncated hash reference.
func (a *Authority) Revoke(ctx context.Context, tok domain.SecureToken, reason string, grace time.Duration) error {
	meta, err := a.lookup(ctx, tok)
	if err != nil {
		return err
	}
	if meta.Revoked {
		return nil
	}
	now := a.clock.Now()
	meta.Revoked = true
	meta.RevokedAt = &now
	meta.RevokedReason = reason
	meta.RevocationGrace = grace
	if err := a.store.UpdateToken(ctx, meta); err != nil {
		return wrapStorage("recording revocation", err)
	}

	a.events.Publish(domain.TokenRevoked{
		TokenRef:    meta.Hashed.Prefix(),
		Reason:      reason,
		GracePeriod: grace,
		At:          now,
	})
	a.log.Info("token revoked",
		zap.String("token_ref", meta.Hashed.Prefix()),
		zap.String("reason", reason))
	return nil
}

func (a *Authority) lookup(ctx context.Context, tok domain.SecureToken) (domain.TokenMetadata, error) {
	hashed := a.Hash(tok)
	meta, ok, err := a.store.LookupToken(ctx, hashed.Hash)
	if err != nil {
		return domain.TokenMetadata{}, wrapStorage("looking up token", err)
	}
	if !ok {
		return domain.TokenMetadata{}, domain.NewFailure(domain.KindResolution,
			domain.CodeTokenResolutionFail, "token not found")
	}
	return meta, nil
}

// Cleanup deletes expired tokens and revoked tokens past the retention
// window. Exposed on demand and run periodically by Start.
func (a *Authority) Cleanup(ctx context.Context, now time.Time) (int, error) {
	removed, err := a.store.PurgeTokens(ctx, now, a.cfg.Retention)
	if err != nil {
		return 0, wrapStorage("purging tokens", err)
	}
	if removed > 0 {
		a.log.Info("token cleanup", zap.Int("removed", removed))
	}
	a.events.Publish(domain.CleanupCompleted{Component: "tokens", Removed: removed, At: now})
	return removed, nil
}

// Monitor records a resolution attempt for enumeration detection.
func (a *Authority) Monitor(tokenHashPrefix, sourceKey string) {
	a.monitor.record(tokenHashPrefix, sourceKey)
}

// Start launches the periodic cleanup task.
func (a *Authority) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := a.clock.Ticker(a.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if _, err := a.Cleanup(ctx, a.clock.Now()); err != nil {
					a.log.Error("periodic token cleanup failed", zap.Error(err))
				}
				cancel()
			case <-a.closeCh:
				return
			}
		}
	}()
}

// Close stops the cleanup task.
func (a *Authority) Close() {
	a.closeOnce.Do(func() { close(a.closeCh) })
	a.wg.Wait()
}

func wrapStorage(op string, err error) error {
	if domain.IsKind(err, domain.KindInfrastructure) {
		return err
	}
	return domain.WrapFailure(domain.KindInfrastructure, domain.CodeDatabaseError, op, err)
}

var _ domain.TokenAuthority = (*Authority)(nil)
