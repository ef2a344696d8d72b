package token_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"pqcall/internal/domain"
	"pqcall/internal/event"
	"pqcall/internal/store"
	"pqcall/internal/token"
)

func newAuthority(t *testing.T, events domain.EventSink) (*token.Authority, *store.MemoryTokenStore, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	ts := store.NewMemoryTokenStore()
	auth, err := token.New(token.Config{
		DefaultLifetime:  24 * time.Hour,
		MaxLifetime:      72 * time.Hour,
		Retention:        30 * 24 * time.Hour,
		HashSalt:         []byte("0123456789abcdef"),
		MonitorThreshold: 3,
		MonitorCooldown:  time.Minute,
	}, ts, mock, events, nil)
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	return auth, ts, mock
}

func TestIssueResolve(t *testing.T) {
	ctx := context.Background()
	auth, ts, _ := newAuthority(t, nil)

	tok, err := auth.Issue(ctx, "user-7")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(tok.Value) != 64 || tok.Version != 1 || len(tok.Checksum) != 8 {
		t.Fatalf("token shape: %+v", tok)
	}

	user, err := auth.ResolveToken(ctx, tok)
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if user != "user-7" {
		t.Fatalf("user = %q", user)
	}

	// Only the hashed form reaches storage.
	hashed := auth.Hash(tok)
	if hashed.Hash == tok.Value {
		t.Fatal("storage hash equals raw value")
	}
	if _, ok, _ := ts.LookupToken(ctx, tok.Value); ok {
		t.Fatal("raw token value used as storage key")
	}
	if _, ok, _ := ts.LookupToken(ctx, hashed.Hash); !ok {
		t.Fatal("hashed token not stored")
	}
}

func TestResolve_UnknownToken(t *testing.T) {
	ctx := context.Background()
	auth, _, _ := newAuthority(t, nil)

	_, err := auth.Resolve(ctx, domain.HashedToken{Hash: "nope"})
	if domain.FailureCode(err) != domain.CodeTokenResolutionFail {
		t.Fatalf("err = %v", err)
	}
	if !domain.IsKind(err, domain.KindResolution) {
		t.Fatal("kind not resolution")
	}
}

func TestResolve_Expired(t *testing.T) {
	ctx := context.Background()
	auth, _, mock := newAuthority(t, nil)

	tok, err := auth.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	mock.Add(25 * time.Hour)

	_, err = auth.ResolveToken(ctx, tok)
	if domain.FailureCode(err) != domain.CodeTokenExpired {
		t.Fatalf("err = %v, want TOKEN_EXPIRED", err)
	}
}

func TestSetExpiration_Clamped(t *testing.T) {
	ctx := context.Background()
	auth, _, mock := newAuthority(t, nil)

	tok, _ := auth.Issue(ctx, "user-1")
	if err := auth.SetExpiration(ctx, tok, 1000*time.Hour); err != nil {
		t.Fatalf("SetExpiration: %v", err)
	}

	// Clamped to the 72h maximum: alive at 71h, dead at 73h.
	mock.Add(71 * time.Hour)
	if _, err := auth.ResolveToken(ctx, tok); err != nil {
		t.Fatalf("resolve at 71h: %v", err)
	}
	mock.Add(2 * time.Hour)
	if _, err := auth.ResolveToken(ctx, tok); domain.FailureCode(err) != domain.CodeTokenExpired {
		t.Fatalf("resolve at 73h: %v", err)
	}

	if err := auth.SetExpiration(ctx, tok, -time.Hour); domain.FailureCode(err) != domain.CodeInvalidFormat {
		t.Fatalf("negative lifetime err = %v", err)
	}
}

func TestRevoke_GraceAndEvents(t *testing.T) {
	ctx := context.Background()
	bus := event.NewBus(nil)
	defer bus.Close()
	events, cancel := bus.Subscribe(8)
	defer cancel()

	auth, _, mock := newAuthority(t, bus)
	tok, _ := auth.Issue(ctx, "user-1")

	if err := auth.Revoke(ctx, tok, "device lost", 10*time.Minute); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	// Idempotent.
	if err := auth.Revoke(ctx, tok, "again", 0); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}

	// Within grace the token still resolves.
	mock.Add(5 * time.Minute)
	if _, err := auth.ResolveToken(ctx, tok); err != nil {
		t.Fatalf("resolve within grace: %v", err)
	}
	mock.Add(6 * time.Minute)
	if _, err := auth.ResolveToken(ctx, tok); domain.FailureCode(err) != domain.CodeTokenRevoked {
		t.Fatalf("resolve after grace: %v", err)
	}

	// The revocation event carries a truncated reference, not the value.
	var revoked *domain.TokenRevoked
	for i := 0; i < 2; i++ {
		ev := <-events
		if r, ok := ev.(domain.TokenRevoked); ok {
			revoked = &r
		}
	}
	if revoked == nil {
		t.Fatal("no token.revoked event")
	}
	if len(revoked.TokenRef) != 8 {
		t.Fatalf("TokenRef = %q, want 8-char prefix", revoked.TokenRef)
	}
	if revoked.TokenRef == tok.Value[:8] {
		t.Fatal("event reference derived from raw value")
	}
}

func TestRevoke_ZeroGraceImmediate(t *testing.T) {
	ctx := context.Background()
	auth, _, _ := newAuthority(t, nil)
	tok, _ := auth.Issue(ctx, "user-1")

	if err := auth.Revoke(ctx, tok, "compromised", 0); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := auth.ResolveToken(ctx, tok); domain.FailureCode(err) != domain.CodeTokenRevoked {
		t.Fatalf("err = %v, want TOKEN_REVOKED", err)
	}
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	auth, ts, mock := newAuthority(t, nil)

	expired, _ := auth.Issue(ctx, "user-1")
	_ = expired
	live, _ := auth.Issue(ctx, "user-2")
	if err := auth.SetExpiration(ctx, live, 72*time.Hour); err != nil {
		t.Fatalf("SetExpiration: %v", err)
	}

	mock.Add(25 * time.Hour)
	removed, err := auth.Cleanup(ctx, mock.Now())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if ts.Len() != 1 {
		t.Fatalf("stored = %d, want 1", ts.Len())
	}
}

func TestMonitor_EnumerationAlert(t *testing.T) {
	bus := event.NewBus(nil)
	defer bus.Close()
	events, cancel := bus.Subscribe(8)
	defer cancel()

	auth, _, _ := newAuthority(t, bus)

	for i := 0; i < 3; i++ {
		auth.Monitor("abcd1234", "198.51.100.7")
	}

	select {
	case ev := <-events:
		alert, ok := ev.(domain.SecurityAlert)
		if !ok {
			t.Fatalf("got %T", ev)
		}
		if alert.Alert != domain.AlertEnumeration {
			t.Fatalf("alert = %q", alert.Alert)
		}
		if alert.Source != "198.51.100.7" {
			t.Fatalf("source = %q", alert.Source)
		}
		if !strings.Contains(alert.Detail, "abcd1234") {
			t.Fatalf("detail %q missing last attempted prefix", alert.Detail)
		}
	case <-time.After(time.Second):
		t.Fatal("no enumeration alert")
	}

	// One alert per counter lifetime.
	auth.Monitor("abcd1234", "198.51.100.7")
	select {
	case ev := <-events:
		t.Fatalf("unexpected second event %v", ev)
	default:
	}
}
