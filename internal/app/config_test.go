package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pqcall/internal/app"
	"pqcall/internal/callflow"
	"pqcall/internal/token"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pqcall.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfigParsesDurations(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  development: true
token:
  hash_salt: a1b2c3d4
  default_lifetime: 12h
  monitor_threshold: 25
session:
  grace: 90s
rate_limit:
  window: 5m
  max_per_window: 40
flow:
  ring_timeout: 45s
media:
  enabled: true
  ice_servers:
    - stun:stun.example.org:3478
`)

	cfg, err := app.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Log.Development)
	require.Equal(t, "a1b2c3d4", cfg.Token.HashSalt)
	require.Equal(t, 12*time.Hour, cfg.Token.DefaultLifetime.Std())
	require.Equal(t, 25, cfg.Token.MonitorThreshold)
	require.Equal(t, 90*time.Second, cfg.Session.Grace.Std())
	require.Equal(t, 5*time.Minute, cfg.RateLimit.Window.Std())
	require.Equal(t, 40, cfg.RateLimit.MaxPerWindow)
	require.Equal(t, 45*time.Second, cfg.Flow.RingTimeout.Std())
	require.True(t, cfg.Media.Enabled)
	require.Len(t, cfg.Media.ICEServers, 1)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "session:\n  grace: soon\n")

	_, err := app.LoadConfig(path)
	require.ErrorContains(t, err, "parsing duration")
}

func TestLoadConfigEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := app.LoadConfig("")
	require.NoError(t, err)
	require.Zero(t, cfg.Token.DefaultLifetime)
	require.Empty(t, cfg.Database.DSN)
}

func TestNewWireBuildsGraphOnDefaults(t *testing.T) {
	var cfg app.Config
	cfg.Log.Level = "error"

	w, err := app.NewWire(cfg)
	require.NoError(t, err)
	defer w.Close()

	require.NotNil(t, w.Tokens)
	require.NotNil(t, w.Router)
	require.NotNil(t, w.Flows)

	// Defaults run the in-memory store and the no-op media engine; a full
	// outgoing flow should work end to end.
	ctx := context.Background()
	tok, err := w.Tokens.Issue(ctx, "user-1")
	require.NoError(t, err)
	report, err := w.Flows.Outgoing(ctx, callflow.OutgoingRequest{
		QRPayload: token.FormatQR(tok),
	})
	require.NoError(t, err)
	require.True(t, report.SessionID.Valid())
}
