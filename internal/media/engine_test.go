package media_test

import (
	"context"
	"testing"

	"pqcall/internal/media"
)

func TestWebRTCEngine_Lifecycle(t *testing.T) {
	e := media.NewWebRTCEngine(nil, nil)
	defer e.Close()

	const id = "sess-00000000aaaaaaaaaaaaaaaa"
	if err := e.Initialize(context.Background(), id); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// Idempotent while active.
	if err := e.Initialize(context.Background(), id); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if n := e.ActiveSessions(); n != 1 {
		t.Fatalf("ActiveSessions = %d, want 1", n)
	}

	if err := e.Teardown(id); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if err := e.Teardown(id); err != nil {
		t.Fatalf("repeat Teardown: %v", err)
	}
	if n := e.ActiveSessions(); n != 0 {
		t.Fatalf("ActiveSessions = %d, want 0", n)
	}
}

func TestWebRTCEngine_CanceledContext(t *testing.T) {
	e := media.NewWebRTCEngine(nil, nil)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Initialize(ctx, "sess-00000000bbbbbbbbbbbbbbbb"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
