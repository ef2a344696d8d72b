package anonymize_test

import (
	"testing"

	"pqcall/internal/anonymize"
	"pqcall/internal/domain"
)

func TestAnonymize_IdempotentPerUser(t *testing.T) {
	svc := anonymize.New(nil, nil)

	a1, err := svc.Anonymize("user-1")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	a2, err := svc.Anonymize("user-1")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("same user yielded %q then %q", a1, a2)
	}

	b, err := svc.Anonymize("user-2")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if b == a1 {
		t.Fatal("different users yielded the same anonymous id")
	}
}

func TestAnonymize_IDNamespaces(t *testing.T) {
	svc := anonymize.New(nil, nil)

	anon, err := svc.NewAnonymousID()
	if err != nil {
		t.Fatalf("NewAnonymousID: %v", err)
	}
	sess, err := svc.NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}

	if !anon.Valid() {
		t.Fatalf("anonymous id %q fails its own validation", anon)
	}
	if !sess.Valid() {
		t.Fatalf("session id %q fails its own validation", sess)
	}

	// Cross-namespace confusion must be caught by validation.
	if domain.AnonymousID(sess).Valid() {
		t.Fatal("session id accepted as anonymous id")
	}
	if domain.SessionID(anon).Valid() {
		t.Fatal("anonymous id accepted as session id")
	}
}

func TestDeanonymize_RoundTripAndClear(t *testing.T) {
	svc := anonymize.New(nil, nil)

	anon, err := svc.Anonymize("user-9")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	user, ok := svc.Deanonymize(anon)
	if !ok || user != "user-9" {
		t.Fatalf("Deanonymize = %q, %v", user, ok)
	}

	svc.Clear(anon)
	if _, ok := svc.Deanonymize(anon); ok {
		t.Fatal("mapping survived Clear")
	}

	// After clearing, the user gets a fresh id.
	again, err := svc.Anonymize("user-9")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if again == anon {
		t.Fatal("cleared user re-mapped to the old id")
	}
}

func TestClearAll(t *testing.T) {
	svc := anonymize.New(nil, nil)
	for _, u := range []domain.UserID{"a", "b", "c"} {
		if _, err := svc.Anonymize(u); err != nil {
			t.Fatalf("Anonymize(%q): %v", u, err)
		}
	}
	if svc.MappingCount() != 3 {
		t.Fatalf("MappingCount = %d, want 3", svc.MappingCount())
	}
	svc.ClearAll()
	if svc.MappingCount() != 0 {
		t.Fatalf("MappingCount = %d after ClearAll", svc.MappingCount())
	}
}

func TestAnonymize_EmptyUserRejected(t *testing.T) {
	svc := anonymize.New(nil, nil)
	if _, err := svc.Anonymize(""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}
