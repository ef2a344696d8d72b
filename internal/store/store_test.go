package store_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"pqcall/internal/domain"
	"pqcall/internal/store"
)

func meta(hash string, user domain.UserID) domain.TokenMetadata {
	return domain.TokenMetadata{
		Hashed: domain.HashedToken{
			Algorithm: "argon2id-v1",
			Hash:      hash,
			Salt:      "73616c74",
		},
		UserID:    user,
		CreatedAt: time.Now(),
	}
}

func TestMemoryStore_SaveLookupUpdate(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryTokenStore()

	m := meta("hash-1", "user-1")
	if err := s.SaveToken(ctx, m); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := s.SaveToken(ctx, m); err == nil {
		t.Fatal("duplicate save accepted")
	}

	got, ok, err := s.LookupToken(ctx, "hash-1")
	if err != nil || !ok {
		t.Fatalf("LookupToken = %v, %v", ok, err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("UserID = %q", got.UserID)
	}

	if _, ok, _ := s.LookupToken(ctx, "missing"); ok {
		t.Fatal("lookup of missing hash succeeded")
	}

	now := time.Now()
	got.Revoked = true
	got.RevokedAt = &now
	if err := s.UpdateToken(ctx, got); err != nil {
		t.Fatalf("UpdateToken: %v", err)
	}
	got, _, _ = s.LookupToken(ctx, "hash-1")
	if !got.Revoked {
		t.Fatal("revocation not persisted")
	}

	if err := s.UpdateToken(ctx, meta("missing", "u")); err == nil {
		t.Fatal("update of missing record accepted")
	}
}

func TestMemoryStore_Purge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryTokenStore()
	now := time.Now()

	// Expired an hour ago.
	expired := meta("expired", "u1")
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past
	// Revoked beyond retention.
	revoked := meta("revoked", "u2")
	old := now.Add(-31 * 24 * time.Hour)
	revoked.Revoked = true
	revoked.RevokedAt = &old
	// Live token.
	live := meta("live", "u3")
	future := now.Add(time.Hour)
	live.ExpiresAt = &future

	for _, m := range []domain.TokenMetadata{expired, revoked, live} {
		if err := s.SaveToken(ctx, m); err != nil {
			t.Fatalf("SaveToken: %v", err)
		}
	}

	removed, err := s.PurgeTokens(ctx, now, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeTokens: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	if _, ok, _ := s.LookupToken(ctx, "live"); !ok {
		t.Fatal("live token purged")
	}
}

func TestEnvelope_EncryptDecrypt(t *testing.T) {
	env, err := store.NewEnvelope("deployment-secret")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	plain := []byte("optional profile field")
	ct, err := env.Encrypt(plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ct, plain) {
		t.Fatal("ciphertext contains plaintext")
	}

	got, err := env.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip = %q", got)
	}

	other, err := store.NewEnvelope("different-secret")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if _, err := other.Decrypt(ct); err == nil {
		t.Fatal("decryption succeeded with the wrong secret")
	}
}

func TestEnvelope_HashVerify(t *testing.T) {
	env, err := store.NewEnvelope("deployment-secret")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	h, err := env.Hash("display-name")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	ok, err := env.VerifyHash("display-name", h)
	if err != nil || !ok {
		t.Fatalf("VerifyHash = %v, %v", ok, err)
	}
	ok, err = env.VerifyHash("other-name", h)
	if err != nil {
		t.Fatalf("VerifyHash: %v", err)
	}
	if ok {
		t.Fatal("wrong value verified")
	}
	if _, err := env.VerifyHash("x", "not-a-hash"); err == nil {
		t.Fatal("malformed hash accepted")
	}
}
