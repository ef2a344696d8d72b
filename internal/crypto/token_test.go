package crypto_test

import (
	"testing"

	"pqcall/internal/crypto"
)

func TestNewTokenValue_Shape(t *testing.T) {
	v, err := crypto.NewTokenValue()
	if err != nil {
		t.Fatalf("NewTokenValue: %v", err)
	}
	if len(v) != 64 {
		t.Fatalf("value length = %d, want 64", len(v))
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("non-hex character %q at %d", c, i)
		}
	}
}

func TestNewTokenValue_EmpiricalUniqueness(t *testing.T) {
	const draws = 10000
	seen := make(map[string]struct{}, draws)
	for i := 0; i < draws; i++ {
		v, err := crypto.NewTokenValue()
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		if _, dup := seen[v]; dup {
			t.Fatalf("duplicate token value after %d draws", i)
		}
		seen[v] = struct{}{}
	}
}

func TestChecksum_Verify(t *testing.T) {
	v, err := crypto.NewTokenValue()
	if err != nil {
		t.Fatalf("NewTokenValue: %v", err)
	}
	sum := crypto.Checksum(v)
	if len(sum) != 8 {
		t.Fatalf("checksum length = %d, want 8", len(sum))
	}
	if !crypto.VerifyChecksum(v, sum) {
		t.Fatal("checksum did not verify against its own value")
	}

	// Uppercase transcription of the same digits still verifies.
	upper := make([]byte, len(sum))
	for i := range sum {
		c := sum[i]
		if c >= 'a' && c <= 'f' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}
	if !crypto.VerifyChecksum(v, string(upper)) {
		t.Fatal("uppercase checksum rejected")
	}
}

func TestChecksum_SingleCharacterTamper(t *testing.T) {
	v, err := crypto.NewTokenValue()
	if err != nil {
		t.Fatalf("NewTokenValue: %v", err)
	}
	sum := crypto.Checksum(v)
	for i := 0; i < len(sum); i++ {
		tampered := []byte(sum)
		if tampered[i] == '0' {
			tampered[i] = '1'
		} else {
			tampered[i] = '0'
		}
		if crypto.VerifyChecksum(v, string(tampered)) {
			t.Fatalf("tampered checksum %q accepted", tampered)
		}
	}
}

func TestDeriveStorageHash_DeterministicPerSalt(t *testing.T) {
	salt, err := crypto.NewSalt(crypto.SaltBytes)
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	a := crypto.DeriveStorageHash("deadbeef", salt)
	b := crypto.DeriveStorageHash("deadbeef", salt)
	if !crypto.HashEqual(a, b) {
		t.Fatal("same value and salt produced different hashes")
	}

	other, err := crypto.NewSalt(crypto.SaltBytes)
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	if crypto.HashEqual(a, crypto.DeriveStorageHash("deadbeef", other)) {
		t.Fatal("different salts produced the same hash")
	}
	if crypto.HashEqual(a, crypto.DeriveStorageHash("deadbeee", salt)) {
		t.Fatal("different values produced the same hash")
	}
}
