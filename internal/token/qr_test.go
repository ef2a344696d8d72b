package token_test

import (
	"strings"
	"testing"

	"pqcall/internal/crypto"
	"pqcall/internal/domain"
	"pqcall/internal/token"
)

func freshToken(t *testing.T) domain.SecureToken {
	t.Helper()
	value, err := crypto.NewTokenValue()
	if err != nil {
		t.Fatalf("NewTokenValue: %v", err)
	}
	return domain.SecureToken{
		Value:    value,
		Version:  domain.TokenVersion,
		Checksum: crypto.Checksum(value),
	}
}

func TestQR_RoundTrip(t *testing.T) {
	tok := freshToken(t)
	payload := token.FormatQR(tok)

	if !strings.HasPrefix(payload, "pqc:1:") {
		t.Fatalf("payload = %q", payload)
	}
	got, err := token.ParseQR(payload)
	if err != nil {
		t.Fatalf("ParseQR: %v", err)
	}
	if got.Value != tok.Value {
		t.Fatalf("value round trip: got %q", got.Value)
	}
	if got.Checksum != tok.Checksum {
		t.Fatalf("checksum round trip: got %q", got.Checksum)
	}
}

func TestQR_MixedCaseAccepted(t *testing.T) {
	tok := freshToken(t)
	payload := "pqc:1:" + strings.ToUpper(tok.Value) + ":" + strings.ToUpper(tok.Checksum)
	got, err := token.ParseQR(payload)
	if err != nil {
		t.Fatalf("ParseQR: %v", err)
	}
	if got.Value != tok.Value {
		t.Fatalf("value not normalized: %q", got.Value)
	}
}

func TestQR_ChecksumTamperIsIntegrityError(t *testing.T) {
	tok := freshToken(t)
	payload := token.FormatQR(tok)

	// Flipping any single checksum character turns a valid payload into an
	// INVALID_CHECKSUM, never an INVALID_FORMAT.
	base := len(payload) - domain.TokenChecksumHexLen
	for i := 0; i < domain.TokenChecksumHexLen; i++ {
		tampered := []byte(payload)
		if tampered[base+i] == 'f' {
			tampered[base+i] = '0'
		} else {
			tampered[base+i] = 'f'
		}
		if string(tampered) == payload {
			t.Fatal("tamper produced identical payload")
		}
		_, err := token.ParseQR(string(tampered))
		if domain.FailureCode(err) != domain.CodeInvalidChecksum {
			t.Fatalf("char %d: err = %v, want INVALID_CHECKSUM", i, err)
		}
		if !domain.IsKind(err, domain.KindIntegrity) {
			t.Fatalf("char %d: kind not integrity", i)
		}
	}
}

func TestQR_ShapeErrors(t *testing.T) {
	tok := freshToken(t)

	cases := []struct {
		name    string
		payload string
		code    string
	}{
		{"wrong version", "pqc:2:" + tok.Value + ":" + tok.Checksum, domain.CodeUnsupportedVersion},
		{"short value", "pqc:1:" + tok.Value[:63] + ":" + tok.Checksum, domain.CodeInvalidFormat},
		{"long value", "pqc:1:" + tok.Value + "a:" + tok.Checksum, domain.CodeInvalidFormat},
		{"wrong prefix", "xyz:1:" + tok.Value + ":" + tok.Checksum, domain.CodeInvalidFormat},
		{"missing field", "pqc:1:" + tok.Value, domain.CodeInvalidFormat},
		{"extra field", "pqc:1:" + tok.Value + ":" + tok.Checksum + ":x", domain.CodeInvalidFormat},
		{"non-hex value", "pqc:1:" + strings.Repeat("g", 64) + ":" + tok.Checksum, domain.CodeInvalidFormat},
		{"short checksum", "pqc:1:" + tok.Value + ":" + tok.Checksum[:7], domain.CodeInvalidFormat},
		{"non-numeric version", "pqc:x:" + tok.Value + ":" + tok.Checksum, domain.CodeInvalidFormat},
		{"empty", "", domain.CodeInvalidFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := token.ParseQR(tc.payload)
			if domain.FailureCode(err) != tc.code {
				t.Fatalf("err = %v, want %s", err, tc.code)
			}
			if !domain.IsKind(err, domain.KindFormat) {
				t.Fatalf("kind not format for %v", err)
			}
		})
	}
}
