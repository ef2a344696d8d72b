package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// TokenBytes is the entropy of one token value: 256 bits.
	TokenBytes = 32

	// ChecksumBytes is the width of the transcription checksum before hex
	// encoding.
	ChecksumBytes = 4
)

// NewTokenValue draws 256 bits from the CSPRNG and returns them hex encoded:
// 64 lowercase hex characters. Uniqueness is probabilistic; the output space
// makes collision practically unreachable.
func NewTokenValue() (string, error) {
	var raw [TokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("reading token entropy: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// Checksum returns the 8-hex-char transcription digest over a token value:
// the first four bytes of SHA-256.
func Checksum(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:ChecksumBytes])
}

// VerifyChecksum reports whether got is the checksum of value. Comparison is
// case-insensitive on the hex digits, matching the QR codec's tolerance for
// mixed-case payloads.
func VerifyChecksum(value, got string) bool {
	want := Checksum(value)
	if len(got) != len(want) {
		return false
	}
	for i := 0; i < len(want); i++ {
		if lowerHex(got[i]) != want[i] {
			return false
		}
	}
	return true
}

func lowerHex(c byte) byte {
	if c >= 'A' && c <= 'F' {
		return c + ('a' - 'A')
	}
	return c
}

// NewSalt returns fresh CSPRNG salt for storage-hash derivation.
func NewSalt(n int) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("reading salt: %w", err)
	}
	return salt, nil
}

// RandomHex returns n bytes of CSPRNG entropy as 2n hex characters.
func RandomHex(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("reading entropy: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
