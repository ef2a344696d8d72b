package domain

import "time"

// TokenVersion is the current secure-token format version. It is the only
// version the QR codec accepts.
const TokenVersion = 1

const (
	// TokenValueHexLen is the length of a token value: 256 bits as hex.
	TokenValueHexLen = 64

	// TokenChecksumHexLen is the length of the transcription checksum.
	TokenChecksumHexLen = 8
)

// SecureToken is the caller-facing opaque credential encoded in a QR code.
// Immutable once issued; identity is Value.
//
// Checksum is a short digest over Value that detects transcription or
// transport corruption. It is not a MAC: the QR payload already carries the
// full secret, so a code keyed on that secret would add no tamper resistance.
type SecureToken struct {
	Value     string
	Version   int
	Checksum  string
	CreatedAt time.Time
}

// HashedToken is the only form of a token ever persisted; the raw Value must
// never be written to durable storage. Derived deterministically from a
// SecureToken and used as the storage lookup key.
type HashedToken struct {
	Algorithm string
	Hash      string
	Salt      string
}

// Prefix returns a short reference suitable for events and logs. It reveals
// nothing useful for lookup.
func (h HashedToken) Prefix() string {
	if len(h.Hash) < 8 {
		return h.Hash
	}
	return h.Hash[:8]
}

// TokenMetadata is the persisted record for one issued token. Owned by the
// token authority; mutated only by expiration and revocation.
type TokenMetadata struct {
	Hashed        HashedToken
	UserID        UserID
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	Revoked       bool
	RevokedAt     *time.Time
	RevokedReason string
	// RevocationGrace lets in-flight resolutions finish: the revocation is
	// enforced once RevokedAt + RevocationGrace has passed.
	RevocationGrace time.Duration
}

// Expired reports whether the token is past its expiry at the given instant.
// Tokens without an expiry never expire (they are still subject to cleanup
// retention when revoked).
func (m TokenMetadata) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}
