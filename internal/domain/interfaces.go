package domain

import (
	"context"
	"time"
)

// TokenStore persists token metadata keyed by storage hash. Implementations
// must never see a raw token value.
type TokenStore interface {
	SaveToken(ctx context.Context, meta TokenMetadata) error
	LookupToken(ctx context.Context, hash string) (TokenMetadata, bool, error)
	UpdateToken(ctx context.Context, meta TokenMetadata) error

	// PurgeTokens deletes tokens expired before now and tokens whose
	// revocation is older than the retention window. Returns the number of
	// records removed.
	PurgeTokens(ctx context.Context, now time.Time, retention time.Duration) (int, error)
}

// TokenAuthority issues, hashes, resolves, expires, and revokes secure
// tokens. It has no knowledge of call semantics.
type TokenAuthority interface {
	Issue(ctx context.Context, user UserID) (SecureToken, error)
	Hash(token SecureToken) HashedToken
	Resolve(ctx context.Context, hashed HashedToken) (UserID, error)
	ResolveToken(ctx context.Context, token SecureToken) (UserID, error)
	SetExpiration(ctx context.Context, token SecureToken, lifetime time.Duration) error
	Revoke(ctx context.Context, token SecureToken, reason string, grace time.Duration) error
	Cleanup(ctx context.Context, now time.Time) (int, error)

	// Monitor records a resolution attempt against a token hash prefix from
	// the given source, for enumeration detection.
	Monitor(tokenHashPrefix, sourceKey string)
}

// Anonymizer maps real identities to anonymous identities and back, and
// scrubs payloads before they reach any external surface.
type Anonymizer interface {
	Anonymize(user UserID) (AnonymousID, error)
	NewAnonymousID() (AnonymousID, error)
	NewSessionID() (SessionID, error)
	Clear(id AnonymousID)
	ClearAll()
}

// SessionRegistry owns anonymous call session records.
type SessionRegistry interface {
	Create(caller, callee AnonymousID) (SessionID, error)
	Get(id SessionID) (CallSessionRecord, bool)
	UpdateStatus(id SessionID, status CallStatus) error
	Cleanup(id SessionID)
	ListByParticipant(p AnonymousID) []SessionID
	Stats() RegistryStats
}

// MediaEngine is the signaling lifecycle of the media transport. Only these
// hooks are consumed; media itself is out of scope for the routing core.
type MediaEngine interface {
	Initialize(ctx context.Context, id SessionID) error
	Teardown(id SessionID) error
}
