package store

import (
	"context"
	"sync"
	"time"

	"pqcall/internal/domain"
)

// MemoryTokenStore keeps token metadata in process memory. Used by tests and
// single-process deployments; durable deployments use GormTokenStore.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]domain.TokenMetadata
}

// NewMemoryTokenStore constructs an empty store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]domain.TokenMetadata)}
}

// SaveToken inserts a new metadata record keyed by storage hash.
func (s *MemoryTokenStore) SaveToken(_ context.Context, meta domain.TokenMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[meta.Hashed.Hash]; exists {
		return domain.NewFailure(domain.KindInfrastructure, domain.CodeDatabaseError,
			"token hash already stored")
	}
	s.tokens[meta.Hashed.Hash] = meta
	return nil
}

// LookupToken returns the record for hash if present.
func (s *MemoryTokenStore) LookupToken(_ context.Context, hash string) (domain.TokenMetadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.tokens[hash]
	return meta, ok, nil
}

// UpdateToken replaces the record for an existing hash.
func (s *MemoryTokenStore) UpdateToken(_ context.Context, meta domain.TokenMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[meta.Hashed.Hash]; !ok {
		return domain.NewFailure(domain.KindInfrastructure, domain.CodeDatabaseError,
			"token not stored")
	}
	s.tokens[meta.Hashed.Hash] = meta
	return nil
}

// PurgeTokens deletes expired tokens and revoked tokens past the retention
// window.
func (s *MemoryTokenStore) PurgeTokens(_ context.Context, now time.Time, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for hash, meta := range s.tokens {
		if purgeable(meta, now, retention) {
			delete(s.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

func purgeable(meta domain.TokenMetadata, now time.Time, retention time.Duration) bool {
	if meta.Expired(now) {
		return true
	}
	return meta.Revoked && meta.RevokedAt != nil && now.Sub(*meta.RevokedAt) > retention
}

// Len returns the number of stored records.
func (s *MemoryTokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

var _ domain.TokenStore = (*MemoryTokenStore)(nil)
