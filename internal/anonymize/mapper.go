package anonymize

import (
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"pqcall/internal/crypto"
	"pqcall/internal/domain"
)

// Service owns the user-to-anonymous mapping tables and the id namespaces.
type Service struct {
	clock clock.Clock
	log   *zap.Logger

	mu     sync.RWMutex
	byUser map[domain.UserID]domain.AnonymousID
	byAnon map[domain.AnonymousID]domain.UserID
}

// New constructs an empty anonymization service. Nil clock and logger fall
// back to wall clock and nop logging.
func New(clk clock.Clock, log *zap.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		clock:  clk,
		log:    log,
		byUser: make(map[domain.UserID]domain.AnonymousID),
		byAnon: make(map[domain.AnonymousID]domain.UserID),
	}
}

// Anonymize returns the stable anonymous id for user, minting one on first
// use. Idempotent per user until the mapping is cleared.
func (s *Service) Anonymize(user domain.UserID) (domain.AnonymousID, error) {
	if user == "" {
		return "", domain.NewFailure(domain.KindPolicy, domain.CodePrivacyViolation, "empty user id")
	}

	s.mu.RLock()
	id, ok := s.byUser[user]
	s.mu.RUnlock()
	if ok {
		return id, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the write lock; another goroutine may have minted it.
	if id, ok := s.byUser[user]; ok {
		return id, nil
	}
	raw, err := s.newID(domain.AnonymousIDPrefix)
	if err != nil {
		return "", err
	}
	anon := domain.AnonymousID(raw)
	s.byUser[user] = anon
	s.byAnon[anon] = user
	return anon, nil
}

// Deanonymize resolves an anonymous id back to the real user. Internal-only:
// nothing externally reachable may call this.
func (s *Service) Deanonymize(id domain.AnonymousID) (domain.UserID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byAnon[id]
	return user, ok
}

// NewAnonymousID mints an unmapped anonymous id, used for callers who never
// disclose an identity.
func (s *Service) NewAnonymousID() (domain.AnonymousID, error) {
	id, err := s.newID(domain.AnonymousIDPrefix)
	if err != nil {
		return "", err
	}
	return domain.AnonymousID(id), nil
}

// NewSessionID mints a session id. Session ids share generation with
// anonymous ids but live in their own namespace.
func (s *Service) NewSessionID() (domain.SessionID, error) {
	id, err := s.newID(domain.SessionIDPrefix)
	if err != nil {
		return "", err
	}
	return domain.SessionID(id), nil
}

// newID mixes a second-resolution timestamp with CSPRNG entropy under the
// given namespace prefix: <prefix><8 hex ts><16 hex random>.
func (s *Service) newID(prefix string) (string, error) {
	entropy, err := crypto.RandomHex(8)
	if err != nil {
		return "", domain.WrapFailure(domain.KindInfrastructure, domain.CodeServiceUnavailable, "minting id", err)
	}
	return fmt.Sprintf("%s%08x%s", prefix, uint32(s.clock.Now().Unix()), entropy), nil
}

// Clear drops the mapping for one anonymous id, called at session teardown.
func (s *Service) Clear(id domain.AnonymousID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.byAnon[id]; ok {
		delete(s.byAnon, id)
		delete(s.byUser, user)
	}
}

// ClearAll drops every mapping.
func (s *Service) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser = make(map[domain.UserID]domain.AnonymousID)
	s.byAnon = make(map[domain.AnonymousID]domain.UserID)
}

// MappingCount returns the number of live user mappings.
func (s *Service) MappingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUser)
}

var _ domain.Anonymizer = (*Service)(nil)
