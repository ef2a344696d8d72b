package session

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"pqcall/internal/domain"
	"pqcall/internal/event"
)

// IDSource mints session ids. The anonymization layer owns the namespace.
type IDSource interface {
	NewSessionID() (domain.SessionID, error)
}

// Registry owns anonymous call session records. All state is process-local:
// the duplicate-pair check and the record insert happen under one lock, so
// two concurrent creates for the same pair yield exactly one success.
type Registry struct {
	ids    IDSource
	clock  clock.Clock
	log    *zap.Logger
	events domain.EventSink
	grace  time.Duration

	mu            sync.Mutex
	sessions      map[domain.SessionID]*domain.CallSessionRecord
	pairs         map[pairKey]domain.SessionID
	byParticipant map[domain.AnonymousID]map[domain.SessionID]struct{}
	evictions     map[domain.SessionID]*clock.Timer
	closed        bool
}

// pairKey is the unordered participant pair, normalized so (a,b) and (b,a)
// collide.
type pairKey struct {
	lo, hi domain.AnonymousID
}

func newPairKey(a, b domain.AnonymousID) pairKey {
	if a < b {
		return pairKey{lo: a, hi: b}
	}
	return pairKey{lo: b, hi: a}
}

// defaultGrace keeps ended records queryable long enough for late status
// checks during teardown.
const defaultGrace = 30 * time.Second

// NewRegistry constructs an empty registry. grace is how long an ended
// record stays queryable before removal; zero takes the default.
func NewRegistry(ids IDSource, clk clock.Clock, grace time.Duration, events domain.EventSink, log *zap.Logger) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	if grace <= 0 {
		grace = defaultGrace
	}
	if log == nil {
		log = zap.NewNop()
	}
	if events == nil {
		events = event.Discard
	}
	return &Registry{
		ids:           ids,
		clock:         clk,
		log:           log,
		events:        events,
		grace:         grace,
		sessions:      make(map[domain.SessionID]*domain.CallSessionRecord),
		pairs:         make(map[pairKey]domain.SessionID),
		byParticipant: make(map[domain.AnonymousID]map[domain.SessionID]struct{}),
		evictions:     make(map[domain.SessionID]*clock.Timer),
	}
}

// Create admits a new session for the unordered pair (caller, callee).
// Returns DUPLICATE_SESSION if a non-ended record already exists for the
// pair.
func (r *Registry) Create(caller, callee domain.AnonymousID) (domain.SessionID, error) {
	if !caller.Valid() || !callee.Valid() {
		return "", domain.NewFailure(domain.KindPolicy, domain.CodeInvalidAnonymousID,
			"participants must carry the anonymous-id format")
	}
	if caller == callee {
		return "", domain.NewFailure(domain.KindPolicy, domain.CodeParticipantsConflict,
			"caller and callee must differ")
	}

	key := newPairKey(caller, callee)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, busy := r.pairs[key]; busy {
		return "", domain.NewFailure(domain.KindPolicy, domain.CodeDuplicateSession,
			"active session "+string(existing)+" already exists for this pair")
	}

	id, err := r.ids.NewSessionID()
	if err != nil {
		return "", domain.WrapFailure(domain.KindInfrastructure, domain.CodeSessionCreationFail,
			"minting session id", err)
	}

	now := r.clock.Now()
	rec := &domain.CallSessionRecord{
		SessionID:    id,
		ParticipantA: caller,
		ParticipantB: callee,
		Status:       domain.StatusInitiating,
		CreatedAt:    now,
	}
	r.sessions[id] = rec
	r.pairs[key] = id
	r.indexParticipant(caller, id)
	r.indexParticipant(callee, id)

	r.events.Publish(domain.SessionCreated{
		SessionID:    id,
		ParticipantA: caller,
		ParticipantB: callee,
		At:           now,
	})
	return id, nil
}

func (r *Registry) indexParticipant(p domain.AnonymousID, id domain.SessionID) {
	set, ok := r.byParticipant[p]
	if !ok {
		set = make(map[domain.SessionID]struct{})
		r.byParticipant[p] = set
	}
	set[id] = struct{}{}
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id domain.SessionID) (domain.CallSessionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return domain.CallSessionRecord{}, false
	}
	return *rec, true
}

// UpdateStatus advances the session's status. Transitions are monotonic:
// updating a terminal session fails rather than silently succeeding.
func (r *Registry) UpdateStatus(id domain.SessionID, status domain.CallStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return domain.NewFailure(domain.KindResolution, domain.CodeSessionNotFound,
			"no session "+string(id))
	}
	if !rec.Status.CanTransitionTo(status) {
		return domain.NewFailure(domain.KindPolicy, domain.CodeInvalidTransition,
			string(rec.Status)+" cannot transition to "+string(status))
	}
	rec.Status = status
	if status.Terminal() {
		now := r.clock.Now()
		rec.EndedAt = &now
		r.releasePairLocked(rec)
	}
	return nil
}

// Cleanup marks the session ended (if it is not already terminal) and
// schedules removal after the grace window so that late status queries still
// resolve during teardown. Idempotent.
func (r *Registry) Cleanup(id domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return
	}
	if !rec.Status.Terminal() {
		rec.Status = domain.StatusEnded
		now := r.clock.Now()
		rec.EndedAt = &now
		r.releasePairLocked(rec)
	}
	if _, scheduled := r.evictions[id]; scheduled || r.closed {
		return
	}
	r.evictions[id] = r.clock.AfterFunc(r.grace, func() {
		r.evict(id)
	})
}

// releasePairLocked frees the pair slot so the participants can start a new
// session while the old record rides out its grace window.
func (r *Registry) releasePairLocked(rec *domain.CallSessionRecord) {
	key := newPairKey(rec.ParticipantA, rec.ParticipantB)
	if r.pairs[key] == rec.SessionID {
		delete(r.pairs, key)
	}
}

func (r *Registry) evict(id domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	delete(r.evictions, id)
	for _, p := range []domain.AnonymousID{rec.ParticipantA, rec.ParticipantB} {
		if set, ok := r.byParticipant[p]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byParticipant, p)
			}
		}
	}
	r.log.Debug("session evicted after grace window", zap.String("session_id", string(id)))
}

// ListByParticipant returns the ids of every session (active or in grace)
// involving p.
func (r *Registry) ListByParticipant(p domain.AnonymousID) []domain.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byParticipant[p]
	out := make([]domain.SessionID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Stats returns a point-in-time snapshot.
func (r *Registry) Stats() domain.RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := domain.RegistryStats{
		ParticipantMappingCount: len(r.byParticipant),
		StatusBreakdown:         make(map[domain.CallStatus]int),
	}
	for _, rec := range r.sessions {
		stats.StatusBreakdown[rec.Status]++
		if !rec.Status.Terminal() {
			stats.ActiveCount++
		}
	}
	return stats
}

// Close stops pending eviction timers. Records are dropped with the process.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, timer := range r.evictions {
		timer.Stop()
		delete(r.evictions, id)
	}
}

var _ domain.SessionRegistry = (*Registry)(nil)
