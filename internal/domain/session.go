package domain

import "time"

// CallStatus is the lifecycle state of a call session.
type CallStatus string

const (
	StatusInitiating CallStatus = "INITIATING"
	StatusRinging    CallStatus = "RINGING"
	StatusConnected  CallStatus = "CONNECTED"
	StatusEnded      CallStatus = "ENDED"
	StatusFailed     CallStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s CallStatus) Terminal() bool {
	return s == StatusEnded || s == StatusFailed
}

// CanTransitionTo reports whether next is a legal successor of s. Transitions
// are one-directional: INITIATING → RINGING → CONNECTED → ENDED, with FAILED
// reachable from any non-terminal state.
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	switch s {
	case StatusInitiating:
		return next == StatusRinging || next == StatusEnded
	case StatusRinging:
		return next == StatusConnected || next == StatusEnded
	case StatusConnected:
		return next == StatusEnded
	}
	return false
}

// CallSessionRecord is the registry's record of one anonymous call session.
//
// Invariants: ParticipantA != ParticipantB, and at most one non-ended record
// exists for a given unordered participant pair at any time.
type CallSessionRecord struct {
	SessionID    SessionID
	ParticipantA AnonymousID
	ParticipantB AnonymousID
	Status       CallStatus
	CreatedAt    time.Time
	EndedAt      *time.Time
}

// RegistryStats is a point-in-time snapshot of the session registry.
type RegistryStats struct {
	ActiveCount             int
	ParticipantMappingCount int
	StatusBreakdown         map[CallStatus]int
}
