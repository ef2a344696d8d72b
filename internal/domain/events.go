package domain

import "time"

// Event is a typed notification emitted by the routing core for external
// consumers (UI, metrics, alerting). Payloads never carry raw token values
// or real user ids; token references are truncated hashes.
type Event interface {
	EventName() string
}

// EventSink receives events. Implementations must not block the caller.
type EventSink interface {
	Publish(Event)
}

// TokenIssued fires when the token authority mints a new token.
type TokenIssued struct {
	TokenRef string // truncated storage hash
	At       time.Time
}

func (TokenIssued) EventName() string { return "token.issued" }

// TokenRevoked fires when a token is revoked.
type TokenRevoked struct {
	TokenRef    string
	Reason      string
	GracePeriod time.Duration
	At          time.Time
}

func (TokenRevoked) EventName() string { return "token.revoked" }

// SessionCreated fires when the registry admits a new call session.
type SessionCreated struct {
	SessionID    SessionID
	ParticipantA AnonymousID
	ParticipantB AnonymousID
	At           time.Time
}

func (SessionCreated) EventName() string { return "session.created" }

// FlowStepCompleted fires after each call-flow step finishes successfully.
type FlowStepCompleted struct {
	FlowID  string
	Flow    string
	Step    string
	Elapsed time.Duration
}

func (FlowStepCompleted) EventName() string { return "callflow.step_completed" }

// FlowStepFailed fires when a call-flow step fails; the remaining steps are
// skipped. Reason is an error message only, never a raw token or identity.
type FlowStepFailed struct {
	FlowID string
	Flow   string
	Step   string
	Reason string
}

func (FlowStepFailed) EventName() string { return "callflow.step_failed" }

// FlowCompleted fires when every step of a flow succeeded.
type FlowCompleted struct {
	FlowID    string
	Flow      string
	SessionID SessionID
	Elapsed   time.Duration
}

func (FlowCompleted) EventName() string { return "callflow.completed" }

// FlowFailed fires when a flow aborted at FailedStep.
type FlowFailed struct {
	FlowID     string
	Flow       string
	FailedStep string
	Reason     string
	Elapsed    time.Duration
}

func (FlowFailed) EventName() string { return "callflow.failed" }

// SecurityAlert kinds.
const (
	AlertEnumeration = "token_enumeration"
	AlertAbuse       = "rate_abuse"
)

// SecurityAlert fires on suspected token enumeration or request abuse.
type SecurityAlert struct {
	Alert  string // AlertEnumeration or AlertAbuse
	Source string // client key or IP that triggered the alert
	Detail string
	At     time.Time
}

func (SecurityAlert) EventName() string { return "security.alert" }

// CleanupCompleted fires after a cleanup pass with the number of records
// removed.
type CleanupCompleted struct {
	Component string
	Removed   int
	At        time.Time
}

func (CleanupCompleted) EventName() string { return "cleanup.completed" }
