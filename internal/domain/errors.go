package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind partitions expected failures by how callers should react to them.
type Kind string

const (
	// KindFormat: malformed QR/token shape. Not retryable.
	KindFormat Kind = "format"
	// KindIntegrity: checksum mismatch. Not retryable.
	KindIntegrity Kind = "integrity"
	// KindResolution: token not found, expired, or revoked. Not retryable
	// with the same token.
	KindResolution Kind = "resolution"
	// KindPolicy: rate-limited, abuse-detected, privacy-violation. Retryable
	// after the stated cool-down, except privacy violations.
	KindPolicy Kind = "policy"
	// KindInfrastructure: storage or network failure. Retryable; absorbed by
	// the circuit breaker.
	KindInfrastructure Kind = "infrastructure"
)

// Stable failure codes carried by Failure values.
const (
	CodeInvalidFormat        = "INVALID_FORMAT"
	CodeUnsupportedVersion   = "UNSUPPORTED_VERSION"
	CodeInvalidChecksum      = "INVALID_CHECKSUM"
	CodeTokenResolutionFail  = "TOKEN_RESOLUTION_FAILED"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeTokenRevoked         = "TOKEN_REVOKED"
	CodeDuplicateSession     = "DUPLICATE_SESSION"
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeSessionCreationFail  = "SESSION_CREATION_FAILED"
	CodePrivacyViolation     = "PRIVACY_VIOLATION"
	CodeRateLimited          = "RATE_LIMITED"
	CodeAbuseDetected        = "ABUSE_DETECTED"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeTimeout              = "TIMEOUT"
	CodeDatabaseError        = "DATABASE_ERROR"
	CodeMediaEngineFail      = "MEDIA_ENGINE_FAILED"
	CodeInvalidAnonymousID   = "INVALID_ANONYMOUS_ID"
	CodeParticipantsConflict = "PARTICIPANTS_CONFLICT"
)

// Failure is the discriminated error value returned by every public
// operation for expected failure modes. Callers branch on Kind and Code;
// panics are reserved for contract violations.
type Failure struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error

	// RetryAfter is the cool-down for retryable policy failures
	// (rate-limited, blocked). Zero otherwise.
	RetryAfter time.Duration
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Failure) Unwrap() error { return f.Cause }

// Retryable reports whether the same request may eventually succeed if
// retried. Privacy violations are terminal even though they are policy
// failures.
func (f *Failure) Retryable() bool {
	switch f.Kind {
	case KindInfrastructure:
		return true
	case KindPolicy:
		return f.Code != CodePrivacyViolation
	}
	return false
}

// NewFailure builds a Failure of the given kind.
func NewFailure(kind Kind, code, message string) *Failure {
	return &Failure{Kind: kind, Code: code, Message: message}
}

// WrapFailure builds a Failure that carries a cause for errors.Is/As chains.
func WrapFailure(kind Kind, code, message string, cause error) *Failure {
	return &Failure{Kind: kind, Code: code, Message: message, Cause: cause}
}

// FailureCode extracts the stable code from err, or "" if err is not a
// Failure.
func FailureCode(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
