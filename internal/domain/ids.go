package domain

import "strings"

// UserID is a real account identifier. It must never appear in logs, events,
// or anything that leaves the process; routing works on AnonymousID instead.
type UserID string

// Identifier namespaces. Anonymous ids and session ids are formatted with
// distinguishing prefixes so that passing one where the other is expected is
// caught by validation rather than by accidental misuse.
const (
	AnonymousIDPrefix = "anon-"
	SessionIDPrefix   = "sess-"

	// idHexLen is the number of hex characters following the prefix:
	// 8 hex chars of timestamp plus 16 hex chars of CSPRNG entropy.
	idHexLen = 24
)

// AnonymousID is a per-user pseudonym, stable for the lifetime of the
// mapping held by the anonymization layer.
type AnonymousID string

// Valid reports whether the id carries the anonymous-id namespace format.
func (id AnonymousID) Valid() bool {
	return validPrefixedID(string(id), AnonymousIDPrefix)
}

// SessionID identifies one call session. It is unrelated to either
// participant's AnonymousID.
type SessionID string

// Valid reports whether the id carries the session-id namespace format.
func (id SessionID) Valid() bool {
	return validPrefixedID(string(id), SessionIDPrefix)
}

func validPrefixedID(s, prefix string) bool {
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	rest := s[len(prefix):]
	if len(rest) != idHexLen {
		return false
	}
	return isHex(rest)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
