// Package token is the token authority: issuance, storage hashing,
// expiration, revocation, periodic cleanup, and enumeration monitoring of
// secure tokens, plus the QR payload codec. The authority has no knowledge
// of call semantics.
package token
