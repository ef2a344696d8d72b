// Package anonymize maps real identities to anonymous identities and scrubs
// payloads before they reach any external surface.
//
// The user-to-anonymous mapping is process-local and stable until explicitly
// cleared; reverse lookup exists for internal callers only and must never be
// wired to an externally reachable path. Anonymous ids and session ids live
// in separate namespaces with distinguishing prefixes so type confusion is
// caught at validation time.
package anonymize
