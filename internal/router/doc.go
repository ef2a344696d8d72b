// Package router connects token resolution, anonymization, and the session
// registry into the call admission path. It is the only component allowed to
// hold a real user id, and only for the instant between resolving a token
// and anonymizing its owner.
package router
