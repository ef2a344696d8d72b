// Package session is the registry of anonymous call sessions: creation with
// duplicate-pair rejection, the monotonic status machine, grace-window
// retirement, and per-participant lookup.
package session
