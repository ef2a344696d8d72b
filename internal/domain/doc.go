// Package domain defines core data models and interfaces shared across the
// routing core. It contains plain types (tokens, identifiers, session state)
// and contracts (interfaces) only.
package domain
