// Package store provides the persistence collaborators consumed by the
// token authority.
//
// It contains the storage contract (parameterized queries, transactional
// unit-of-work, and the encrypt/decrypt/hash/verify surface for at-rest
// protection of optional profile fields) plus two implementations of the
// token metadata store: a gorm/Postgres store for durable deployments and an
// in-memory store for tests and single-process runs. All methods are
// concurrency-safe.
package store
