package store

import "context"

// DB is the relational storage contract the core requires. Persistence
// internals are out of scope; only this surface matters.
type DB interface {
	// Exec runs a parameterized statement.
	Exec(ctx context.Context, query string, args ...any) error
	// Query runs a parameterized query and scans the rows into dest.
	Query(ctx context.Context, dest any, query string, args ...any) error
	// Transact runs fn inside one transactional unit-of-work, rolling back
	// if fn returns an error.
	Transact(ctx context.Context, fn func(tx DB) error) error
}

// FieldCipher protects optional profile fields at rest and provides the
// hash/verify surface for values that only need equality checks.
type FieldCipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	Hash(value string) (string, error)
	VerifyHash(value, hash string) (bool, error)
}
