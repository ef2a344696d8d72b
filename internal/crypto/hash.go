package crypto

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

const (
	// StorageHashAlgorithm names the derivation in persisted HashedToken
	// records so the parameters can be rotated behind a new name.
	StorageHashAlgorithm = "argon2id-v1"

	SaltBytes = 16
	hashBytes = 32

	// Argon2id parameters. Token values are high-entropy, so the derivation
	// exists to keep stored hashes non-invertible, not to slow guessing of
	// weak inputs.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// DeriveStorageHash derives the storage lookup key for a token value.
// Deterministic given the same salt; non-invertible. The salt is the
// deployment-wide hashing secret so that a presented token can be re-derived
// to the same lookup key.
func DeriveStorageHash(value string, salt []byte) string {
	sum := argon2.IDKey([]byte(value), salt, argonTime, argonMemory, argonThreads, hashBytes)
	return hex.EncodeToString(sum)
}

// HashEqual compares two derived hashes in constant time.
func HashEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
