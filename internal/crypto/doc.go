// Package crypto exposes the minimal primitives used by the routing core.
//
// Contents
//
//   - CSPRNG token material generation (NewTokenValue)
//   - Transcription checksums over token values (Checksum, VerifyChecksum)
//   - Salted one-way storage-key derivation for persisted tokens
//     (DeriveStorageHash)
//
// # Notes
//
// The checksum is a short digest intended to catch QR transcription and
// transport corruption. It is not a MAC and carries no tamper resistance.
// The storage hash is Argon2id and is the only token form that may be
// persisted.
package crypto
