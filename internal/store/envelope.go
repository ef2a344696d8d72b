package store

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	// The current version of the encrypted field blob format.
	envelopeFormatVersion = 1

	envelopeSaltBytes = 16
)

var (
	// Returned when the secret is wrong or the ciphertext has been modified
	// or corrupted.
	errEnvelopeOpen = errors.New("wrong secret or corrupted field")
)

// blob is the persisted JSON structure holding ciphertext and KDF
// parameters.
type blob struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// Envelope implements FieldCipher with scrypt-derived keys and
// chacha20poly1305 sealing. One Envelope wraps one deployment secret.
type Envelope struct {
	secret  string
	n, r, p int
}

// NewEnvelope constructs a field cipher around the deployment secret.
func NewEnvelope(secret string) (*Envelope, error) {
	if secret == "" {
		return nil, errors.New("empty field-encryption secret")
	}
	n, r, p := scryptParamsDefault()
	return &Envelope{secret: secret, n: n, r: r, p: p}, nil
}

// Encrypt derives a key from the secret and seals plaintext into a JSON
// blob.
func (e *Envelope) Encrypt(plaintext []byte) ([]byte, error) {
	var salt [envelopeSaltBytes]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(e.secret), salt[:], e.n, e.r, e.p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte // zero nonce; salt-bound key guarantees uniqueness
	ct := aead.Seal(nil, nonce[:], plaintext, salt[:])

	return json.Marshal(blob{
		V:      envelopeFormatVersion,
		Salt:   salt[:],
		N:      e.n,
		R:      e.r,
		P:      e.p,
		Cipher: ct,
	})
}

// Decrypt opens a JSON blob produced by Encrypt.
func (e *Envelope) Decrypt(ciphertext []byte) ([]byte, error) {
	var bl blob
	if err := json.Unmarshal(ciphertext, &bl); err != nil {
		return nil, err
	}
	if bl.V > envelopeFormatVersion {
		return nil, fmt.Errorf("unsupported field blob version %d", bl.V)
	}
	key, err := scrypt.Key([]byte(e.secret), bl.Salt, bl.N, bl.R, bl.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], bl.Cipher, bl.Salt)
	if err != nil {
		return nil, errEnvelopeOpen
	}
	return pt, nil
}

// Hash derives a salted verifier for value: "scrypt$<salt>$<digest>" in
// base64 segments.
func (e *Envelope) Hash(value string) (string, error) {
	var salt [envelopeSaltBytes]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return "", err
	}
	digest, err := scrypt.Key([]byte(value), salt[:], e.n, e.r, e.p, 32)
	if err != nil {
		return "", err
	}
	enc := base64.RawStdEncoding.EncodeToString
	return "scrypt$" + enc(salt[:]) + "$" + enc(digest), nil
}

// VerifyHash reports whether value matches a verifier produced by Hash.
func (e *Envelope) VerifyHash(value, hash string) (bool, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 3 || parts[0] != "scrypt" {
		return false, errors.New("malformed field hash")
	}
	dec := base64.RawStdEncoding.DecodeString
	salt, err := dec(parts[1])
	if err != nil {
		return false, err
	}
	want, err := dec(parts[2])
	if err != nil {
		return false, err
	}
	got, err := scrypt.Key([]byte(value), salt, e.n, e.r, e.p, len(want))
	if err != nil {
		return false, err
	}
	if len(got) != len(want) {
		return false, nil
	}
	equal := byte(0)
	for i := range got {
		equal |= got[i] ^ want[i]
	}
	return equal == 0, nil
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }

var _ FieldCipher = (*Envelope)(nil)
