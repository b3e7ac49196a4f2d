package ledger

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/sha3"
)

// ed25519Scheme is the authentication key scheme byte for single ed25519 keys.
const ed25519Scheme = 0x00

var errKeyFormat = errors.New("invalid private key")

// Signer holds the operator account key.
type Signer struct {
	key     ed25519.PrivateKey
	address string
}

// NewSigner parses a hex encoded ed25519 private key. Both the 32 byte seed
// and the 64 byte expanded form are accepted, with or without a 0x or
// "ed25519-priv-" prefix.
func NewSigner(encoded string) (*Signer, error) {
	s := strings.TrimSpace(encoded)
	s = strings.TrimPrefix(s, "ed25519-priv-")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errKeyFormat, err)
	}

	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("%w: %d bytes", errKeyFormat, len(raw))
	}
	return newSigner(key)
}

// NewSignerFromKey wraps an existing key.
func NewSignerFromKey(key ed25519.PrivateKey) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: %d bytes", errKeyFormat, len(key))
	}
	return newSigner(key)
}

func newSigner(key ed25519.PrivateKey) (*Signer, error) {
	pub := key.Public().(ed25519.PublicKey)
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return nil, fmt.Errorf("%w: public key is not a curve point", errKeyFormat)
	}
	return &Signer{key: key, address: DeriveAddress(pub)}, nil
}

// DeriveAddress returns the account address of a single ed25519 key:
// sha3-256(public_key || scheme).
func DeriveAddress(pub ed25519.PublicKey) string {
	h := sha3.New256()
	h.Write(pub)
	h.Write([]byte{ed25519Scheme})
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Address returns the derived account address.
func (s *Signer) Address() string { return s.address }

// PublicKeyHex returns the 0x-hex public key.
func (s *Signer) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

// Sign signs a signing message returned by the node.
func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.key, message)
}

// NormalizeAddress lowercases an address and strips leading zeros so that
// short and long forms compare equal.
func NormalizeAddress(addr string) string {
	a := strings.ToLower(strings.TrimSpace(addr))
	a = strings.TrimPrefix(a, "0x")
	a = strings.TrimLeft(a, "0")
	if a == "" {
		a = "0"
	}
	return "0x" + a
}
