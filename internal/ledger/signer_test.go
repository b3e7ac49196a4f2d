package ledger

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSigner_Formats(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	key := ed25519.NewKeyFromSeed(seed)

	forms := []string{
		hex.EncodeToString(seed),
		"0x" + hex.EncodeToString(seed),
		"ed25519-priv-0x" + hex.EncodeToString(seed),
		hex.EncodeToString(key),
	}

	var addresses []string
	for _, f := range forms {
		s, err := NewSigner(f)
		require.NoError(t, err, f)
		addresses = append(addresses, s.Address())
	}
	for _, a := range addresses[1:] {
		assert.Equal(t, addresses[0], a)
	}
	assert.True(t, strings.HasPrefix(addresses[0], "0x"))
	assert.Len(t, addresses[0], 66)
}

func TestNewSigner_Invalid(t *testing.T) {
	for _, in := range []string{"", "zz", "0x0102"} {
		_, err := NewSigner(in)
		assert.Error(t, err, in)
	}
}

func TestSigner_SignVerifies(t *testing.T) {
	s := newTestSigner(t)
	msg := []byte("hello")
	pub, err := hex.DecodeString(strings.TrimPrefix(s.PublicKeyHex(), "0x"))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, msg, s.Sign(msg)))
}

func TestDeriveAddress_Deterministic(t *testing.T) {
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, ed25519.NewKeyFromSeed(make([]byte, 32)).Public().(ed25519.PublicKey))
	assert.Equal(t, DeriveAddress(pub), DeriveAddress(pub))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0x1", NormalizeAddress("0x0000000000000000000000000000000000000000000000000000000000000001"))
	assert.Equal(t, "0xabc", NormalizeAddress(" 0x0ABC "))
	assert.Equal(t, "0x0", NormalizeAddress("0x000"))
}
