package vault

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXChaCha_RoundTrip(t *testing.T) {
	c := XChaCha{}
	secret := []byte("0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0")
	key := []byte("correct horse battery staple")

	sealed, err := c.Encrypt(secret, key)
	require.NoError(t, err)
	assert.Len(t, sealed.IV, 24)
	assert.Len(t, sealed.Salt, SaltSize)
	assert.False(t, bytes.Contains(sealed.Ciphertext, secret))

	got, err := c.Decrypt(sealed.Ciphertext, sealed.IV, sealed.Salt, key)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestXChaCha_FreshSaltAndNonce(t *testing.T) {
	c := XChaCha{}
	a, err := c.Encrypt([]byte("same"), []byte("key"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"), []byte("key"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestXChaCha_DecryptFailures(t *testing.T) {
	c := XChaCha{}
	sealed, err := c.Encrypt([]byte("secret"), []byte("right"))
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed.Ciphertext...)
	tampered[0] ^= 0xff

	otherSalt := append([]byte(nil), sealed.Salt...)
	otherSalt[0] ^= 0x01

	tests := []struct {
		name       string
		ciphertext []byte
		iv         []byte
		salt       []byte
		key        []byte
	}{
		{"wrong key", sealed.Ciphertext, sealed.IV, sealed.Salt, []byte("wrong")},
		{"tampered ciphertext", tampered, sealed.IV, sealed.Salt, []byte("right")},
		{"different salt", sealed.Ciphertext, sealed.IV, otherSalt, []byte("right")},
		{"short nonce", sealed.Ciphertext, sealed.IV[:12], sealed.Salt, []byte("right")},
		{"short salt", sealed.Ciphertext, sealed.IV, sealed.Salt[:4], []byte("right")},
		{"empty key", sealed.Ciphertext, sealed.IV, sealed.Salt, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.ciphertext, tt.iv, tt.salt, tt.key)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestXChaCha_EncryptRejectsEmptyKey(t *testing.T) {
	_, err := XChaCha{}.Encrypt([]byte("x"), nil)
	assert.Error(t, err)
}

func TestSecret_UseAndDestroy(t *testing.T) {
	raw := []byte("plaintext")
	s := NewSecret(raw)
	assert.Equal(t, make([]byte, len("plaintext")), raw, "source bytes are wiped")

	var seen string
	require.True(t, s.Use(func(b []byte) { seen = string(b) }))
	assert.Equal(t, "plaintext", seen)
	assert.True(t, s.Alive())

	s.Destroy()
	s.Destroy()
	assert.False(t, s.Alive())
	assert.False(t, s.Use(func([]byte) { t.Fatal("used destroyed secret") }))

	var nilSecret *Secret
	assert.False(t, nilSecret.Alive())
	nilSecret.Destroy()
}
