package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrDecrypt is returned when a ciphertext cannot be opened: wrong key,
// tampered bytes or an incompatible record.
var ErrDecrypt = errors.New("decrypt failed")

// SaltSize is the HKDF salt length in bytes.
const SaltSize = 16

var hkdfInfo = []byte("ember-vault-v1")

// Sealed is the output of Crypto.Encrypt.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
	Salt       []byte
}

// Crypto is the encryption collaborator.
type Crypto interface {
	Encrypt(plaintext, key []byte) (Sealed, error)
	Decrypt(ciphertext, iv, salt, key []byte) ([]byte, error)
}

// XChaCha derives a per-record key with HKDF-SHA256 over a random salt and
// seals with XChaCha20-Poly1305 under a random 24-byte nonce.
type XChaCha struct {
	// Rand supplies salts and nonces. Defaults to crypto/rand.
	Rand io.Reader
}

func (x XChaCha) random() io.Reader {
	if x.Rand != nil {
		return x.Rand
	}
	return rand.Reader
}

// Encrypt implements Crypto.
func (x XChaCha) Encrypt(plaintext, key []byte) (Sealed, error) {
	if len(key) == 0 {
		return Sealed{}, errors.New("encrypt: empty key")
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(x.random(), salt); err != nil {
		return Sealed{}, fmt.Errorf("encrypt: read salt: %w", err)
	}

	aead, err := deriveAEAD(key, salt)
	if err != nil {
		return Sealed{}, err
	}

	iv := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(x.random(), iv); err != nil {
		return Sealed{}, fmt.Errorf("encrypt: read nonce: %w", err)
	}

	return Sealed{
		Ciphertext: aead.Seal(nil, iv, plaintext, salt),
		IV:         iv,
		Salt:       salt,
	}, nil
}

// Decrypt implements Crypto. Every failure wraps ErrDecrypt.
func (x XChaCha) Decrypt(ciphertext, iv, salt, key []byte) ([]byte, error) {
	if len(iv) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: nonce is %d bytes", ErrDecrypt, len(iv))
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt is %d bytes", ErrDecrypt, len(salt))
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrDecrypt)
	}

	aead, err := deriveAEAD(key, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func deriveAEAD(key, salt []byte) (cipher.AEAD, error) {
	reader := hkdf.New(sha256.New, key, salt, hkdfInfo)

	okm := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, okm); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(okm)
	memguard.WipeBytes(okm)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return aead, nil
}
