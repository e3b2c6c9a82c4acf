package record

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the ChaCha20-Poly1305 key size.
	KeySize = chacha20poly1305.KeySize // 32
	// NonceSize is the per-record nonce size.
	NonceSize = chacha20poly1305.NonceSize // 12
	// TagSize is the Poly1305 authentication tag size.
	TagSize = chacha20poly1305.Overhead // 16
	// Overhead is the total per-record expansion: nonce + tag.
	Overhead = NonceSize + TagSize
)

var (
	ErrTooShort      = errors.New("record too short")
	ErrDecryptFailed = errors.New("decrypt failed")
)

// Cipher seals and opens single-datagram records. Each record is
// nonce(12) || ciphertext || tag(16) with a fresh random nonce, so
// records are independent: loss, reordering and duplication of UDP
// payloads never desynchronize the cipher. Immutable after construction
// and safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a cipher from a 32-byte session key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init AEAD: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext into a record with a fresh random nonce.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := rand.Read(out[:NonceSize]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(out, out[:NonceSize], plaintext, nil), nil
}

// Decrypt opens a record. Authentication failure and corruption are not
// distinguishable; both return ErrDecryptFailed.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	if len(data) < Overhead {
		return nil, ErrTooShort
	}
	plaintext, err := c.aead.Open(make([]byte, 0, len(data)-Overhead), data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
