package record

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNew_BadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		_, err := New(make([]byte, n))
		assert.Error(t, err, "key length %d", n)
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c, err := New(randomKey(t))
	require.NoError(t, err)

	for _, plaintext := range [][]byte{
		[]byte{},
		[]byte("x"),
		bytes.Repeat([]byte{0xAB}, 1400),
	} {
		frame, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		assert.Equal(t, len(plaintext)+Overhead, len(frame))

		got, err := c.Decrypt(frame)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	c, err := New(randomKey(t))
	require.NoError(t, err)

	msg := []byte("same plaintext")
	a, err := c.Encrypt(msg)
	require.NoError(t, err)
	b, err := c.Encrypt(msg)
	require.NoError(t, err)

	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
	assert.NotEqual(t, a, b)
}

func TestDecrypt_WrongKey(t *testing.T) {
	c1, err := New(randomKey(t))
	require.NoError(t, err)
	c2, err := New(randomKey(t))
	require.NoError(t, err)

	frame, err := c1.Encrypt([]byte("secret datagram"))
	require.NoError(t, err)

	_, err = c2.Decrypt(frame)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecrypt_BitFlip(t *testing.T) {
	c, err := New(randomKey(t))
	require.NoError(t, err)

	frame, err := c.Encrypt([]byte("integrity matters"))
	require.NoError(t, err)

	// Flip one bit at a time across nonce, ciphertext and tag.
	for i := 0; i < len(frame); i++ {
		corrupted := append([]byte(nil), frame...)
		corrupted[i] ^= 0x01
		_, err := c.Decrypt(corrupted)
		assert.Error(t, err, "bit flip at byte %d accepted", i)
	}
}

func TestDecrypt_TooShort(t *testing.T) {
	c, err := New(randomKey(t))
	require.NoError(t, err)

	for _, n := range []int{0, 1, NonceSize, Overhead - 1} {
		_, err := c.Decrypt(make([]byte, n))
		assert.ErrorIs(t, err, ErrTooShort, "length %d", n)
	}
}
