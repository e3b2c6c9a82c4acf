package handshake

import (
	"crypto/mlkem"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWire_RoundTrip(t *testing.T) {
	var eph [32]byte
	for i := range eph {
		eph[i] = byte(i)
	}

	messages := []Message{
		&ClientHello{
			EphemeralKey:   eph,
			MLKEMPublicKey: make([]byte, mlkem.EncapsulationKeySize768),
			ClientID:       "laptop",
			VirtualIP:      "10.0.0.2",
		},
		&ServerHello{
			EphemeralKey:    eph,
			MLKEMCiphertext: make([]byte, mlkem.CiphertextSize768),
			Signature:       make([]byte, 64),
		},
		&ClientFinish{EncryptedConfirm: []byte("encrypted confirmation")},
		&ServerFinish{Success: true},
		&ServerFinish{Success: false},
	}

	for _, msg := range messages {
		decoded, err := Decode(Encode(msg))
		require.NoError(t, err, "%T", msg)
		assert.Equal(t, msg, decoded, "%T", msg)
	}
}

func TestWire_RoundTrip_EmptyStrings(t *testing.T) {
	msg := &ClientHello{
		MLKEMPublicKey: make([]byte, mlkem.EncapsulationKeySize768),
	}
	decoded, err := Decode(Encode(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestDecode_Malformed(t *testing.T) {
	valid := Encode(&ServerHello{
		MLKEMCiphertext: make([]byte, mlkem.CiphertextSize768),
		Signature:       make([]byte, 64),
	})

	cases := map[string][]byte{
		"empty":          {},
		"single byte":    {1},
		"unknown tag":    {9, 0, 0},
		"truncated body": valid[:40],
		"trailing bytes": append(append([]byte(nil), valid...), 0),
		"bad bool":       {4, 2},
	}
	for name, data := range cases {
		_, err := Decode(data)
		assert.ErrorIs(t, err, ErrBadMessage, name)
	}
}

func TestDecode_WrongFieldSizes(t *testing.T) {
	// ML-KEM public key must be exactly the ML-KEM-768 size.
	short := &ClientHello{MLKEMPublicKey: make([]byte, 100)}
	_, err := Decode(Encode(short))
	assert.ErrorIs(t, err, ErrBadMessage)

	// Signature must be exactly 64 bytes.
	badSig := &ServerHello{
		MLKEMCiphertext: make([]byte, mlkem.CiphertextSize768),
		Signature:       make([]byte, 63),
	}
	_, err = Decode(Encode(badSig))
	assert.ErrorIs(t, err, ErrBadMessage)
}

// A data record is nonce(12) || ciphertext || tag(16) with a random
// nonce up front. The demultiplexer relies on such payloads never
// decoding as handshake messages.
func TestDecode_RejectsDataRecords(t *testing.T) {
	for i := 0; i < 1000; i++ {
		frame := make([]byte, 28+64)
		_, err := rand.Read(frame)
		require.NoError(t, err)
		_, err = Decode(frame)
		assert.Error(t, err, "random data frame decoded as handshake (iteration %d)", i)
	}
}
