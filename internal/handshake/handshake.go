// Package handshake implements the two-message hybrid key agreement:
// X25519 ephemeral ECDH for classical forward secrecy, ML-KEM-768
// encapsulation for post-quantum confidentiality, an Ed25519 signature
// binding the server's ephemeral key to its long-term identity, and a
// pre-shared key mixed into the derivation to bind the session to
// out-of-band knowledge.
package handshake

import (
	"crypto/mlkem"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/curve25519"
	"lukechampine.com/blake3"

	"github.com/aurorasec/qtun/internal/identity"
)

const (
	// kdfLabel domain-separates the session key derivation. Changing it,
	// or the kE/kM/PSK order, yields an unrelated key.
	kdfLabel = "VPN_HYBRID_SESSION_KEY_V2"

	// ResponseTimeout is how long the client waits for a ServerHello.
	ResponseTimeout = 10 * time.Second
)

// ErrStateConsumed is returned when a handshake state is used to derive
// a session key more than once. Each ephemeral secret is single-use.
var ErrStateConsumed = errors.New("handshake state already consumed")

// Client holds the client side of one handshake attempt.
type Client struct {
	ephemeralSec [32]byte
	ephemeralPub [32]byte
	mlkemKey     *mlkem.DecapsulationKey768
	psk          [32]byte
	used         bool
}

// NewClient creates a fresh client handshake state.
func NewClient(psk [32]byte) (*Client, error) {
	c := &Client{psk: psk}
	if err := generateEphemeral(&c.ephemeralSec, &c.ephemeralPub); err != nil {
		return nil, err
	}
	dk, err := mlkem.GenerateKey768()
	if err != nil {
		return nil, fmt.Errorf("generate ML-KEM keypair: %w", err)
	}
	c.mlkemKey = dk
	return c, nil
}

// Hello builds the opening message.
func (c *Client) Hello(clientID, virtualIP string) *ClientHello {
	return &ClientHello{
		EphemeralKey:   c.ephemeralPub,
		MLKEMPublicKey: c.mlkemKey.EncapsulationKey().Bytes(),
		ClientID:       clientID,
		VirtualIP:      virtualIP,
	}
}

// SessionKey verifies a ServerHello and derives the session key,
// consuming the handshake state. The signature must cover sE||cE under
// the server's long-term key; the ciphertext must decapsulate.
func (c *Client) SessionKey(hello *ServerHello, verifier *identity.Verifier) ([32]byte, error) {
	var key [32]byte
	if c.used {
		return key, ErrStateConsumed
	}
	c.used = true

	signed := make([]byte, 0, 64)
	signed = append(signed, hello.EphemeralKey[:]...)
	signed = append(signed, c.ephemeralPub[:]...)
	if err := verifier.Verify(signed, hello.Signature); err != nil {
		return key, fmt.Errorf("server signature: %w", err)
	}

	kE, err := curve25519.X25519(c.ephemeralSec[:], hello.EphemeralKey[:])
	if err != nil {
		return key, fmt.Errorf("X25519: %w", err)
	}
	kM, err := c.mlkemKey.Decapsulate(hello.MLKEMCiphertext)
	if err != nil {
		return key, fmt.Errorf("ML-KEM decapsulation: %w", err)
	}
	return deriveSessionKey(kE, kM, c.psk), nil
}

// Server holds the server side of one handshake attempt. One state is
// created per incoming ClientHello and consumed by Respond.
type Server struct {
	ephemeralSec [32]byte
	ephemeralPub [32]byte
	psk          [32]byte
	used         bool
}

// NewServer creates a fresh server handshake state.
func NewServer(psk [32]byte) (*Server, error) {
	s := &Server{psk: psk}
	if err := generateEphemeral(&s.ephemeralSec, &s.ephemeralPub); err != nil {
		return nil, err
	}
	return s, nil
}

// Respond processes a ClientHello: encapsulates to the client's ML-KEM
// key, signs sE||cE with the server identity, and derives the session
// key, consuming the handshake state. It returns the ServerHello to
// send back along with the derived key.
func (s *Server) Respond(hello *ClientHello, ident *identity.Identity) (*ServerHello, [32]byte, error) {
	var key [32]byte
	if s.used {
		return nil, key, ErrStateConsumed
	}
	s.used = true

	ek, err := mlkem.NewEncapsulationKey768(hello.MLKEMPublicKey)
	if err != nil {
		return nil, key, fmt.Errorf("client ML-KEM key: %w", err)
	}
	kM, ciphertext := ek.Encapsulate()

	signed := make([]byte, 0, 64)
	signed = append(signed, s.ephemeralPub[:]...)
	signed = append(signed, hello.EphemeralKey[:]...)

	kE, err := curve25519.X25519(s.ephemeralSec[:], hello.EphemeralKey[:])
	if err != nil {
		return nil, key, fmt.Errorf("X25519: %w", err)
	}
	key = deriveSessionKey(kE, kM, s.psk)

	return &ServerHello{
		EphemeralKey:    s.ephemeralPub,
		MLKEMCiphertext: ciphertext,
		Signature:       ident.Sign(signed),
	}, key, nil
}

// deriveSessionKey computes BLAKE3(label || kE || kM || PSK)[0:32].
func deriveSessionKey(kE, kM []byte, psk [32]byte) [32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte(kdfLabel))
	h.Write(kE)
	h.Write(kM)
	h.Write(psk[:])
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

func generateEphemeral(sec, pub *[32]byte) error {
	if _, err := rand.Read(sec[:]); err != nil {
		return fmt.Errorf("generate ephemeral key: %w", err)
	}
	sec[0] &= 248
	sec[31] &= 127
	sec[31] |= 64
	p, err := curve25519.X25519(sec[:], curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("derive ephemeral public key: %w", err)
	}
	copy(pub[:], p)
	return nil
}
