package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// PrivateKeySize is the raw private key file size (Ed25519 seed).
	PrivateKeySize = 32
	// PublicKeySize is the raw public key file size.
	PublicKeySize = 32
	// SignatureSize is the Ed25519 signature size.
	SignatureSize = 64

	privateKeyFile = "server_private.key"
	publicKeyFile  = "server_public.key"
)

// Identity holds the server's long-term Ed25519 signature keypair.
type Identity struct {
	signingKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// Generate creates a new random identity.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &Identity{signingKey: priv, publicKey: pub}, nil
}

// FromSeed recreates an identity from a 32-byte private key seed.
func FromSeed(seed [PrivateKeySize]byte) *Identity {
	priv := ed25519.NewKeyFromSeed(seed[:])
	return &Identity{
		signingKey: priv,
		publicKey:  priv.Public().(ed25519.PublicKey),
	}
}

// LoadOrGenerate loads the server keypair from dir, or generates and
// saves a new one. Key files are raw: 32 bytes each, the private file
// holding the Ed25519 seed.
func LoadOrGenerate(dir string) (*Identity, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keys directory: %w", err)
	}

	privatePath := filepath.Join(dir, privateKeyFile)
	data, err := os.ReadFile(privatePath)
	if err == nil {
		if len(data) != PrivateKeySize {
			return nil, fmt.Errorf("private key file %s: expected %d bytes, got %d", privatePath, PrivateKeySize, len(data))
		}
		var seed [PrivateKeySize]byte
		copy(seed[:], data)
		return FromSeed(seed), nil
	}

	id, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := id.save(dir); err != nil {
		return nil, fmt.Errorf("save identity: %w", err)
	}
	return id, nil
}

func (id *Identity) save(dir string) error {
	if err := os.WriteFile(filepath.Join(dir, privateKeyFile), id.signingKey.Seed(), 0600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, publicKeyFile), id.publicKey, 0644)
}

// Sign signs a message with the server's long-term key.
func (id *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(id.signingKey, message)
}

// PublicKey returns the 32-byte verifying key.
func (id *Identity) PublicKey() [PublicKeySize]byte {
	var pub [PublicKeySize]byte
	copy(pub[:], id.publicKey)
	return pub
}

// PublicKeyHex returns the public key as a hex string.
func (id *Identity) PublicKeyHex() string {
	return hex.EncodeToString(id.publicKey)
}

// Verifier checks server signatures on the client side.
type Verifier struct {
	publicKey ed25519.PublicKey
}

// NewVerifier creates a verifier from the server's 32-byte public key.
func NewVerifier(publicKey []byte) (*Verifier, error) {
	if len(publicKey) != PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(publicKey))
	}
	return &Verifier{publicKey: ed25519.PublicKey(append([]byte(nil), publicKey...))}, nil
}

// LoadVerifier reads the server public key from a file.
func LoadVerifier(path string) (*Verifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server public key: %w", err)
	}
	return NewVerifier(data)
}

// Verify checks an Ed25519 signature. It fails on any length mismatch
// or cryptographic verification failure.
func (v *Verifier) Verify(message, signature []byte) error {
	if len(signature) != SignatureSize {
		return fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(signature))
	}
	if !ed25519.Verify(v.publicKey, message, signature) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}
