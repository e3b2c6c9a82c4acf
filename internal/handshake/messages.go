package handshake

// Message is one frame of the handshake protocol. It is a closed sum:
// exactly the four variants below exist on the wire.
type Message interface {
	tag() byte
}

const (
	tagClientHello  byte = 1
	tagServerHello  byte = 2
	tagClientFinish byte = 3
	tagServerFinish byte = 4
)

// ClientHello opens the handshake. The client contributes a fresh
// X25519 ephemeral public key and a fresh ML-KEM-768 public key, and
// declares the virtual IPv4 address it will use inside the tunnel.
type ClientHello struct {
	EphemeralKey   [32]byte
	MLKEMPublicKey []byte
	ClientID       string
	VirtualIP      string
}

// ServerHello answers a ClientHello. The signature covers the
// concatenation of the server and client ephemeral keys, in that order.
type ServerHello struct {
	EphemeralKey    [32]byte
	MLKEMCiphertext []byte
	Signature       []byte
}

// ClientFinish is defined for codec compatibility but never transmitted;
// the first successfully decrypted data record confirms the client.
type ClientFinish struct {
	EncryptedConfirm []byte
}

// ServerFinish is defined for codec compatibility but never transmitted.
type ServerFinish struct {
	Success bool
}

func (*ClientHello) tag() byte  { return tagClientHello }
func (*ServerHello) tag() byte  { return tagServerHello }
func (*ClientFinish) tag() byte { return tagClientFinish }
func (*ServerFinish) tag() byte { return tagServerFinish }
