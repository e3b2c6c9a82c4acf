package handshake

import (
	"crypto/mlkem"
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire format: a tag byte followed by the variant body. Integers are
// little-endian; variable-length fields carry a u32 length prefix.
// Decoding is strict — known tag, exact field sizes, no trailing
// bytes — so that an encrypted data record (which begins with a random
// 12-byte nonce) is rejected with overwhelming probability. That
// strictness is what makes demultiplexing by trial decode workable.

const (
	// maxStringLen bounds the client_id and virtual_ip fields.
	maxStringLen = 255
	// maxConfirmLen bounds the ClientFinish payload.
	maxConfirmLen = 4096
)

var ErrBadMessage = errors.New("malformed handshake message")

// Encode serializes a handshake message.
func Encode(msg Message) []byte {
	switch m := msg.(type) {
	case *ClientHello:
		buf := make([]byte, 0, 1+32+4+len(m.MLKEMPublicKey)+4+len(m.ClientID)+4+len(m.VirtualIP))
		buf = append(buf, m.tag())
		buf = append(buf, m.EphemeralKey[:]...)
		buf = appendBytes(buf, m.MLKEMPublicKey)
		buf = appendBytes(buf, []byte(m.ClientID))
		buf = appendBytes(buf, []byte(m.VirtualIP))
		return buf
	case *ServerHello:
		buf := make([]byte, 0, 1+32+4+len(m.MLKEMCiphertext)+4+len(m.Signature))
		buf = append(buf, m.tag())
		buf = append(buf, m.EphemeralKey[:]...)
		buf = appendBytes(buf, m.MLKEMCiphertext)
		buf = appendBytes(buf, m.Signature)
		return buf
	case *ClientFinish:
		buf := make([]byte, 0, 1+4+len(m.EncryptedConfirm))
		buf = append(buf, m.tag())
		buf = appendBytes(buf, m.EncryptedConfirm)
		return buf
	case *ServerFinish:
		b := byte(0)
		if m.Success {
			b = 1
		}
		return []byte{m.tag(), b}
	default:
		panic(fmt.Sprintf("handshake: unknown message type %T", msg))
	}
}

// Decode parses a handshake message. It fails on unknown tags, field
// size mismatches, unbounded lengths and trailing bytes.
func Decode(data []byte) (Message, error) {
	if len(data) < 2 {
		return nil, ErrBadMessage
	}
	r := reader{buf: data[1:]}

	switch data[0] {
	case tagClientHello:
		m := &ClientHello{}
		if err := r.fixed(m.EphemeralKey[:]); err != nil {
			return nil, err
		}
		pk, err := r.bytes(mlkem.EncapsulationKeySize768, mlkem.EncapsulationKeySize768)
		if err != nil {
			return nil, err
		}
		m.MLKEMPublicKey = pk
		id, err := r.bytes(0, maxStringLen)
		if err != nil {
			return nil, err
		}
		m.ClientID = string(id)
		vip, err := r.bytes(0, maxStringLen)
		if err != nil {
			return nil, err
		}
		m.VirtualIP = string(vip)
		return m, r.done()

	case tagServerHello:
		m := &ServerHello{}
		if err := r.fixed(m.EphemeralKey[:]); err != nil {
			return nil, err
		}
		ct, err := r.bytes(mlkem.CiphertextSize768, mlkem.CiphertextSize768)
		if err != nil {
			return nil, err
		}
		m.MLKEMCiphertext = ct
		sig, err := r.bytes(64, 64)
		if err != nil {
			return nil, err
		}
		m.Signature = sig
		return m, r.done()

	case tagClientFinish:
		m := &ClientFinish{}
		confirm, err := r.bytes(0, maxConfirmLen)
		if err != nil {
			return nil, err
		}
		m.EncryptedConfirm = confirm
		return m, r.done()

	case tagServerFinish:
		if len(data) != 2 || data[1] > 1 {
			return nil, ErrBadMessage
		}
		return &ServerFinish{Success: data[1] == 1}, nil

	default:
		return nil, ErrBadMessage
	}
}

func appendBytes(buf, field []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(field)))
	return append(buf, field...)
}

type reader struct {
	buf []byte
}

func (r *reader) fixed(dst []byte) error {
	if len(r.buf) < len(dst) {
		return ErrBadMessage
	}
	copy(dst, r.buf[:len(dst)])
	r.buf = r.buf[len(dst):]
	return nil
}

func (r *reader) bytes(minLen, maxLen int) ([]byte, error) {
	if len(r.buf) < 4 {
		return nil, ErrBadMessage
	}
	n := int(binary.LittleEndian.Uint32(r.buf[:4]))
	r.buf = r.buf[4:]
	if n < minLen || n > maxLen || n > len(r.buf) {
		return nil, ErrBadMessage
	}
	out := append([]byte(nil), r.buf[:n]...)
	r.buf = r.buf[n:]
	return out, nil
}

func (r *reader) done() error {
	if len(r.buf) != 0 {
		return ErrBadMessage
	}
	return nil
}
