package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurorasec/qtun/internal/handshake"
	"github.com/aurorasec/qtun/internal/identity"
	"github.com/aurorasec/qtun/internal/server"
	"github.com/aurorasec/qtun/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPSK() [32]byte {
	var psk [32]byte
	copy(psk[:], "0123456789abcdef0123456789abcdef")
	return psk
}

func testPacket(src, dst string, payload []byte) []byte {
	pkt := make([]byte, 20+len(payload))
	pkt[0] = 0x45
	pkt[9] = 1
	copy(pkt[12:16], netip.MustParseAddr(src).AsSlice())
	copy(pkt[16:20], netip.MustParseAddr(dst).AsSlice())
	copy(pkt[20:], payload)
	return pkt
}

type fakeDevice struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (d *fakeDevice) Name() string { return "tun-test" }

func (d *fakeDevice) Read(buf []byte) (int, error) {
	select {
	case pkt := <-d.in:
		return copy(buf, pkt), nil
	case <-d.closed:
		return 0, io.EOF
	}
}

func (d *fakeDevice) Write(buf []byte) (int, error) {
	select {
	case <-d.closed:
		return 0, io.EOF
	case d.out <- append([]byte(nil), buf...):
		return len(buf), nil
	}
}

func (d *fakeDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func startTestServer(t *testing.T) (string, *identity.Verifier) {
	t.Helper()
	ident, err := identity.Generate()
	require.NoError(t, err)
	pub := ident.PublicKey()
	verifier, err := identity.NewVerifier(pub[:])
	require.NoError(t, err)

	srv := server.New(server.Config{ListenAddr: "127.0.0.1:0", PSK: testPSK()},
		ident, newFakeDevice(), testLogger())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return fmt.Sprintf("127.0.0.1:%d", srv.LocalPort()), verifier
}

func startClient(t *testing.T, serverAddr string, verifier *identity.Verifier, vip string) *fakeDevice {
	t.Helper()
	dev := newFakeDevice()
	cli := New(Config{
		ServerAddr: serverAddr,
		VirtualIP:  vip,
		ClientID:   "test-" + vip,
		PSK:        testPSK(),
	}, verifier, testLogger())
	cli.SetDevice(dev)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cli.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("client did not shut down")
		}
	})
	return dev
}

func TestClient_EndToEnd(t *testing.T) {
	serverAddr, verifier := startTestServer(t)

	devA := startClient(t, serverAddr, verifier, "10.0.0.2")
	devB := startClient(t, serverAddr, verifier, "10.0.0.3")

	// A's kernel emits an ICMP datagram for B; it must arrive on B's
	// TUN byte-identical.
	pkt := testPacket("10.0.0.2", "10.0.0.3", []byte("ping"))
	require.Eventually(t, func() bool {
		devA.in <- pkt
		select {
		case got := <-devB.out:
			assert.Equal(t, pkt, got)
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)

	// And the reverse direction.
	reply := testPacket("10.0.0.3", "10.0.0.2", []byte("pong"))
	devB.in <- reply
	select {
	case got := <-devA.out:
		assert.Equal(t, reply, got)
	case <-time.After(5 * time.Second):
		t.Fatal("reply never reached A")
	}
}

func TestClient_UnexpectedHandshakeVariant(t *testing.T) {
	// A fake server that answers the hello with another ClientHello;
	// the client must abort instead of retrying.
	fake, err := transport.Listen("127.0.0.1:0", testLogger())
	require.NoError(t, err)
	defer fake.Close()

	go func() {
		buf := make([]byte, 4096)
		_, src, err := fake.ReadFrom(buf)
		if err != nil {
			return
		}
		hs, err := handshake.NewClient(testPSK())
		if err != nil {
			return
		}
		fake.SendTo(handshake.Encode(hs.Hello("imposter", "10.0.0.9")), src)
	}()

	ident, err := identity.Generate()
	require.NoError(t, err)
	pub := ident.PublicKey()
	verifier, err := identity.NewVerifier(pub[:])
	require.NoError(t, err)

	cli := New(Config{
		ServerAddr: fmt.Sprintf("127.0.0.1:%d", fake.Port()),
		VirtualIP:  "10.0.0.2",
		ClientID:   "test",
		PSK:        testPSK(),
	}, verifier, testLogger())
	cli.SetDevice(newFakeDevice())

	err = cli.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected handshake variant")
}
