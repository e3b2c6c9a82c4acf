// Package client implements the client datapath: one handshake with the
// server, then bidirectional forwarding between the local TUN device
// and the server's UDP endpoint.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/aurorasec/qtun/internal/config"
	"github.com/aurorasec/qtun/internal/handshake"
	"github.com/aurorasec/qtun/internal/identity"
	"github.com/aurorasec/qtun/internal/record"
	"github.com/aurorasec/qtun/internal/transport"
	"github.com/aurorasec/qtun/internal/tun"
)

// Config holds the client runtime configuration.
type Config struct {
	ServerAddr string
	VirtualIP  string
	ClientID   string
	PSK        [32]byte
	FullTunnel bool
}

// Client tunnels the local TUN device to the server.
type Client struct {
	cfg      Config
	verifier *identity.Verifier
	log      *slog.Logger

	conn   *transport.Conn
	cipher *record.Cipher
	dev    tun.Device

	wg sync.WaitGroup
}

// New creates a client. The verifier holds the server's public key,
// loaded from disk by the caller.
func New(cfg Config, verifier *identity.Verifier, log *slog.Logger) *Client {
	return &Client{
		cfg:      cfg,
		verifier: verifier,
		log:      log.With("component", "client"),
	}
}

// SetDevice injects a pre-built TUN device instead of creating one at
// Run time. Routes are not installed for injected devices.
func (c *Client) SetDevice(dev tun.Device) {
	c.dev = dev
}

// Run performs the handshake and then forwards traffic until both
// datapath tasks have died or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	conn, err := transport.Listen(":0", c.log)
	if err != nil {
		return err
	}
	c.conn = conn
	defer conn.Close()

	serverEP, err := resolveEndpoint(c.cfg.ServerAddr)
	if err != nil {
		return err
	}

	key, err := c.handshake(serverEP)
	if err != nil {
		return fmt.Errorf("handshake with %s: %w", serverEP, err)
	}
	cipher, err := record.New(key[:])
	if err != nil {
		return err
	}
	c.cipher = cipher
	c.log.Info("session established", "server", serverEP, "virtual_ip", c.cfg.VirtualIP)

	if c.dev == nil {
		dev, err := tun.New(tun.Config{Address: c.cfg.VirtualIP, Netmask: config.VPNNetmask})
		if err != nil {
			return fmt.Errorf("create TUN device: %w", err)
		}
		c.dev = dev
		routeCIDR := config.VPNSubnet
		if c.cfg.FullTunnel {
			routeCIDR = "0.0.0.0/0"
		}
		if err := tun.ConfigureRoute(dev.Name(), routeCIDR); err != nil {
			c.log.Warn("route configuration failed", "cidr", routeCIDR, "err", err)
		}
	}
	defer c.dev.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
		c.dev.Close()
	})
	defer stop()

	c.wg.Add(2)
	go c.uplink(serverEP)
	go c.downlink()
	c.wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// handshake sends a ClientHello and waits for a valid, signed
// ServerHello. Any timeout, unexpected variant, signature failure or
// decapsulation failure aborts the attempt; there is no retry.
func (c *Client) handshake(serverEP netip.AddrPort) ([32]byte, error) {
	var key [32]byte

	hs, err := handshake.NewClient(c.cfg.PSK)
	if err != nil {
		return key, err
	}
	hello := hs.Hello(c.cfg.ClientID, c.cfg.VirtualIP)
	if err := c.conn.SendTo(handshake.Encode(hello), serverEP); err != nil {
		return key, fmt.Errorf("send ClientHello: %w", err)
	}
	c.log.Info("handshake sent", "server", serverEP)

	if err := c.conn.SetReadDeadline(time.Now().Add(handshake.ResponseTimeout)); err != nil {
		return key, err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, config.ClientUDPBufferSize)
	n, _, err := c.conn.ReadFrom(buf)
	if err != nil {
		return key, fmt.Errorf("wait for ServerHello: %w", err)
	}
	msg, err := handshake.Decode(buf[:n])
	if err != nil {
		return key, fmt.Errorf("decode ServerHello: %w", err)
	}
	serverHello, ok := msg.(*handshake.ServerHello)
	if !ok {
		return key, fmt.Errorf("unexpected handshake variant")
	}
	return hs.SessionKey(serverHello, c.verifier)
}

// uplink reads IP datagrams from the TUN device, encrypts, and sends
// them to the server.
func (c *Client) uplink(serverEP netip.AddrPort) {
	defer c.wg.Done()
	buf := make([]byte, config.TUNBufferSize)
	for {
		n, err := c.dev.Read(buf)
		if err != nil {
			c.log.Error("TUN read error, uplink stopped", "err", err)
			return
		}
		out, err := c.cipher.Encrypt(buf[:n])
		if err != nil {
			c.log.Error("encrypt", "err", err)
			continue
		}
		if err := c.conn.SendTo(out, serverEP); err != nil {
			c.log.Error("uplink send error, uplink stopped", "err", err)
			return
		}
	}
}

// downlink receives datagrams from the server, decrypts, and writes
// them to the TUN device. Undecryptable datagrams are dropped.
func (c *Client) downlink() {
	defer c.wg.Done()
	buf := make([]byte, config.ClientUDPBufferSize)
	for {
		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			c.log.Error("UDP read error, downlink stopped", "err", err)
			return
		}
		packet, err := c.cipher.Decrypt(buf[:n])
		if err != nil {
			c.log.Debug("discarding undecryptable datagram", "len", n)
			continue
		}
		if _, err := c.dev.Write(packet); err != nil {
			c.log.Error("TUN write error, downlink stopped", "err", err)
			return
		}
	}
}

func resolveEndpoint(addr string) (netip.AddrPort, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve server %s: %w", addr, err)
	}
	ep := udpAddr.AddrPort()
	return netip.AddrPortFrom(ep.Addr().Unmap(), ep.Port()), nil
}
