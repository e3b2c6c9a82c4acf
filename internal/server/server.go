// Package server implements the forwarding core: the session and peer
// tables, the UDP demultiplexer, and the three-way datapath between
// client sockets, peer sockets, and the local TUN device.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/aurorasec/qtun/internal/config"
	"github.com/aurorasec/qtun/internal/handshake"
	"github.com/aurorasec/qtun/internal/identity"
	"github.com/aurorasec/qtun/internal/metrics"
	"github.com/aurorasec/qtun/internal/record"
	"github.com/aurorasec/qtun/internal/transport"
	"github.com/aurorasec/qtun/internal/tun"
)

// Config holds the server runtime configuration.
type Config struct {
	ListenAddr  string
	PSK         [32]byte
	Gateway     bool
	StatusAddr  string
	STUNServers []string
}

// Server relays encrypted datagrams between clients and, in gateway
// mode, between clients and the internet via the local TUN device.
type Server struct {
	cfg      Config
	ident    *identity.Identity
	dev      tun.Device
	conn     *transport.Conn
	sessions *sessionTable
	peers    *peerTable
	subnet   netip.Prefix
	met      *metrics.Metrics
	log      *slog.Logger

	// The TUN write-half is shared between the UDP datapath and any
	// future writer; dev reads stay exclusive to the TUN task.
	tunWriteMu sync.Mutex

	trafficIn  atomic.Uint64
	trafficOut atomic.Uint64

	// Reflexive endpoint from STUN discovery, when configured. Written
	// once in Start before the status listener comes up.
	publicAddr netip.AddrPort

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server. The TUN device must already be configured with
// the gateway address.
func New(cfg Config, ident *identity.Identity, dev tun.Device, log *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		ident:    ident,
		dev:      dev,
		sessions: newSessionTable(),
		peers:    newPeerTable(),
		subnet:   netip.MustParsePrefix(config.VPNSubnet),
		met:      metrics.Default(),
		log:      log.With("component", "server"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds the UDP socket and launches the datapath tasks. Gateway
// forwarding/NAT rules are installed by the caller before Start.
func (s *Server) Start() error {
	conn, err := transport.Listen(s.cfg.ListenAddr, s.log)
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	s.conn = conn
	s.log.Info("listening", "addr", conn.LocalAddr())

	if len(s.cfg.STUNServers) > 0 {
		public, err := transport.DiscoverPublicAddr(s.cfg.STUNServers, s.log)
		if err != nil {
			s.log.Warn("public address discovery failed", "err", err)
		} else {
			s.publicAddr = public
		}
	}

	if s.cfg.StatusAddr != "" {
		s.serveStatus(s.cfg.StatusAddr)
	}

	s.wg.Add(2)
	go s.udpReadLoop()
	go s.tunReadLoop()

	s.log.Info("server started",
		"tun", s.dev.Name(),
		"gateway", s.cfg.Gateway,
		"pubkey", s.ident.PublicKeyHex(),
	)
	return nil
}

// Stop shuts down the datapath.
func (s *Server) Stop() {
	s.log.Info("server stopping")
	s.cancel()
	if s.conn != nil {
		s.conn.Close()
	}
	s.dev.Close()
	s.wg.Wait()
	s.log.Info("server stopped")
}

// LocalPort returns the bound UDP port.
func (s *Server) LocalPort() int {
	return s.conn.Port()
}

// --- UDP datapath ---

func (s *Server) udpReadLoop() {
	defer s.wg.Done()
	buf := make([]byte, config.ServerUDPBufferSize)
	for {
		n, src, err := s.conn.ReadFrom(buf)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.Error("UDP read error", "err", err)
			continue
		}
		s.handleDatagram(buf[:n], src)
	}
}

// handleDatagram demultiplexes one UDP payload: anything that decodes
// as a handshake message is control traffic, everything else is an
// encrypted data record. A data record starts with a random nonce and
// will not survive the codec's strict validation.
func (s *Server) handleDatagram(data []byte, src netip.AddrPort) {
	if msg, err := handshake.Decode(data); err == nil {
		if hello, ok := msg.(*handshake.ClientHello); ok {
			s.handleClientHello(hello, src)
		} else {
			s.log.Debug("ignoring handshake variant", "from", src)
		}
		return
	}
	s.handleDataRecord(data, src)
}

// handleClientHello runs the stateless server handshake path: respond,
// install the session, and map the declared virtual IP. Failures are
// dropped without an error frame; probers get no signal.
func (s *Server) handleClientHello(hello *handshake.ClientHello, src netip.AddrPort) {
	s.log.Info("handshake request", "client_id", hello.ClientID, "from", src, "virtual_ip", hello.VirtualIP)

	hs, err := handshake.NewServer(s.cfg.PSK)
	if err != nil {
		s.log.Error("handshake init", "err", err)
		s.met.HandshakesFailed.Inc()
		return
	}
	resp, key, err := hs.Respond(hello, s.ident)
	if err != nil {
		s.log.Debug("handshake rejected", "from", src, "err", err)
		s.met.HandshakesFailed.Inc()
		return
	}
	cipher, err := record.New(key[:])
	if err != nil {
		s.met.HandshakesFailed.Inc()
		return
	}

	s.sessions.put(src, &session{key: key, cipher: cipher})
	s.met.SessionsActive.Set(float64(s.sessions.len()))

	if vip, err := netip.ParseAddr(hello.VirtualIP); err == nil && vip.Is4() {
		s.peers.set(vip, src)
		s.met.PeersKnown.Set(float64(s.peers.len()))
		s.log.Info("peer mapped", "virtual_ip", vip, "endpoint", src)
	}

	if err := s.conn.SendTo(handshake.Encode(resp), src); err != nil {
		s.log.Error("send ServerHello", "to", src, "err", err)
		return
	}
	s.met.HandshakesCompleted.Inc()
	s.log.Info("session established", "client_id", hello.ClientID, "endpoint", src)
}

// handleDataRecord decrypts one record and dispatches the inner IPv4
// datagram. Every failure is a silent drop.
func (s *Server) handleDataRecord(data []byte, src netip.AddrPort) {
	sess := s.sessions.get(src)
	if sess == nil {
		s.met.RecordDrop(metrics.DropNoSession)
		return
	}
	s.trafficIn.Add(uint64(len(data)))
	s.met.BytesIn.Add(float64(len(data)))

	packet, err := sess.cipher.Decrypt(data)
	if err != nil {
		s.met.RecordDrop(metrics.DropDecrypt)
		return
	}

	srcIP, dstIP, err := parseIPv4Header(packet)
	if err != nil {
		s.met.RecordDrop(metrics.DropBadPacket)
		return
	}

	// Auto-learn: a roamed client keeps its virtual IP reachable at its
	// current endpoint.
	if s.peers.set(srcIP, src) {
		s.met.PeersKnown.Set(float64(s.peers.len()))
		s.log.Info("peer learned", "virtual_ip", srcIP, "endpoint", src)
	}

	s.dispatch(packet, srcIP, dstIP)
}

// dispatch applies the forwarding policy for one decrypted datagram.
func (s *Server) dispatch(packet []byte, srcIP, dstIP netip.Addr) {
	if ep, ok := s.peers.lookup(dstIP); ok {
		// Client-to-client relay. Each client has its own session key,
		// so the datagram is re-encrypted for the destination.
		dstSess := s.sessions.get(ep)
		if dstSess == nil {
			s.met.RecordDrop(metrics.DropPeerOffline)
			return
		}
		out, err := dstSess.cipher.Encrypt(packet)
		if err != nil {
			s.log.Error("encrypt for relay", "dst", dstIP, "err", err)
			return
		}
		if err := s.conn.SendTo(out, ep); err != nil {
			s.log.Error("relay send", "dst", dstIP, "err", err)
			return
		}
		s.trafficOut.Add(uint64(len(out)))
		s.met.BytesOut.Add(float64(len(out)))
		s.met.PacketsRelayed.Inc()
		s.log.Debug("relayed", "src", srcIP, "dst", dstIP, "len", len(packet))
		return
	}

	if s.subnet.Contains(dstIP) {
		// In-subnet but unmapped: the target is offline.
		s.met.RecordDrop(metrics.DropPeerOffline)
		s.log.Debug("dropped, target offline", "src", srcIP, "dst", dstIP)
		return
	}

	if !s.cfg.Gateway {
		s.met.RecordDrop(metrics.DropNoGateway)
		return
	}

	// External destination: hand the plaintext datagram to the kernel
	// through the TUN device; NAT takes it upstream.
	s.tunWriteMu.Lock()
	_, err := s.dev.Write(packet)
	s.tunWriteMu.Unlock()
	if err != nil {
		s.log.Error("TUN write", "err", err)
		return
	}
	s.met.PacketsGatewayed.Inc()
	s.log.Debug("gatewayed", "src", srcIP, "dst", dstIP, "len", len(packet))
}

// --- TUN datapath ---

// tunReadLoop returns NAT replies from the kernel to their clients. A
// read error ends this task only; existing client-to-client relaying
// continues.
func (s *Server) tunReadLoop() {
	defer s.wg.Done()
	buf := make([]byte, config.TUNBufferSize)
	for {
		n, err := s.dev.Read(buf)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.Error("TUN read error, stopping TUN task", "err", err)
			return
		}

		_, dstIP, err := parseIPv4Header(buf[:n])
		if err != nil {
			continue
		}
		ep, ok := s.peers.lookup(dstIP)
		if !ok {
			continue
		}
		sess := s.sessions.get(ep)
		if sess == nil {
			continue
		}
		out, err := sess.cipher.Encrypt(buf[:n])
		if err != nil {
			s.log.Error("encrypt for downlink", "dst", dstIP, "err", err)
			continue
		}
		if err := s.conn.SendTo(out, ep); err != nil {
			s.log.Error("downlink send", "dst", dstIP, "err", err)
			continue
		}
		s.trafficOut.Add(uint64(len(out)))
		s.met.BytesOut.Add(float64(len(out)))
		s.log.Debug("returned from gateway", "dst", dstIP, "len", n)
	}
}
