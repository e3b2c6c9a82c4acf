package server

import (
	"net/netip"
	"sync"

	"github.com/aurorasec/qtun/internal/record"
)

// session is the per-client state derived from one handshake. The
// cipher is built once from the session key and cached; it is immutable
// and safe to share across tasks.
type session struct {
	key    [32]byte
	cipher *record.Cipher
}

// sessionTable maps real UDP endpoints to sessions. A re-handshake from
// the same endpoint replaces the entry. Lock hold-time is one map
// operation; never held across I/O.
type sessionTable struct {
	mu sync.Mutex
	m  map[netip.AddrPort]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{m: make(map[netip.AddrPort]*session)}
}

func (t *sessionTable) get(ep netip.AddrPort) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m[ep]
}

func (t *sessionTable) put(ep netip.AddrPort, s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[ep] = s
}

func (t *sessionTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// peerTable maps virtual IPv4 addresses to the UDP endpoint of the
// client that owns them. Entries are installed on handshake and
// auto-learned from the source field of decrypted datagrams.
type peerTable struct {
	mu sync.Mutex
	m  map[netip.Addr]netip.AddrPort
}

func newPeerTable() *peerTable {
	return &peerTable{m: make(map[netip.Addr]netip.AddrPort)}
}

func (t *peerTable) lookup(ip netip.Addr) (netip.AddrPort, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ep, ok := t.m[ip]
	return ep, ok
}

// set maps ip to ep, reporting whether the entry changed.
func (t *peerTable) set(ip netip.Addr, ep netip.AddrPort) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.m[ip]; ok && old == ep {
		return false
	}
	t.m[ip] = ep
	return true
}

func (t *peerTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// snapshot copies the table for the status API.
func (t *peerTable) snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.m))
	for ip, ep := range t.m {
		out[ip.String()] = ep.String()
	}
	return out
}
