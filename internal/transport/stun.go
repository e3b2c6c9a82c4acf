package transport

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/pion/stun/v3"
)

const stunTimeout = 5 * time.Second

// DiscoverPublicAddr queries the configured STUN servers for this
// host's public UDP endpoint, returning the first answer. The server
// logs it at startup and advertises it over the status API so
// operators know what endpoint to hand to clients behind NAT.
func DiscoverPublicAddr(servers []string, log *slog.Logger) (netip.AddrPort, error) {
	if len(servers) == 0 {
		return netip.AddrPort{}, fmt.Errorf("no STUN servers configured")
	}
	for _, server := range servers {
		public, err := queryBinding(server)
		if err != nil {
			log.Debug("STUN query failed", "server", server, "err", err)
			continue
		}
		log.Info("public endpoint discovered", "endpoint", public, "stun_server", server)
		return public, nil
	}
	return netip.AddrPort{}, fmt.Errorf("all STUN servers failed")
}

// queryBinding sends one binding request and waits for the reflexive
// endpoint in the response.
func queryBinding(server string) (netip.AddrPort, error) {
	sock, err := net.DialTimeout("udp4", server, stunTimeout)
	if err != nil {
		return netip.AddrPort{}, err
	}
	defer sock.Close()
	sock.SetDeadline(time.Now().Add(stunTimeout))

	req := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	if _, err := req.WriteTo(sock); err != nil {
		return netip.AddrPort{}, err
	}

	reply := make([]byte, 1024)
	n, err := sock.Read(reply)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return reflexiveEndpoint(reply[:n])
}

// reflexiveEndpoint extracts the mapped endpoint from a binding
// response, preferring the XOR-mapped attribute over the legacy one.
func reflexiveEndpoint(raw []byte) (netip.AddrPort, error) {
	reply := &stun.Message{Raw: raw}
	if err := reply.Decode(); err != nil {
		return netip.AddrPort{}, err
	}
	var xor stun.XORMappedAddress
	if err := xor.GetFrom(reply); err == nil {
		return toAddrPort(xor.IP, xor.Port)
	}
	var plain stun.MappedAddress
	if err := plain.GetFrom(reply); err == nil {
		return toAddrPort(plain.IP, plain.Port)
	}
	return netip.AddrPort{}, fmt.Errorf("binding response carries no mapped address")
}

func toAddrPort(ip net.IP, port int) (netip.AddrPort, error) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("bad address in binding response")
	}
	return netip.AddrPortFrom(addr.Unmap(), uint16(port)), nil
}
