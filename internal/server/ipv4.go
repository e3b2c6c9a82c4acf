package server

import (
	"errors"
	"net/netip"
)

const ipv4HeaderMin = 20

var errNotIPv4 = errors.New("not an IPv4 packet")

// parseIPv4Header extracts the source and destination addresses from an
// IPv4 datagram. Only the minimum-length and version checks are made;
// checksums and total-length fields are the clients' problem.
func parseIPv4Header(pkt []byte) (src, dst netip.Addr, err error) {
	if len(pkt) < ipv4HeaderMin {
		return src, dst, errNotIPv4
	}
	if pkt[0]>>4 != 4 {
		return src, dst, errNotIPv4
	}
	src = netip.AddrFrom4([4]byte(pkt[12:16]))
	dst = netip.AddrFrom4([4]byte(pkt[16:20]))
	return src, dst, nil
}
