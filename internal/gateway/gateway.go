// Package gateway turns the server host into an internet gateway for
// the VPN: it enables kernel IP forwarding and installs NAT rules on
// the default interface so client traffic written to the TUN device is
// masqueraded upstream. Requires root.
package gateway
