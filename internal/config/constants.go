package config

const (
	// DefaultListenPort is the server's UDP listen port.
	DefaultListenPort = 9000
	// DefaultServerAddr is the client's default server endpoint.
	DefaultServerAddr = "127.0.0.1:9000"

	// VPNSubnet is the virtual network in CIDR notation.
	VPNSubnet = "10.0.0.0/24"
	// VPNNetmask is the dotted netmask of the virtual network.
	VPNNetmask = "255.255.255.0"
	// GatewayIP is the virtual address of the VPN gateway (the server's TUN).
	GatewayIP = "10.0.0.1"

	// TUNBufferSize is the read buffer for TUN devices (one MTU-sized datagram).
	TUNBufferSize = 1500
	// ServerUDPBufferSize is the server's UDP receive buffer.
	ServerUDPBufferSize = 4096
	// ClientUDPBufferSize is the client's UDP receive buffer.
	ClientUDPBufferSize = 2048
)
