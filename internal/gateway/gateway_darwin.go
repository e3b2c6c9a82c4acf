//go:build darwin

package gateway

import (
	"fmt"
	"os/exec"
	"strings"
)

// EnableIPForwarding turns on kernel IPv4 forwarding via sysctl.
func EnableIPForwarding() error {
	if err := exec.Command("sysctl", "-w", "net.inet.ip.forwarding=1").Run(); err != nil {
		return fmt.Errorf("enable IP forwarding (run as root): %w", err)
	}
	return nil
}

// SetupNAT is not automated on macOS; pf rules must be loaded by hand.
func SetupNAT(tunDev, externalIf string) error {
	return fmt.Errorf("macOS NAT requires manual pfctl setup: "+
		"nat on %s from 10.0.0.0/24 to any -> (%s), loaded with pfctl -ef", externalIf, externalIf)
}

// CleanupNAT is a no-op on macOS.
func CleanupNAT(tunDev, externalIf string) {}

// DetectDefaultInterface parses `route -n get default` for the
// outbound interface name.
func DetectDefaultInterface() (string, error) {
	out, err := exec.Command("route", "-n", "get", "default").Output()
	if err != nil {
		return "", fmt.Errorf("route -n get default: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "interface:"); ok {
			return strings.TrimSpace(name), nil
		}
	}
	return "", fmt.Errorf("no default route found")
}
