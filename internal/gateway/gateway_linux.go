//go:build linux

package gateway

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// EnableIPForwarding turns on kernel IPv4 forwarding.
func EnableIPForwarding() error {
	if err := os.WriteFile("/proc/sys/net/ipv4/ip_forward", []byte("1\n"), 0644); err != nil {
		return fmt.Errorf("enable IP forwarding (run as root): %w", err)
	}
	value, err := os.ReadFile("/proc/sys/net/ipv4/ip_forward")
	if err != nil {
		return fmt.Errorf("verify IP forwarding: %w", err)
	}
	if strings.TrimSpace(string(value)) != "1" {
		return fmt.Errorf("IP forwarding still disabled")
	}
	return nil
}

// SetupNAT installs iptables FORWARD and MASQUERADE rules between the
// TUN device and the external interface.
func SetupNAT(tunDev, externalIf string) error {
	rules := [][]string{
		{"-A", "FORWARD", "-i", tunDev, "-o", externalIf, "-j", "ACCEPT"},
		{"-A", "FORWARD", "-i", externalIf, "-o", tunDev,
			"-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"},
		{"-t", "nat", "-A", "POSTROUTING", "-o", externalIf, "-j", "MASQUERADE"},
	}
	for _, args := range rules {
		if err := exec.Command("iptables", args...).Run(); err != nil {
			return fmt.Errorf("iptables %s: %w", strings.Join(args, " "), err)
		}
	}
	return nil
}

// CleanupNAT removes the rules installed by SetupNAT. Missing rules are
// ignored.
func CleanupNAT(tunDev, externalIf string) {
	rules := [][]string{
		{"-D", "FORWARD", "-i", tunDev, "-o", externalIf, "-j", "ACCEPT"},
		{"-D", "FORWARD", "-i", externalIf, "-o", tunDev,
			"-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"},
		{"-t", "nat", "-D", "POSTROUTING", "-o", externalIf, "-j", "MASQUERADE"},
	}
	for _, args := range rules {
		_ = exec.Command("iptables", args...).Run()
	}
}

// DetectDefaultInterface parses `ip route show default` for the
// outbound interface name.
func DetectDefaultInterface() (string, error) {
	out, err := exec.Command("ip", "route", "show", "default").Output()
	if err != nil {
		return "", fmt.Errorf("ip route show default: %w", err)
	}
	// default via 192.168.1.1 dev eth0 proto dhcp metric 100
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		for i, f := range fields {
			if f == "dev" && i+1 < len(fields) {
				return fields[i+1], nil
			}
		}
	}
	return "", fmt.Errorf("no default route found")
}
