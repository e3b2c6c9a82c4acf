//go:build darwin

package tun

import (
	"fmt"
	"os/exec"

	"github.com/songgao/water"

	"github.com/aurorasec/qtun/internal/config"
)

// darwinTUN implements Device over a utun interface. The kernel frames
// every packet with a 4-byte address-family header; water strips it on
// read and prepends AF_INET on write, so Read/Write stay raw datagrams.
type darwinTUN struct {
	iface *water.Interface
	name  string
}

// New creates and configures a utun device.
func New(cfg Config) (Device, error) {
	wc := water.Config{DeviceType: water.TUN}
	if cfg.Name != "" {
		wc.PlatformSpecificParams = water.PlatformSpecificParams{Name: cfg.Name}
	}
	iface, err := water.New(wc)
	if err != nil {
		return nil, fmt.Errorf("create utun device: %w", err)
	}
	d := &darwinTUN{iface: iface, name: iface.Name()}

	// ifconfig utunN <addr> <dest> netmask <mask> up; destination equals
	// the address on this point-to-point link.
	if err := exec.Command("ifconfig", d.name, cfg.Address, cfg.Address, "netmask", cfg.Netmask, "up").Run(); err != nil {
		iface.Close()
		return nil, fmt.Errorf("configure %s: %w", d.name, err)
	}
	return d, nil
}

func (d *darwinTUN) Name() string { return d.name }

func (d *darwinTUN) Read(buf []byte) (int, error) { return d.iface.Read(buf) }

func (d *darwinTUN) Write(buf []byte) (int, error) { return d.iface.Write(buf) }

func (d *darwinTUN) Close() error { return d.iface.Close() }

// ConfigureRoute sends a subnet through the device. Full tunnel
// (0.0.0.0/0) replaces the default route with one via the VPN gateway;
// existing TCP connections over the old route will drop.
func ConfigureRoute(devName, cidr string) error {
	if cidr == "0.0.0.0/0" {
		_ = exec.Command("route", "-n", "delete", "default").Run()
		if err := exec.Command("route", "-n", "add", "default", config.GatewayIP).Run(); err != nil {
			return fmt.Errorf("replace default route: %w", err)
		}
		return nil
	}
	if err := exec.Command("route", "-n", "add", "-net", cidr, "-interface", devName).Run(); err != nil {
		return fmt.Errorf("add route %s via %s: %w", cidr, devName, err)
	}
	return nil
}
