//go:build linux

package tun

import (
	"fmt"
	"os/exec"

	"github.com/songgao/water"
)

// linuxTUN implements Device using songgao/water. The device is opened
// with IFF_NO_PI, so reads and writes are raw IP datagrams.
type linuxTUN struct {
	iface *water.Interface
	name  string
}

// New creates and configures a TUN device.
func New(cfg Config) (Device, error) {
	wc := water.Config{DeviceType: water.TUN}
	if cfg.Name != "" {
		wc.Name = cfg.Name
	}
	iface, err := water.New(wc)
	if err != nil {
		return nil, fmt.Errorf("create TUN device: %w", err)
	}
	d := &linuxTUN{iface: iface, name: iface.Name()}

	prefix, err := maskPrefixLen(cfg.Netmask)
	if err != nil {
		iface.Close()
		return nil, err
	}
	cidr := fmt.Sprintf("%s/%d", cfg.Address, prefix)
	if err := exec.Command("ip", "addr", "add", cidr, "dev", d.name).Run(); err != nil {
		iface.Close()
		return nil, fmt.Errorf("assign address %s: %w", cidr, err)
	}
	if err := exec.Command("ip", "link", "set", "dev", d.name, "up").Run(); err != nil {
		iface.Close()
		return nil, fmt.Errorf("bring up %s: %w", d.name, err)
	}
	return d, nil
}

func (d *linuxTUN) Name() string { return d.name }

func (d *linuxTUN) Read(buf []byte) (int, error) { return d.iface.Read(buf) }

func (d *linuxTUN) Write(buf []byte) (int, error) { return d.iface.Write(buf) }

func (d *linuxTUN) Close() error { return d.iface.Close() }

// ConfigureRoute sends a subnet (or 0.0.0.0/0 for full tunnel) through
// the device.
func ConfigureRoute(devName, cidr string) error {
	if err := exec.Command("ip", "route", "add", cidr, "dev", devName).Run(); err != nil {
		return fmt.Errorf("add route %s via %s: %w", cidr, devName, err)
	}
	return nil
}
