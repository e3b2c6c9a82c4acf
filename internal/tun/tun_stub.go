//go:build !linux && !darwin

package tun

import (
	"fmt"
	"runtime"
)

// New is unavailable on unsupported platforms.
func New(cfg Config) (Device, error) {
	return nil, fmt.Errorf("TUN devices not supported on %s", runtime.GOOS)
}

// ConfigureRoute is unavailable on unsupported platforms.
func ConfigureRoute(devName, cidr string) error {
	return fmt.Errorf("routes not supported on %s", runtime.GOOS)
}
