//go:build !linux && !darwin

package gateway

import (
	"fmt"
	"runtime"
)

func EnableIPForwarding() error {
	return fmt.Errorf("gateway mode not supported on %s", runtime.GOOS)
}

func SetupNAT(tunDev, externalIf string) error {
	return fmt.Errorf("gateway mode not supported on %s", runtime.GOOS)
}

func CleanupNAT(tunDev, externalIf string) {}

func DetectDefaultInterface() (string, error) {
	return "", fmt.Errorf("gateway mode not supported on %s", runtime.GOOS)
}
