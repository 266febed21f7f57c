//go:build linux

package netiface

import (
	"fmt"
	"syscall"
)

// bindToDevice pins a socket to a named interface via SO_BINDTODEVICE, so a
// LAN dial can be forced off a VPN/mesh interface even when the OS routing
// table would otherwise prefer it (prefer binding to a non-VPN
// interface when one is available").
func bindToDevice(fd uintptr, ifaceName string) error {
	if ifaceName == "" {
		return nil
	}
	if err := syscall.SetsockoptString(int(fd), syscall.SOL_SOCKET, syscall.SO_BINDTODEVICE, ifaceName); err != nil {
		return fmt.Errorf("setsockopt SO_BINDTODEVICE=%q: %w", ifaceName, err)
	}
	return nil
}
