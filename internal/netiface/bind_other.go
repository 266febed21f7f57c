//go:build !linux

package netiface

import "fmt"

func bindToDevice(fd uintptr, ifaceName string) error {
	if ifaceName == "" {
		return nil
	}
	return fmt.Errorf("binding to a specific interface is supported only on linux")
}
