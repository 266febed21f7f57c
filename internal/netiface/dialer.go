package netiface

import (
	"net"
	"syscall"
)

// DialerBoundTo returns a *net.Dialer whose Control hook binds to ifaceName
// when non-empty, repurposing a setSocketMark Control-hook pattern from a
// routing fwmark to an interface bind.
func DialerBoundTo(ifaceName string) *net.Dialer {
	return &net.Dialer{
		Control: func(network, address string, c syscall.RawConn) error {
			if ifaceName == "" {
				return nil
			}
			var ctrlErr error
			if err := c.Control(func(fd uintptr) {
				ctrlErr = bindToDevice(fd, ifaceName)
			}); err != nil {
				return err
			}
			return ctrlErr
		},
	}
}
