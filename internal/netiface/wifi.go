package netiface

import "context"

// WiFiLease guarantees socket-binding permission for its lifetime; the
// holder must call Release when the LAN-direct transport no longer needs
// the bypass.
type WiFiLease interface {
	InterfaceName() string
	Release()
}

// WiFiProvider is the platform-dependent collaborator that yields a
// WiFiLease for bypassing VPN routing. The core never acquires a lease
// itself; it is supplied by the surrounding application.
type WiFiProvider interface {
	AcquireLease(ctx context.Context) (WiFiLease, error)
}

// staticLease is a minimal WiFiLease for tests and for platforms where a
// plain interface-name bind is sufficient (no OS-level network request is
// required, unlike Android's ConnectivityManager.NetworkCallback lease).
type staticLease struct {
	name string
}

func NewStaticLease(ifaceName string) WiFiLease { return staticLease{name: ifaceName} }

func (s staticLease) InterfaceName() string { return s.name }
func (s staticLease) Release()              {}
