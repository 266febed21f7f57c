package lan

import (
	"context"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// serviceType is the advertised mDNS record for a connectcore daemon
// (adapted from mash-go's operational-service naming in pkg/discovery/mdns.go).
const serviceType = "_connectcore._tcp"
const domain = "local."

// browseTimeout bounds the mDNS detect probe (e.g. 1 s for LAN mDNS).
const browseTimeout = 1 * time.Second

// discovered is one advertiser found for deviceID.
type discovered struct {
	Host string
	Port uint16
}

// browse runs a short-lived mDNS browse for deviceID's instance name,
// grounded on mash-go's MDNSBrowser.BrowseOperational aggregation pattern,
// collapsed to the subset this module needs: a bounded-time scan instead
// of a long-lived subscription.
func browse(ctx context.Context, deviceID string) ([]discovered, error) {
	bctx, cancel := context.WithTimeout(ctx, browseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	var found []discovered
	done := make(chan struct{})

	go func() {
		defer close(done)
		entriesOpen, removedOpen := true, true
		for entriesOpen || removedOpen {
			select {
			case entry, ok := <-entries:
				if !ok {
					entriesOpen = false
					continue
				}
				if entry.Instance != deviceID {
					continue
				}
				for _, ip := range entry.AddrIPv4 {
					found = append(found, discovered{Host: ip.String(), Port: uint16(entry.Port)})
				}
			case _, ok := <-removed:
				if !ok {
					removedOpen = false
				}
			}
		}
	}()

	if err := zeroconf.Browse(bctx, serviceType, domain, entries, removed); err != nil {
		return nil, err
	}
	<-bctx.Done()
	<-done
	return found, nil
}
