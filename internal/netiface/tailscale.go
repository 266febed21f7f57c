// Package netiface implements the local-network probes the orchestrator and
// LAN/WebRTC strategies need: Tailscale interface detection, the Tailscale
// CIDR classifier, and the /24 same-subnet classifier used for WebRTC path
// classification.
package netiface

import (
	"net"
	"regexp"
)

// tailscaleCIDR is the Carrier-Grade NAT range Tailscale assigns addresses from.
var tailscaleCIDR = mustParseCIDR("100.64.0.0/10")

func mustParseCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// IsTailscaleIP reports whether ip falls in 100.64.0.0/10, i.e.
// 100.64.0.0–100.127.255.255 inclusive.
func IsTailscaleIP(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return tailscaleCIDR.Contains(v4)
}

// SameSlash24 reports whether a and b share a /24.
func SameSlash24(a, b net.IP) bool {
	av4, bv4 := a.To4(), b.To4()
	if av4 == nil || bv4 == nil {
		return false
	}
	return av4[0] == bv4[0] && av4[1] == bv4[1] && av4[2] == bv4[2]
}

// vpnLikeName matches interface names that suggest a VPN/mesh adapter
// (tun*|tap*|tailscale*|vpn*|ipsec*|wg*).
var vpnLikeName = regexp.MustCompile(`(?i)^(tun|tap|tailscale|vpn|ipsec|wg)`)

// DetectTailscale scans active, non-loopback, VPN-looking interfaces for an
// IPv4 address in the Tailscale range. It is a local, cheap probe: no
// network I/O, since this step must not
// block on anything beyond local interface enumeration.
func DetectTailscale() (ip net.IP, ifaceName string, ok bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, "", false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if !vpnLikeName.MatchString(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if IsTailscaleIP(ipNet.IP) {
				return ipNet.IP, iface.Name, true
			}
		}
	}
	return nil, "", false
}
