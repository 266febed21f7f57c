package webrtcdc

import (
	"net"
	"regexp"
	"strings"

	"github.com/relayshell/connectcore/internal/netiface"
)

// Path labels the kind of network path a WebRTC data channel ended up
// using, for UI display only — not correctness-affecting.
type Path string

const (
	PathRelayed      Path = "relayed"
	PathTailscale    Path = "tailscale"
	PathLANDirect    Path = "lan-direct"
	PathWebRTCDirect Path = "webrtc-direct"
)

// ClassifyPath implements an ordered rule: relay on either side
// wins, then Tailscale range, then same-/24 host candidates, then
// server-reflexive, defaulting to webrtc-direct.
func ClassifyPath(localType, localAddr, remoteType, remoteAddr string) Path {
	if localType == "relay" || remoteType == "relay" {
		return PathRelayed
	}

	lIP := net.ParseIP(localAddr)
	rIP := net.ParseIP(remoteAddr)
	if (lIP != nil && netiface.IsTailscaleIP(lIP)) || (rIP != nil && netiface.IsTailscaleIP(rIP)) {
		return PathTailscale
	}

	if localType == "host" && remoteType == "host" && lIP != nil && rIP != nil && netiface.SameSlash24(lIP, rIP) {
		return PathLANDirect
	}

	if localType == "srflx" || remoteType == "srflx" {
		return PathWebRTCDirect
	}

	return PathWebRTCDirect
}

// candidateLine matches an SDP `a=candidate:...` attribute line and
// captures the candidate's IP address (4th field per RFC 8839).
var candidateLine = regexp.MustCompile(`(?m)^a=candidate:\S+ \d+ \S+ \d+ (\S+) `)

// filterTailscaleCandidates strips ICE candidate lines whose address falls
// in the Tailscale range (100.64.0.0/10) from an SDP offer, so a daemon
// without a shared Tailscale network never learns an address it cannot
// reach; this only runs before signalling when the local Tailscale
// interface is absent.
func filterTailscaleCandidates(sdp string) string {
	lines := strings.Split(sdp, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "a=candidate:") {
			m := candidateLine.FindStringSubmatch(line + "\n")
			if len(m) == 2 {
				if ip := net.ParseIP(m[1]); ip != nil && netiface.IsTailscaleIP(ip) {
					continue
				}
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
