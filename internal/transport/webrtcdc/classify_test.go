package webrtcdc

import "testing"

func TestClassifyPath(t *testing.T) {
	cases := []struct {
		name                   string
		lType, lAddr, rType, rAddr string
		want                   Path
	}{
		{"relay wins", "relay", "1.2.3.4", "host", "5.6.7.8", PathRelayed},
		{"tailscale range", "host", "100.64.1.2", "host", "192.168.1.1", PathTailscale},
		{"lan same /24", "host", "192.168.1.5", "host", "192.168.1.200", PathLANDirect},
		{"srflx direct", "srflx", "203.0.113.1", "host", "198.51.100.2", PathWebRTCDirect},
		{"default direct", "prflx", "203.0.113.1", "prflx", "198.51.100.2", PathWebRTCDirect},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ClassifyPath(c.lType, c.lAddr, c.rType, c.rAddr)
			if got != c.want {
				t.Errorf("ClassifyPath(%s) = %v, want %v", c.name, got, c.want)
			}
		})
	}
}

func TestFilterTailscaleCandidates(t *testing.T) {
	sdp := "v=0\r\n" +
		"a=candidate:1 1 UDP 2130706431 100.64.1.2 54321 typ host\r\n" +
		"a=candidate:2 1 UDP 2130706431 192.168.1.5 54322 typ host\r\n"
	out := filterTailscaleCandidates(sdp)
	if contains := hasSubstring(out, "100.64.1.2"); contains {
		t.Error("expected tailscale candidate to be filtered")
	}
	if !hasSubstring(out, "192.168.1.5") {
		t.Error("expected non-tailscale candidate to survive")
	}
}

func hasSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
