package lan

import "time"

// candidate is one mDNS-discovered advertiser for a given deviceID.
type candidate struct {
	Host          string
	Port          uint16
	RTT           time.Duration
	FailCount     int
	LastCheckTime time.Time
	Stale         time.Duration // time since LastCheckTime at scoring time
}

// scoreInterval is the nominal health-check cadence used to judge
// staleness.
const scoreInterval = 5 * time.Second

// pickBestCandidate reuses a pickBestCandidateByEndpoint-style
// RTT/failure-penalty formula (internal/lb.go) to break ties when mDNS
// turns up more than one advertiser for the same deviceID
// "RTT-aware LAN candidate scoring", a supplemented feature — mDNS itself
// only ever reports Available/Unavailable.
func pickBestCandidate(cands []candidate) (candidate, bool) {
	var best candidate
	found := false
	bestScore := 1e18

	for _, c := range cands {
		base := float64(c.RTT.Milliseconds())
		if base <= 0 {
			base = 1000
		}

		stalePenalty := 0.0
		if c.Stale > 2*scoreInterval {
			stalePenalty = float64(c.Stale.Milliseconds()) * 0.2
		}

		failPenalty := float64(c.FailCount) * 500

		score := base + stalePenalty + failPenalty
		if score < bestScore {
			bestScore = score
			best = c
			found = true
		}
	}
	return best, found
}
