package lanws

import "testing"

func TestComputeProofDeterministic(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	p1 := computeProof(key, "device-1")
	p2 := computeProof(key, "device-1")
	if p1 != p2 {
		t.Fatal("computeProof must be deterministic for the same inputs")
	}

	p3 := computeProof(key, "device-2")
	if p1 == p3 {
		t.Fatal("computeProof must differ across device IDs")
	}
}
