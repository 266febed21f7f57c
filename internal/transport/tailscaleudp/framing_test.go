package tailscaleudp

import (
	"encoding/binary"
	"testing"
)

func TestMagicConstant(t *testing.T) {
	// handshake magic is 0x52415354 ("RAST").
	if magic != 0x52415354 {
		t.Fatalf("magic = %#x, want 0x52415354", magic)
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], magic)
	if string(b[:]) != "RAST" {
		t.Fatalf("magic bytes = %q, want RAST", b[:])
	}
}

func TestMaxUDPPayloadBound(t *testing.T) {
	if maxUDPPayload != 65507-4 {
		t.Fatalf("maxUDPPayload = %d, want %d", maxUDPPayload, 65507-4)
	}
}
