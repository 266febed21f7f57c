package codec

import (
	"bytes"
	"testing"
)

func mustCodec(t *testing.T) *Codec {
	t.Helper()
	var key [KeySize]byte
	for i := range key {
		key[i] = byte(i)
	}
	c, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := mustCodec(t)
	plaintexts := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xAB}, 4096),
	}
	for _, p := range plaintexts {
		ct, err := c.Encode(p)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		pt, err := c.Decode(ct)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !bytes.Equal(pt, p) {
			t.Fatalf("round trip mismatch: got %v want %v", pt, p)
		}
	}
}

func TestEncodeUsesUniqueNonces(t *testing.T) {
	c := mustCodec(t)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ct, err := c.Encode([]byte("x"))
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		nonce := string(ct[:12])
		if seen[nonce] {
			t.Fatalf("nonce reuse detected on iteration %d", i)
		}
		seen[nonce] = true
	}
}

func TestDecodeRejectsTamperedCiphertext(t *testing.T) {
	c := mustCodec(t)
	ct, err := c.Encode([]byte("payload"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	tampered := append([]byte(nil), ct...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := c.Decode(tampered); err == nil {
		t.Fatal("expected Decode to reject tampered ciphertext")
	}
}

func TestEncodeRejectsOversizePlaintext(t *testing.T) {
	c := mustCodec(t)
	big := make([]byte, MaxPlaintextSize+1)
	if _, err := c.Encode(big); err == nil {
		t.Fatal("expected Encode to reject plaintext over MaxPlaintextSize")
	}
}

func TestEncodeAcceptsExactlyMaxSize(t *testing.T) {
	c := mustCodec(t)
	exact := make([]byte, MaxPlaintextSize)
	if _, err := c.Encode(exact); err != nil {
		t.Fatalf("Encode at exactly MaxPlaintextSize should succeed: %v", err)
	}
}

func TestCloseZeroesKey(t *testing.T) {
	c := mustCodec(t)
	if c.KeyIsZero() {
		t.Fatal("key should not start zeroed")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c.KeyIsZero() {
		t.Fatal("key must be zero after Close")
	}
}

func TestCloseIdempotent(t *testing.T) {
	c := mustCodec(t)
	for i := 0; i < 3; i++ {
		if err := c.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i, err)
		}
	}
}

func TestEncodeAfterCloseFails(t *testing.T) {
	c := mustCodec(t)
	_ = c.Close()
	if _, err := c.Encode([]byte("x")); err == nil {
		t.Fatal("expected Encode after Close to fail")
	}
}

func TestDeriveAuthKeyDeterministic(t *testing.T) {
	var secret [32]byte
	for i := range secret {
		secret[i] = byte(i * 3)
	}
	k1, err := DeriveAuthKey(secret, "device-1")
	if err != nil {
		t.Fatalf("DeriveAuthKey: %v", err)
	}
	k2, err := DeriveAuthKey(secret, "device-1")
	if err != nil {
		t.Fatalf("DeriveAuthKey: %v", err)
	}
	if k1 != k2 {
		t.Fatal("DeriveAuthKey must be deterministic for the same inputs")
	}

	k3, err := DeriveAuthKey(secret, "device-2")
	if err != nil {
		t.Fatalf("DeriveAuthKey: %v", err)
	}
	if k1 == k3 {
		t.Fatal("DeriveAuthKey must differ across device IDs")
	}
}
