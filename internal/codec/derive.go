package codec

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveAuthKey derives a per-session AuthKey from a paired device's
// long-term masterSecret using HKDF-SHA256, the standard construction for
// this; golang.org/x/crypto (already a direct dependency for
// chacha20poly1305) provides it.
func DeriveAuthKey(masterSecret [32]byte, deviceID string) ([KeySize]byte, error) {
	var out [KeySize]byte
	r := hkdf.New(sha256.New, masterSecret[:], []byte(deviceID), []byte(authKeyInfo))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return out, err
	}
	return out, nil
}

const authKeyInfo = "connectcore/authkey/v1"
