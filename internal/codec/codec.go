// Package codec implements the authenticated-encryption framing described
// It follows a hand-rolled AEAD cipher
// (internal/shadowsocks/cipher.go's newChaCha20Poly1305 path) but commits to
// a single cipher suite and a counter-based nonce instead of
// per-call random nonce, since a Codec here lives for exactly one
// connection attempt and a counter makes the uniqueness invariant
// structural rather than probabilistic (see DESIGN.md).
package codec

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required AuthKey length.
const KeySize = 32

// MaxPlaintextSize bounds both Encode input and Decode output.
const MaxPlaintextSize = 16 * 1024 * 1024

// Codec owns one AEAD cipher state keyed by a single AuthKey. Encode and
// Decode may be called concurrently; the nonce counter is serialized
// internally.
type Codec struct {
	mu     sync.Mutex
	aead   interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
		Overhead() int
	}
	key     [KeySize]byte
	nonceHi [4]byte // random 32-bit salt, fixed for the Codec's lifetime
	counter uint64  // low 64 bits of the 96-bit nonce, incremented per Encode
	closed  bool
}

// New derives a ChaCha20-Poly1305 AEAD from key (copied defensively so the
// caller's buffer is untouched) and seeds the nonce counter.
func New(key [KeySize]byte) (*Codec, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: new cipher: %w", err)
	}
	c := &Codec{aead: aead, key: key}
	if _, err := io.ReadFull(rand.Reader, c.nonceHi[:]); err != nil {
		return nil, fmt.Errorf("codec: seed nonce: %w", err)
	}
	return c, nil
}

func (c *Codec) nextNonce() []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize) // 12 bytes
	copy(nonce, c.nonceHi[:])
	binary.BigEndian.PutUint64(nonce[4:], c.counter)
	c.counter++
	return nonce
}

// Encode authenticates and encrypts plaintext, prefixing the nonce so
// Decode can recover it. Returns ErrTooLarge-equivalent for oversize input.
func (c *Codec) Encode(plaintext []byte) ([]byte, error) {
	if len(plaintext) > MaxPlaintextSize {
		return nil, fmt.Errorf("codec: plaintext %d bytes exceeds %d limit", len(plaintext), MaxPlaintextSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("codec: closed")
	}

	nonce := c.nextNonce()
	out := make([]byte, 0, len(nonce)+len(plaintext)+c.aead.Overhead())
	out = append(out, nonce...)
	out = c.aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Decode authenticates and decrypts ciphertext produced by Encode. Any
// failure (short input, bad tag) is reported as a single opaque error; the
// caller (connmanager) maps this to xerrors.ErrCrypto and drops the frame
// without mutating any consumer-visible state.
func (c *Codec) Decode(ciphertext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("codec: closed")
	}

	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("codec: ciphertext too short")
	}
	nonce := ciphertext[:nonceSize]
	body := ciphertext[nonceSize:]
	if len(body)-c.aead.Overhead() > MaxPlaintextSize {
		return nil, fmt.Errorf("codec: ciphertext exceeds plaintext limit")
	}

	plaintext, err := c.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: authentication failed")
	}
	return plaintext, nil
}

// Close zeroes the key buffer in place. Idempotent.
func (c *Codec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.key {
		c.key[i] = 0
	}
	c.closed = true
	return nil
}

// KeyIsZero reports whether the key buffer has been zeroed, used by tests
// to assert the close invariant.
func (c *Codec) KeyIsZero() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.key {
		if b != 0 {
			return false
		}
	}
	return true
}
