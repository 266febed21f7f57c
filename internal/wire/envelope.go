// Package wire defines the plaintext envelope exchanged once a Frame has
// been decrypted by the codec. Envelopes are encoded with CBOR
// (github.com/fxamacker/cbor/v2), the same library mash-go uses for its
// wire records, so that field addition stays backward compatible without a
// hand-rolled TLV scheme.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind tags which variant an Envelope carries. Unlike a sealed class
// hierarchy, Go encodes this as an explicit tag plus one populated field;
// RouteMessage treats an Envelope with no populated field as "no variant
// set".
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConnectionReady
	KindPing
	KindPong
	KindErrorMsg
	KindSessionEvent
	KindTerminalEvent
	KindInitialState
	KindClipboard
	KindSessionCommand
	KindTerminalCommand
)

// MaxPlaintextSize is the maximum size of a decrypted envelope's payload,
// shared with the codec's frame-size limit (16 MiB).
const MaxPlaintextSize = 16 * 1024 * 1024

// Envelope is the tagged union carried by every Frame. Only the field
// matching Kind is meaningful; the others are zero/nil.
type Envelope struct {
	Kind Kind `cbor:"1,keyasint"`

	Ping  *PingPayload  `cbor:"2,keyasint,omitempty"`
	Pong  *PingPayload  `cbor:"3,keyasint,omitempty"`
	Error *ErrorPayload `cbor:"4,keyasint,omitempty"`

	SessionEvent  *SessionEventPayload  `cbor:"5,keyasint,omitempty"`
	TerminalEvent *TerminalEventPayload `cbor:"6,keyasint,omitempty"`
	InitialState  *InitialStatePayload  `cbor:"7,keyasint,omitempty"`
	Clipboard     *ClipboardPayload     `cbor:"8,keyasint,omitempty"`

	SessionCommand  *SessionCommandPayload  `cbor:"9,keyasint,omitempty"`
	TerminalCommand *TerminalCommandPayload `cbor:"10,keyasint,omitempty"`
}

type PingPayload struct {
	TimestampUnixMilli int64 `cbor:"1,keyasint"`
}

type ErrorPayload struct {
	Code    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

// SessionEventPayload mirrors the external session/agent repository's wire
// variants. The core never interprets the contents; it only checks that at
// least one variant is populated before publishing.
type SessionEventPayload struct {
	Attached *SessionAttached `cbor:"1,keyasint,omitempty"`
	Detached *SessionDetached `cbor:"2,keyasint,omitempty"`
	Output   *SessionOutput   `cbor:"3,keyasint,omitempty"`
}

type SessionAttached struct {
	SessionID string `cbor:"1,keyasint"`
}
type SessionDetached struct {
	SessionID string `cbor:"1,keyasint"`
	Reason    string `cbor:"2,keyasint"`
}
type SessionOutput struct {
	SessionID string `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint"`
}

// IsEmpty reports whether none of SessionEventPayload's variants are set.
func (p *SessionEventPayload) IsEmpty() bool {
	return p == nil || (p.Attached == nil && p.Detached == nil && p.Output == nil)
}

type TerminalEventPayload struct {
	Attached *TerminalAttached `cbor:"1,keyasint,omitempty"`
	Detached *TerminalDetached `cbor:"2,keyasint,omitempty"`
	Resized  *TerminalResized  `cbor:"3,keyasint,omitempty"`
	Output   *TerminalOutput   `cbor:"4,keyasint,omitempty"`
}

type TerminalAttached struct {
	TerminalID string `cbor:"1,keyasint"`
}
type TerminalDetached struct {
	TerminalID string `cbor:"1,keyasint"`
}
type TerminalResized struct {
	TerminalID string `cbor:"1,keyasint"`
	Cols, Rows uint16 `cbor:"2,keyasint"`
}
type TerminalOutput struct {
	TerminalID string `cbor:"1,keyasint"`
	Data       []byte `cbor:"2,keyasint"`
}

// IsEmpty reports whether none of TerminalEventPayload's variants are set.
func (p *TerminalEventPayload) IsEmpty() bool {
	return p == nil || (p.Attached == nil && p.Detached == nil && p.Resized == nil && p.Output == nil)
}

// InitialStatePayload is an opaque snapshot blob; the core does not parse
// it. The empty-wrapper guard applied to session
// and terminal events is NOT applied here — an Envelope tagged
// KindInitialState always publishes, even with a zero-length Snapshot.
type InitialStatePayload struct {
	Snapshot []byte `cbor:"1,keyasint"`
}

// ClipboardPayload is reserved: routed but currently dropped.
type ClipboardPayload struct {
	Data []byte `cbor:"1,keyasint"`
}

type SessionCommandPayload struct {
	Attach *SessionAttachCommand `cbor:"1,keyasint,omitempty"`
	Detach *SessionDetachCommand `cbor:"2,keyasint,omitempty"`
	Input  *SessionInputCommand  `cbor:"3,keyasint,omitempty"`
}

type SessionAttachCommand struct {
	SessionID string `cbor:"1,keyasint"`
}
type SessionDetachCommand struct {
	SessionID string `cbor:"1,keyasint"`
}
type SessionInputCommand struct {
	SessionID string `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint"`
}

type TerminalCommandPayload struct {
	Attach *TerminalAttachCommand `cbor:"1,keyasint,omitempty"`
	Detach *TerminalDetachCommand `cbor:"2,keyasint,omitempty"`
	Resize *TerminalResizeCommand `cbor:"3,keyasint,omitempty"`
	Input  *TerminalInputCommand  `cbor:"4,keyasint,omitempty"`
}

type TerminalAttachCommand struct {
	TerminalID string `cbor:"1,keyasint"`
}
type TerminalDetachCommand struct {
	TerminalID string `cbor:"1,keyasint"`
}
type TerminalResizeCommand struct {
	TerminalID string `cbor:"1,keyasint"`
	Cols, Rows uint16 `cbor:"2,keyasint"`
}
type TerminalInputCommand struct {
	TerminalID string `cbor:"1,keyasint"`
	Data       []byte `cbor:"2,keyasint"`
}

// Marshal encodes the envelope as CBOR plaintext. Returns ErrTooLarge-style
// conditions to the caller as a plain error; callers in connmanager compare
// against MaxPlaintextSize before calling Marshal.
func Marshal(e *Envelope) ([]byte, error) {
	b, err := cbor.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal: %w", err)
	}
	if len(b) > MaxPlaintextSize {
		return nil, fmt.Errorf("wire: encoded envelope exceeds %d bytes", MaxPlaintextSize)
	}
	return b, nil
}

// Unmarshal decodes plaintext into an Envelope. Callers treat any error as
// a ParseError (log and drop, connection stays alive).
func Unmarshal(plaintext []byte) (*Envelope, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("wire: empty payload")
	}
	if len(plaintext) > MaxPlaintextSize {
		return nil, fmt.Errorf("wire: payload exceeds %d bytes", MaxPlaintextSize)
	}
	var e Envelope
	if err := cbor.Unmarshal(plaintext, &e); err != nil {
		return nil, fmt.Errorf("wire: unmarshal: %w", err)
	}
	return &e, nil
}
