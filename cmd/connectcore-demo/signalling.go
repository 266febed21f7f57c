package main

import (
	"context"
	"errors"

	"github.com/relayshell/connectcore/internal/signalling"
)

// noopSignalling is a demo-only signalling.Channel stand-in: the wire
// format for the real ntfy/HTTP signalling relay is out of this module's
// scope, so this always reports failure, which the orchestrator already
// treats as "proceed without this information."
type noopSignalling struct{}

func (noopSignalling) ExchangeCapabilities(ctx context.Context, ours signalling.Capabilities, onProgress signalling.ProgressFunc) (*signalling.Capabilities, error) {
	return nil, errors.New("demo: signalling channel not wired")
}

func (noopSignalling) SendOffer(ctx context.Context, sdp string, onProgress signalling.ProgressFunc) (*string, error) {
	return nil, errors.New("demo: signalling channel not wired")
}

func (noopSignalling) Close() error { return nil }
