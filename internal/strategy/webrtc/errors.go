package webrtc

import "errors"

var strategyErrNoSignalling = errors.New("webrtc connect: no signalling channel supplied")
