package gateway

import (
	"errors"

	"github.com/sonroyaalmerol/calliope/internal/rest"
)

var (
	// ErrProtocolViolation marks a frame the client cannot make sense of.
	// Single frames are dropped; a bad first frame ends the attempt.
	ErrProtocolViolation = errors.New("gateway: protocol violation")
	ErrClosed            = errors.New("gateway: session closed")

	// ErrTransport is shared with the REST client so one IsRetryable check
	// covers both.
	ErrTransport = rest.ErrTransport
)
