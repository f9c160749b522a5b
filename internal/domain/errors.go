package domain

import "errors"

var (
	ErrDuplicateJoin     = errors.New("participant already joined")
	ErrUnknownRecipient  = errors.New("unknown recipient")
	ErrUnknownPeer       = errors.New("unknown peer")
	ErrMediaUnavailable  = errors.New("no local media stream")
	ErrNegotiationFailed = errors.New("transport negotiation failed")

	// ErrLinkClosed is returned by a negotiation step whose link was torn down
	// while the step was in flight.
	ErrLinkClosed = errors.New("peer link closed")
)
