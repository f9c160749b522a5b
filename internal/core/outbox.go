//go:generate go run go.uber.org/mock/mockgen -source=outbox.go -destination=../mocks/mock_outbox.go -package=mocks
package core

import (
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
)

// Frame is a raw encoded envelope.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() domain.ParticipantID
	TrySend(Frame) error
	Close()
}

// Outbox is how the registry and router reach connections.
// Delivery is fire-and-forget: at most once, no acknowledgment.
type Outbox interface {
	// Broadcast delivers env to every live connection, joined or not.
	Broadcast(env protocol.Envelope)
	// Send delivers env to one connection and reports whether it was queued.
	Send(to domain.ParticipantID, env protocol.Envelope) bool
}
