package app

import (
	"fmt"

	"github.com/dkeye/Broadcast/internal/domain"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	Disconnect
)

func (a BackpressureAction) String() string {
	switch a {
	case DropFrame:
		return "drop"
	case Disconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("BackpressureAction(%d)", int(a))
	}
}

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackpressure(to domain.ParticipantID, event string) BackpressureAction
}

// DropPolicy loses the frame and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackpressure(domain.ParticipantID, string) BackpressureAction {
	return DropFrame
}

// DisconnectPolicy closes a connection that cannot keep up. Its socket
// teardown then leaves the session like any other disconnect.
type DisconnectPolicy struct{}

func (DisconnectPolicy) OnBackpressure(domain.ParticipantID, string) BackpressureAction {
	return Disconnect
}

// PolicyFor maps the slow_consumer config value onto a Policy.
func PolicyFor(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "disconnect":
		return DisconnectPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown slow consumer policy %q", name)
	}
}
