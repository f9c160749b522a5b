package core

import (
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
)

type sentEnvelope struct {
	to  domain.ParticipantID
	env protocol.Envelope
}

// recordingOutbox keeps everything the registry emits, in order.
type recordingOutbox struct {
	broadcasts []protocol.Envelope
	sends      []sentEnvelope
}

func (o *recordingOutbox) Broadcast(env protocol.Envelope) {
	o.broadcasts = append(o.broadcasts, env)
}

func (o *recordingOutbox) Send(to domain.ParticipantID, env protocol.Envelope) bool {
	o.sends = append(o.sends, sentEnvelope{to: to, env: env})
	return true
}

func (o *recordingOutbox) reset() {
	o.broadcasts = nil
	o.sends = nil
}

func (o *recordingOutbox) countBroadcasts(event string) int {
	n := 0
	for _, env := range o.broadcasts {
		if env.Event == event {
			n++
		}
	}
	return n
}

// sentTo returns the senders of every event delivered to `to`.
func (o *recordingOutbox) sentTo(to domain.ParticipantID, event string) []domain.ParticipantID {
	var from []domain.ParticipantID
	for _, s := range o.sends {
		if s.to != to || s.env.Event != event {
			continue
		}
		var sig protocol.Signal
		if err := s.env.Decode(&sig); err == nil {
			from = append(from, sig.From)
		}
	}
	return from
}
