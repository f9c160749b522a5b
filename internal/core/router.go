package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrUnsupportedEvent = errors.New("unsupported signaling event")

// Router relays family messages between registered participants.
// It keeps no state of its own and never trusts a client supplied sender.
type Router struct {
	registry *Registry
	out      Outbox
}

func NewRouter(registry *Registry, out Outbox) *Router {
	return &Router{registry: registry, out: out}
}

func (r *Router) Route(sender domain.ParticipantID, event string, sig protocol.Signal) error {
	ns, kind, ok := protocol.ParseEvent(event)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedEvent, event)
	}
	if err := sig.Validate(kind); err != nil {
		return err
	}
	to := sig.To
	if !r.registry.Has(to) {
		return fmt.Errorf("%s to %q: %w", event, to, domain.ErrUnknownRecipient)
	}

	sig.From = sender
	sig.To = ""
	env, err := protocol.NewEnvelope(ns.Event(kind), sig)
	if err != nil {
		return err
	}
	if !r.out.Send(to, env) {
		log.Debug().Str("module", "core.router").Str("event", event).Str("to", string(to)).Msg("relay dropped")
		return nil
	}
	log.Debug().Str("module", "core.router").Str("event", event).Str("from", string(sender)).Str("to", string(to)).Msg("relayed")
	return nil
}
