package core

import (
	"fmt"
	"sort"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Registry is the table of joined participants and the presenter election.
// It is not safe for concurrent use; the hub loop is its only caller.
type Registry struct {
	out          Outbox
	participants map[domain.ParticipantID]*domain.Participant
	presenterID  domain.ParticipantID
}

func NewRegistry(out Outbox) *Registry {
	return &Registry{
		out:          out,
		participants: make(map[domain.ParticipantID]*domain.Participant),
	}
}

// Join registers id. A presenter claim replaces any current presenter:
// last presenter wins and the claim never fails.
func (r *Registry) Join(id domain.ParticipantID, label string, isPresenter bool) (*domain.Participant, error) {
	if _, ok := r.participants[id]; ok {
		return nil, fmt.Errorf("join %s: %w", id, domain.ErrDuplicateJoin)
	}
	p := domain.NewParticipant(id, label, isPresenter)
	r.participants[id] = p
	log.Info().Str("module", "core.registry").Str("sid", string(id)).Bool("presenter", isPresenter).Msg("participant joined")

	previous := r.presenterID
	if isPresenter {
		if old, ok := r.participants[previous]; ok {
			old.IsPresenter = false
			log.Warn().Str("module", "core.registry").Str("sid", string(previous)).Str("by", string(id)).Msg("presenter replaced")
		}
		r.presenterID = id
	}

	r.broadcast(protocol.EventAddParticipant, protocol.ParticipantEntry{SocketID: id, Participant: lo.ToPtr(*p)})

	if isPresenter {
		r.broadcast(protocol.EventPresenter, protocol.PresenterChanged{PresenterID: id})
		if previous != "" {
			r.teardownMain(previous)
		}
		return p, nil
	}
	if r.presenterID != "" {
		r.send(r.presenterID, protocol.Main.Event(protocol.KindRequestOffer), protocol.Signal{From: id})
	}
	return p, nil
}

// Leave removes id. It reports false, and emits nothing, when id is not joined.
func (r *Registry) Leave(id domain.ParticipantID) bool {
	if _, ok := r.participants[id]; !ok {
		return false
	}
	delete(r.participants, id)
	log.Info().Str("module", "core.registry").Str("sid", string(id)).Msg("participant left")

	wasPresenter := r.presenterID == id
	if wasPresenter {
		r.presenterID = ""
		r.broadcast(protocol.EventPresenter, protocol.PresenterChanged{})
	}
	r.broadcast(protocol.EventRemoveParticipant, protocol.ParticipantEntry{SocketID: id})

	disconnect := protocol.Main.Event(protocol.KindDisconnect)
	switch {
	case wasPresenter:
		r.teardownMain(id)
	case r.presenterID != "":
		r.send(r.presenterID, disconnect, protocol.Signal{From: id})
		r.send(id, disconnect, protocol.Signal{From: r.presenterID})
	}

	lobbyDisconnect := protocol.Lobby.Event(protocol.KindDisconnect)
	for other := range r.participants {
		r.send(other, lobbyDisconnect, protocol.Signal{From: id})
		r.send(id, lobbyDisconnect, protocol.Signal{From: other})
	}
	return true
}

// teardownMain tells every participant that its main link with presenter is
// gone, and tells presenter the same about each of them.
func (r *Registry) teardownMain(presenter domain.ParticipantID) {
	disconnect := protocol.Main.Event(protocol.KindDisconnect)
	for other := range r.participants {
		if other == presenter {
			continue
		}
		r.send(other, disconnect, protocol.Signal{From: presenter})
		r.send(presenter, disconnect, protocol.Signal{From: other})
	}
}

func (r *Registry) CurrentPresenter() (domain.ParticipantID, bool) {
	return r.presenterID, r.presenterID != ""
}

func (r *Registry) Has(id domain.ParticipantID) bool {
	_, ok := r.participants[id]
	return ok
}

func (r *Registry) Len() int { return len(r.participants) }

// List returns copies ordered by id.
func (r *Registry) List() []domain.Participant {
	out := lo.MapToSlice(r.participants, func(id domain.ParticipantID, p *domain.Participant) domain.Participant {
		return *p
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Entries is List shaped for the wire.
func (r *Registry) Entries() []protocol.ParticipantEntry {
	return lo.Map(r.List(), func(p domain.Participant, _ int) protocol.ParticipantEntry {
		return protocol.ParticipantEntry{SocketID: p.ID, Participant: lo.ToPtr(p)}
	})
}

func (r *Registry) broadcast(event string, v any) {
	env, err := protocol.NewEnvelope(event, v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.registry").Str("event", event).Msg("encode broadcast")
		return
	}
	r.out.Broadcast(env)
}

func (r *Registry) send(to domain.ParticipantID, event string, v any) {
	env, err := protocol.NewEnvelope(event, v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.registry").Str("event", event).Msg("encode send")
		return
	}
	if !r.out.Send(to, env) {
		log.Debug().Str("module", "core.registry").Str("event", event).Str("to", string(to)).Msg("notice not delivered")
	}
}
