// Package client reacts to relay events on behalf of one participant and
// drives its main and lobby peer managers.
package client

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/media"
	"github.com/dkeye/Broadcast/internal/peer"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Targets chooses where remote media is rendered.
type Targets interface {
	Main() media.RenderTarget
	Lobby(remote domain.ParticipantID) media.RenderTarget
}

type Controller struct {
	emitter peer.Emitter
	main    *peer.Manager
	lobby   *peer.Manager
	targets Targets
	logger  zerolog.Logger

	mu           sync.Mutex
	selfID       domain.ParticipantID
	presenterID  domain.ParticipantID
	participants map[domain.ParticipantID]domain.Participant
	joined       bool
}

func NewController(emitter peer.Emitter, factory peer.Factory, targets Targets) *Controller {
	c := &Controller{
		emitter:      emitter,
		main:         peer.NewManager(protocol.Main, emitter, factory),
		lobby:        peer.NewManager(protocol.Lobby, emitter, factory),
		targets:      targets,
		logger:       log.With().Str("module", "client").Logger(),
		participants: make(map[domain.ParticipantID]domain.Participant),
	}
	for _, m := range []*peer.Manager{c.main, c.lobby} {
		ns := m.Namespace()
		m.OnFailure(func(remote domain.ParticipantID, err error) {
			c.logger.Warn().Err(err).Str("ns", string(ns)).Str("remote", string(remote)).Msg("link failed")
		})
	}
	return c
}

func (c *Controller) Main() *peer.Manager  { return c.main }
func (c *Controller) Lobby() *peer.Manager { return c.lobby }

// Join announces us to the relay. A presenter must bring a stream.
func (c *Controller) Join(isPresenter bool, label string, stream media.Stream) error {
	if isPresenter && stream == nil {
		return fmt.Errorf("join as presenter: %w", domain.ErrMediaUnavailable)
	}
	if isPresenter {
		c.main.SetLocalStream(stream)
	}
	if stream != nil {
		c.lobby.SetLocalStream(stream)
	}
	env, err := protocol.NewEnvelope(protocol.EventJoin, protocol.JoinRequest{IsPresenter: isPresenter, Name: label})
	if err != nil {
		return err
	}
	return c.emitter.Emit(env)
}

// Leave announces our departure and closes every link.
func (c *Controller) Leave() error {
	c.mu.Lock()
	c.joined = false
	c.mu.Unlock()
	c.closeAll()
	env, err := protocol.NewEnvelope(protocol.EventLeave, nil)
	if err != nil {
		return err
	}
	return c.emitter.Emit(env)
}

// Run handles incoming envelopes until the channel closes or ctx ends.
func (c *Controller) Run(ctx context.Context, incoming <-chan protocol.Envelope) error {
	defer c.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-incoming:
			if !ok {
				c.logger.Info().Msg("signaling channel closed")
				return nil
			}
			c.Handle(ctx, env)
		}
	}
}

// Handle applies one relay event. Errors are logged, never returned.
func (c *Controller) Handle(ctx context.Context, env protocol.Envelope) {
	var err error
	switch env.Event {
	case protocol.EventWelcome:
		err = c.onWelcome(env)
	case protocol.EventPresenter:
		err = c.onPresenter(env)
	case protocol.EventAddParticipant:
		err = c.onAddParticipant(env)
	case protocol.EventRemoveParticipant:
		err = c.onRemoveParticipant(env)
	default:
		err = c.onSignal(ctx, env)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("event", env.Event).Msg("event not handled")
	}
}

func (c *Controller) onWelcome(env protocol.Envelope) error {
	var w protocol.Welcome
	if err := env.Decode(&w); err != nil {
		return err
	}
	c.mu.Lock()
	c.selfID = w.SocketID
	c.presenterID = w.PresenterID
	for _, e := range w.Participants {
		if e.Participant != nil {
			p := *e.Participant
			p.ID = e.SocketID
			c.participants[e.SocketID] = p
		}
	}
	c.mu.Unlock()
	c.main.SetLocalID(w.SocketID)
	c.lobby.SetLocalID(w.SocketID)
	c.logger.Info().Str("sid", string(w.SocketID)).Str("presenter", string(w.PresenterID)).Int("participants", len(w.Participants)).Msg("welcome")
	return nil
}

func (c *Controller) onPresenter(env protocol.Envelope) error {
	var p protocol.PresenterChanged
	if len(env.Data) > 0 {
		if err := env.Decode(&p); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.presenterID = p.PresenterID
	c.mu.Unlock()
	return nil
}

func (c *Controller) onAddParticipant(env protocol.Envelope) error {
	var e protocol.ParticipantEntry
	if err := env.Decode(&e); err != nil {
		return err
	}
	if e.Participant == nil {
		return fmt.Errorf("add-participant %s without participant", e.SocketID)
	}
	id := e.SocketID
	p := *e.Participant
	p.ID = id

	c.mu.Lock()
	c.participants[id] = p
	self := id == c.selfID
	if self {
		c.joined = true
	}
	joined := c.joined
	if p.IsPresenter {
		c.presenterID = id
		// a replaced presenter is no longer presenting
		for other, q := range c.participants {
			if other != id && q.IsPresenter {
				q.IsPresenter = false
				c.participants[other] = q
			}
		}
	}
	hasPresenter := c.presenterID != ""
	var lobbyPeers []domain.ParticipantID
	if self && !hasPresenter {
		for other, q := range c.participants {
			if other != id && !q.IsPresenter {
				lobbyPeers = append(lobbyPeers, other)
			}
		}
	}
	c.mu.Unlock()

	switch {
	case p.IsPresenter:
		c.lobby.CloseAll()
		if !self && joined {
			return c.main.RequestOffer(id)
		}
	case self:
		sort.Slice(lobbyPeers, func(i, j int) bool { return lobbyPeers[i] < lobbyPeers[j] })
		for _, other := range lobbyPeers {
			if err := c.lobby.RequestOffer(other); err != nil {
				return err
			}
		}
	case joined && !hasPresenter:
		return c.lobby.RequestOffer(id)
	}
	return nil
}

func (c *Controller) onRemoveParticipant(env protocol.Envelope) error {
	var e protocol.ParticipantEntry
	if err := env.Decode(&e); err != nil {
		return err
	}
	id := e.SocketID
	c.mu.Lock()
	delete(c.participants, id)
	if c.presenterID == id {
		c.presenterID = ""
	}
	self := id == c.selfID
	if self {
		c.joined = false
	}
	c.mu.Unlock()

	if self {
		c.closeAll()
		return nil
	}
	c.main.OnDisconnect(id)
	c.lobby.OnDisconnect(id)
	return nil
}

func (c *Controller) onSignal(ctx context.Context, env protocol.Envelope) error {
	ns, kind, ok := protocol.ParseEvent(env.Event)
	if !ok {
		return fmt.Errorf("unknown event %q", env.Event)
	}
	var sig protocol.Signal
	if err := env.Decode(&sig); err != nil {
		return err
	}
	if err := sig.Validate(kind); err != nil {
		return err
	}
	m := c.main
	if ns == protocol.Lobby {
		m = c.lobby
	}
	from := sig.From

	switch kind {
	case protocol.KindRequestOffer:
		var target media.RenderTarget
		if ns == protocol.Lobby {
			target = c.targets.Lobby(from)
		}
		return m.OnRequestOffer(ctx, from, target)
	case protocol.KindOffer:
		offer, err := sig.Offer.ToPion()
		if err != nil {
			return err
		}
		target := c.targets.Main()
		if ns == protocol.Lobby {
			target = c.targets.Lobby(from)
		}
		return m.OnOffer(ctx, from, offer, target)
	case protocol.KindAnswer:
		answer, err := sig.Answer.ToPion()
		if err != nil {
			return err
		}
		return m.OnAnswer(from, answer)
	case protocol.KindCandidate:
		return m.OnCandidate(from, sig.Candidate.ToPion())
	case protocol.KindDisconnect:
		m.OnDisconnect(from)
	}
	return nil
}

func (c *Controller) closeAll() {
	c.main.CloseAll()
	c.lobby.CloseAll()
}

func (c *Controller) Self() domain.ParticipantID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

func (c *Controller) Presenter() domain.ParticipantID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presenterID
}

func (c *Controller) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// Participants returns the known participants ordered by id.
func (c *Controller) Participants() []domain.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := lo.Values(c.participants)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
