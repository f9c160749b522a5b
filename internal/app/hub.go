package app

import (
	"context"
	"errors"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/rs/zerolog/log"
)

type registration struct {
	conn  core.SignalConnection
	label string
}

type inboundFrame struct {
	from  domain.ParticipantID
	frame core.Frame
}

// Snapshot is a point-in-time view of the registry.
type Snapshot struct {
	PresenterID  domain.ParticipantID `json:"presenterId"`
	Participants []protocol.ParticipantEntry `json:"participants"`
}

// Hub owns the connection table and the registry. Every mutation happens on
// the Run goroutine; adapters talk to it through channels.
type Hub struct {
	register   chan registration
	unregister chan domain.ParticipantID
	inbound    chan inboundFrame
	calls      chan func()
	done       chan struct{}

	conns    map[domain.ParticipantID]core.SignalConnection
	labels   map[domain.ParticipantID]string
	registry *core.Registry
	router   *core.Router
	policy   Policy
}

type HubOption func(*Hub)

// WithPolicy sets how the hub treats connections with a full send buffer.
func WithPolicy(p Policy) HubOption {
	return func(h *Hub) { h.policy = p }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		register:   make(chan registration),
		unregister: make(chan domain.ParticipantID),
		inbound:    make(chan inboundFrame, 256),
		calls:      make(chan func()),
		done:       make(chan struct{}),
		conns:      make(map[domain.ParticipantID]core.SignalConnection),
		labels:     make(map[domain.ParticipantID]string),
		policy:     DropPolicy{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.registry = core.NewRegistry(h)
	h.router = core.NewRouter(h.registry, h)
	return h
}

// Run serves the hub until ctx ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Str("module", "app.hub").Msg("hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, conn := range h.conns {
				conn.Close()
				delete(h.conns, id)
			}
			log.Info().Str("module", "app.hub").Msg("hub stopped")
			return
		case reg := <-h.register:
			h.onRegister(reg)
		case id := <-h.unregister:
			h.onUnregister(id)
		case in := <-h.inbound:
			h.onFrame(in.from, in.frame)
		case fn := <-h.calls:
			fn()
		}
	}
}

// Register adds conn to the table. label is used when the join carries no name.
func (h *Hub) Register(conn core.SignalConnection, label string) {
	select {
	case h.register <- registration{conn: conn, label: label}:
	case <-h.done:
		conn.Close()
	}
}

// Unregister removes the connection, leaving the session if it had joined.
func (h *Hub) Unregister(id domain.ParticipantID) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// Deliver queues a frame read from connection id.
func (h *Hub) Deliver(id domain.ParticipantID, frame core.Frame) {
	select {
	case h.inbound <- inboundFrame{from: id, frame: frame}:
	case <-h.done:
	}
}

// Snapshot reads the registry on the hub goroutine.
func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	result := make(chan Snapshot, 1)
	fn := func() {
		presenter, _ := h.registry.CurrentPresenter()
		result <- Snapshot{PresenterID: presenter, Participants: h.registry.Entries()}
	}
	select {
	case h.calls <- fn:
	case <-h.done:
		return Snapshot{}, errors.New("hub stopped")
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-result:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (h *Hub) onRegister(reg registration) {
	id := reg.conn.ID()
	if old, ok := h.conns[id]; ok {
		log.Warn().Str("module", "app.hub").Str("sid", string(id)).Msg("connection id reused, closing previous")
		old.Close()
	}
	h.conns[id] = reg.conn
	h.labels[id] = reg.label
	log.Info().Str("module", "app.hub").Str("sid", string(id)).Int("connections", len(h.conns)).Msg("connection registered")

	presenter, _ := h.registry.CurrentPresenter()
	h.Send(id, h.envelope(protocol.EventWelcome, protocol.Welcome{
		SocketID:     id,
		PresenterID:  presenter,
		Participants: h.registry.Entries(),
	}))
}

func (h *Hub) onUnregister(id domain.ParticipantID) {
	conn, ok := h.conns[id]
	if !ok {
		return
	}
	delete(h.conns, id)
	delete(h.labels, id)
	h.registry.Leave(id)
	conn.Close()
	log.Info().Str("module", "app.hub").Str("sid", string(id)).Int("connections", len(h.conns)).Msg("connection unregistered")
}

func (h *Hub) onFrame(from domain.ParticipantID, frame core.Frame) {
	if _, ok := h.conns[from]; !ok {
		return
	}
	env, err := protocol.Parse(frame)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.hub").Str("sid", string(from)).Msg("bad frame")
		return
	}

	switch env.Event {
	case protocol.EventJoin:
		h.onJoin(from, env)
	case protocol.EventLeave:
		h.registry.Leave(from)
	default:
		var sig protocol.Signal
		if len(env.Data) > 0 {
			if err := env.Decode(&sig); err != nil {
				log.Warn().Err(err).Str("module", "app.hub").Str("event", env.Event).Msg("bad signal payload")
				return
			}
		}
		if err := h.router.Route(from, env.Event, sig); err != nil {
			l := log.Warn()
			if errors.Is(err, domain.ErrUnknownRecipient) {
				l = log.Debug()
			}
			l.Err(err).Str("module", "app.hub").Str("sid", string(from)).Str("event", env.Event).Msg("signal dropped")
		}
	}
}

func (h *Hub) onJoin(from domain.ParticipantID, env protocol.Envelope) {
	var req protocol.JoinRequest
	if len(env.Data) > 0 {
		if err := env.Decode(&req); err != nil {
			log.Warn().Err(err).Str("module", "app.hub").Str("sid", string(from)).Msg("bad join payload")
			return
		}
	}
	if err := req.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "app.hub").Str("sid", string(from)).Msg("invalid join")
		return
	}
	label := req.Name
	if label == "" {
		label = h.labels[from]
	}
	if _, err := h.registry.Join(from, label, req.IsPresenter); err != nil {
		log.Warn().Err(err).Str("module", "app.hub").Str("sid", string(from)).Msg("join rejected")
	}
}

func (h *Hub) envelope(event string, v any) protocol.Envelope {
	env, err := protocol.NewEnvelope(event, v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("event", event).Msg("encode")
	}
	return env
}

// Broadcast implements core.Outbox.
func (h *Hub) Broadcast(env protocol.Envelope) {
	frame, err := env.Marshal()
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("event", env.Event).Msg("marshal broadcast")
		return
	}
	for id, conn := range h.conns {
		h.trySend(id, conn, frame, env.Event)
	}
}

// Send implements core.Outbox.
func (h *Hub) Send(to domain.ParticipantID, env protocol.Envelope) bool {
	conn, ok := h.conns[to]
	if !ok {
		return false
	}
	frame, err := env.Marshal()
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("event", env.Event).Msg("marshal send")
		return false
	}
	return h.trySend(to, conn, frame, env.Event)
}

func (h *Hub) trySend(id domain.ParticipantID, conn core.SignalConnection, frame core.Frame, event string) bool {
	err := conn.TrySend(frame)
	if err == nil {
		return true
	}
	action := h.policy.OnBackpressure(id, event)
	log.Warn().Err(err).Str("module", "app.hub").Str("sid", string(id)).Str("event", event).Stringer("action", action).Msg("send dropped")
	if action == Disconnect {
		conn.Close()
	}
	return false
}
