package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/media"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Manager owns the links of one namespace. The links map decides liveness:
// a step that finishes on a link no longer in the map is discarded.
//
// In the lobby both sides may offer at once. The peer with the lower id
// yields and answers; lobby answers carry the local stream so one link
// shows both directions.
type Manager struct {
	ns      protocol.Namespace
	emitter Emitter
	factory Factory
	logger  zerolog.Logger

	mu        sync.Mutex
	localID   domain.ParticipantID
	links     map[domain.ParticipantID]*Link
	stream    media.Stream
	onFailure func(domain.ParticipantID, error)
}

func NewManager(ns protocol.Namespace, emitter Emitter, factory Factory) *Manager {
	return &Manager{
		ns:      ns,
		emitter: emitter,
		factory: factory,
		logger:  log.With().Str("module", "peer.manager").Str("ns", string(ns)).Logger(),
		links:   make(map[domain.ParticipantID]*Link),
	}
}

func (m *Manager) Namespace() protocol.Namespace { return m.ns }

// SetLocalID records our own connection id, used to settle offer collisions.
func (m *Manager) SetLocalID(id domain.ParticipantID) {
	m.mu.Lock()
	m.localID = id
	m.mu.Unlock()
}

func (m *Manager) SetLocalStream(s media.Stream) {
	m.mu.Lock()
	m.stream = s
	m.mu.Unlock()
}

// OnFailure registers fn for links whose transport failed. The link is
// already closed when fn runs.
func (m *Manager) OnFailure(fn func(remote domain.ParticipantID, err error)) {
	m.mu.Lock()
	m.onFailure = fn
	m.mu.Unlock()
}

// RequestOffer asks remote, through the relay, to offer us its media.
func (m *Manager) RequestOffer(remote domain.ParticipantID) error {
	return m.emit(protocol.KindRequestOffer, protocol.Signal{To: remote})
}

// OnRequestOffer replaces any link to remote with a new one carrying the
// local stream and sends its offer. Media the remote sends back on that link
// goes to target, which may be nil when none is expected.
func (m *Manager) OnRequestOffer(ctx context.Context, remote domain.ParticipantID, target media.RenderTarget) error {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream == nil {
		return fmt.Errorf("offer to %s: %w", remote, domain.ErrMediaUnavailable)
	}

	link, err := m.replace(remote)
	if err != nil {
		return err
	}
	if target != nil {
		link.bind(target)
	}
	if err := addTracks(link, stream); err != nil {
		m.drop(remote, link)
		return err
	}
	offer, err := link.Offer(ctx)
	if err != nil {
		m.drop(remote, link)
		return err
	}
	if !m.current(remote, link) {
		return domain.ErrLinkClosed
	}
	if err := m.emit(protocol.KindOffer, protocol.Signal{To: remote, Offer: protocol.DescriptionFromPion(offer)}); err != nil {
		m.drop(remote, link)
		return err
	}
	link.markSignaled()
	return nil
}

// OnOffer answers an offer from remote. Remote media goes to target.
func (m *Manager) OnOffer(ctx context.Context, remote domain.ParticipantID, offer webrtc.SessionDescription, target media.RenderTarget) error {
	m.mu.Lock()
	existing := m.links[remote]
	polite := m.localID < remote
	stream := m.stream
	m.mu.Unlock()

	if existing != nil && existing.State() == StateOfferSent && !polite {
		m.logger.Debug().Str("remote", string(remote)).Msg("ignoring colliding offer")
		return nil
	}

	// an idle link belongs to a step still in flight, so it is never reused
	link, err := m.replace(remote)
	if err != nil {
		return err
	}
	link.bind(target)
	if m.ns == protocol.Lobby && stream != nil {
		if err := addTracks(link, stream); err != nil {
			m.drop(remote, link)
			return err
		}
	}

	answer, err := link.Answer(ctx, offer)
	if err != nil {
		m.drop(remote, link)
		return err
	}
	if !m.current(remote, link) {
		return domain.ErrLinkClosed
	}
	if err := m.emit(protocol.KindAnswer, protocol.Signal{To: remote, Answer: protocol.DescriptionFromPion(answer)}); err != nil {
		m.drop(remote, link)
		return err
	}
	link.markSignaled()
	return nil
}

func (m *Manager) OnAnswer(remote domain.ParticipantID, answer webrtc.SessionDescription) error {
	link, ok := m.get(remote)
	if !ok {
		return fmt.Errorf("answer from %s: %w", remote, domain.ErrUnknownPeer)
	}
	return link.ApplyAnswer(answer)
}

func (m *Manager) OnCandidate(remote domain.ParticipantID, c webrtc.ICECandidateInit) error {
	link, ok := m.get(remote)
	if !ok {
		return fmt.Errorf("candidate from %s: %w", remote, domain.ErrUnknownPeer)
	}
	return link.AddCandidate(c)
}

// OnDisconnect closes the link to remote, if any.
func (m *Manager) OnDisconnect(remote domain.ParticipantID) {
	m.mu.Lock()
	link, ok := m.links[remote]
	delete(m.links, remote)
	m.mu.Unlock()
	if ok {
		link.Close()
	}
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	links := lo.Values(m.links)
	m.links = make(map[domain.ParticipantID]*Link)
	m.mu.Unlock()
	for _, link := range links {
		link.Close()
	}
}

// State reports StateClosed for a remote without a link.
func (m *Manager) State(remote domain.ParticipantID) State {
	link, ok := m.get(remote)
	if !ok {
		return StateClosed
	}
	return link.State()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

func (m *Manager) Remotes() []domain.ParticipantID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Keys(m.links)
}

func (m *Manager) get(remote domain.ParticipantID) (*Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[remote]
	return link, ok
}

func (m *Manager) current(remote domain.ParticipantID, link *Link) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[remote] == link
}

// replace installs a fresh link to remote and closes the one it displaced.
func (m *Manager) replace(remote domain.ParticipantID) (*Link, error) {
	pc, err := m.factory.New()
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	var link *Link
	link = newLink(m.ns, remote, pc, linkHooks{
		candidate: func(c webrtc.ICECandidateInit) {
			if err := m.emit(protocol.KindCandidate, protocol.Signal{To: remote, Candidate: protocol.CandidateFromPion(c)}); err != nil {
				m.logger.Warn().Err(err).Str("remote", string(remote)).Msg("emit candidate")
			}
		},
		failed: func(err error) {
			go m.fail(remote, link, err)
		},
	})

	m.mu.Lock()
	old := m.links[remote]
	m.links[remote] = link
	m.mu.Unlock()
	if old != nil {
		m.logger.Debug().Str("remote", string(remote)).Msg("replacing link")
		old.Close()
	}
	return link, nil
}

// drop removes link if it is still the current one and closes it.
func (m *Manager) drop(remote domain.ParticipantID, link *Link) {
	m.mu.Lock()
	if m.links[remote] == link {
		delete(m.links, remote)
	}
	m.mu.Unlock()
	link.Close()
}

func (m *Manager) fail(remote domain.ParticipantID, link *Link, err error) {
	if !m.current(remote, link) {
		return
	}
	m.logger.Warn().Err(err).Str("remote", string(remote)).Msg("link failed")
	m.drop(remote, link)
	m.mu.Lock()
	fn := m.onFailure
	m.mu.Unlock()
	if fn != nil {
		fn(remote, err)
	}
}

func (m *Manager) emit(kind protocol.Kind, sig protocol.Signal) error {
	env, err := protocol.NewEnvelope(m.ns.Event(kind), sig)
	if err != nil {
		return err
	}
	return m.emitter.Emit(env)
}

func addTracks(link *Link, stream media.Stream) error {
	for _, track := range stream.Tracks() {
		if _, err := link.pc.AddTrack(track); err != nil {
			return fmt.Errorf("add track %s: %w", track.ID(), err)
		}
	}
	return nil
}
