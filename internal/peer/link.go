package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/media"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrInvalidState = errors.New("peer: invalid link state")

type linkHooks struct {
	candidate func(webrtc.ICECandidateInit)
	failed    func(error)
}

// Link is one peer connection to one remote participant.
// Transport calls are never made while mu is held.
type Link struct {
	ns     protocol.Namespace
	remote domain.ParticipantID
	pc     PeerConnection
	hooks  linkHooks
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu                 sync.Mutex
	state              State
	localSet           bool
	remoteSet          bool
	transportConnected bool
	signaled           bool
	pendingRemote      []webrtc.ICECandidateInit
	pendingLocal       []webrtc.ICECandidateInit
	target             media.RenderTarget
}

func newLink(ns protocol.Namespace, remote domain.ParticipantID, pc PeerConnection, hooks linkHooks) *Link {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		ns:     ns,
		remote: remote,
		pc:     pc,
		hooks:  hooks,
		logger: log.With().Str("module", "peer.link").Str("ns", string(ns)).Str("remote", string(remote)).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	pc.OnICECandidate(l.onLocalCandidate)
	pc.OnTrack(l.onTrack)
	pc.OnConnectionStateChange(l.onConnectionState)
	return l
}

func (l *Link) Remote() domain.ParticipantID { return l.remote }

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Done is closed when the link is closed.
func (l *Link) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Link) bind(target media.RenderTarget) {
	l.mu.Lock()
	l.target = target
	l.mu.Unlock()
}

func (l *Link) alive(ctx context.Context) error {
	if l.ctx.Err() != nil {
		return domain.ErrLinkClosed
	}
	return ctx.Err()
}

// Offer creates the local offer and applies it.
func (l *Link) Offer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := l.expect(StateIdle); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, l.transportError("create offer", err)
	}
	if err := l.alive(ctx); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, l.transportError("set local description", err)
	}
	desc := l.localDescription(offer)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return webrtc.SessionDescription{}, domain.ErrLinkClosed
	}
	l.localSet = true
	l.state = StateOfferSent
	return desc, nil
}

// Answer applies the remote offer, then creates and applies the answer.
func (l *Link) Answer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	l.mu.Lock()
	if l.state != StateIdle {
		st := l.state
		l.mu.Unlock()
		return webrtc.SessionDescription{}, l.stateError("answer", st)
	}
	l.state = StateOfferReceived
	l.mu.Unlock()

	if err := l.applyRemote(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.alive(ctx); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, l.transportError("create answer", err)
	}
	if err := l.alive(ctx); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, l.transportError("set local description", err)
	}
	desc := l.localDescription(answer)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return webrtc.SessionDescription{}, domain.ErrLinkClosed
	}
	l.localSet = true
	l.state = StateAnswerSent
	l.maybeConnected()
	return desc, nil
}

// ApplyAnswer completes an offer this link sent.
func (l *Link) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := l.expect(StateOfferSent); err != nil {
		return err
	}
	if err := l.applyRemote(answer); err != nil {
		return err
	}
	l.mu.Lock()
	l.maybeConnected()
	l.mu.Unlock()
	return nil
}

// AddCandidate adds a remote candidate, holding it until the remote
// description is in place.
func (l *Link) AddCandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return domain.ErrLinkClosed
	}
	if !l.remoteSet {
		l.pendingRemote = append(l.pendingRemote, c)
		l.mu.Unlock()
		l.logger.Debug().Msg("remote candidate buffered")
		return nil
	}
	l.mu.Unlock()
	if err := l.pc.AddICECandidate(c); err != nil {
		return l.transportError("add candidate", err)
	}
	return nil
}

// markSignaled releases local candidates held back until the description
// went out.
func (l *Link) markSignaled() {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.signaled = true
	pending := l.pendingLocal
	l.pendingLocal = nil
	l.mu.Unlock()
	for _, c := range pending {
		l.hooks.candidate(c)
	}
}

// Close releases the transport. It is safe to call more than once.
func (l *Link) Close() {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = StateClosed
	target := l.target
	l.target = nil
	l.pendingLocal = nil
	l.pendingRemote = nil
	l.cancel()
	l.mu.Unlock()

	if target != nil {
		target.Detach()
	}
	if err := l.pc.Close(); err != nil {
		l.logger.Warn().Err(err).Msg("close transport")
	}
	l.logger.Info().Msg("link closed")
}

func (l *Link) applyRemote(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return l.transportError("set remote description", err)
	}

	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return domain.ErrLinkClosed
	}
	l.remoteSet = true
	pending := l.pendingRemote
	l.pendingRemote = nil
	l.mu.Unlock()

	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.logger.Warn().Err(err).Msg("buffered candidate rejected")
		}
	}
	return nil
}

// transportError reports ErrLinkClosed for calls that failed because the
// link was closed underneath them.
func (l *Link) transportError(op string, err error) error {
	if l.ctx.Err() != nil {
		return domain.ErrLinkClosed
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (l *Link) expect(want State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != want {
		return l.stateError("expected "+want.String(), l.state)
	}
	return nil
}

func (l *Link) stateError(op string, st State) error {
	if st == StateClosed {
		return domain.ErrLinkClosed
	}
	return fmt.Errorf("%s in state %s: %w", op, st, ErrInvalidState)
}

// maybeConnected must be called with mu held.
func (l *Link) maybeConnected() {
	if l.state == StateClosed || l.state == StateConnected {
		return
	}
	if l.transportConnected && l.localSet && l.remoteSet {
		l.state = StateConnected
		l.logger.Info().Msg("link connected")
	}
}

func (l *Link) localDescription(fallback webrtc.SessionDescription) webrtc.SessionDescription {
	if desc := l.pc.LocalDescription(); desc != nil {
		return *desc
	}
	return fallback
}

func (l *Link) onLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	if !l.signaled {
		l.pendingLocal = append(l.pendingLocal, init)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.hooks.candidate(init)
}

func (l *Link) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	l.mu.Lock()
	target := l.target
	closed := l.state == StateClosed
	l.mu.Unlock()
	if closed {
		return
	}
	if target == nil {
		l.logger.Debug().Msg("remote track without target")
		return
	}
	l.logger.Info().Str("track", track.ID()).Msg("remote track")
	target.Attach(track)
}

func (l *Link) onConnectionState(s webrtc.PeerConnectionState) {
	l.logger.Debug().Str("state", s.String()).Msg("transport state")
	switch s {
	case webrtc.PeerConnectionStateConnected:
		l.mu.Lock()
		l.transportConnected = true
		l.maybeConnected()
		l.mu.Unlock()
	case webrtc.PeerConnectionStateFailed:
		if l.ctx.Err() == nil {
			l.hooks.failed(domain.ErrNegotiationFailed)
		}
	}
}
