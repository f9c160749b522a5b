// Package peertest provides an in-memory stand-in for *webrtc.PeerConnection.
//
// A fake reports PeerConnectionStateConnected once both of its descriptions
// are set, which is enough to drive the link state machine without ICE.
package peertest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Broadcast/internal/peer"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/pion/webrtc/v4"
)

var ErrNoRemoteDescription = errors.New("peertest: remote description not set")

type PeerConnection struct {
	// GatherOnLocal is the number of host candidates emitted from
	// SetLocalDescription, before the description reaches signaling.
	GatherOnLocal int
	// BeforeOffer and BeforeAnswer, when set, run inside CreateOffer and
	// CreateAnswer before the fake looks at its own state.
	BeforeOffer  func()
	BeforeAnswer func()

	mu           sync.Mutex
	local        *webrtc.SessionDescription
	remote       *webrtc.SessionDescription
	tracks       []webrtc.TrackLocal
	candidates   []webrtc.ICECandidateInit
	closed       bool
	connected    bool
	onCandidate  func(*webrtc.ICECandidate)
	onTrack      func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onState      func(webrtc.PeerConnectionState)
	nextCandPort uint16
}

var _ peer.PeerConnection = (*PeerConnection)(nil)

func (p *PeerConnection) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("peertest: closed")
	}
	p.tracks = append(p.tracks, track)
	return nil, nil
}

func (p *PeerConnection) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	if p.BeforeOffer != nil {
		p.BeforeOffer()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return webrtc.SessionDescription{}, errors.New("peertest: closed")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer tracks=%d", len(p.tracks))}, nil
}

func (p *PeerConnection) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	if p.BeforeAnswer != nil {
		p.BeforeAnswer()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return webrtc.SessionDescription{}, errors.New("peertest: closed")
	}
	if p.remote == nil {
		return webrtc.SessionDescription{}, ErrNoRemoteDescription
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer tracks=%d", len(p.tracks))}, nil
}

func (p *PeerConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("peertest: closed")
	}
	p.local = &desc
	gather := p.GatherOnLocal
	p.mu.Unlock()

	for i := 0; i < gather; i++ {
		p.EmitCandidate()
	}
	p.checkConnected()
	return nil
}

func (p *PeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("peertest: closed")
	}
	p.remote = &desc
	p.mu.Unlock()
	p.checkConnected()
	return nil
}

func (p *PeerConnection) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return ErrNoRemoteDescription
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *PeerConnection) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *PeerConnection) OnICECandidate(f func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	p.onCandidate = f
	p.mu.Unlock()
}

func (p *PeerConnection) OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.mu.Lock()
	p.onTrack = f
	p.mu.Unlock()
}

func (p *PeerConnection) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = f
	p.mu.Unlock()
}

func (p *PeerConnection) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(webrtc.PeerConnectionStateClosed)
	}
	return nil
}

// EmitCandidate gathers one local host candidate.
func (p *PeerConnection) EmitCandidate() {
	p.mu.Lock()
	p.nextCandPort++
	c := &webrtc.ICECandidate{
		Foundation: "1",
		Priority:   2130706431,
		Address:    "127.0.0.1",
		Protocol:   webrtc.ICEProtocolUDP,
		Port:       40000 + p.nextCandPort,
		Typ:        webrtc.ICECandidateTypeHost,
		Component:  1,
	}
	fn := p.onCandidate
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// EmitTrack delivers a remote track.
func (p *PeerConnection) EmitTrack(track *webrtc.TrackRemote) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	if fn != nil {
		fn(track, nil)
	}
}

// Fail reports a failed transport.
func (p *PeerConnection) Fail() {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(webrtc.PeerConnectionStateFailed)
	}
}

func (p *PeerConnection) checkConnected() {
	p.mu.Lock()
	ready := !p.closed && !p.connected && p.local != nil && p.remote != nil
	if ready {
		p.connected = true
	}
	fn := p.onState
	p.mu.Unlock()
	if ready && fn != nil {
		fn(webrtc.PeerConnectionStateConnected)
	}
}

func (p *PeerConnection) Tracks() []webrtc.TrackLocal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), p.tracks...)
}

// Candidates returns the remote candidates accepted so far.
func (p *PeerConnection) Candidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

func (p *PeerConnection) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *PeerConnection) Descriptions() (local, remote *webrtc.SessionDescription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local, p.remote
}

// Factory hands out fakes and remembers them in creation order.
type Factory struct {
	// Configure, when set, runs on each fake before it is returned.
	Configure func(*PeerConnection)
	// Err, when set, is returned instead of a fake.
	Err error

	mu      sync.Mutex
	created []*PeerConnection
}

var _ peer.Factory = (*Factory)(nil)

func (f *Factory) New() (peer.PeerConnection, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	pc := &PeerConnection{}
	if f.Configure != nil {
		f.Configure(pc)
	}
	f.mu.Lock()
	f.created = append(f.created, pc)
	f.mu.Unlock()
	return pc, nil
}

func (f *Factory) Created() []*PeerConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*PeerConnection(nil), f.created...)
}

func (f *Factory) Last() *PeerConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// Emitter records emitted envelopes.
type Emitter struct {
	// Err, when set, is returned by Emit after recording.
	Err error

	mu   sync.Mutex
	sent []protocol.Envelope
}

var _ peer.Emitter = (*Emitter)(nil)

func (e *Emitter) Emit(env protocol.Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, env)
	return e.Err
}

func (e *Emitter) Sent() []protocol.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.Envelope(nil), e.sent...)
}

// Signals decodes every emitted envelope named event.
func (e *Emitter) Signals(event string) []protocol.Signal {
	var out []protocol.Signal
	for _, env := range e.Sent() {
		if env.Event != event {
			continue
		}
		var sig protocol.Signal
		if err := env.Decode(&sig); err == nil {
			out = append(out, sig)
		}
	}
	return out
}

func (e *Emitter) Events() []string {
	var out []string
	for _, env := range e.Sent() {
		out = append(out, env.Event)
	}
	return out
}
