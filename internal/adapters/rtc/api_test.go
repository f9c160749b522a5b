package rtc

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/media"
	"github.com/dkeye/Broadcast/internal/peer"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

// loopback stands in for the relay: envelopes are handed, in order, to
// the other manager on a separate goroutine as a socket would.
type loopback struct {
	peer  *peer.Manager
	from  domain.ParticipantID
	queue chan protocol.Envelope
}

func newLoopback(from domain.ParticipantID) *loopback {
	return &loopback{from: from, queue: make(chan protocol.Envelope, 64)}
}

func (l *loopback) Emit(env protocol.Envelope) error {
	l.queue <- env
	return nil
}

func (l *loopback) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-l.queue:
			l.dispatch(env)
		}
	}
}

func (l *loopback) dispatch(env protocol.Envelope) {
	var sig protocol.Signal
	if err := env.Decode(&sig); err != nil {
		return
	}
	_, kind, _ := protocol.ParseEvent(env.Event)
	switch kind {
	case protocol.KindOffer:
		offer, _ := sig.Offer.ToPion()
		_ = l.peer.OnOffer(context.Background(), l.from, offer, &media.DrainTarget{})
	case protocol.KindAnswer:
		answer, _ := sig.Answer.ToPion()
		_ = l.peer.OnAnswer(l.from, answer)
	case protocol.KindCandidate:
		_ = l.peer.OnCandidate(l.from, sig.Candidate.ToPion())
	}
}

func TestFactory_New(t *testing.T) {
	api, err := NewAPI()
	require.NoError(t, err)

	pc, err := NewFactory(api, webrtc.Configuration{}).New()

	require.NoError(t, err)
	require.NoError(t, pc.Close())
}

func TestFactory_Loopback_Connects(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real UDP sockets")
	}
	req := require.New(t)
	api, err := NewAPI(func(s *webrtc.SettingEngine) {
		s.SetIncludeLoopbackCandidate(true)
		s.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	})
	req.NoError(err)
	factory := NewFactory(api, webrtc.Configuration{})

	ctx, cancel := context.WithCancel(context.Background())
	toB, toA := newLoopback("a"), newLoopback("b")
	a := peer.NewManager(protocol.Main, toB, factory)
	b := peer.NewManager(protocol.Main, toA, factory)
	toB.peer, toA.peer = b, a
	go toB.run(ctx)
	go toA.run(ctx)
	t.Cleanup(func() {
		cancel()
		a.CloseAll()
		b.CloseAll()
	})

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "a")
	req.NoError(err)
	a.SetLocalStream(media.NewStaticStream(track))

	req.NoError(a.OnRequestOffer(context.Background(), "b", nil))

	req.Eventually(func() bool {
		return a.State("b") == peer.StateConnected && b.State("a") == peer.StateConnected
	}, 15*time.Second, 50*time.Millisecond)
}

func TestConfigWithSTUN(t *testing.T) {
	require.Empty(t, ConfigWithSTUN(nil).ICEServers)
	require.Equal(t, []string{"stun:x:3478"}, ConfigWithSTUN([]string{"stun:x:3478"}).ICEServers[0].URLs)
	require.Len(t, DefaultWebRTCConfig().ICEServers, 1)
}
