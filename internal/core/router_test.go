package core

import (
	"testing"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/mocks"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRouter_Stamps_Sender(t *testing.T) {
	req := require.New(t)
	out := &recordingOutbox{}
	registry := NewRegistry(out)
	router := NewRouter(registry, out)
	_, _ = registry.Join("a", "", false)
	_, _ = registry.Join("b", "", false)
	out.reset()

	// When a forges its sender
	err := router.Route("a", "lobby-webrtc-offer", protocol.Signal{
		To:    "b",
		From:  "mallory",
		Offer: &protocol.SessionDescription{Type: "offer", SDP: "v=0"},
	})

	// Then the relay delivers with the verified sender
	req.NoError(err)
	req.Len(out.sends, 1)
	req.EqualValues("b", out.sends[0].to)
	req.Equal("lobby-webrtc-offer", out.sends[0].env.Event)
	var sig protocol.Signal
	req.NoError(out.sends[0].env.Decode(&sig))
	req.EqualValues("a", sig.From)
	req.Empty(sig.To)
	req.Equal("v=0", sig.Offer.SDP)
}

func TestRouter_Drops_Unknown_Recipient(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	out := mocks.NewMockOutbox(ctrl)
	registry := NewRegistry(out)
	router := NewRouter(registry, out)

	out.EXPECT().Broadcast(gomock.Any()).AnyTimes()
	// Send must never be called
	out.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)

	_, err := registry.Join("a", "", false)
	req.NoError(err)

	err = router.Route("a", "request-offer", protocol.Signal{To: "ghost"})
	req.ErrorIs(err, domain.ErrUnknownRecipient)

	err = router.Route("a", "webrtc-candidate", protocol.Signal{Candidate: &protocol.Candidate{Candidate: "candidate:1"}})
	req.ErrorIs(err, domain.ErrUnknownRecipient)
}

func TestRouter_Rejects_Non_Family_Events(t *testing.T) {
	out := &recordingOutbox{}
	registry := NewRegistry(out)
	router := NewRouter(registry, out)
	_, _ = registry.Join("b", "", false)
	out.reset()

	for _, event := range []string{"join", "add-participant", "presenter", "webrtc-bogus"} {
		err := router.Route("a", event, protocol.Signal{To: "b"})
		require.ErrorIs(t, err, ErrUnsupportedEvent, event)
	}
	require.Empty(t, out.sends)
}

func TestRouter_Rejects_Malformed_Payload(t *testing.T) {
	out := &recordingOutbox{}
	registry := NewRegistry(out)
	router := NewRouter(registry, out)
	_, _ = registry.Join("b", "", false)
	out.reset()

	err := router.Route("a", "webrtc-answer", protocol.Signal{To: "b"})
	require.Error(t, err)
	require.Empty(t, out.sends)
}

func TestRouter_Families_Share_Semantics(t *testing.T) {
	req := require.New(t)
	out := &recordingOutbox{}
	registry := NewRegistry(out)
	router := NewRouter(registry, out)
	_, _ = registry.Join("a", "", false)
	_, _ = registry.Join("b", "", false)
	out.reset()

	for _, ns := range []protocol.Namespace{protocol.Main, protocol.Lobby} {
		for _, k := range []protocol.Kind{protocol.KindRequestOffer, protocol.KindCandidate, protocol.KindDisconnect} {
			sig := protocol.Signal{To: "b"}
			if k == protocol.KindCandidate {
				sig.Candidate = &protocol.Candidate{Candidate: "candidate:1"}
			}
			req.NoError(router.Route("a", ns.Event(k), sig))
		}
	}
	req.Len(out.sends, 6)
	req.Equal([]domain.ParticipantID{"a"}, out.sentTo("b", "request-offer-lobby"))
	req.Equal([]domain.ParticipantID{"a"}, out.sentTo("b", "webrtc-disconnect"))
}
