package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamespace_EventNames(t *testing.T) {
	req := require.New(t)

	req.Equal("request-offer", Main.Event(KindRequestOffer))
	req.Equal("webrtc-offer", Main.Event(KindOffer))
	req.Equal("webrtc-disconnect", Main.Event(KindDisconnect))

	req.Equal("request-offer-lobby", Lobby.Event(KindRequestOffer))
	req.Equal("lobby-webrtc-offer", Lobby.Event(KindOffer))
	req.Equal("lobby-webrtc-answer", Lobby.Event(KindAnswer))
	req.Equal("lobby-webrtc-candidate", Lobby.Event(KindCandidate))
	req.Equal("lobby-webrtc-disconnect", Lobby.Event(KindDisconnect))
}

func TestParseEvent_RoundTrip(t *testing.T) {
	for _, ns := range []Namespace{Main, Lobby} {
		for k := KindRequestOffer; k <= KindDisconnect; k++ {
			name := ns.Event(k)
			gotNS, gotKind, ok := ParseEvent(name)
			require.True(t, ok, name)
			require.Equal(t, ns, gotNS, name)
			require.Equal(t, k, gotKind, name)
		}
	}
}

func TestParseEvent_Rejects(t *testing.T) {
	for _, name := range []string{"join", "lobby-request-offer", "lobby-", "webrtc-", "presenter", ""} {
		_, _, ok := ParseEvent(name)
		require.False(t, ok, name)
	}
}

func TestSignal_Validate(t *testing.T) {
	req := require.New(t)

	req.Error(Signal{}.Validate(KindOffer))
	req.Error(Signal{Offer: &SessionDescription{Type: "answer"}}.Validate(KindOffer))
	req.NoError(Signal{Offer: &SessionDescription{Type: "offer", SDP: "v=0"}}.Validate(KindOffer))
	req.Error(Signal{}.Validate(KindCandidate))
	req.NoError(Signal{}.Validate(KindRequestOffer))
	req.NoError(Signal{}.Validate(KindDisconnect))
}

func TestJoinRequest_Validate(t *testing.T) {
	req := require.New(t)

	req.NoError(JoinRequest{IsPresenter: true}.Validate())
	req.NoError(JoinRequest{Name: "alice"}.Validate())
	req.Error(JoinRequest{Name: "a name that is definitely longer than thirty six chars"}.Validate())
}

func TestEnvelope_ParseAndDecode(t *testing.T) {
	req := require.New(t)

	env, err := NewEnvelope(Lobby.Event(KindOffer), Signal{To: "b", Offer: &SessionDescription{Type: "offer", SDP: "v=0"}})
	req.NoError(err)
	raw, err := env.Marshal()
	req.NoError(err)

	parsed, err := Parse(raw)
	req.NoError(err)
	req.Equal("lobby-webrtc-offer", parsed.Event)

	var sig Signal
	req.NoError(parsed.Decode(&sig))
	req.EqualValues("b", sig.To)
	req.Equal("v=0", sig.Offer.SDP)

	_, err = Parse([]byte(`{"data":{}}`))
	req.Error(err)

	leave, err := NewEnvelope(EventLeave, nil)
	req.NoError(err)
	req.Error(leave.Decode(&sig))
}
