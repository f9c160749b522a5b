package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     domain.ParticipantID
	frames chan core.Frame

	mu     sync.Mutex
	closed bool
}

func newFakeConn(id domain.ParticipantID, buffer int) *fakeConn {
	return &fakeConn{id: id, frames: make(chan core.Frame, buffer)}
}

func (c *fakeConn) ID() domain.ParticipantID { return c.id }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	select {
	case c.frames <- f:
		return nil
	default:
		return errors.New("full")
	}
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// next waits for the next frame carrying event, skipping others.
func (c *fakeConn) next(t *testing.T, event string) protocol.Envelope {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f := <-c.frames:
			env, err := protocol.Parse(f)
			require.NoError(t, err)
			if env.Event == event {
				return env
			}
		case <-timeout:
			t.Fatalf("%s: no %q frame", c.id, event)
		}
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub
}

func frame(t *testing.T, event string, v any) core.Frame {
	t.Helper()
	env, err := protocol.NewEnvelope(event, v)
	require.NoError(t, err)
	b, err := env.Marshal()
	require.NoError(t, err)
	return b
}

func TestHub_Register_Sends_Welcome(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)

	a := newFakeConn("a", 16)
	hub.Register(a, "alice")
	hub.Deliver("a", frame(t, protocol.EventJoin, protocol.JoinRequest{IsPresenter: true}))
	a.next(t, protocol.EventAddParticipant)

	// When another connection arrives
	b := newFakeConn("b", 16)
	hub.Register(b, "")

	// Then it learns its id and the current state
	var w protocol.Welcome
	req.NoError(b.next(t, protocol.EventWelcome).Decode(&w))
	req.EqualValues("b", w.SocketID)
	req.EqualValues("a", w.PresenterID)
	req.Len(w.Participants, 1)
	req.Equal("alice", w.Participants[0].Participant.Label)
}

func TestHub_Join_And_Relay(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)

	a, b := newFakeConn("a", 32), newFakeConn("b", 32)
	hub.Register(a, "")
	hub.Register(b, "")

	hub.Deliver("a", frame(t, protocol.EventJoin, protocol.JoinRequest{IsPresenter: true, Name: "host"}))
	hub.Deliver("b", frame(t, protocol.EventJoin, protocol.JoinRequest{}))

	// presenter is asked to offer to the new spectator
	var ask protocol.Signal
	req.NoError(a.next(t, "request-offer").Decode(&ask))
	req.EqualValues("b", ask.From)

	// When the presenter offers
	hub.Deliver("a", frame(t, "webrtc-offer", protocol.Signal{
		To:    "b",
		Offer: &protocol.SessionDescription{Type: "offer", SDP: "v=0"},
	}))

	// Then b receives it stamped with a
	var offer protocol.Signal
	req.NoError(b.next(t, "webrtc-offer").Decode(&offer))
	req.EqualValues("a", offer.From)
	req.Empty(offer.To)

	snap, err := hub.Snapshot(context.Background())
	req.NoError(err)
	req.EqualValues("a", snap.PresenterID)
	req.Len(snap.Participants, 2)
}

func TestHub_Unregister_Leaves(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)

	a, b := newFakeConn("a", 32), newFakeConn("b", 32)
	hub.Register(a, "")
	hub.Register(b, "")
	hub.Deliver("a", frame(t, protocol.EventJoin, protocol.JoinRequest{IsPresenter: true}))
	hub.Deliver("b", frame(t, protocol.EventJoin, protocol.JoinRequest{}))

	// When the presenter's socket drops
	hub.Unregister("a")

	// Then b hears about it and its main link is torn down
	var removed protocol.ParticipantEntry
	req.NoError(b.next(t, protocol.EventRemoveParticipant).Decode(&removed))
	req.EqualValues("a", removed.SocketID)
	var disc protocol.Signal
	req.NoError(b.next(t, "webrtc-disconnect").Decode(&disc))
	req.EqualValues("a", disc.From)

	snap, err := hub.Snapshot(context.Background())
	req.NoError(err)
	req.Empty(snap.PresenterID)
	req.Len(snap.Participants, 1)
	req.True(a.isClosed())

	// a second unregister is a no-op
	hub.Unregister("a")
	snap, err = hub.Snapshot(context.Background())
	req.NoError(err)
	req.Len(snap.Participants, 1)
}

func TestHub_Drops_Invalid_Input(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)

	a := newFakeConn("a", 32)
	hub.Register(a, "")

	hub.Deliver("a", core.Frame("not json"))
	hub.Deliver("a", frame(t, protocol.EventJoin, protocol.JoinRequest{Name: "this label is much too long to be accepted by the relay"}))
	hub.Deliver("a", frame(t, "webrtc-offer", protocol.Signal{To: "ghost", Offer: &protocol.SessionDescription{Type: "offer"}}))
	hub.Deliver("ghost", frame(t, protocol.EventJoin, nil))

	snap, err := hub.Snapshot(context.Background())
	req.NoError(err)
	req.Empty(snap.Participants)
}

func TestHub_Backpressure_Drops_Frames(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)

	// a connection whose buffer holds only the welcome
	slow := newFakeConn("slow", 1)
	hub.Register(slow, "")
	a := newFakeConn("a", 32)
	hub.Register(a, "")

	hub.Deliver("a", frame(t, protocol.EventJoin, protocol.JoinRequest{}))
	a.next(t, protocol.EventAddParticipant)

	// the hub is still responsive and the slow connection got only what fit
	snap, err := hub.Snapshot(context.Background())
	req.NoError(err)
	req.Len(snap.Participants, 1)
	req.Len(slow.frames, 1)
}

func TestHub_Disconnect_Policy_Closes_Slow_Connection(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(WithPolicy(DisconnectPolicy{}))
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})

	// Given a connection that can only hold its welcome
	slow := newFakeConn("slow", 1)
	hub.Register(slow, "")
	a := newFakeConn("a", 32)
	hub.Register(a, "")

	// When a broadcast overflows it
	hub.Deliver("a", frame(t, protocol.EventJoin, protocol.JoinRequest{}))
	a.next(t, protocol.EventAddParticipant)

	// Then it is closed while the healthy one stays open
	req.Eventually(slow.isClosed, time.Second, 10*time.Millisecond)
	req.False(a.isClosed())
}

func TestPolicyFor(t *testing.T) {
	req := require.New(t)

	p, err := PolicyFor("")
	req.NoError(err)
	req.Equal(DropFrame, p.OnBackpressure("x", protocol.EventJoin))

	p, err = PolicyFor("disconnect")
	req.NoError(err)
	req.Equal(Disconnect, p.OnBackpressure("x", protocol.EventJoin))

	_, err = PolicyFor("kick")
	req.Error(err)
}

func TestHub_Stops_With_Context(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	a := newFakeConn("a", 8)
	hub.Register(a, "")
	cancel()
	<-hub.done

	require.True(t, a.isClosed())
	_, err := hub.Snapshot(context.Background())
	require.Error(t, err)
}
