package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// echoServer sends a welcome, then echoes every frame back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"welcome","data":{"socketId":"x"}}`))
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, c *Client) protocol.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.Incoming():
		require.True(t, ok, "incoming closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope")
	}
	return protocol.Envelope{}
}

func TestClient_Emit_And_Receive(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)

	c, err := Dial(context.Background(), wsURL(srv))
	req.NoError(err)
	defer c.Close()

	var w protocol.Welcome
	req.NoError(next(t, c).Decode(&w))
	req.EqualValues("x", w.SocketID)

	env, err := protocol.NewEnvelope(protocol.EventJoin, protocol.JoinRequest{IsPresenter: true})
	req.NoError(err)
	req.NoError(c.Emit(env))

	echoed := next(t, c)
	req.Equal(protocol.EventJoin, echoed.Event)
	var join protocol.JoinRequest
	req.NoError(echoed.Decode(&join))
	req.True(join.IsPresenter)
}

func TestClient_Close(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)

	c, err := Dial(context.Background(), wsURL(srv))
	req.NoError(err)
	next(t, c)

	c.Close()
	c.Close()

	env, _ := protocol.NewEnvelope(protocol.EventLeave, nil)
	req.ErrorIs(c.Emit(env), ErrClosed)

	// incoming drains and closes
	req.Eventually(func() bool {
		select {
		case _, ok := <-c.Incoming():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDial_Fails(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/none")
	require.Error(t, err)
}
