package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gregriff/vocall/internal/public"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

// echoServer relays every frame straight back to the sender's inbox and
// records the identity header of the connection.
func echoServer(t *testing.T, users chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(ws *websocket.Conn) {
			users <- ws.Request().Header.Get(public.UserHeader)
			for {
				var frame public.Frame
				if err := websocket.JSON.Receive(ws, &frame); err != nil {
					return
				}
				frame.Signal.SenderID = "echo" + frame.Route
				if err := websocket.JSON.Send(ws, frame.Signal); err != nil {
					return
				}
			}
		},
	})
	t.Cleanup(srv.Close)
	return srv
}

func TestWebsocketRoundTrip(t *testing.T) {
	users := make(chan string, 1)
	srv := echoServer(t, users)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, err := Dial(ctx, srv.URL, "alice")
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, "alice", <-users)

	env := &public.Envelope{Type: public.SignalOffer, SessionID: "s1", TargetID: "bob"}
	require.NoError(t, ws.Send(public.RouteOffer, env))

	select {
	case got := <-ws.Inbox():
		assert.Equal(t, public.SignalOffer, got.Type)
		assert.Equal(t, "s1", got.SessionID)
		assert.Equal(t, "echo"+public.RouteOffer, got.SenderID)
	case <-ctx.Done():
		t.Fatal("no signal echoed")
	}
}

func TestWebsocketSendAfterClose(t *testing.T) {
	users := make(chan string, 1)
	srv := echoServer(t, users)

	ws, err := Dial(context.Background(), srv.URL, "alice")
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	assert.NoError(t, ws.Close(), "second close is a no-op")

	err = ws.Send(public.RouteCandidate, &public.Envelope{Type: public.SignalCandidate})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, ws.Connected())

	_, open := <-ws.Inbox()
	assert.False(t, open, "inbox is closed once the reader exits")
}

func TestWebsocketSendWithoutRoute(t *testing.T) {
	users := make(chan string, 1)
	srv := echoServer(t, users)

	ws, err := Dial(context.Background(), srv.URL, "alice")
	require.NoError(t, err)
	defer ws.Close()

	err = ws.Send("", &public.Envelope{Type: public.SignalRing})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotConnected)
}
