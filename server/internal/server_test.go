package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gregriff/vocall/internal/public"
	"github.com/gregriff/vocall/server/internal/dal"
	"github.com/gregriff/vocall/server/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "vocall-server.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, dal.CreateUser(conn, "alice", "Alice"))
	require.NoError(t, dal.CreateUser(conn, "bob", "Bob"))
	require.NoError(t, dal.CreateUser(conn, "carol", "Carol"))

	srv := httptest.NewServer(NewHandler(conn, Options{Debug: true, AllowedOrigins: []string{"app://vocall"}}))
	t.Cleanup(srv.Close)
	return srv
}

func request(t *testing.T, srv *httptest.Server, method, path, user string, body any) (int, []byte) {
	t.Helper()
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, payload)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(public.UserHeader, user)
	}
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, data
}

func startCall(t *testing.T, srv *httptest.Server, user string, req public.StartCallRequest) string {
	t.Helper()
	status, body := request(t, srv, http.MethodPost, "/api/calls/start", user, req)
	require.Equal(t, http.StatusCreated, status, string(body))
	var res public.StartCallResponse
	require.NoError(t, json.Unmarshal(body, &res))
	require.NotEmpty(t, res.SessionID)
	return res.SessionID
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	cfg, err := websocket.NewConfig(strings.Replace(srv.URL, "http", "ws", 1)+"/ws", "app://vocall")
	require.NoError(t, err)
	cfg.Header.Set(public.UserHeader, user)
	ws, err := websocket.DialConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// waitConnected waits until the server has registered n inboxes.
func waitConnected(t *testing.T, srv *httptest.Server, n int) {
	t.Helper()
	want := fmt.Sprintf("vocall_connected_users %d", n)
	require.Eventually(t, func() bool {
		res, err := srv.Client().Get(srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer res.Body.Close()
		body, _ := io.ReadAll(res.Body)
		return strings.Contains(string(body), want)
	}, 5*time.Second, 10*time.Millisecond)
}

func receive(t *testing.T, ws *websocket.Conn) public.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env public.Envelope
	require.NoError(t, websocket.JSON.Receive(ws, &env))
	return env
}

func TestCallFlow(t *testing.T) {
	srv := newTestServer(t)
	alice, bob := dial(t, srv, "alice"), dial(t, srv, "bob")
	waitConnected(t, srv, 2)

	sessionID := startCall(t, srv, "alice", public.StartCallRequest{
		ParticipantIDs: []string{"bob"},
		CallType:       public.CallVideo,
	})

	ring := receive(t, bob)
	assert.Equal(t, public.SignalRing, ring.Type)
	assert.Equal(t, sessionID, ring.SessionID)
	assert.Equal(t, "alice", ring.InitiatorID)
	assert.Equal(t, "Alice", ring.InitiatorName)
	assert.Equal(t, public.CallVideo, ring.CallType)
	assert.False(t, ring.IsGroup)

	status, _ := request(t, srv, http.MethodPost, "/api/calls/"+sessionID+"/accept", "bob", nil)
	require.Equal(t, http.StatusNoContent, status)
	accepted := receive(t, alice)
	assert.Equal(t, public.SignalAccepted, accepted.Type)
	assert.Equal(t, "bob", accepted.SenderID)

	offer := &public.Envelope{Type: public.SignalOffer, SessionID: sessionID, SenderID: "carol", TargetID: "bob"}
	require.NoError(t, offer.SetData(map[string]string{"type": "offer", "sdp": "v=0"}))
	require.NoError(t, websocket.JSON.Send(alice, public.Frame{Route: public.RouteOffer, Signal: offer}))
	relayed := receive(t, bob)
	assert.Equal(t, public.SignalOffer, relayed.Type)
	assert.Equal(t, "alice", relayed.SenderID, "the server names the sender")
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(relayed.Data))

	status, _ = request(t, srv, http.MethodPost, "/api/calls/"+sessionID+"/end", "bob", nil)
	require.Equal(t, http.StatusNoContent, status)
	ended := receive(t, alice)
	assert.Equal(t, public.SignalEnded, ended.Type)
	assert.Equal(t, "bob", ended.SenderID)

	status, _ = request(t, srv, http.MethodPost, "/api/calls/"+sessionID+"/end", "alice", nil)
	assert.Equal(t, http.StatusNoContent, status, "ending twice is fine")
	status, _ = request(t, srv, http.MethodPost, "/api/calls/"+sessionID+"/accept", "bob", nil)
	assert.Equal(t, http.StatusNotFound, status)

	_, metrics := request(t, srv, http.MethodGet, "/metrics", "", nil)
	assert.Contains(t, string(metrics), `vocall_calls_started_total{type="VIDEO"} 1`)
	assert.Contains(t, string(metrics), `vocall_call_transitions_total{action="end"} 1`)
	assert.Contains(t, string(metrics), `vocall_signals_relayed_total{type="call:offer"} 1`)
}

func TestDeclineEndsCall(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv, "alice")
	waitConnected(t, srv, 1)

	sessionID := startCall(t, srv, "alice", public.StartCallRequest{ParticipantIDs: []string{"bob"}})

	status, _ := request(t, srv, http.MethodPost, "/api/calls/"+sessionID+"/decline", "bob", nil)
	require.Equal(t, http.StatusNoContent, status)
	declined := receive(t, alice)
	assert.Equal(t, public.SignalDeclined, declined.Type)
	assert.Equal(t, "bob", declined.SenderID)

	status, _ = request(t, srv, http.MethodPost, "/api/calls/"+sessionID+"/accept", "bob", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGroupAcceptNotifiesEveryone(t *testing.T) {
	srv := newTestServer(t)
	alice, carol := dial(t, srv, "alice"), dial(t, srv, "carol")
	waitConnected(t, srv, 2)

	sessionID := startCall(t, srv, "alice", public.StartCallRequest{
		ParticipantIDs: []string{"bob", "carol"},
		GroupCall:      true,
		GroupID:        "friends",
	})
	ring := receive(t, carol)
	assert.True(t, ring.IsGroup)
	assert.Equal(t, "friends", ring.GroupID)

	status, _ := request(t, srv, http.MethodPost, "/api/calls/"+sessionID+"/accept", "bob", nil)
	require.Equal(t, http.StatusNoContent, status)
	for _, ws := range []*websocket.Conn{alice, carol} {
		accepted := receive(t, ws)
		assert.Equal(t, public.SignalAccepted, accepted.Type)
		assert.Equal(t, "bob", accepted.SenderID)
	}

	// a group call outlives a decline
	status, _ = request(t, srv, http.MethodPost, "/api/calls/"+sessionID+"/decline", "carol", nil)
	require.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, public.SignalDeclined, receive(t, alice).Type)
	status, _ = request(t, srv, http.MethodPost, "/api/calls/"+sessionID+"/end", "alice", nil)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, public.SignalEnded, receive(t, carol).Type)
}

func TestRequestErrors(t *testing.T) {
	srv := newTestServer(t)
	sessionID := startCall(t, srv, "alice", public.StartCallRequest{ParticipantIDs: []string{"bob"}})

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
	}{
		{"no identity", http.MethodPost, "/api/calls/start", "", public.StartCallRequest{ParticipantIDs: []string{"bob"}}, http.StatusUnauthorized},
		{"unknown identity", http.MethodGet, "/api/users/bob", "mallory", nil, http.StatusUnauthorized},
		{"unknown participant", http.MethodPost, "/api/calls/start", "alice", public.StartCallRequest{ParticipantIDs: []string{"mallory"}}, http.StatusNotFound},
		{"calling yourself", http.MethodPost, "/api/calls/start", "alice", public.StartCallRequest{ParticipantIDs: []string{"alice"}}, http.StatusBadRequest},
		{"bad call type", http.MethodPost, "/api/calls/start", "alice", public.StartCallRequest{ParticipantIDs: []string{"bob"}, CallType: "SCREEN"}, http.StatusBadRequest},
		{"several participants without a group", http.MethodPost, "/api/calls/start", "alice", public.StartCallRequest{ParticipantIDs: []string{"bob", "carol"}}, http.StatusBadRequest},
		{"initiator accepts", http.MethodPost, "/api/calls/" + sessionID + "/accept", "alice", nil, http.StatusForbidden},
		{"outsider declines", http.MethodPost, "/api/calls/" + sessionID + "/decline", "carol", nil, http.StatusForbidden},
		{"outsider ends", http.MethodPost, "/api/calls/" + sessionID + "/end", "carol", nil, http.StatusForbidden},
		{"unknown call", http.MethodPost, "/api/calls/not-a-call/accept", "bob", nil, http.StatusNotFound},
		{"unknown call ends", http.MethodPost, "/api/calls/not-a-call/end", "bob", nil, http.StatusNoContent},
		{"unknown user", http.MethodGet, "/api/users/mallory", "alice", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := request(t, srv, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, status, string(body))
		})
	}
}

func TestGetUser(t *testing.T) {
	srv := newTestServer(t)
	status, body := request(t, srv, http.MethodGet, "/api/users/bob", "alice", nil)
	require.Equal(t, http.StatusOK, status)

	var user public.User
	require.NoError(t, json.Unmarshal(body, &user))
	assert.Equal(t, public.User{ID: "bob", Name: "Bob"}, user)
}

func TestWebsocketRequiresIdentity(t *testing.T) {
	srv := newTestServer(t)
	cfg, err := websocket.NewConfig(strings.Replace(srv.URL, "http", "ws", 1)+"/ws", "app://vocall")
	require.NoError(t, err)
	_, err = websocket.DialConfig(cfg)
	assert.Error(t, err)

	// the query parameter works where headers cannot be set
	cfg, err = websocket.NewConfig(strings.Replace(srv.URL, "http", "ws", 1)+"/ws?user=carol", "app://vocall")
	require.NoError(t, err)
	ws, err := websocket.DialConfig(cfg)
	require.NoError(t, err)
	defer ws.Close()
	waitConnected(t, srv, 1)
}
