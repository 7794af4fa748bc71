package cmd

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gregriff/vocall/cli/internal/call"
	"github.com/gregriff/vocall/internal/public"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMachine struct {
	mu      sync.Mutex
	intents []string
}

func (m *recordingMachine) record(intent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents = append(m.intents, intent)
	return nil
}

func (m *recordingMachine) AcceptCall() error  { return m.record("accept") }
func (m *recordingMachine) DeclineCall() error { return m.record("decline") }
func (m *recordingMachine) EndCall() error     { return m.record("end") }
func (m *recordingMachine) ToggleMute() error  { return m.record("mute") }
func (m *recordingMachine) ToggleVideo() error { return m.record("video") }

func (m *recordingMachine) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.intents...)
}

func ringing(id string) call.State {
	alice := call.Participant{ID: "alice", Name: "Alice"}
	return call.State{
		Phase:   call.PhaseRinging,
		Session: &call.Session{ID: id, Type: public.CallVideo, Initiator: alice, Remote: alice},
		Remote:  alice,
	}
}

func TestRingCue(t *testing.T) {
	bob := call.Participant{ID: "bob"}
	assert.Equal(t, "calling bob...", ringCue(call.State{Phase: call.PhaseOutgoing, Remote: bob}))
	assert.Contains(t, ringCue(ringing("s1")), "incoming video call from Alice")
	assert.True(t, strings.HasPrefix(ringCue(ringing("s1")), "\a"), "ringing rings the terminal bell")

	group := ringing("s1")
	group.Session.IsGroup = true
	group.Remote = call.Participant{ID: "g1", Name: "group g1"}
	assert.Contains(t, ringCue(group), "from Alice in group g1")

	assert.Contains(t, ringCue(call.State{Phase: call.PhaseActive, Remote: bob}), "in call with bob")
	assert.Equal(t, "call ended", ringCue(call.State{}))
}

func TestPresenterRunsUntilCallIsOver(t *testing.T) {
	m := &recordingMachine{}
	var out bytes.Buffer
	p := newPresenter(m, &out, false)
	p.autoAccept = true

	updates := make(chan call.Update, 8)
	updates <- call.Update{State: call.State{}}
	updates <- call.Update{State: ringing("s1")}
	updates <- call.Update{State: ringing("s1")}
	updates <- call.Update{State: call.State{Phase: call.PhaseActive, Remote: call.Participant{ID: "alice"}}}
	updates <- call.Update{State: call.State{}, Notice: &call.Notice{Kind: call.NoticeEnded, Message: "call ended by alice"}}

	require.NoError(t, p.run(context.Background(), updates, nil))
	assert.Equal(t, []string{"accept"}, m.recorded(), "a ringing call is accepted once")
	assert.Contains(t, out.String(), "incoming video call from Alice")
	assert.Contains(t, out.String(), "call ended by alice")
}

func TestPresenterCommands(t *testing.T) {
	m := &recordingMachine{}
	p := newPresenter(m, &bytes.Buffer{}, false)

	ctx, cancel := context.WithCancel(context.Background())
	require.False(t, p.render(ctx, call.Update{State: ringing("s1")}))

	updates := make(chan call.Update)
	commands := readCommands(strings.NewReader("accept\nm\n\nV\nx\nd\ne\n"))
	done := make(chan error, 1)
	go func() { done <- p.run(ctx, updates, commands) }()

	require.Eventually(t, func() bool { return len(m.recorded()) == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"accept", "mute", "video", "decline", "end"}, m.recorded())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "end", m.recorded()[len(m.recorded())-1], "interrupting a call hangs up")
	assert.Len(t, m.recorded(), 6)
}
