// Package signalingtest provides an in-memory signaling broker for tests.
package signalingtest

import (
	"sync"

	"github.com/gregriff/vocall/cli/internal/services/signaling"
	"github.com/gregriff/vocall/internal/public"
)

// Switchboard routes envelopes between in-memory transports by TargetID.
type Switchboard struct {
	mu    sync.Mutex
	lines map[string]*Line
}

// NewSwitchboard returns an empty switchboard.
func NewSwitchboard() *Switchboard {
	return &Switchboard{lines: make(map[string]*Line)}
}

// Connect returns the line for userID, creating it if needed.
func (s *Switchboard) Connect(userID string) *Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.lines[userID]; ok {
		return l
	}
	l := &Line{board: s, user: userID, inbox: make(chan *public.Envelope, 256), up: true}
	s.lines[userID] = l
	return l
}

// Deliver pushes a copy of env into userID's inbox, as the server would.
// It reports false if the user has no connected line.
func (s *Switchboard) Deliver(userID string, env *public.Envelope) bool {
	s.mu.Lock()
	l, ok := s.lines[userID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return l.push(env)
}

// Line is one user's connection to a Switchboard. It implements signaling.Transport.
type Line struct {
	board *Switchboard
	user  string

	mu    sync.Mutex
	inbox chan *public.Envelope
	up    bool
	sent  []Sent
}

// Sent records a signal published through a Line.
type Sent struct {
	Route    string
	Envelope public.Envelope
}

var _ signaling.Transport = (*Line)(nil)

// Send stamps the sender like the server does and delivers env to its target.
func (l *Line) Send(route string, env *public.Envelope) error {
	l.mu.Lock()
	if !l.up {
		l.mu.Unlock()
		return signaling.ErrNotConnected
	}
	cp := *env
	cp.SenderID = l.user
	l.sent = append(l.sent, Sent{Route: route, Envelope: cp})
	l.mu.Unlock()

	l.board.Deliver(cp.TargetID, &cp)
	return nil
}

// Inbox implements signaling.Transport.
func (l *Line) Inbox() <-chan *public.Envelope { return l.inbox }

// Disconnect makes every later Send fail with signaling.ErrNotConnected.
func (l *Line) Disconnect() {
	l.mu.Lock()
	l.up = false
	l.mu.Unlock()
}

// Sent returns the signals published through the line, oldest first.
func (l *Line) Sent() []Sent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Sent(nil), l.sent...)
}

// SentOfType returns the published signals of type t.
func (l *Line) SentOfType(t public.SignalType) []Sent {
	var out []Sent
	for _, s := range l.Sent() {
		if s.Envelope.Type == t {
			out = append(out, s)
		}
	}
	return out
}

func (l *Line) push(env *public.Envelope) bool {
	cp := *env
	select {
	case l.inbox <- &cp:
		return true
	default:
		return false
	}
}
