// package call decides what call, if any, is happening. A Machine consumes inbound
// signals and local user intents, drives the media engine and reports its state.
package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gregriff/vocall/cli/internal/services/signaling"
	"github.com/gregriff/vocall/cli/internal/wrtc"
	"github.com/gregriff/vocall/internal/public"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pion/webrtc/v4"
)

var log = logging.Logger("call")

// ErrClosed is returned by intents sent to a closed Machine.
var ErrClosed = errors.New("call machine closed")

const (
	dedupSize    = 256
	finishedSize = 64
	maxDeferred  = 64

	// how long best-effort backend notifications may take once the local side has moved on
	backendTimeout = 5 * time.Second
)

// Engine is the media side of a call. It is implemented by *wrtc.Engine.
type Engine interface {
	LocalStream(ctx context.Context, video bool) (wrtc.LocalStream, error)
	CreateOffer(ctx context.Context, targetID, sessionID string) error
	HandleOffer(ctx context.Context, offer webrtc.SessionDescription, senderID, sessionID string) (webrtc.SessionDescription, wrtc.LocalStream, error)
	HandleAnswer(answer webrtc.SessionDescription, senderID string) error
	HandleCandidate(candidate *webrtc.ICECandidateInit, senderID string) error
	SetEnabled(kind webrtc.RTPCodecType, enabled bool)
	CloseAll()
	Events() <-chan wrtc.Event
}

// Sessions is the call-session API of the server. It is implemented by *vocall.Client.
type Sessions interface {
	StartCall(ctx context.Context, participantIDs []string, callType public.CallType, groupCall bool, groupID string) (string, error)
	AcceptCall(ctx context.Context, sessionID string) error
	DeclineCall(ctx context.Context, sessionID string) error
	EndCall(ctx context.Context, sessionID string) error
}

// Config tunes a Machine.
type Config struct {
	// how long a call may ring, on either side, before giving up. 0 rings forever.
	RingTimeout time.Duration
}

type dedupKey struct {
	signal    public.SignalType
	sessionID string
	origin    string
}

// Machine is the authority on the local user's call. Every field below the
// channels is owned by the run goroutine, and only touched from there.
type Machine struct {
	cfg       Config
	self      Participant
	engine    Engine
	sessions  Sessions
	transport signaling.Transport

	ctx    context.Context
	cancel context.CancelFunc
	// async work: media acquisition, REST calls, negotiation
	work sync.WaitGroup

	actions   chan func()
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// readable from any goroutine
	current   atomic.Pointer[State]
	sessionID atomic.Value

	subsMu sync.Mutex
	subs   map[int]chan Update
	nextID int

	phase   Phase
	session *Session
	// bumped on every cleanup so completions of torn down calls can be told apart
	epoch uint64

	seen     *dedupSet[dedupKey]
	finished *dedupSet[string]
	// signals that arrived before our outgoing session id was known
	deferred []*public.Envelope
	// peers whose offer is being answered, with the candidates they sent meanwhile
	answering map[string][]*public.Envelope
	// peers we sent an offer to in this session
	offered map[string]bool

	accepting   bool
	localStream bool
	remote      map[string]*RemoteStream
	muted       bool
	videoOn     bool
	ringTimer   *time.Timer
}

// New creates a Machine for the local user self and starts its event loop.
// Close must be called to stop it.
func New(cfg Config, self Participant, engine Engine, sessions Sessions, transport signaling.Transport) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		cfg:       cfg,
		self:      self,
		engine:    engine,
		sessions:  sessions,
		transport: transport,
		ctx:       ctx,
		cancel:    cancel,
		actions:   make(chan func()),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		subs:      make(map[int]chan Update),
		seen:      newDedupSet[dedupKey](dedupSize),
		finished:  newDedupSet[string](finishedSize),
		answering: make(map[string][]*public.Envelope),
		offered:   make(map[string]bool),
		remote:    make(map[string]*RemoteStream),
	}
	m.sessionID.Store("")
	initial := m.state()
	m.current.Store(&initial)

	go m.run()
	return m
}

func (m *Machine) run() {
	defer close(m.stopped)

	inbox := m.transport.Inbox()
	events := m.engine.Events()
	for {
		select {
		case fn := <-m.actions:
			fn()
		case env, ok := <-inbox:
			if !ok {
				inbox = nil
				m.transportLost()
				continue
			}
			m.handleSignal(env)
		case ev := <-events:
			m.handleEngineEvent(ev)
		case <-m.quit:
			return
		}
	}
}

// do runs fn on the loop and waits for it to return.
func (m *Machine) do(fn func()) error {
	done := make(chan struct{})
	select {
	case m.actions <- func() { fn(); close(done) }:
	case <-m.quit:
		return ErrClosed
	}
	<-done
	return nil
}

// post queues fn on the loop without waiting. It is dropped if the machine is closed.
func (m *Machine) post(fn func()) {
	select {
	case m.actions <- fn:
	case <-m.quit:
	}
}

// goAsync runs blocking work off the loop. Its completion must be posted back
// and checked with stale before touching state.
func (m *Machine) goAsync(fn func()) {
	m.work.Go(fn)
}

// stale reports whether a completion started in epoch was overtaken by a cleanup.
func (m *Machine) stale(epoch uint64) bool {
	return epoch != m.epoch || m.phase == PhaseIdle
}

// Snapshot returns the latest published state.
func (m *Machine) Snapshot() State { return *m.current.Load() }

// SessionID returns the id of the current session, or "" if there is none or
// it is not known yet.
func (m *Machine) SessionID() string { return m.sessionID.Load().(string) }

// Subscribe returns a channel of state updates starting with the current state,
// and a func to stop receiving them. A slow subscriber misses intermediate
// updates but always receives the latest one.
func (m *Machine) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 8)
	ch <- Update{State: m.Snapshot()}

	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	if m.subs == nil {
		close(ch)
	} else {
		m.subs[id] = ch
	}
	m.subsMu.Unlock()

	return ch, func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
}

// publish stores the current state and fans it out with an optional notice. Loop only.
func (m *Machine) publish(notice *Notice) {
	s := m.state()
	m.current.Store(&s)
	u := Update{State: s, Notice: notice}

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- u:
			continue
		default:
		}
		// full: drop the oldest update to make room for this one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}

func (m *Machine) setPhase(p Phase) {
	if m.phase == p {
		return
	}
	log.Infof("phase %s -> %s", m.phase, p)
	m.phase = p
	if p == PhaseActive {
		m.stopRingTimer()
	}
}

func (m *Machine) commitSessionID(id string) {
	m.session.ID = id
	m.sessionID.Store(id)
}

// cleanup tears the call down and returns to IDLE, releasing all media. Loop only.
func (m *Machine) cleanup(notice *Notice) {
	m.stopRingTimer()
	m.engine.CloseAll()
	m.declineDeferredRings()

	if m.session != nil && m.session.ID != "" {
		m.finished.add(m.session.ID)
	}
	m.epoch++
	m.setPhase(PhaseIdle)
	m.session = nil
	m.sessionID.Store("")
	m.seen.reset()
	m.deferred = nil
	clear(m.answering)
	clear(m.offered)
	clear(m.remote)
	m.accepting = false
	m.localStream = false
	m.muted = false
	m.videoOn = false

	if notice != nil {
		log.Infof("call over (%s): %s", notice.Kind, notice.Message)
	}
	m.publish(notice)
}

// declineDeferredRings declines the incoming calls that arrived while our own
// session id was pending. They were never shown, so nobody else will answer them.
func (m *Machine) declineDeferredRings() {
	for _, env := range m.deferred {
		if env.Type != public.SignalRing || env.InitiatorID == m.self.ID || m.finished.has(env.SessionID) {
			continue
		}
		log.Infof("declining call %s from %s held while placing our own", env.SessionID, env.InitiatorID)
		m.finished.add(env.SessionID)
		m.declineOnBackend(env.SessionID)
	}
}

func (m *Machine) startRingTimer(epoch uint64) {
	m.stopRingTimer()
	if m.cfg.RingTimeout <= 0 {
		return
	}
	m.ringTimer = time.AfterFunc(m.cfg.RingTimeout, func() {
		m.post(func() { m.ringTimedOut(epoch) })
	})
}

func (m *Machine) stopRingTimer() {
	if m.ringTimer != nil {
		m.ringTimer.Stop()
		m.ringTimer = nil
	}
}

// notifyBackend runs a best-effort session update after the local state has already moved on.
func (m *Machine) notifyBackend(verb, sessionID string, fn func(context.Context, string) error) {
	if sessionID == "" {
		return
	}
	m.goAsync(func() {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		if err := fn(ctx, sessionID); err != nil {
			log.Warnf("error telling server we %s call %s: %v", verb, sessionID, err)
		}
	})
}

func (m *Machine) declineOnBackend(sessionID string) {
	m.notifyBackend("declined", sessionID, m.sessions.DeclineCall)
}

func (m *Machine) endOnBackend(sessionID string) {
	m.notifyBackend("ended", sessionID, m.sessions.EndCall)
}

// Close hangs up any call in progress and stops the machine. Subscriber channels are closed.
func (m *Machine) Close() error {
	m.closeOnce.Do(func() {
		_ = m.do(m.emergencyCleanup)
		close(m.quit)
		<-m.stopped
		m.cancel()
		m.work.Wait()

		m.subsMu.Lock()
		for id, ch := range m.subs {
			delete(m.subs, id)
			close(ch)
		}
		m.subs = nil
		m.subsMu.Unlock()
	})
	return nil
}

func (m *Machine) emergencyCleanup() {
	if m.phase == PhaseIdle {
		return
	}
	log.Infof("closing with a call in progress, hanging up")
	if m.phase == PhaseRinging {
		m.declineOnBackend(m.session.ID)
	} else {
		m.endOnBackend(m.session.ID)
	}
	m.cleanup(nil)
}
