package call

import (
	"errors"

	"github.com/gregriff/vocall/cli/internal/services/signaling"
	"github.com/gregriff/vocall/cli/internal/wrtc"
	"github.com/gregriff/vocall/internal/public"
	"github.com/pion/webrtc/v4"
)

// errStaleSignal marks signals for a session that is no longer current. They are
// only ever logged at debug level.
var errStaleSignal = errors.New("stale signal")

func dropStale(env *public.Envelope, why string) {
	log.Debugf("%v: %s for session %s from %s (%s)", errStaleSignal, env.Type, env.SessionID, env.SenderID, why)
}

// handleSignal applies an inbound signal. Loop only.
func (m *Machine) handleSignal(env *public.Envelope) {
	if env.SessionID == "" {
		log.Warnf("dropping %s without a session id from %s", env.Type, env.SenderID)
		return
	}

	// we cannot tell our own session from another until the server has named it
	if m.awaitingSessionID() {
		if len(m.deferred) >= maxDeferred {
			log.Warnf("too many signals while waiting for a session id, dropping %s", env.Type)
			return
		}
		log.Debugf("deferring %s for session %s until our session id is known", env.Type, env.SessionID)
		m.deferred = append(m.deferred, env)
		return
	}

	if m.finished.has(env.SessionID) {
		dropStale(env, "session already over")
		return
	}
	if env.Type != public.SignalCandidate && m.seen.has(dedupKey{env.Type, env.SessionID, env.SenderID}) {
		log.Debugf("duplicate %s for session %s from %s", env.Type, env.SessionID, env.SenderID)
		return
	}

	switch env.Type {
	case public.SignalRing:
		m.onRing(env)
	case public.SignalAccepted:
		m.onAccepted(env)
	case public.SignalDeclined:
		m.onDeclined(env)
	case public.SignalEnded:
		m.onEnded(env)
	case public.SignalOffer:
		m.onOffer(env)
	case public.SignalAnswer:
		m.onAnswer(env)
	case public.SignalCandidate:
		m.onCandidate(env)
	default:
		log.Warnf("unknown signal type %q", env.Type)
	}
}

func (m *Machine) awaitingSessionID() bool {
	return m.phase == PhaseOutgoing && m.session != nil && m.session.ID == ""
}

// replayDeferred handles the signals held while the session id was pending.
func (m *Machine) replayDeferred() {
	deferred := m.deferred
	m.deferred = nil
	for _, env := range deferred {
		m.handleSignal(env)
	}
}

// isCurrent reports whether env belongs to the session we know the id of.
func (m *Machine) isCurrent(env *public.Envelope) bool {
	return m.session != nil && m.session.ID != "" && env.SessionID == m.session.ID
}

func (m *Machine) markSeen(env *public.Envelope) {
	m.seen.add(dedupKey{env.Type, env.SessionID, env.SenderID})
}

// dropPeer forgets a group member whose connection is gone, so that a fresh
// accept from them is offered to again.
func (m *Machine) dropPeer(peer string) {
	delete(m.remote, peer)
	delete(m.offered, peer)
	m.seen.remove(dedupKey{public.SignalAccepted, m.session.ID, peer})
}

func (m *Machine) onRing(env *public.Envelope) {
	ownOutgoing := m.session != nil && m.session.Outgoing && env.SessionID == m.session.ID
	if ownOutgoing || env.InitiatorID == m.self.ID {
		log.Debugf("ignoring echo of our own ring for session %s", env.SessionID)
		return
	}
	if m.isCurrent(env) {
		log.Debugf("ring for the session we are already in, ignoring")
		return
	}
	m.markSeen(env)

	if m.phase != PhaseIdle {
		log.Infof("busy in session %s, declining incoming call %s from %s", m.session.ID, env.SessionID, env.InitiatorID)
		m.finished.add(env.SessionID)
		m.declineOnBackend(env.SessionID)
		return
	}

	callType := env.CallType
	if !callType.Valid() {
		callType = public.CallAudio
	}
	initiator := Participant{ID: env.InitiatorID, Name: env.InitiatorName}
	remote := initiator
	if env.IsGroup {
		remote = Participant{ID: env.GroupID, Name: "group " + env.GroupID}
	}

	m.epoch++
	m.session = &Session{
		Type:      callType,
		IsGroup:   env.IsGroup,
		GroupID:   env.GroupID,
		Initiator: initiator,
		Remote:    remote,
	}
	m.commitSessionID(env.SessionID)
	m.videoOn = callType == public.CallVideo
	m.setPhase(PhaseRinging)
	m.startRingTimer(m.epoch)
	log.Infof("incoming %s call %s from %s", callType, env.SessionID, initiator.Label())
	m.publish(nil)
}

func (m *Machine) onAccepted(env *public.Envelope) {
	if !m.isCurrent(env) || (m.phase != PhaseOutgoing && m.phase != PhaseActive) {
		dropStale(env, "not waiting for an accept")
		return
	}
	if m.offered[env.SenderID] {
		log.Debugf("already offered to %s", env.SenderID)
		return
	}
	m.markSeen(env)
	m.offered[env.SenderID] = true

	log.Infof("%s accepted, sending offer", env.SenderID)
	m.setPhase(PhaseActive)
	m.publish(nil)

	epoch, peer, sessionID := m.epoch, env.SenderID, m.session.ID
	m.goAsync(func() {
		err := m.engine.CreateOffer(m.ctx, peer, sessionID)
		m.post(func() { m.offerSent(epoch, peer, err) })
	})
}

func (m *Machine) onDeclined(env *public.Envelope) {
	if !m.isCurrent(env) || m.phase != PhaseOutgoing {
		dropStale(env, "not waiting for an answer")
		return
	}
	m.markSeen(env)
	if m.session.IsGroup {
		log.Infof("%s declined the group call", env.SenderID)
		return
	}
	m.cleanup(&Notice{Kind: NoticeDeclined, Message: m.session.Remote.Label() + " declined the call"})
}

func (m *Machine) onEnded(env *public.Envelope) {
	if !m.isCurrent(env) {
		dropStale(env, "not the current session")
		return
	}
	m.markSeen(env)
	m.cleanup(&Notice{Kind: NoticeEnded, Message: "call ended by " + env.SenderID})
}

func (m *Machine) onOffer(env *public.Envelope) {
	if !m.isCurrent(env) || m.phase == PhaseIdle {
		dropStale(env, "not the current session")
		return
	}
	m.markSeen(env)

	var offer webrtc.SessionDescription
	if ok, err := env.DecodeData(&offer); !ok || err != nil {
		log.Warnf("dropping offer from %s without a session description: %v", env.SenderID, err)
		return
	}

	peer, sessionID := env.SenderID, m.session.ID
	m.answering[peer] = nil
	epoch, video := m.epoch, m.session.Type == public.CallVideo
	m.goAsync(func() {
		answer, err := m.answer(offer, peer, sessionID, video)
		m.post(func() { m.answerReady(epoch, peer, answer, err) })
	})
}

func (m *Machine) onAnswer(env *public.Envelope) {
	if !m.isCurrent(env) || (m.phase != PhaseActive && m.phase != PhaseOutgoing) {
		dropStale(env, "no offer outstanding")
		return
	}
	m.markSeen(env)

	var answer webrtc.SessionDescription
	if ok, err := env.DecodeData(&answer); !ok || err != nil {
		log.Warnf("dropping answer from %s without a session description: %v", env.SenderID, err)
		return
	}
	if err := m.engine.HandleAnswer(answer, env.SenderID); err != nil {
		m.negotiationFailed(env.SenderID, err)
	}
}

func (m *Machine) onCandidate(env *public.Envelope) {
	if !m.isCurrent(env) || m.phase == PhaseIdle {
		dropStale(env, "not the current session")
		return
	}
	if held, ok := m.answering[env.SenderID]; ok {
		m.answering[env.SenderID] = append(held, env)
		return
	}
	m.applyCandidate(env)
}

func (m *Machine) applyCandidate(env *public.Envelope) {
	var candidate webrtc.ICECandidateInit
	ok, err := env.DecodeData(&candidate)
	if err != nil {
		log.Warnf("dropping malformed candidate from %s: %v", env.SenderID, err)
		return
	}
	if !ok {
		return
	}
	if err := m.engine.HandleCandidate(&candidate, env.SenderID); err != nil {
		log.Warnf("error applying candidate from %s: %v", env.SenderID, err)
	}
}

// transportLost ends any call once the signaling channel is gone for good.
func (m *Machine) transportLost() {
	log.Warnf("signaling channel closed")
	if m.phase == PhaseIdle {
		return
	}
	if m.phase == PhaseRinging {
		m.declineOnBackend(m.session.ID)
	} else {
		m.endOnBackend(m.session.ID)
	}
	m.cleanup(&Notice{Kind: NoticeTransport, Message: signaling.ErrNotConnected.Error()})
}

// handleEngineEvent records remote media and reacts to failed connections. Loop only.
func (m *Machine) handleEngineEvent(ev wrtc.Event) {
	if m.phase == PhaseIdle || m.session == nil || ev.SessionID() != m.session.ID {
		log.Debugf("dropping engine event from %s for session %s", ev.PeerID(), ev.SessionID())
		return
	}
	switch ev := ev.(type) {
	case wrtc.TrackEvent:
		rs, ok := m.remote[ev.Peer]
		if !ok {
			rs = &RemoteStream{Peer: ev.Peer}
			m.remote[ev.Peer] = rs
		}
		rs.Tracks = append(rs.Tracks, ev.Track)
		m.publish(nil)
	case wrtc.StateEvent:
		if ev.State != webrtc.PeerConnectionStateFailed {
			return
		}
		if m.session.IsGroup {
			log.Warnf("connection to %s failed, dropping them from the call", ev.Peer)
			m.dropPeer(ev.Peer)
			m.publish(nil)
			return
		}
		m.endOnBackend(m.session.ID)
		m.cleanup(&Notice{Kind: NoticeFailed, Message: "connection to " + ev.Peer + " failed"})
	}
}
