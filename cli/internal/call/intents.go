package call

import (
	"errors"
	"fmt"

	"github.com/gregriff/vocall/cli/internal/services/signaling"
	"github.com/gregriff/vocall/cli/internal/services/vocall"
	"github.com/gregriff/vocall/cli/internal/wrtc"
	"github.com/gregriff/vocall/internal/public"
	"github.com/pion/webrtc/v4"
)

// CallRequest describes a call the local user wants to place.
type CallRequest struct {
	Target Participant
	Type   public.CallType

	IsGroup bool
	GroupID string
	// everyone to ring in a group call. Defaults to just Target.
	ParticipantIDs []string
}

// InitiateCall rings req.Target. It is ignored unless the machine is idle.
// The call proceeds asynchronously; follow it with Subscribe.
func (m *Machine) InitiateCall(req CallRequest) error {
	return m.do(func() { m.initiate(req) })
}

// AcceptCall answers the ringing call.
func (m *Machine) AcceptCall() error { return m.do(m.accept) }

// DeclineCall rejects the ringing call.
func (m *Machine) DeclineCall() error { return m.do(m.decline) }

// EndCall hangs up, whatever the phase.
func (m *Machine) EndCall() error { return m.do(m.hangUp) }

// ToggleMute stops or resumes sending the microphone.
func (m *Machine) ToggleMute() error { return m.do(m.toggleMute) }

// ToggleVideo stops or resumes sending the camera on video calls.
func (m *Machine) ToggleVideo() error { return m.do(m.toggleVideo) }

func (m *Machine) initiate(req CallRequest) {
	if m.phase != PhaseIdle {
		log.Warnf("already in a call (%s), not calling %s", m.phase, req.Target.ID)
		return
	}
	if req.Target.ID == "" {
		log.Warnf("no one to call")
		return
	}
	if !req.Type.Valid() {
		req.Type = public.CallAudio
	}
	participants := req.ParticipantIDs
	if len(participants) == 0 {
		participants = []string{req.Target.ID}
	}

	m.epoch++
	m.session = &Session{
		Type:      req.Type,
		IsGroup:   req.IsGroup,
		GroupID:   req.GroupID,
		Initiator: m.self,
		Remote:    req.Target,
		Outgoing:  true,
	}
	m.videoOn = req.Type == public.CallVideo
	m.setPhase(PhaseOutgoing)
	m.startRingTimer(m.epoch)
	log.Infof("calling %s (%s)", req.Target.Label(), req.Type)
	m.publish(nil)

	epoch, video := m.epoch, req.Type == public.CallVideo
	m.goAsync(func() {
		_, err := m.engine.LocalStream(m.ctx, video)
		m.post(func() { m.outgoingMediaReady(epoch, participants, err) })
	})
}

func (m *Machine) outgoingMediaReady(epoch uint64, participants []string, err error) {
	if m.stale(epoch) {
		log.Debugf("local media resolved for a call that is over")
		return
	}
	if err != nil {
		m.fail(err)
		return
	}
	m.localStream = true
	m.publish(nil)

	sess := *m.session
	m.goAsync(func() {
		id, err := m.sessions.StartCall(m.ctx, participants, sess.Type, sess.IsGroup, sess.GroupID)
		m.post(func() { m.sessionCreated(epoch, id, err) })
	})
}

func (m *Machine) sessionCreated(epoch uint64, id string, err error) {
	if m.stale(epoch) {
		if err == nil && id != "" {
			log.Infof("call %s was created after we hung up, ending it", id)
			m.finished.add(id)
			m.endOnBackend(id)
		}
		return
	}
	if err != nil {
		m.fail(err)
		return
	}

	m.commitSessionID(id)
	log.Infof("call session %s created", id)
	m.publish(nil)
	m.replayDeferred()
}

func (m *Machine) accept() {
	if m.phase != PhaseRinging || m.accepting {
		log.Warnf("nothing to accept (%s)", m.phase)
		return
	}
	m.accepting = true

	epoch, sessionID, video := m.epoch, m.session.ID, m.session.Type == public.CallVideo
	m.goAsync(func() {
		_, err := m.engine.LocalStream(m.ctx, video)
		m.post(func() { m.acceptMediaReady(epoch, sessionID, err) })
	})
}

func (m *Machine) acceptMediaReady(epoch uint64, sessionID string, err error) {
	if m.stale(epoch) {
		log.Debugf("local media resolved for a call that is over")
		return
	}
	if err != nil {
		m.fail(err)
		return
	}
	m.localStream = true
	m.publish(nil)

	m.goAsync(func() {
		err := m.sessions.AcceptCall(m.ctx, sessionID)
		m.post(func() { m.accepted(epoch, err) })
	})
}

func (m *Machine) accepted(epoch uint64, err error) {
	if m.stale(epoch) {
		log.Debugf("accept confirmed for a call that is over")
		return
	}
	if err != nil {
		m.fail(err)
		return
	}
	m.accepting = false
	m.setPhase(PhaseActive)
	m.publish(nil)
}

func (m *Machine) decline() {
	if m.phase != PhaseRinging {
		log.Warnf("nothing to decline (%s)", m.phase)
		return
	}
	m.declineOnBackend(m.session.ID)
	m.cleanup(nil)
}

func (m *Machine) hangUp() {
	switch m.phase {
	case PhaseIdle:
		return
	case PhaseRinging:
		m.decline()
		return
	}
	// an outgoing call without an id yet is ended once StartCall resolves, see sessionCreated
	m.endOnBackend(m.session.ID)
	m.cleanup(nil)
}

func (m *Machine) toggleMute() {
	if !m.localStream {
		return
	}
	m.muted = !m.muted
	m.engine.SetEnabled(webrtc.RTPCodecTypeAudio, !m.muted)
	m.publish(nil)
}

func (m *Machine) toggleVideo() {
	if !m.localStream || m.session.Type != public.CallVideo {
		return
	}
	m.videoOn = !m.videoOn
	m.engine.SetEnabled(webrtc.RTPCodecTypeVideo, m.videoOn)
	m.publish(nil)
}

// answer acquires media, then answers offer. Runs off the loop.
func (m *Machine) answer(offer webrtc.SessionDescription, peer, sessionID string, video bool) (webrtc.SessionDescription, error) {
	if _, err := m.engine.LocalStream(m.ctx, video); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, _, err := m.engine.HandleOffer(m.ctx, offer, peer, sessionID)
	return answer, err
}

func (m *Machine) answerReady(epoch uint64, peer string, answer webrtc.SessionDescription, err error) {
	if m.stale(epoch) {
		log.Debugf("answer for %s resolved for a call that is over", peer)
		return
	}
	held := m.answering[peer]
	delete(m.answering, peer)
	if err != nil {
		m.negotiationFailed(peer, err)
		return
	}

	env := &public.Envelope{
		Type:      public.SignalAnswer,
		SessionID: m.session.ID,
		SenderID:  m.self.ID,
		TargetID:  peer,
	}
	if err := env.SetData(answer); err != nil {
		m.negotiationFailed(peer, err)
		return
	}
	if err := m.transport.Send(public.RouteAnswer, env); err != nil {
		m.negotiationFailed(peer, err)
		return
	}
	log.Infof("answer sent to %s", peer)

	for _, c := range held {
		m.applyCandidate(c)
	}
	m.localStream = true
	m.setPhase(PhaseActive)
	m.publish(nil)
}

func (m *Machine) offerSent(epoch uint64, peer string, err error) {
	if m.stale(epoch) {
		log.Debugf("offer to %s resolved for a call that is over", peer)
		return
	}
	if err != nil {
		m.negotiationFailed(peer, err)
		return
	}
	m.localStream = true
	m.publish(nil)
}

// negotiationFailed ends a 1:1 call, or drops the peer from a group call.
func (m *Machine) negotiationFailed(peer string, err error) {
	if errors.Is(err, wrtc.ErrStale) {
		log.Debugf("negotiation with %s overtaken by teardown", peer)
		return
	}
	if m.session.IsGroup && !errors.Is(err, wrtc.ErrMediaAccess) && !errors.Is(err, signaling.ErrNotConnected) {
		log.Warnf("negotiation with %s failed: %v", peer, err)
		m.dropPeer(peer)
		m.publish(nil)
		return
	}
	m.fail(fmt.Errorf("negotiation with %s failed: %w", peer, err))
}

// fail aborts the call attempt and tells the server, turning err into a user notice.
func (m *Machine) fail(err error) {
	notice := &Notice{Kind: NoticeFailed, Message: err.Error()}
	switch {
	case errors.Is(err, wrtc.ErrMediaAccess):
		notice.Kind = NoticeMediaAccess
	case errors.Is(err, signaling.ErrNotConnected):
		notice.Kind = NoticeTransport
	case errors.Is(err, vocall.ErrRejected):
		notice.Kind = NoticeRejected
	}
	log.Errorf("call failed: %v", err)

	if m.phase == PhaseRinging {
		m.declineOnBackend(m.session.ID)
	} else if m.session != nil {
		m.endOnBackend(m.session.ID)
	}
	m.cleanup(notice)
}

func (m *Machine) ringTimedOut(epoch uint64) {
	if m.stale(epoch) {
		return
	}
	switch m.phase {
	case PhaseOutgoing:
		m.endOnBackend(m.session.ID)
		m.cleanup(&Notice{Kind: NoticeNoAnswer, Message: m.session.Remote.Label() + " did not answer"})
	case PhaseRinging:
		from := m.session.Initiator.Label()
		m.declineOnBackend(m.session.ID)
		m.cleanup(&Notice{Kind: NoticeMissed, Message: "missed call from " + from})
	}
}
