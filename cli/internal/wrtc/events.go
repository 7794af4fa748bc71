package wrtc

import (
	"github.com/gregriff/vocall/internal/public"
	"github.com/pion/webrtc/v4"
)

// Event is emitted by the Engine for things the call state machine reacts to.
// It is one of TrackEvent or StateEvent.
type Event interface {
	// PeerID is the remote participant the event concerns.
	PeerID() string
	// SessionID is the call session the connection was negotiated for.
	SessionID() string
}

// TrackEvent reports a new inbound media track from a peer.
type TrackEvent struct {
	Peer     string
	Session  string
	Track    *webrtc.TrackRemote
	Receiver *webrtc.RTPReceiver
}

// StateEvent reports a peer connection state change.
type StateEvent struct {
	Peer    string
	Session string
	State   webrtc.PeerConnectionState
}

func (e TrackEvent) PeerID() string { return e.Peer }
func (e StateEvent) PeerID() string { return e.Peer }

func (e TrackEvent) SessionID() string { return e.Session }
func (e StateEvent) SessionID() string { return e.Session }

// emit hands ev to the Events channel unless the engine has shut down.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) onICECandidate(p *peer, candidate *webrtc.ICECandidate) {
	if candidate == nil {
		log.Debugf("ice gathering complete for %s", p.id)
		return
	}
	log.Debugf("ice candidate gathered for %s: %s", p.id, candidate.Address)
	if !e.owns(p) {
		return
	}

	if held := p.holdCandidate(candidate.ToJSON()); held {
		return
	}
	e.sendCandidate(p, candidate.ToJSON())
}

// sendCandidate relays a local candidate to the remote peer.
func (e *Engine) sendCandidate(p *peer, c webrtc.ICECandidateInit) {
	env := &public.Envelope{
		Type:      public.SignalCandidate,
		SessionID: p.sessionID,
		SenderID:  e.self,
		TargetID:  p.id,
	}
	if err := env.SetData(c); err != nil {
		log.Warnf("%v", err)
		return
	}
	if err := e.out.Send(public.RouteCandidate, env); err != nil {
		log.Warnf("error sending candidate to %s: %v", p.id, err)
	}
}

func (e *Engine) onConnectionStateChange(p *peer, state webrtc.PeerConnectionState) {
	log.Infof("peer connection to %s has changed: %s", p.id, state)
	if !e.owns(p) {
		return
	}
	e.emit(StateEvent{Peer: p.id, Session: p.sessionID, State: state})
}

func (e *Engine) onTrack(p *peer, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	log.Infof("remote %s track from %s (%s)", track.Kind(), p.id, track.Codec().MimeType)
	if !e.owns(p) {
		return
	}
	e.emit(TrackEvent{Peer: p.id, Session: p.sessionID, Track: track, Receiver: receiver})
}
