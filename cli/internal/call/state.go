package call

import (
	"github.com/gregriff/vocall/internal/public"
	"github.com/pion/webrtc/v4"
)

// Phase is where the local client is in the life of a call.
type Phase int

const (
	// PhaseIdle means no call is happening.
	PhaseIdle Phase = iota
	// PhaseOutgoing means we rang someone and wait for them to accept.
	PhaseOutgoing
	// PhaseRinging means someone rang us and we have not answered yet.
	PhaseRinging
	// PhaseActive means media is being negotiated or flowing.
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseOutgoing:
		return "OUTGOING"
	case PhaseRinging:
		return "RINGING"
	case PhaseActive:
		return "ACTIVE"
	}
	return "UNKNOWN"
}

// Participant identifies a user, or a group for group calls.
type Participant struct {
	ID   string
	Name string
}

// Label is the name of p if it has one, else its id.
func (p Participant) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// Session is the call that is currently outgoing, ringing or active.
type Session struct {
	// empty until the server assigns it for an outgoing call
	ID      string
	Type    public.CallType
	IsGroup bool
	GroupID string

	Initiator Participant
	// the other party of a 1:1 call, or the group
	Remote Participant
	// set when the local user placed the call
	Outgoing bool
}

// RemoteStream is the inbound media of one remote participant.
type RemoteStream struct {
	Peer   string
	Tracks []*webrtc.TrackRemote
}

// State is what the presentation layer renders. It is a copy; mutating it has no effect.
type State struct {
	Phase   Phase
	Session *Session
	Remote  Participant

	LocalStreamAvailable bool
	RemoteStreams        map[string]RemoteStream

	Muted        bool
	VideoEnabled bool
}

// NoticeKind classifies one-shot user notices.
type NoticeKind string

const (
	NoticeMediaAccess NoticeKind = "media-access"
	NoticeTransport   NoticeKind = "transport"
	NoticeRejected    NoticeKind = "rejected"
	NoticeDeclined    NoticeKind = "declined"
	NoticeEnded       NoticeKind = "ended"
	NoticeNoAnswer    NoticeKind = "no-answer"
	NoticeMissed      NoticeKind = "missed"
	NoticeFailed      NoticeKind = "failed"
)

// Notice is a one-shot message for the user about why a call ended or failed.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Update is delivered to subscribers on every state change.
type Update struct {
	State  State
	Notice *Notice
}

// state copies the machine's loop-owned fields into a State. Loop only.
func (m *Machine) state() State {
	s := State{
		Phase:                m.phase,
		LocalStreamAvailable: m.localStream,
		RemoteStreams:        make(map[string]RemoteStream, len(m.remote)),
		Muted:                m.muted,
		VideoEnabled:         m.videoOn,
	}
	if m.session != nil {
		sess := *m.session
		s.Session = &sess
		s.Remote = sess.Remote
	}
	for peer, rs := range m.remote {
		s.RemoteStreams[peer] = RemoteStream{Peer: rs.Peer, Tracks: append([]*webrtc.TrackRemote(nil), rs.Tracks...)}
	}
	return s
}
