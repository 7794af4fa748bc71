// package public contains structs that are exchanged between the vocall server and its clients.
// Nothing in here is private to either side: these are the wire formats of the signaling
// websocket and the call-session REST API.
package public

import (
	"encoding/json"
	"fmt"
)

// SignalType is the kind of a signal. Values match the `type` field on the wire.
type SignalType string

const (
	SignalRing      SignalType = "call:ring"
	SignalOffer     SignalType = "call:offer"
	SignalAnswer    SignalType = "call:answer"
	SignalCandidate SignalType = "call:candidate"
	SignalAccepted  SignalType = "call:accepted"
	SignalDeclined  SignalType = "call:declined"
	SignalEnded     SignalType = "call:ended"
)

// Valid reports whether t is one of the known signal types.
func (t SignalType) Valid() bool {
	switch t {
	case SignalRing, SignalOffer, SignalAnswer, SignalCandidate,
		SignalAccepted, SignalDeclined, SignalEnded:
		return true
	}
	return false
}

// CallType is the media kind of a call.
type CallType string

const (
	CallAudio CallType = "AUDIO"
	CallVideo CallType = "VIDEO"
)

// Valid reports whether c is AUDIO or VIDEO.
func (c CallType) Valid() bool { return c == CallAudio || c == CallVideo }

// Routes a client may publish signals to. The server relays whatever arrives
// on them to the envelope's TargetID.
const (
	RouteOffer     = "/call/offer"
	RouteAnswer    = "/call/answer"
	RouteCandidate = "/call/candidate"
)

// RouteFor returns the publish route for a peer-to-peer signal type,
// or an empty string if clients may not publish that type directly.
func RouteFor(t SignalType) string {
	switch t {
	case SignalOffer:
		return RouteOffer
	case SignalAnswer:
		return RouteAnswer
	case SignalCandidate:
		return RouteCandidate
	}
	return ""
}

// Envelope is a single addressed signaling message.
type Envelope struct {
	Type      SignalType `json:"type"`
	SessionID string     `json:"sessionId"`
	SenderID  string     `json:"senderId"`
	TargetID  string     `json:"targetId,omitempty"`

	IsGroup bool   `json:"isGroup,omitempty"`
	GroupID string `json:"groupId,omitempty"`

	InitiatorID   string   `json:"initiatorId,omitempty"`
	InitiatorName string   `json:"initiatorName,omitempty"`
	CallType      CallType `json:"callType,omitempty"`

	// SDP offer/answer, ICE candidate, or null
	Data json.RawMessage `json:"data,omitempty"`
}

// SetData marshals v into the envelope's data field.
func (e *Envelope) SetData(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("error encoding %s payload: %w", e.Type, err)
	}
	e.Data = data
	return nil
}

// DecodeData unmarshals the envelope's data field into v. A missing or null
// payload leaves v untouched and returns false.
func (e *Envelope) DecodeData(v any) (bool, error) {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return false, fmt.Errorf("error decoding %s payload: %w", e.Type, err)
	}
	return true, nil
}

// Frame is the unit written by a client to the signaling websocket.
type Frame struct {
	Route  string    `json:"route"`
	Signal *Envelope `json:"signal"`
}
