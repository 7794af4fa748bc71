package public

// UserHeader carries the id of the user a request is made on behalf of.
// The websocket endpoint also accepts it as the `user` query parameter.
const UserHeader = "X-Vocall-User"

// StartCallRequest is the request data used to ring one or more participants.
type StartCallRequest struct {
	ParticipantIDs []string `json:"participantIds"`
	CallType       CallType `json:"callType"`
	GroupCall      bool     `json:"groupCall"`
	GroupID        string   `json:"groupId,omitempty"`
}

// StartCallResponse carries the id the server assigned to a new call session.
type StartCallResponse struct {
	SessionID string `json:"sessionId"`
}

// User is the public view of a directory entry.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
