package schemas

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gregriff/vocall/internal/public"
)

// ErrCallNotFound is returned for ids that are not (or no longer) in a CallMap.
var ErrCallNotFound = errors.New("call not found")

// CallStatus is the server-side lifecycle of a call session.
type CallStatus string

const (
	CallRinging CallStatus = "RINGING"
	CallActive  CallStatus = "ACTIVE"
)

// CallSession is the server's record of one call. It only lives in memory.
type CallSession struct {
	// generated when the call is started. not to be chosen by the caller
	ID uuid.UUID

	InitiatorID string
	// everyone that was rung, excluding the initiator
	ParticipantIDs []string

	Type    public.CallType
	IsGroup bool
	GroupID string

	Status    CallStatus
	StartedAt time.Time
}

// HasMember reports whether userID started or was rung for this call.
func (c CallSession) HasMember(userID string) bool {
	return c.InitiatorID == userID || slices.Contains(c.ParticipantIDs, userID)
}

// Members returns the initiator and every participant.
func (c CallSession) Members() []string {
	return append([]string{c.InitiatorID}, c.ParticipantIDs...)
}

// CallMap stores call sessions from the time they are started until they are
// declined or ended. Takes a session id as a key
type CallMap struct {
	mu    sync.Mutex
	calls map[uuid.UUID]CallSession
}

// NewCallMap creates an empty CallMap.
func NewCallMap() *CallMap {
	return &CallMap{calls: make(map[uuid.UUID]CallSession, 10)}
}

// Create stores a new ringing session and returns it.
func (m *CallMap) Create(initiatorID string, participantIDs []string, callType public.CallType, isGroup bool, groupID string) CallSession {
	call := CallSession{
		ID:             uuid.New(),
		InitiatorID:    initiatorID,
		ParticipantIDs: slices.Clone(participantIDs),
		Type:           callType,
		IsGroup:        isGroup,
		GroupID:        groupID,
		Status:         CallRinging,
		StartedAt:      time.Now(),
	}
	m.Update(call)
	return call
}

// Update inserts or replaces the session with call.ID
func (m *CallMap) Update(call CallSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[call.ID] = call
}

// Get returns a copy of the session for a given id, returning ErrCallNotFound if there is none.
// Updating a call should be done with CallMap.Update
func (m *CallMap) Get(id uuid.UUID) (CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, exists := m.calls[id]
	if !exists {
		return CallSession{}, ErrCallNotFound
	}
	call.ParticipantIDs = slices.Clone(call.ParticipantIDs)
	return call, nil
}

// SetStatus moves the session to status, returning ErrCallNotFound if there is none.
func (m *CallMap) SetStatus(id uuid.UUID, status CallStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, exists := m.calls[id]
	if !exists {
		return ErrCallNotFound
	}
	call.Status = status
	m.calls[id] = call
	return nil
}

// Delete removes a session and reports whether it existed.
func (m *CallMap) Delete(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.calls[id]
	delete(m.calls, id)
	return exists
}

// Len returns the number of sessions in the map.
func (m *CallMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
