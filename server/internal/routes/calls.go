package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gregriff/vocall/internal/public"
	"github.com/gregriff/vocall/server/internal/dal"
	"github.com/gregriff/vocall/server/internal/middleware"
	"github.com/gregriff/vocall/server/internal/schemas"
)

// StartCall creates a call session and rings every participant.
func (h *RouteHandler) StartCall(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var req public.StartCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.CallType == "" {
		req.CallType = public.CallAudio
	}
	if !req.CallType.Valid() {
		http.Error(w, "unknown call type", http.StatusBadRequest)
		return
	}

	var participants []string
	for _, id := range req.ParticipantIDs {
		if id != "" && id != userID && !slices.Contains(participants, id) {
			participants = append(participants, id)
		}
	}
	if len(participants) == 0 {
		http.Error(w, "no one to call", http.StatusBadRequest)
		return
	}
	if !req.GroupCall && len(participants) > 1 {
		http.Error(w, "only group calls may ring more than one participant", http.StatusBadRequest)
		return
	}

	initiator, err := dal.GetUserByID(h.db, userID)
	if err != nil {
		h.writeUserError(w, err)
		return
	}
	for _, id := range participants {
		if _, err := dal.GetUserByID(h.db, id); err != nil {
			h.writeUserError(w, err)
			return
		}
	}

	call := h.calls.Create(userID, participants, req.CallType, req.GroupCall, req.GroupID)
	h.metrics.CallsStarted.WithLabelValues(string(call.Type)).Inc()
	log.Infof("%s started %s call %s with %v", userID, call.Type, call.ID, participants)

	h.notify(public.Envelope{
		Type:          public.SignalRing,
		SessionID:     call.ID.String(),
		SenderID:      userID,
		IsGroup:       call.IsGroup,
		GroupID:       call.GroupID,
		InitiatorID:   userID,
		InitiatorName: initiator.Name,
		CallType:      call.Type,
	}, participants...)

	WriteJSON(w, http.StatusCreated, public.StartCallResponse{SessionID: call.ID.String()})
}

// AcceptCall marks the session active and tells the initiator, and in group calls
// every other participant, to send the acceptor an offer.
func (h *RouteHandler) AcceptCall(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	call, ok := h.participantCall(w, r)
	if !ok {
		return
	}
	if err := h.calls.SetStatus(call.ID, schemas.CallActive); err != nil {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	h.metrics.CallTransitions.WithLabelValues("accept").Inc()
	log.Infof("%s accepted call %s", userID, call.ID)

	notified := []string{call.InitiatorID}
	if call.IsGroup {
		for _, id := range call.ParticipantIDs {
			if id != userID {
				notified = append(notified, id)
			}
		}
	}
	h.notify(public.Envelope{
		Type:      public.SignalAccepted,
		SessionID: call.ID.String(),
		SenderID:  userID,
		IsGroup:   call.IsGroup,
		GroupID:   call.GroupID,
		CallType:  call.Type,
	}, notified...)

	w.WriteHeader(http.StatusNoContent)
}

// DeclineCall tells the initiator a participant will not join. A declined 1:1 call is over.
func (h *RouteHandler) DeclineCall(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	call, ok := h.participantCall(w, r)
	if !ok {
		return
	}
	h.metrics.CallTransitions.WithLabelValues("decline").Inc()
	log.Infof("%s declined call %s", userID, call.ID)

	h.notify(public.Envelope{
		Type:      public.SignalDeclined,
		SessionID: call.ID.String(),
		SenderID:  userID,
		IsGroup:   call.IsGroup,
		GroupID:   call.GroupID,
	}, call.InitiatorID)

	if !call.IsGroup {
		h.calls.Delete(call.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// EndCall ends the session for every member. Ending a session that is already gone succeeds.
func (h *RouteHandler) EndCall(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	call, err := h.calls.Get(id)
	if err != nil {
		log.Debugf("%s ended call %s, which is already over", userID, id)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !call.HasMember(userID) {
		http.Error(w, "not part of this call", http.StatusForbidden)
		return
	}
	if !h.calls.Delete(id) {
		// another member ended it first
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.metrics.CallTransitions.WithLabelValues("end").Inc()
	log.Infof("%s ended call %s", userID, id)

	others := slices.DeleteFunc(call.Members(), func(m string) bool { return m == userID })
	h.notify(public.Envelope{
		Type:      public.SignalEnded,
		SessionID: call.ID.String(),
		SenderID:  userID,
		IsGroup:   call.IsGroup,
		GroupID:   call.GroupID,
	}, others...)

	w.WriteHeader(http.StatusNoContent)
}

// participantCall resolves the {id} path value to a session the requesting user was rung for.
// It writes the error response and returns false otherwise.
func (h *RouteHandler) participantCall(w http.ResponseWriter, r *http.Request) (schemas.CallSession, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "call not found", http.StatusNotFound)
		return schemas.CallSession{}, false
	}
	call, err := h.calls.Get(id)
	if err != nil {
		http.Error(w, "call not found", http.StatusNotFound)
		return schemas.CallSession{}, false
	}
	if !slices.Contains(call.ParticipantIDs, middleware.GetUserID(r)) {
		http.Error(w, "not a participant of this call", http.StatusForbidden)
		return schemas.CallSession{}, false
	}
	return call, true
}

func (h *RouteHandler) writeUserError(w http.ResponseWriter, err error) {
	if errors.Is(err, dal.ErrUserNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	log.Errorf("error fetching user: %v", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
