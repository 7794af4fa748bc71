package routes

import (
	"errors"
	"net/http"

	"github.com/gregriff/vocall/internal/public"
	"github.com/gregriff/vocall/server/internal/dal"
)

// GetUser returns the public view of a user in the directory.
func (h *RouteHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := dal.GetUserByID(h.db, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, dal.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		log.Errorf("error fetching user: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, public.User{ID: user.ID, Name: user.Name})
}
