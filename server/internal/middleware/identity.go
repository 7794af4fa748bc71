package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gregriff/vocall/internal/public"
	"github.com/gregriff/vocall/server/internal/dal"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("middleware")

type contextKey string

const identityKey contextKey = "identity"

// Identify is a middleware that mandates the caller names a user from the directory,
// either with the identity header or, for websocket clients that cannot set headers,
// the `user` query parameter. Nobody is authenticated.
func Identify(next http.Handler, db *sql.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(public.UserHeader))
		if userID == "" {
			userID = strings.TrimSpace(r.URL.Query().Get("user"))
		}
		if userID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if _, err := dal.GetUserByID(db, userID); err != nil {
			if !errors.Is(err, dal.ErrUserNotFound) {
				log.Errorf("identity error: %v", err)
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID is used in endpoint handlers to retrieve the id of the user that made the request.
func GetUserID(r *http.Request) string {
	userID, _ := r.Context().Value(identityKey).(string)
	return userID
}
