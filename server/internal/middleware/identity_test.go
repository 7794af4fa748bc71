package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gregriff/vocall/internal/public"
	"github.com/gregriff/vocall/server/internal/dal"
	"github.com/gregriff/vocall/server/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentify(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "users.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, dal.CreateUser(conn, "alice", "Alice"))

	var seen string
	handler := DebugLogging(Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r)
	}), conn))

	tests := []struct {
		name   string
		header string
		query  string
		status int
		user   string
	}{
		{name: "header", header: "alice", status: http.StatusOK, user: "alice"},
		{name: "query", query: "?user=alice", status: http.StatusOK, user: "alice"},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "unknown user", header: "mallory", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/users/alice"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set(public.UserHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.user, seen)
		})
	}
}
