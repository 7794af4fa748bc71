package vocall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gregriff/vocall/internal/public"
)

// ErrRejected is returned when the server answers a request with a non-2xx status.
var ErrRejected = errors.New("rejected by vocall server")

// StartCall asks the server to create a call session and ring every participant.
// It returns the id the server assigned to the session.
func (c *Client) StartCall(ctx context.Context, participantIDs []string, callType public.CallType, groupCall bool, groupID string) (string, error) {
	req := public.StartCallRequest{
		ParticipantIDs: participantIDs,
		CallType:       callType,
		GroupCall:      groupCall,
		GroupID:        groupID,
	}
	var res public.StartCallResponse
	if err := c.do(ctx, http.MethodPost, "/api/calls/start", req, &res); err != nil {
		return "", err
	}
	if res.SessionID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrRejected)
	}
	return res.SessionID, nil
}

// AcceptCall confirms to the server that the local user accepted sessionID.
func (c *Client) AcceptCall(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/calls/"+url.PathEscape(sessionID)+"/accept", nil, nil)
}

// DeclineCall tells the server that the local user declined sessionID.
func (c *Client) DeclineCall(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/calls/"+url.PathEscape(sessionID)+"/decline", nil, nil)
}

// EndCall tells the server that the local user hung up sessionID.
func (c *Client) EndCall(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/calls/"+url.PathEscape(sessionID)+"/end", nil, nil)
}

// GetUser looks up a user in the server's directory.
func (c *Client) GetUser(ctx context.Context, userID string) (public.User, error) {
	var user public.User
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID), nil, &user)
	return user, err
}

// do sends body as json and decodes the response into out, if either is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("json marshal error: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, path, payload)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return fmt.Errorf("%w: %s %s: %d %s", ErrRejected, method, path, res.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("json decode error: %w", err)
	}
	return nil
}
