package routes

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/gregriff/vocall/internal/public"
	"github.com/gregriff/vocall/server/internal/hub"
	"github.com/gregriff/vocall/server/internal/middleware"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"
)

var (
	errRateLimited = errors.New("rate limited")
	errBadRoute    = errors.New("signal type not allowed on route")
	errNoTarget    = errors.New("signal has no target")
	errNotInCall   = errors.New("sender or target is not part of the call")
)

// SignalingWS is the websocket inbox of the requesting user. Signals addressed to the
// user are written to it, and offer, answer and candidate frames read from it are
// relayed to their target's inbox.
func (h *RouteHandler) SignalingWS(ws *websocket.Conn) {
	userID := middleware.GetUserID(ws.Request())
	inbox := h.hub.Register(userID)
	h.metrics.ConnectedUsers.Set(float64(h.hub.Online()))

	var writing sync.WaitGroup
	writing.Go(func() {
		writeForever(ws, inbox)
	})
	defer func() {
		h.hub.Unregister(userID, inbox)
		h.metrics.ConnectedUsers.Set(float64(h.hub.Online()))
		if err := ws.Close(); err != nil {
			log.Debugf("error closing ws of %s: %v", userID, err)
		}
		writing.Wait()
	}()

	limiter := rate.NewLimiter(h.signalRate, h.signalBurst)
	for {
		var frame public.Frame
		if err := websocket.JSON.Receive(ws, &frame); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debugf("error reading from ws of %s: %v", userID, err)
			}
			return
		}
		if err := h.relay(userID, limiter, &frame); err != nil {
			log.Warnf("dropping %s frame from %s: %v", frame.Route, userID, err)
		}
	}
}

// writeForever writes the signals of inbox to ws until the inbox is closed or a write fails.
func writeForever(ws *websocket.Conn, inbox *hub.Inbox) {
	for {
		select {
		case env := <-inbox.Signals():
			if err := websocket.JSON.Send(ws, env); err != nil {
				log.Debugf("error writing %s to ws: %v", env.Type, err)
				return
			}
		case <-inbox.Closed():
			// replaced by a newer connection of the same user
			_ = ws.Close()
			return
		}
	}
}

// relay forwards the signal of frame to its target on behalf of senderID.
func (h *RouteHandler) relay(senderID string, limiter *rate.Limiter, frame *public.Frame) error {
	err := h.relaySignal(senderID, limiter, frame)
	switch {
	case errors.Is(err, errRateLimited):
		h.metrics.SignalsDropped.WithLabelValues("rate_limited").Inc()
	case errors.Is(err, errBadRoute):
		h.metrics.SignalsDropped.WithLabelValues("bad_route").Inc()
	case errors.Is(err, errNoTarget):
		h.metrics.SignalsDropped.WithLabelValues("no_target").Inc()
	case errors.Is(err, errNotInCall):
		h.metrics.SignalsDropped.WithLabelValues("not_in_call").Inc()
	}
	return err
}

func (h *RouteHandler) relaySignal(senderID string, limiter *rate.Limiter, frame *public.Frame) error {
	if !limiter.Allow() {
		return errRateLimited
	}
	if frame.Signal == nil {
		return fmt.Errorf("%w: empty frame", errBadRoute)
	}
	if route := public.RouteFor(frame.Signal.Type); route == "" || route != frame.Route {
		return fmt.Errorf("%w: %s on %q", errBadRoute, frame.Signal.Type, frame.Route)
	}
	if frame.Signal.TargetID == "" || frame.Signal.TargetID == senderID {
		return errNoTarget
	}

	id, err := uuid.Parse(frame.Signal.SessionID)
	if err != nil {
		return fmt.Errorf("%w: bad session id %q", errNotInCall, frame.Signal.SessionID)
	}
	call, err := h.calls.Get(id)
	if err != nil {
		return fmt.Errorf("%w: %v", errNotInCall, err)
	}
	if !call.HasMember(senderID) || !call.HasMember(frame.Signal.TargetID) {
		return errNotInCall
	}

	// copy, so a client cannot speak for anyone else
	env := *frame.Signal
	env.SenderID = senderID
	return h.deliver(env.TargetID, &env)
}
