package signaling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gregriff/vocall/internal/public"
	"golang.org/x/net/websocket"
)

const inboxSize = 128

// Websocket is a Transport backed by a single websocket to the vocall server's inbox endpoint.
type Websocket struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	inbox     chan *public.Envelope
	connected atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	reading   sync.WaitGroup
}

// Dial opens the inbox websocket for userID on the vocall server at baseURL (http or https).
func Dial(ctx context.Context, baseURL, userID string) (*Websocket, error) {
	cfg, err := newWebsocketConfig(baseURL, userID, "/ws")
	if err != nil {
		return nil, err
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("error dialing ws: %w", err)
	}

	t := &Websocket{
		ws:    ws,
		inbox: make(chan *public.Envelope, inboxSize),
		done:  make(chan struct{}),
	}
	t.connected.Store(true)
	t.reading.Go(t.readForever)
	return t, nil
}

// newWebsocketConfig creates a websocket.Config for a vocall server endpoint,
// identifying the local user with a header.
func newWebsocketConfig(baseURL, userID, endpoint string) (*websocket.Config, error) {
	loc := strings.Replace(strings.TrimSuffix(baseURL, "/"), "http", "ws", 1) + endpoint
	log.Debugf("ws url: %s", loc)

	cfg, err := websocket.NewConfig(loc, "app://vocall") // no real origin b/c we're not a browser
	if err != nil {
		return nil, err
	}
	cfg.Header.Set(public.UserHeader, userID)
	return cfg, nil
}

// readForever decodes signals from the websocket into the inbox until the connection drops.
func (t *Websocket) readForever() {
	defer func() {
		t.connected.Store(false)
		close(t.inbox)
	}()

	for {
		var env public.Envelope
		if err := websocket.JSON.Receive(t.ws, &env); err != nil {
			if errors.Is(err, io.EOF) {
				log.Infof("signaling connection closed by server")
			} else {
				select {
				case <-t.done:
				default:
					log.Warnf("error reading from ws: %v", err)
				}
			}
			return
		}
		if !env.Type.Valid() {
			log.Warnf("dropping signal with unknown type %q", env.Type)
			continue
		}

		select {
		case t.inbox <- &env:
		case <-t.done:
			return
		}
	}
}

// Send writes a frame for env to the server, to be relayed on route.
func (t *Websocket) Send(route string, env *public.Envelope) error {
	if !t.connected.Load() {
		return ErrNotConnected
	}
	if route == "" {
		return fmt.Errorf("no route for %s signal", env.Type)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := websocket.JSON.Send(t.ws, public.Frame{Route: route, Signal: env}); err != nil {
		t.connected.Store(false)
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Inbox implements Transport.
func (t *Websocket) Inbox() <-chan *public.Envelope { return t.inbox }

// Connected reports whether the websocket is still up.
func (t *Websocket) Connected() bool { return t.connected.Load() }

// Close closes the websocket and waits for the reader to exit. Safe to call more than once.
func (t *Websocket) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.connected.Store(false)
		err = t.ws.Close()
		t.reading.Wait()
		log.Debugf("ws closed")
	})
	return err
}
