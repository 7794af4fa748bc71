// package hub keeps one private signal inbox per connected user.
package hub

import (
	"errors"
	"sync"

	"github.com/gregriff/vocall/internal/public"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("hub")

const inboxSize = 64

var (
	// ErrOffline is returned when delivering to a user without an inbox.
	ErrOffline = errors.New("user is not connected")
	// ErrInboxFull is returned when a user's inbox is not being drained fast enough.
	ErrInboxFull = errors.New("inbox full")
)

// Inbox is the queue of signals for one connection of a user.
type Inbox struct {
	signals chan *public.Envelope
	closed  chan struct{}
	once    sync.Once
}

// Signals returns the signals delivered to this inbox.
func (in *Inbox) Signals() <-chan *public.Envelope { return in.signals }

// Closed is closed once the inbox was replaced or unregistered.
func (in *Inbox) Closed() <-chan struct{} { return in.closed }

func (in *Inbox) close() { in.once.Do(func() { close(in.closed) }) }

// Hub routes signals to the inbox of their target user. A user has at most one inbox;
// connecting again replaces the previous one.
type Hub struct {
	mu      sync.RWMutex
	inboxes map[string]*Inbox
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{inboxes: make(map[string]*Inbox)}
}

// Register creates the inbox for userID, closing any previous one.
func (h *Hub) Register(userID string) *Inbox {
	in := &Inbox{
		signals: make(chan *public.Envelope, inboxSize),
		closed:  make(chan struct{}),
	}

	h.mu.Lock()
	old, replaced := h.inboxes[userID]
	h.inboxes[userID] = in
	h.mu.Unlock()

	if replaced {
		log.Infof("user %s connected again, closing their previous inbox", userID)
		old.close()
	} else {
		log.Infof("user %s connected", userID)
	}
	return in
}

// Unregister removes in, if it is still the inbox of userID.
func (h *Hub) Unregister(userID string, in *Inbox) {
	h.mu.Lock()
	if h.inboxes[userID] == in {
		delete(h.inboxes, userID)
		log.Infof("user %s disconnected", userID)
	}
	h.mu.Unlock()
	in.close()
}

// Deliver queues env for userID without blocking.
func (h *Hub) Deliver(userID string, env *public.Envelope) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	in, ok := h.inboxes[userID]
	if !ok {
		return ErrOffline
	}
	select {
	case in.signals <- env:
		return nil
	default:
		return ErrInboxFull
	}
}

// Online returns the number of connected users.
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.inboxes)
}
