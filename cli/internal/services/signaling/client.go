// package signaling carries call signals between this client and the vocall server.
// Outbound signals are published to a route on the server; inbound signals addressed
// to the local user arrive on a single inbox channel.
package signaling

import (
	"errors"

	"github.com/gregriff/vocall/internal/public"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("signaling")

// ErrNotConnected is returned by Send when the signaling channel is down.
// Reconnecting is left to the caller.
var ErrNotConnected = errors.New("signaling channel not connected")

// Transport is a publish/subscribe connection scoped to one user's private inbox.
// Inbound signals may be duplicated, and are only ordered relative to other
// signals published on the same route.
type Transport interface {
	// Send publishes env to route. It fails with ErrNotConnected if the
	// transport is down.
	Send(route string, env *public.Envelope) error

	// Inbox returns the stream of signals addressed to the local user.
	// It is closed when the transport disconnects.
	Inbox() <-chan *public.Envelope
}
