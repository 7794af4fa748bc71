package wrtc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/gregriff/vocall/internal/public"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/singleflight"
)

var log = logging.Logger("wrtc")

var (
	// ErrMediaAccess wraps failures to open local capture devices.
	ErrMediaAccess = errors.New("media access failed")

	// ErrStale is returned by operations that were overtaken by CloseAll.
	ErrStale = errors.New("connections were closed while the operation was in flight")
)

// Sender publishes signals to a route, see signaling.Transport.
type Sender interface {
	Send(route string, env *public.Envelope) error
}

// Engine negotiates one peer connection per remote participant and owns the local
// stream they share. All methods are safe for concurrent use.
type Engine struct {
	api     *webrtc.API
	config  webrtc.Configuration
	self    string
	out     Sender
	devices Devices

	acquiring singleflight.Group
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	mu sync.Mutex
	// bumped by CloseAll, so in-flight work can tell it was torn down
	epoch    uint64
	video    bool
	local    LocalStream
	disabled map[webrtc.RTPCodecType]bool
	peers    map[string]*peer
}

// NewEngine creates an Engine for the local user self. Offers and local ICE candidates
// are published through out; capture devices are opened with devices.
func NewEngine(cfg Config, self string, out Sender, devices Devices) (*Engine, error) {
	api, err := NewAPI(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{
		api:      api,
		config:   cfg.configuration(),
		self:     self,
		out:      out,
		devices:  devices,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		disabled: make(map[webrtc.RTPCodecType]bool),
		peers:    make(map[string]*peer),
	}, nil
}

// Events returns the stream of track and connection-state events of registered peers.
func (e *Engine) Events() <-chan Event { return e.events }

// LocalStream returns the cached local stream, or opens one. Concurrent callers share
// a single acquisition. A stream that finishes opening after CloseAll is stopped at
// once and ErrStale returned.
func (e *Engine) LocalStream(ctx context.Context, video bool) (LocalStream, error) {
	e.mu.Lock()
	if e.local != nil {
		stream := e.local
		e.mu.Unlock()
		return stream, nil
	}
	epoch := e.epoch
	e.video = video
	e.mu.Unlock()

	v, err, _ := e.acquiring.Do(strconv.FormatUint(epoch, 10), func() (any, error) {
		stream, err := e.devices.Open(ctx, video)
		if err != nil {
			if errors.Is(err, ErrMediaAccess) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrMediaAccess, err)
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.epoch != epoch {
			log.Debugf("local stream opened after teardown, stopping it")
			stream.Stop()
			return nil, ErrStale
		}
		e.local = stream
		log.Infof("local stream opened (video: %t, tracks: %d)", hasVideo(stream), len(stream.Tracks()))
		return stream, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(LocalStream), nil
}

// SetEnabled starts or stops sending local tracks of kind on every connection,
// current and future. The capture itself keeps running.
func (e *Engine) SetEnabled(kind webrtc.RTPCodecType, enabled bool) {
	e.mu.Lock()
	e.disabled[kind] = !enabled
	peers := e.snapshot()
	e.mu.Unlock()

	for _, p := range peers {
		p.setEnabled(kind, enabled)
	}
}

// Peers returns the ids of the registered remote participants.
func (e *Engine) Peers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.peers))
	for id := range e.peers {
		ids = append(ids, id)
	}
	return ids
}

// HasLocalStream reports whether a local stream is currently held.
func (e *Engine) HasLocalStream() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local != nil
}

// CloseAll closes and forgets every peer connection and stops the local stream.
// It is safe to call at any time, any number of times.
func (e *Engine) CloseAll() {
	e.mu.Lock()
	e.epoch++
	peers := e.snapshot()
	e.peers = make(map[string]*peer)
	local := e.local
	e.local = nil
	e.disabled = make(map[webrtc.RTPCodecType]bool)
	e.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	if local != nil {
		local.Stop()
		log.Infof("local stream stopped")
	}
	if len(peers) > 0 {
		log.Infof("closed %d peer connection(s)", len(peers))
	}
}

// Close tears everything down and stops emitting events.
func (e *Engine) Close() {
	e.CloseAll()
	e.closeOnce.Do(func() { close(e.done) })
}

// register creates a peer connection for id and stores it, replacing and closing
// any previous entry. It fails with ErrStale if CloseAll ran since epoch was read.
func (e *Engine) register(id, sessionID string, epoch uint64) (*peer, error) {
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, fmt.Errorf("error creating peer connection: %w", err)
	}
	p := newPeer(id, sessionID, pc)
	pc.OnICECandidate(func(c *webrtc.ICECandidate) { e.onICECandidate(p, c) })
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) { e.onConnectionStateChange(p, s) })
	pc.OnTrack(func(t *webrtc.TrackRemote, r *webrtc.RTPReceiver) { e.onTrack(p, t, r) })

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		p.close()
		return nil, ErrStale
	}
	for kind, off := range e.disabled {
		p.disabled[kind] = off
	}
	old := e.peers[id]
	e.peers[id] = p
	e.mu.Unlock()

	if old != nil {
		log.Infof("replacing peer connection to %s", id)
		old.close()
	}
	return p, nil
}

// lookup returns the registered peer for id, or nil.
func (e *Engine) lookup(id string) *peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peers[id]
}

// owns reports whether p is still the registered entry for its id.
func (e *Engine) owns(p *peer) bool {
	return e.lookup(p.id) == p
}

func (e *Engine) currentEpoch() (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch, e.video
}

// snapshot copies the registered peers. Callers must hold e.mu.
func (e *Engine) snapshot() []*peer {
	peers := make([]*peer, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	return peers
}
