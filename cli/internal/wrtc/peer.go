package wrtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// peer is a registry entry: the negotiation context with one remote participant.
type peer struct {
	id        string
	sessionID string
	pc        *webrtc.PeerConnection

	mu        sync.Mutex
	senders   []localSender
	remoteSet bool

	// kinds sent as nothing, applied to the senders once they have started
	disabled map[webrtc.RTPCodecType]bool
	started  bool

	// remote candidates that arrived before the remote description
	pending []webrtc.ICECandidateInit
	applied map[string]struct{}

	// local candidates are held until the offer has been sent, so the remote
	// side never sees a candidate for a connection it does not know about yet
	offered  bool
	outbound []webrtc.ICECandidateInit
}

type localSender struct {
	sender *webrtc.RTPSender
	track  webrtc.TrackLocal
}

func newPeer(id, sessionID string, pc *webrtc.PeerConnection) *peer {
	return &peer{
		id:        id,
		sessionID: sessionID,
		pc:        pc,
		applied:   make(map[string]struct{}),
		disabled:  make(map[webrtc.RTPCodecType]bool),
	}
}

// attach adds every track of stream to the connection.
func (p *peer) attach(stream LocalStream) error {
	for _, track := range stream.Tracks() {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return err
		}

		// drain RTCP so interceptors keep working
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()

		p.mu.Lock()
		p.senders = append(p.senders, localSender{sender: sender, track: track})
		p.mu.Unlock()
	}
	return nil
}

// startSending marks the senders as started and swaps out the tracks of every
// disabled kind. A sender whose track is removed before it starts never starts,
// so it must run only once the answer has been applied.
func (p *peer) startSending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	for _, s := range p.senders {
		if p.disabled[s.track.Kind()] {
			p.replace(s, nil)
		}
	}
}

// setEnabled swaps the tracks of kind in and out of their senders. Before the
// senders have started only the wanted state is recorded.
func (p *peer) setEnabled(kind webrtc.RTPCodecType, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled[kind] = !enabled
	if !p.started {
		return
	}
	for _, s := range p.senders {
		if s.track.Kind() != kind {
			continue
		}
		if enabled {
			p.replace(s, s.track)
		} else {
			p.replace(s, nil)
		}
	}
}

func (p *peer) replace(s localSender, track webrtc.TrackLocal) {
	if err := s.sender.ReplaceTrack(track); err != nil {
		log.Warnf("error toggling %s track for %s: %v", s.track.Kind(), p.id, err)
	}
}

// addCandidate applies c, or queues it until the remote description is set.
// Candidates that were already seen are ignored.
func (p *peer) addCandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if _, dup := p.applied[c.Candidate]; dup {
		p.mu.Unlock()
		log.Debugf("ignoring duplicate candidate from %s", p.id)
		return nil
	}
	p.applied[c.Candidate] = struct{}{}
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.pc.AddICECandidate(c)
}

// remoteDescriptionSet applies every queued remote candidate.
func (p *peer) remoteDescriptionSet() {
	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			log.Warnf("error adding queued candidate from %s: %v", p.id, err)
		}
	}
}

// holdCandidate queues a local candidate if the offer has not been sent yet.
func (p *peer) holdCandidate(c webrtc.ICECandidateInit) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offered {
		return false
	}
	p.outbound = append(p.outbound, c)
	return true
}

// releaseCandidates marks the offer as sent and returns the held local candidates.
func (p *peer) releaseCandidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offered = true
	held := p.outbound
	p.outbound = nil
	return held
}

func (p *peer) close() {
	if err := p.pc.Close(); err != nil {
		log.Warnf("cannot close peer connection to %s: %v", p.id, err)
	}
}
