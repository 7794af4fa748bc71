package wrtc

import (
	"context"
	"fmt"

	"github.com/gregriff/vocall/internal/public"
	"github.com/pion/webrtc/v4"
)

// CreateOffer opens a connection to targetID carrying every local track, and sends it
// an SDP offer for sessionID. Local candidates gathered meanwhile are sent after the offer.
func (e *Engine) CreateOffer(ctx context.Context, targetID, sessionID string) error {
	epoch, video := e.currentEpoch()
	stream, err := e.LocalStream(ctx, video)
	if err != nil {
		return err
	}

	p, err := e.register(targetID, sessionID, epoch)
	if err != nil {
		return err
	}
	if err := p.attach(stream); err != nil {
		return fmt.Errorf("error adding local tracks: %w", err)
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("error creating offer: %w", err)
	}
	// starts ICE gathering
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("error setting local description: %w", err)
	}

	env := &public.Envelope{
		Type:      public.SignalOffer,
		SessionID: sessionID,
		SenderID:  e.self,
		TargetID:  targetID,
	}
	if err := env.SetData(offer); err != nil {
		return err
	}
	if err := e.out.Send(public.RouteOffer, env); err != nil {
		return fmt.Errorf("error sending offer to %s: %w", targetID, err)
	}
	log.Infof("offer sent to %s", targetID)

	for _, c := range p.releaseCandidates() {
		e.sendCandidate(p, c)
	}
	return nil
}

// HandleOffer answers an offer from senderID. Local media is acquired before the
// connection is built so that the answer already carries the local tracks.
// The caller is responsible for sending the returned answer.
func (e *Engine) HandleOffer(ctx context.Context, offer webrtc.SessionDescription, senderID, sessionID string) (webrtc.SessionDescription, LocalStream, error) {
	var answer webrtc.SessionDescription

	epoch, video := e.currentEpoch()
	stream, err := e.LocalStream(ctx, video)
	if err != nil {
		return answer, nil, err
	}

	p, err := e.register(senderID, sessionID, epoch)
	if err != nil {
		return answer, nil, err
	}
	// the offer is already out, candidates can flow right away
	p.releaseCandidates()

	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return answer, nil, fmt.Errorf("error setting remote description: %w", err)
	}
	p.remoteDescriptionSet()

	if err := p.attach(stream); err != nil {
		return answer, nil, fmt.Errorf("error adding local tracks: %w", err)
	}

	answer, err = p.pc.CreateAnswer(nil)
	if err != nil {
		return answer, nil, fmt.Errorf("error creating answer: %w", err)
	}
	// starts ICE gathering
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return answer, nil, fmt.Errorf("error setting local description: %w", err)
	}
	p.startSending()
	return answer, stream, nil
}

// HandleAnswer applies the answer from senderID to the connection offered to it.
// An answer from an unregistered peer is dropped with a warning.
func (e *Engine) HandleAnswer(answer webrtc.SessionDescription, senderID string) error {
	p := e.lookup(senderID)
	if p == nil {
		log.Warnf("answer from unregistered peer %s, dropping", senderID)
		return nil
	}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("error setting remote description: %w", err)
	}
	p.remoteDescriptionSet()
	p.startSending()
	return nil
}

// HandleCandidate applies a remote ICE candidate from senderID. A nil or empty candidate
// marks the end of gathering and is ignored, as are candidates from unregistered peers
// and candidates already applied.
func (e *Engine) HandleCandidate(candidate *webrtc.ICECandidateInit, senderID string) error {
	if candidate == nil || candidate.Candidate == "" {
		return nil
	}
	p := e.lookup(senderID)
	if p == nil {
		log.Warnf("candidate from unregistered peer %s, dropping", senderID)
		return nil
	}
	if err := p.addCandidate(*candidate); err != nil {
		return fmt.Errorf("error adding candidate from %s: %w", senderID, err)
	}
	return nil
}
