package wrtc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// LocalStream is a set of captured local tracks, shared by every peer connection of a call.
type LocalStream interface {
	Tracks() []webrtc.TrackLocal

	// Stop releases the capture devices. Implementations must tolerate repeated calls.
	Stop()
}

// Devices opens local capture devices.
type Devices interface {
	// Open starts capturing the microphone, and the camera too if video is set.
	// Errors are reported as media access failures.
	Open(ctx context.Context, video bool) (LocalStream, error)
}

// hasVideo reports whether s carries a video track.
func hasVideo(s LocalStream) bool {
	for _, t := range s.Tracks() {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			return true
		}
	}
	return false
}

// NullDevices opens streams of tracks that are never written to. Peers negotiate media
// as usual but receive silence. Useful on headless machines and in tests.
type NullDevices struct {
	opened atomic.Int64
}

// Open implements Devices.
func (d *NullDevices) Open(_ context.Context, video bool) (LocalStream, error) {
	n := d.opened.Add(1)
	s := &NullStream{}

	audio, err := webrtc.NewTrackLocalStaticSample(OpusCodec, "audio", fmt.Sprintf("null-%d", n))
	if err != nil {
		return nil, fmt.Errorf("error creating audio track: %w", err)
	}
	s.tracks = append(s.tracks, audio)

	if video {
		camera, err := webrtc.NewTrackLocalStaticSample(VP8Codec, "video", fmt.Sprintf("null-%d", n))
		if err != nil {
			return nil, fmt.Errorf("error creating video track: %w", err)
		}
		s.tracks = append(s.tracks, camera)
	}
	return s, nil
}

// Opened returns how many streams have been opened.
func (d *NullDevices) Opened() int { return int(d.opened.Load()) }

// NullStream is the LocalStream returned by NullDevices.
type NullStream struct {
	tracks  []webrtc.TrackLocal
	stop    sync.Once
	stopped atomic.Bool
}

// Tracks implements LocalStream.
func (s *NullStream) Tracks() []webrtc.TrackLocal { return s.tracks }

// Stop implements LocalStream.
func (s *NullStream) Stop() {
	s.stop.Do(func() { s.stopped.Store(true) })
}

// Stopped reports whether Stop has been called.
func (s *NullStream) Stopped() bool { return s.stopped.Load() }
