// package capture opens the local microphone and camera for a call.
package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/gregriff/vocall/cli/internal/audio"
	"github.com/gregriff/vocall/cli/internal/wrtc"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pion/webrtc/v4"
)

var log = logging.Logger("capture")

// camera is a started video capture.
type camera interface {
	tracks() []webrtc.TrackLocal
	close()
}

// Devices opens the default microphone, and the default camera for video calls.
// It implements wrtc.Devices.
type Devices struct {
	// media stream id of the opened tracks
	StreamID string
}

var _ wrtc.Devices = Devices{}

// Open implements wrtc.Devices.
func (d Devices) Open(ctx context.Context, video bool) (wrtc.LocalStream, error) {
	streamID := d.StreamID
	if streamID == "" {
		streamID = "vocall"
	}

	mic, err := audio.OpenMicrophone(streamID)
	if err != nil {
		return nil, fmt.Errorf("%w: microphone: %w", wrtc.ErrMediaAccess, err)
	}
	s := &Stream{mic: mic}

	if video {
		cam, err := openCamera(streamID)
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("%w: camera: %w", wrtc.ErrMediaAccess, err)
		}
		s.camera = cam
	}

	if err := ctx.Err(); err != nil {
		s.Stop()
		return nil, err
	}
	return s, nil
}

// Stream is the LocalStream returned by Devices.
type Stream struct {
	mic    *audio.Microphone
	camera camera
	stop   sync.Once
}

// Tracks implements wrtc.LocalStream.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	tracks := s.mic.Tracks()
	if s.camera != nil {
		tracks = append(tracks, s.camera.tracks()...)
	}
	return tracks
}

// Stop implements wrtc.LocalStream.
func (s *Stream) Stop() {
	s.stop.Do(func() {
		if s.camera != nil {
			s.camera.close()
		}
		s.mic.Stop()
	})
}
