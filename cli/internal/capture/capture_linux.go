//go:build linux

package capture

import (
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

type v4l2Camera struct {
	stream []mediadevices.Track
}

// openCamera captures the first V4L2 camera and encodes it to VP8.
func openCamera(streamID string) (camera, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("error creating vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_000_000

	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind == mediadevices.VideoInput {
			log.Debugf("found camera %q", d.Label)
		}
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			// raw formats only, MJPEG nodes of some cameras emit broken frames
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		},
		Codec: mediadevices.NewCodecSelector(mediadevices.WithVideoEncoders(&vpxParams)),
	})
	if err != nil {
		return nil, fmt.Errorf("error opening camera: %w", err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("camera produced no video track")
	}
	for _, t := range tracks {
		t.OnEnded(func(err error) {
			if err != nil {
				log.Warnf("camera track of %s ended: %v", streamID, err)
			}
		})
	}
	log.Infof("camera open")
	return &v4l2Camera{stream: tracks}, nil
}

func (c *v4l2Camera) tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, len(c.stream))
	for i, t := range c.stream {
		out[i] = t
	}
	return out
}

func (c *v4l2Camera) close() {
	for _, t := range c.stream {
		if err := t.Close(); err != nil {
			log.Warnf("error closing camera track: %v", err)
		}
	}
	log.Infof("camera closed")
}
