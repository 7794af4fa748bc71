package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/pion/webrtc/v4"
	"gopkg.in/hraban/opus.v2"
)

// Player plays one remote opus track on the default output device.
type Player struct {
	peer   string
	buffer *ringBuffer

	deviceCtx *malgo.AllocatedContext
	device    *malgo.Device
	close     sync.Once
}

// NewPlayer opens the output device for the audio of peer.
func NewPlayer(peer string) (*Player, error) {
	buffer := newRingBuffer(ringCapacity)

	// read into output sample, for output to speaker device. this fires every period
	onSendFrames := func(pOutputSample, _ []byte, _ uint32) {
		buffer.Read(pOutputSample)
	}
	deviceCtx, device, err := openDevice(malgo.Playback, onSendFrames)
	if err != nil {
		return nil, err
	}
	return &Player{peer: peer, buffer: buffer, deviceCtx: deviceCtx, device: device}, nil
}

// Play decodes track into the output device until the track ends or ctx is done.
// The track is ended by closing its peer connection.
func (p *Player) Play(ctx context.Context, track *webrtc.TrackRemote) error {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return fmt.Errorf("cannot play %s track", track.Kind())
	}
	decoder, err := opus.NewDecoder(SampleRate, NumChannels)
	if err != nil {
		return fmt.Errorf("decoder error: %w", err)
	}

	// room for the longest opus frame, 120ms
	pcm := make([]int16, NumChannels*120*samplesPerMs)
	for ctx.Err() == nil {
		packet, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debugf("audio track of %s ended", p.peer)
				return nil
			}
			return fmt.Errorf("error reading audio of %s: %w", p.peer, err)
		}
		if len(packet.Payload) == 0 {
			continue
		}

		// samples per channel
		n, err := decoder.Decode(packet.Payload, pcm)
		if err != nil {
			log.Debugf("opus decode error: %v", err)
			continue
		}
		p.buffer.Write(pcm[:n*NumChannels])
	}
	return ctx.Err()
}

// Close releases the output device.
func (p *Player) Close() {
	p.close.Do(func() {
		releaseDevice(p.deviceCtx, p.device, malgo.Playback)
		if dropped := p.buffer.dropped.Load(); dropped > 0 {
			log.Debugf("dropped %d samples of %s on a full buffer", dropped, p.peer)
		}
	})
}
