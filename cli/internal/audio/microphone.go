package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/gregriff/vocall/cli/internal/wrtc"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"
)

// pcmBuffer is written by the capture device and drained by the encoder.
type pcmBuffer struct {
	mu   sync.Mutex
	data []int16
}

// Microphone captures the default input device and writes it, opus encoded, to a
// local track. It implements wrtc.LocalStream.
type Microphone struct {
	track *webrtc.TrackLocalStaticSample

	cancel  context.CancelFunc
	encoded sync.WaitGroup
	stop    sync.Once

	deviceCtx *malgo.AllocatedContext
	device    *malgo.Device
}

var _ wrtc.LocalStream = (*Microphone)(nil)

// OpenMicrophone starts capturing. streamID names the track's media stream.
func OpenMicrophone(streamID string) (*Microphone, error) {
	track, err := webrtc.NewTrackLocalStaticSample(wrtc.OpusCodec, "audio", streamID)
	if err != nil {
		return nil, fmt.Errorf("error creating audio track: %w", err)
	}
	encoder, err := opus.NewEncoder(SampleRate, NumChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("encoder error: %w", err)
	}
	if err := encoder.SetInBandFEC(true); err != nil {
		log.Debugf("cannot enable inband FEC: %v", err)
	}

	pcm := &pcmBuffer{}
	onRecvFrames := func(_, pInputSample []byte, _ uint32) {
		pcm.mu.Lock()
		pcm.data = append(pcm.data, bytesToInt16(pInputSample)...)
		if excess := len(pcm.data) - maxPendingFrames*frameSize; excess > 0 {
			pcm.data = pcm.data[excess:]
		}
		pcm.mu.Unlock()
	}
	deviceCtx, device, err := openDevice(malgo.Capture, onRecvFrames)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Microphone{track: track, cancel: cancel, deviceCtx: deviceCtx, device: device}
	m.encoded.Go(func() { m.encodeForever(ctx, encoder, pcm) })
	log.Infof("microphone open")
	return m, nil
}

// encodeForever encodes buffered PCM into opus frames and writes them to the track.
func (m *Microphone) encodeForever(ctx context.Context, encoder *opus.Encoder, pcm *pcmBuffer) {
	opusBuffer := make([]byte, opusBufferSize)
	frame := make([]int16, frameSize)

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			pcm.mu.Lock()
			if len(pcm.data) < frameSize {
				pcm.mu.Unlock()
				break // wait for more data
			}
			copy(frame, pcm.data[:frameSize])
			pcm.data = append(pcm.data[:0], pcm.data[frameSize:]...)
			pcm.mu.Unlock()

			n, err := encoder.Encode(frame, opusBuffer)
			if err != nil {
				log.Warnf("opus encode error: %v", err)
				continue
			}
			// a track without bound peers discards the sample
			if err := m.track.WriteSample(media.Sample{Data: opusBuffer[:n], Duration: frameDuration}); err != nil {
				log.Debugf("error writing audio sample: %v", err)
			}
		}
	}
}

// Tracks implements wrtc.LocalStream.
func (m *Microphone) Tracks() []webrtc.TrackLocal { return []webrtc.TrackLocal{m.track} }

// Stop implements wrtc.LocalStream. It releases the capture device.
func (m *Microphone) Stop() {
	m.stop.Do(func() {
		m.cancel()
		m.encoded.Wait()
		releaseDevice(m.deviceCtx, m.device, malgo.Capture)
		log.Infof("microphone closed")
	})
}
