package audio

import (
	"time"

	"github.com/gen2brain/malgo"
)

const (
	NumChannels  = 2
	SampleRate   = 48_000
	samplesPerMs = SampleRate / 1000

	// denotes how many bytes per element
	AudioFormat = malgo.FormatS16

	frameDuration   = 20 * time.Millisecond
	frameDurationMs = 20
	// interleaved samples in one opus frame
	frameSize = NumChannels * frameDurationMs * samplesPerMs

	// largest opus packet we will produce, see RFC 6716 section 3.2.1
	opusBufferSize = 1275

	// one second of interleaved playback samples
	ringCapacity = NumChannels * SampleRate

	// captured PCM older than this many frames is dropped if the encoder falls behind
	maxPendingFrames = 10
)
