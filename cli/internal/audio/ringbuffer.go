package audio

import (
	"encoding/binary"
	"sync/atomic"
)

// ringBuffer carries decoded PCM from the network to the playback device without locks.
// It is safe for one writer and one reader.
// reference: https://en.wikipedia.org/wiki/Circular_buffer
type ringBuffer struct {
	buffer []int16
	size   int64
	writeIdx,
	readIdx atomic.Int64
	dropped atomic.Int64
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		buffer: make([]int16, size),
		size:   int64(size),
	}
}

// Write copies src into the buffer and returns how many samples fit. Samples that
// do not fit are dropped.
func (rb *ringBuffer) Write(src []int16) int {
	written := 0
	for _, s := range src {
		writeIdx := rb.writeIdx.Load()
		nextWriteIdx := (writeIdx + 1) % rb.size
		if nextWriteIdx == rb.readIdx.Load() {
			break // full
		}
		rb.buffer[writeIdx] = s
		rb.writeIdx.Store(nextWriteIdx) // publish write
		written++
	}
	if dropped := len(src) - written; dropped > 0 {
		rb.dropped.Add(int64(dropped))
	}
	return written
}

// Read fills dst with little-endian samples and returns how many were read.
// The part of dst not covered by buffered samples is zeroed, so the device plays silence.
func (rb *ringBuffer) Read(dst []byte) int {
	want := int64(len(dst) / 2)
	read := int64(0)
	for read < want {
		readIdx := rb.readIdx.Load()
		if readIdx == rb.writeIdx.Load() {
			break // empty
		}
		binary.LittleEndian.PutUint16(dst[read*2:], uint16(rb.buffer[readIdx]))
		rb.readIdx.Store((readIdx + 1) % rb.size)
		read++
	}
	clear(dst[read*2:])
	return int(read)
}

// Len returns the number of buffered samples.
func (rb *ringBuffer) Len() int {
	writeIdx, readIdx := rb.writeIdx.Load(), rb.readIdx.Load()
	if writeIdx < readIdx {
		return int(rb.size - readIdx + writeIdx) // around the ring
	}
	return int(writeIdx - readIdx)
}
