package audio

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesOf(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestRingBufferReadWrite(t *testing.T) {
	rb := newRingBuffer(8)

	assert.Equal(t, 3, rb.Write([]int16{1, -2, 3}))
	assert.Equal(t, 3, rb.Len())

	dst := make([]byte, 4)
	require.Equal(t, 2, rb.Read(dst))
	assert.Equal(t, []int16{1, -2}, samplesOf(dst))
	assert.Equal(t, 1, rb.Len())

	dst = make([]byte, 8)
	for i := range dst {
		dst[i] = 0xff
	}
	require.Equal(t, 1, rb.Read(dst))
	assert.Equal(t, []int16{3, 0, 0, 0}, samplesOf(dst), "unfilled samples are silence")
	assert.Zero(t, rb.Len())
}

func TestRingBufferWrapsAndDropsWhenFull(t *testing.T) {
	rb := newRingBuffer(4)

	// one slot always stays free to tell full from empty
	assert.Equal(t, 3, rb.Write([]int16{1, 2, 3, 4, 5}))
	assert.EqualValues(t, 2, rb.dropped.Load())

	dst := make([]byte, 4)
	rb.Read(dst)
	assert.Equal(t, 2, rb.Write([]int16{6, 7}))
	assert.Equal(t, 3, rb.Len())

	dst = make([]byte, 6)
	require.Equal(t, 3, rb.Read(dst))
	assert.Equal(t, []int16{3, 6, 7}, samplesOf(dst))
}

func TestRingBufferSingleProducerSingleConsumer(t *testing.T) {
	const total = 10_000
	rb := newRingBuffer(64)

	var got []int16
	var wg sync.WaitGroup
	wg.Go(func() {
		dst := make([]byte, 32)
		for len(got) < total {
			n := rb.Read(dst)
			got = append(got, samplesOf(dst[:n*2])...)
		}
	})

	next := int16(0)
	for sent := 0; sent < total; {
		chunk := make([]int16, min(16, total-sent))
		for i := range chunk {
			chunk[i] = next + int16(i)
		}
		n := rb.Write(chunk)
		next += int16(n)
		sent += n
	}
	wg.Wait()

	for i, s := range got {
		require.Equal(t, int16(i), s, "sample %d out of order", i)
	}
}
