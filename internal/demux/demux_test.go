package demux

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFrameSize = 32

// makeStream builds k distinct frames plus r trailing bytes and returns
// the concatenated stream alongside the expected frame payloads.
func makeStream(t *testing.T, k, r int) ([]byte, [][]byte) {
	t.Helper()
	require.Less(t, r, testFrameSize)

	rng := rand.New(rand.NewSource(42))
	frames := make([][]byte, k)
	var stream []byte
	for i := range frames {
		f := make([]byte, testFrameSize)
		rng.Read(f)
		frames[i] = f
		stream = append(stream, f...)
	}
	tail := make([]byte, r)
	rng.Read(tail)
	return append(stream, tail...), frames
}

func feedInChunks(t *testing.T, d *Demuxer, stream []byte, chunkSize int) []Frame {
	t.Helper()
	var got []Frame
	for off := 0; off < len(stream); off += chunkSize {
		end := off + chunkSize
		if end > len(stream) {
			end = len(stream)
		}
		frames, err := d.Feed(stream[off:end])
		require.NoError(t, err)
		got = append(got, frames...)
	}
	return got
}

func TestChunkingInvariance(t *testing.T) {
	t.Parallel()

	const k, r = 7, 13
	stream, want := makeStream(t, k, r)

	chunkSizes := []int{1, 3, testFrameSize - 1, testFrameSize, testFrameSize + 5, 3 * testFrameSize, len(stream)}
	for _, chunkSize := range chunkSizes {
		d, err := New(testFrameSize)
		require.NoError(t, err)

		got := feedInChunks(t, d, stream, chunkSize)

		require.Len(t, got, k, "chunk size %d", chunkSize)
		for i, f := range got {
			assert.Equal(t, uint64(i), f.Seq)
			if diff := cmp.Diff(want[i], f.Data); diff != "" {
				t.Fatalf("chunk size %d frame %d mismatch (-want +got):\n%s", chunkSize, i, diff)
			}
		}
		assert.Equal(t, r, d.Buffered(), "chunk size %d", chunkSize)
	}
}

func TestChunkingInvarianceRandomSplits(t *testing.T) {
	t.Parallel()

	const k = 11
	stream, want := makeStream(t, k, 5)
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		d, err := New(testFrameSize)
		require.NoError(t, err)

		var got []Frame
		for off := 0; off < len(stream); {
			n := 1 + rng.Intn(2*testFrameSize)
			if off+n > len(stream) {
				n = len(stream) - off
			}
			frames, err := d.Feed(stream[off : off+n])
			require.NoError(t, err)
			got = append(got, frames...)
			off += n
		}

		require.Len(t, got, k)
		for i, f := range got {
			require.True(t, bytes.Equal(want[i], f.Data), "trial %d frame %d", trial, i)
		}
		require.Equal(t, 5, d.Buffered())
	}
}

func TestFeedReturnedFramesAreStable(t *testing.T) {
	t.Parallel()

	d, err := New(4)
	require.NoError(t, err)

	frames, err := d.Feed([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.Len(t, frames, 1)

	// Later feeds must not alias earlier frame data.
	_, err = d.Feed([]byte{9, 9, 9, 9, 5})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, frames[0].Data)
}

func TestEOFWithRemainderIsAnError(t *testing.T) {
	t.Parallel()

	d, err := New(8)
	require.NoError(t, err)

	_, err = d.Feed([]byte{1, 2, 3})
	require.NoError(t, err)

	_, err = d.Feed(nil)
	var ife *IncompleteFrameError
	require.ErrorAs(t, err, &ife)
	assert.Equal(t, 3, ife.Buffered)
	assert.Equal(t, 8, ife.FrameSize)
}

func TestEOFOnFrameBoundaryIsClean(t *testing.T) {
	t.Parallel()

	d, err := New(4)
	require.NoError(t, err)

	frames, err := d.Feed([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.Len(t, frames, 2)

	frames, err = d.Feed(nil)
	assert.NoError(t, err)
	assert.Empty(t, frames)
}

func TestReset(t *testing.T) {
	t.Parallel()

	d, err := New(4)
	require.NoError(t, err)

	_, err = d.Feed([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, 1, d.Buffered())
	require.Equal(t, uint64(1), d.NextSeq())

	d.Reset()
	assert.Equal(t, 0, d.Buffered())
	assert.Equal(t, uint64(0), d.NextSeq())
}

func TestNewRejectsBadFrameSize(t *testing.T) {
	t.Parallel()

	_, err := New(0)
	assert.Error(t, err)
	_, err = New(-1)
	assert.Error(t, err)
}

// Fifty full-resolution frames fed one byte at a time must come back
// intact. This also guards against quadratic buffer behaviour: the run
// finishes quickly only if compaction is amortised.
func TestSingleByteFeedFullResolution(t *testing.T) {
	const frameSize = 230400
	const frameCount = 50

	d, err := New(frameSize)
	require.NoError(t, err)

	stream := make([]byte, frameSize*frameCount)
	for i := range stream {
		stream[i] = byte(i % 251)
	}

	var got int
	for i := range stream {
		frames, err := d.Feed(stream[i : i+1])
		require.NoError(t, err)
		for _, f := range frames {
			require.Equal(t, uint64(got), f.Seq)
			// Spot-check byte identity at the frame edges.
			base := got * frameSize
			require.Equal(t, stream[base], f.Data[0])
			require.Equal(t, stream[base+frameSize-1], f.Data[frameSize-1])
			got++
		}
	}

	assert.Equal(t, frameCount, got)
	assert.Equal(t, 0, d.Buffered())
}
