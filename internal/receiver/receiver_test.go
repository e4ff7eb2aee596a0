package receiver

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eventcam/internal/demux"
	"github.com/banshee-data/eventcam/internal/evcodec"
	"github.com/banshee-data/eventcam/internal/viz"
)

// testGeometry keeps frames tiny: 8x4 pixels pack into 8 bytes.
var testGeometry = evcodec.Geometry{Width: 8, Height: 4}

func testEngine(t *testing.T) *viz.Engine {
	t.Helper()
	cfg := viz.DefaultConfig()
	cfg.Geometry = testGeometry
	e, err := viz.NewEngine(cfg)
	require.NoError(t, err)
	return e
}

// testFrame packs a frame with one positive event at (0,0).
func testFrame(t *testing.T) []byte {
	t.Helper()
	codec, err := evcodec.New(testGeometry)
	require.NoError(t, err)
	pixels := make([]byte, testGeometry.TotalPixels())
	pixels[0] = evcodec.PixelPositive
	frame, err := codec.Encode(pixels, nil)
	require.NoError(t, err)
	return frame
}

type frameEvent struct {
	seq    uint64
	events int
}

func TestRunTCPProcessesStream(t *testing.T) {
	t.Parallel()

	engine := testEngine(t)
	got := make(chan frameEvent, 16)
	s, err := NewSession(Config{
		Engine:       engine,
		PollInterval: 10 * time.Millisecond,
		OnFrame: func(seq uint64, events int) {
			got <- frameEvent{seq, events}
		},
	})
	require.NoError(t, err)

	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- s.RunTCP(context.Background(), server)
	}()

	frame := testFrame(t)
	// Two frames written in deliberately awkward chunks.
	stream := append(append([]byte{}, frame...), frame...)
	for off := 0; off < len(stream); off += 3 {
		end := off + 3
		if end > len(stream) {
			end = len(stream)
		}
		_, err := client.Write(stream[off:end])
		require.NoError(t, err)
	}
	require.NoError(t, client.Close())

	require.NoError(t, <-done)
	require.Len(t, got, 2)
	first := <-got
	assert.Equal(t, uint64(0), first.seq)
	assert.Equal(t, 1, first.events)
	second := <-got
	assert.Equal(t, uint64(1), second.seq)
	assert.Equal(t, float64(2), engine.Tick())
}

func TestRequestResetAppliedBeforeNextFrame(t *testing.T) {
	t.Parallel()

	engine := testEngine(t)
	processed := make(chan uint64, 4)
	s, err := NewSession(Config{
		Engine:       engine,
		PollInterval: 10 * time.Millisecond,
		OnFrame:      func(seq uint64, events int) { processed <- seq },
	})
	require.NoError(t, err)

	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- s.RunTCP(context.Background(), server)
	}()

	frame := testFrame(t)
	_, err = client.Write(frame)
	require.NoError(t, err)
	<-processed

	s.RequestReset()
	_, err = client.Write(frame)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	require.NoError(t, <-done)
	// The second frame was processed on freshly reset state.
	assert.Equal(t, float64(1), engine.Tick())
}

func TestRunTCPIncompleteFrame(t *testing.T) {
	t.Parallel()

	s, err := NewSession(Config{
		Engine:       testEngine(t),
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- s.RunTCP(context.Background(), server)
	}()

	frame := testFrame(t)
	_, err = client.Write(frame[:len(frame)-2])
	require.NoError(t, err)
	require.NoError(t, client.Close())

	var incomplete *demux.IncompleteFrameError
	require.ErrorAs(t, <-done, &incomplete)
	assert.Equal(t, len(frame)-2, incomplete.Buffered)
}

func TestRunTCPLengthPrefixed(t *testing.T) {
	t.Parallel()

	engine := testEngine(t)
	got := make(chan frameEvent, 16)
	s, err := NewSession(Config{
		Engine:         engine,
		LengthPrefixed: true,
		PollInterval:   10 * time.Millisecond,
		OnFrame: func(seq uint64, events int) {
			got <- frameEvent{seq, events}
		},
	})
	require.NoError(t, err)

	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- s.RunTCP(context.Background(), server)
	}()

	frame := testFrame(t)
	goodHdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(goodHdr, uint32(len(frame)))
	badHdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(badHdr, uint32(len(frame)+1))

	// Good frame, then a bad-header frame that must be skipped, then
	// another good one.
	for _, hdr := range [][]byte{goodHdr, badHdr, goodHdr} {
		_, err := client.Write(hdr)
		require.NoError(t, err)
		_, err = client.Write(frame)
		require.NoError(t, err)
	}
	require.NoError(t, client.Close())

	require.NoError(t, <-done)
	assert.Len(t, got, 2)
	assert.Equal(t, float64(2), engine.Tick())
}

func TestRunTCPObservesCancellation(t *testing.T) {
	t.Parallel()

	s, err := NewSession(Config{
		Engine:       testEngine(t),
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	client, server := net.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.RunTCP(ctx, server)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not observe cancellation")
	}
}

func TestRunUDPReassemblesFrames(t *testing.T) {
	t.Parallel()

	recv, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	engine := testEngine(t)
	got := make(chan frameEvent, 16)
	s, err := NewSession(Config{
		Engine:       engine,
		DatagramSize: 3,
		PollInterval: 10 * time.Millisecond,
		OnFrame: func(seq uint64, events int) {
			got <- frameEvent{seq, events}
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.RunUDP(ctx, recv)
	}()

	sendConn, err := net.Dial("udp", recv.LocalAddr().String())
	require.NoError(t, err)
	defer sendConn.Close()

	// One 8-byte frame split 3+3+2 the way the sender splits it.
	frame := testFrame(t)
	for off := 0; off < len(frame); off += 3 {
		end := off + 3
		if end > len(frame) {
			end = len(frame)
		}
		_, err := sendConn.Write(frame[off:end])
		require.NoError(t, err)
	}

	select {
	case ev := <-got:
		assert.Equal(t, 1, ev.events)
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reassembled")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestAcceptOne(t *testing.T) {
	t.Parallel()

	lis, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer lis.Close()

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := AcceptOne(context.Background(), lis, 50*time.Millisecond)
		done <- result{conn, err}
	}()

	client, err := net.Dial("tcp", lis.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.NotNil(t, r.conn)
		r.conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("accept never completed")
	}
}

func TestAcceptOneCancellation(t *testing.T) {
	t.Parallel()

	lis, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer lis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := AcceptOne(ctx, lis, 10*time.Millisecond)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("accept did not observe cancellation")
	}
}

func TestNewSessionRequiresEngine(t *testing.T) {
	t.Parallel()

	_, err := NewSession(Config{})
	assert.Error(t, err)
}
