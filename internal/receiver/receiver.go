// Package receiver owns the receive/process loop of a viewer session:
// it pulls bytes off a TCP stream or UDP socket, recovers frames
// through the demuxer, and feeds them to the visualization engine.
//
// One Session serves one connection. The loop is single-threaded; reads
// use a short deadline so cancellation and housekeeping are serviced
// without starving throughput.
package receiver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/banshee-data/eventcam/internal/demux"
	"github.com/banshee-data/eventcam/internal/evcodec"
	"github.com/banshee-data/eventcam/internal/monitoring"
	"github.com/banshee-data/eventcam/internal/stats"
	"github.com/banshee-data/eventcam/internal/viz"
)

// lengthHeaderSize is the little-endian frame length field width in
// length-prefixed TCP mode.
const lengthHeaderSize = 4

// ConnectionError reports a transport failure that ended the session.
// The outer retry policy decides whether to reconnect.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Config holds receive-loop settings for one session.
type Config struct {
	// Engine consumes every recovered frame. Required.
	Engine *viz.Engine

	// Stats is logged periodically when set.
	Stats *stats.Aggregator

	// LengthPrefixed expects a 4-byte little-endian length field before
	// each frame on the TCP stream.
	LengthPrefixed bool

	// ReadChunk is the per-read buffer size. Defaults to 256 KiB.
	ReadChunk int

	// SockBuf is the kernel receive buffer size. Zero keeps the OS
	// default.
	SockBuf int

	// PollInterval bounds each blocking read so the loop can observe
	// cancellation. Defaults to 100ms.
	PollInterval time.Duration

	// DatagramSize is the UDP payload split size. Defaults to 8192.
	DatagramSize int

	// LogInterval spaces the periodic stats log lines. Defaults to 10s.
	LogInterval time.Duration

	// OnFrame, when set, observes every processed frame (sequence
	// number and event count). Used by the viewer for render pacing.
	OnFrame func(seq uint64, events int)
}

func (c *Config) applyDefaults() error {
	if c.Engine == nil {
		return errors.New("receiver config requires an engine")
	}
	if c.ReadChunk <= 0 {
		c.ReadChunk = 256 * 1024
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.DatagramSize <= 0 {
		c.DatagramSize = 8192
	}
	if c.LogInterval <= 0 {
		c.LogInterval = 10 * time.Second
	}
	return nil
}

// Session drives one connection's receive/process loop.
type Session struct {
	cfg      Config
	unitSize int // frame size plus header in length-prefixed mode

	resetReq atomic.Bool
}

// RequestReset asks the session loop to reset the engine (and its
// stats) before processing the next frame. Safe from any goroutine;
// the reset itself happens on the loop, which owns the engine.
func (s *Session) RequestReset() { s.resetReq.Store(true) }

// NewSession creates a Session around the configured engine.
func NewSession(cfg Config) (*Session, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	unit := cfg.Engine.FrameSize()
	if cfg.LengthPrefixed {
		unit += lengthHeaderSize
	}
	return &Session{cfg: cfg, unitSize: unit}, nil
}

// RunTCP consumes the stream until EOF, cancellation, or a transport
// error. The connection is closed on return. A stream ending mid-frame
// surfaces a demux.IncompleteFrameError.
func (s *Session) RunTCP(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	if tcp, ok := conn.(*net.TCPConn); ok && s.cfg.SockBuf > 0 {
		if err := tcp.SetReadBuffer(s.cfg.SockBuf); err != nil {
			monitoring.Logf("Warning: failed to set receive buffer to %d: %v", s.cfg.SockBuf, err)
		}
	}

	d, err := demux.New(s.unitSize)
	if err != nil {
		return err
	}

	buf := make([]byte, s.cfg.ReadChunk)
	lastLog := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.PollInterval)); err != nil {
			return &ConnectionError{Op: "deadline", Err: err}
		}
		n, err := conn.Read(buf)
		if n > 0 {
			frames, ferr := d.Feed(buf[:n])
			if ferr != nil {
				return ferr
			}
			for _, f := range frames {
				s.handleFrame(f)
			}
		}
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				// Deadline poll; fall through to housekeeping.
			case errors.Is(err, io.EOF):
				if _, eofErr := d.Feed(nil); eofErr != nil {
					return eofErr
				}
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				return &ConnectionError{Op: "read", Err: err}
			}
		}

		if s.cfg.Stats != nil && time.Since(lastLog) >= s.cfg.LogInterval {
			s.cfg.Stats.LogStats()
			lastLog = time.Now()
		}
	}
}

// RunUDP consumes datagrams until cancellation or a socket error.
// Frames short of their full byte count are dropped, never recovered.
func (s *Session) RunUDP(ctx context.Context, conn *net.UDPConn) error {
	defer conn.Close()

	if s.cfg.SockBuf > 0 {
		if err := conn.SetReadBuffer(s.cfg.SockBuf); err != nil {
			monitoring.Logf("Warning: failed to set UDP receive buffer to %d: %v", s.cfg.SockBuf, err)
		}
	}

	r, err := demux.NewReassembler(s.cfg.Engine.FrameSize(), s.cfg.DatagramSize)
	if err != nil {
		return err
	}

	buf := make([]byte, s.cfg.DatagramSize)
	lastLog := time.Now()
	var lastDropped uint64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.PollInterval)); err != nil {
			return &ConnectionError{Op: "deadline", Err: err}
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &ConnectionError{Op: "read", Err: err}
		}

		if frame, ok := r.Add(buf[:n]); ok {
			s.handleFrame(frame)
		}

		if s.cfg.Stats != nil && time.Since(lastLog) >= s.cfg.LogInterval {
			if dropped := r.Dropped(); dropped > lastDropped {
				monitoring.Logf("Dropped %d lossy frames since last report", dropped-lastDropped)
				lastDropped = dropped
			}
			s.cfg.Stats.LogStats()
			lastLog = time.Now()
		}
	}
}

// handleFrame validates the optional length header and feeds the frame
// to the engine. Malformed frames are logged and skipped; the session
// continues.
func (s *Session) handleFrame(f demux.Frame) {
	if s.resetReq.CompareAndSwap(true, false) {
		monitoring.Logf("Resetting visualization state")
		s.cfg.Engine.Reset()
	}

	data := f.Data
	if s.cfg.LengthPrefixed {
		want := uint32(s.cfg.Engine.FrameSize())
		if got := binary.LittleEndian.Uint32(data[:lengthHeaderSize]); got != want {
			monitoring.Logf("Frame %d has bad length header %d (want %d), skipping", f.Seq, got, want)
			return
		}
		data = data[lengthHeaderSize:]
	}

	events, err := s.cfg.Engine.Process(data)
	if err != nil {
		var fe *evcodec.FormatError
		if errors.As(err, &fe) {
			monitoring.Logf("Frame %d rejected: %v", f.Seq, fe)
			return
		}
		monitoring.Logf("Frame %d processing failed: %v", f.Seq, err)
		return
	}
	if s.cfg.OnFrame != nil {
		s.cfg.OnFrame(f.Seq, events)
	}
}

// AcceptOne waits for a single client on lis, polling so cancellation
// is observed. The fake cameras stream to the first client to connect.
func AcceptOne(ctx context.Context, lis *net.TCPListener, pollInterval time.Duration) (net.Conn, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := lis.SetDeadline(time.Now().Add(pollInterval)); err != nil {
			return nil, err
		}
		conn, err := lis.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return nil, err
		}
		return conn, nil
	}
}
