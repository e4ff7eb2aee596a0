package demux

import "fmt"

// Frame is one complete extracted frame. Data is an independent copy;
// it remains valid after subsequent Feed calls. Seq is assigned in
// extraction order starting at 0 and is never reused.
type Frame struct {
	Seq  uint64
	Data []byte
}

// IncompleteFrameError reports a stream that ended with a non-empty,
// sub-frame-size remainder buffered. It ends the session rather than
// silently dropping the tail.
type IncompleteFrameError struct {
	Buffered  int
	FrameSize int
}

func (e *IncompleteFrameError) Error() string {
	return fmt.Sprintf("stream ended with incomplete frame: %d of %d bytes buffered", e.Buffered, e.FrameSize)
}

// Demuxer splits a raw byte stream into fixed-size frames. It is owned
// by a single session and is not safe for concurrent use.
type Demuxer struct {
	frameSize int
	buf       []byte
	off       int // consumed prefix of buf
	nextSeq   uint64
}

// New creates a Demuxer for the given frame size in bytes.
func New(frameSize int) (*Demuxer, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("invalid frame size %d", frameSize)
	}
	return &Demuxer{frameSize: frameSize}, nil
}

// Feed appends a chunk to the internal buffer and returns every
// complete frame now available, in order. A zero-length chunk signals
// transport EOF: Feed then returns an IncompleteFrameError if a partial
// frame is buffered, or (nil, nil) on a clean boundary.
func (d *Demuxer) Feed(chunk []byte) ([]Frame, error) {
	if len(chunk) == 0 {
		if n := d.Buffered(); n > 0 {
			return nil, &IncompleteFrameError{Buffered: n, FrameSize: d.frameSize}
		}
		return nil, nil
	}

	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for len(d.buf)-d.off >= d.frameSize {
		data := make([]byte, d.frameSize)
		copy(data, d.buf[d.off:d.off+d.frameSize])
		frames = append(frames, Frame{Seq: d.nextSeq, Data: data})
		d.nextSeq++
		d.off += d.frameSize
	}

	// Reclaim consumed space. Compacting only after at least one whole
	// frame was extracted keeps the per-byte cost amortised O(1) even
	// under single-byte chunks; compacting on every feed would be
	// quadratic while a frame fills up.
	if d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	} else if d.off >= d.frameSize {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}

	return frames, nil
}

// Buffered returns the number of remainder bytes currently held. It is
// always in [0, frameSize) after a Feed call.
func (d *Demuxer) Buffered() int {
	return len(d.buf) - d.off
}

// FrameSize returns the configured frame size in bytes.
func (d *Demuxer) FrameSize() int { return d.frameSize }

// NextSeq returns the sequence number the next extracted frame will
// receive, which equals the number of frames extracted so far.
func (d *Demuxer) NextSeq() uint64 { return d.nextSeq }

// Reset discards buffered bytes and restarts sequence numbering. Used
// when a session reconnects to a fresh stream.
func (d *Demuxer) Reset() {
	d.buf = d.buf[:0]
	d.off = 0
	d.nextSeq = 0
}
