package demux

import "fmt"

// Reassembler rebuilds frames from ordered fixed-size datagrams. The
// sender splits each frame into datagramSize payloads with a shorter
// tail datagram when the frame size is not an exact multiple. Loss is
// tolerated, never recovered: a frame that is short when its tail (or
// the next frame's first datagram) arrives is dropped whole.
type Reassembler struct {
	frameSize    int
	datagramSize int
	buf          []byte
	nextSeq      uint64
	dropped      uint64
}

// NewReassembler creates a Reassembler for the given frame and datagram
// payload sizes.
func NewReassembler(frameSize, datagramSize int) (*Reassembler, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("invalid frame size %d", frameSize)
	}
	if datagramSize <= 0 || datagramSize > frameSize {
		return nil, fmt.Errorf("invalid datagram size %d for frame size %d", datagramSize, frameSize)
	}
	return &Reassembler{
		frameSize:    frameSize,
		datagramSize: datagramSize,
		buf:          make([]byte, 0, frameSize),
	}, nil
}

// Add appends one received datagram. It returns a complete frame and
// true when the datagram finishes a frame; otherwise the zero Frame and
// false. Short frames are dropped silently (the Dropped counter is the
// only record).
func (r *Reassembler) Add(datagram []byte) (Frame, bool) {
	if len(datagram) == 0 || len(datagram) > r.datagramSize {
		// Not part of the positional split contract; treat the frame in
		// progress as corrupt.
		r.drop()
		return Frame{}, false
	}

	if len(r.buf)+len(datagram) > r.frameSize {
		// The frame in progress lost datagrams and this payload belongs
		// to the next frame. Drop and restart from it.
		r.drop()
	}
	r.buf = append(r.buf, datagram...)

	if len(r.buf) == r.frameSize {
		data := make([]byte, r.frameSize)
		copy(data, r.buf)
		frame := Frame{Seq: r.nextSeq, Data: data}
		r.nextSeq++
		r.buf = r.buf[:0]
		return frame, true
	}

	if len(datagram) < r.datagramSize {
		// A short datagram is always a frame tail; arriving here with a
		// partial buffer means datagrams went missing.
		r.drop()
	}
	return Frame{}, false
}

func (r *Reassembler) drop() {
	if len(r.buf) > 0 {
		r.dropped++
		r.buf = r.buf[:0]
	}
}

// Dropped returns the number of frames discarded due to loss.
func (r *Reassembler) Dropped() uint64 { return r.dropped }

// Pending returns the bytes accumulated for the frame in progress.
func (r *Reassembler) Pending() int { return len(r.buf) }
