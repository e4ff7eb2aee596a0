package sender

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/banshee-data/eventcam/internal/monitoring"
)

// Transport accepts whole batches for transmission. Send blocks until
// the transport has taken the data; that blocking is the backpressure
// mechanism that throttles a fast sender against a slow receiver.
type Transport interface {
	Send(batch []byte) error
	Close() error
}

// DialTCP connects to a receiver and tunes the socket for sustained
// high-rate streaming (no Nagle delay, large send buffer).
func DialTCP(ctx context.Context, addr string, sndBuf int) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	tuneTCP(conn, sndBuf)
	return conn, nil
}

func tuneTCP(conn net.Conn, sndBuf int) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcp.SetNoDelay(true); err != nil {
		monitoring.Logf("Warning: failed to disable Nagle: %v", err)
	}
	if sndBuf > 0 {
		if err := tcp.SetWriteBuffer(sndBuf); err != nil {
			monitoring.Logf("Warning: failed to set send buffer to %d: %v", sndBuf, err)
		}
	}
}

// TCPTransport streams batches over one TCP connection, raw frames
// back-to-back. With LengthPrefix set, every frame in a batch is
// preceded by a 4-byte little-endian length field for receivers that
// cannot assume a fixed frame size.
type TCPTransport struct {
	conn         net.Conn
	frameSize    int
	lengthPrefix bool
	hdr          [4]byte
}

// NewTCPTransport wraps an established connection. frameSize is only
// consulted in length-prefix mode, to split batches back into frames.
func NewTCPTransport(conn net.Conn, frameSize int, lengthPrefix bool) (*TCPTransport, error) {
	if lengthPrefix && frameSize <= 0 {
		return nil, fmt.Errorf("length-prefix mode requires a positive frame size, got %d", frameSize)
	}
	tuneTCP(conn, 0)
	t := &TCPTransport{conn: conn, frameSize: frameSize, lengthPrefix: lengthPrefix}
	binary.LittleEndian.PutUint32(t.hdr[:], uint32(frameSize))
	return t, nil
}

// Send writes one batch, blocking until the kernel accepts it.
func (t *TCPTransport) Send(batch []byte) error {
	if !t.lengthPrefix {
		_, err := t.conn.Write(batch)
		return err
	}
	for off := 0; off < len(batch); off += t.frameSize {
		if _, err := t.conn.Write(t.hdr[:]); err != nil {
			return err
		}
		if _, err := t.conn.Write(batch[off : off+t.frameSize]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying connection.
func (t *TCPTransport) Close() error { return t.conn.Close() }

// UDPTransport splits every frame of a batch into fixed-size datagrams
// and fires them at the destination. Loss is accepted, not recovered.
type UDPTransport struct {
	conn         *net.UDPConn
	frameSize    int
	datagramSize int
}

// NewUDPTransport dials the destination and tunes the send buffer.
func NewUDPTransport(addr string, frameSize, datagramSize, sndBuf int) (*UDPTransport, error) {
	if frameSize <= 0 || datagramSize <= 0 || datagramSize > frameSize {
		return nil, fmt.Errorf("invalid sizes: frame=%d datagram=%d", frameSize, datagramSize)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	if sndBuf > 0 {
		if err := conn.SetWriteBuffer(sndBuf); err != nil {
			monitoring.Logf("Warning: failed to set UDP send buffer to %d: %v", sndBuf, err)
		}
	}
	return &UDPTransport{conn: conn, frameSize: frameSize, datagramSize: datagramSize}, nil
}

// Send transmits each frame of the batch as a run of datagrams. Frames
// never share a datagram, so the receiver can reassemble positionally.
func (t *UDPTransport) Send(batch []byte) error {
	for frameOff := 0; frameOff < len(batch); frameOff += t.frameSize {
		frame := batch[frameOff : frameOff+t.frameSize]
		for off := 0; off < len(frame); off += t.datagramSize {
			end := off + t.datagramSize
			if end > len(frame) {
				end = len(frame)
			}
			if _, err := t.conn.Write(frame[off:end]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the underlying socket.
func (t *UDPTransport) Close() error { return t.conn.Close() }
