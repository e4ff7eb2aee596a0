package evcodec

import "fmt"

// Pixel polarity values as stored in the 2-bit packed frame format.
const (
	PixelNone     uint8 = 0 // no event
	PixelPositive uint8 = 1 // brightness increased
	PixelNegative uint8 = 2 // brightness decreased
	PixelReserved uint8 = 3 // unused by the sensor, decoded as no event
)

// BitsPerPixel and PixelsPerByte describe the packing density.
const (
	BitsPerPixel  = 2
	PixelsPerByte = 8 / BitsPerPixel
)

// Geometry describes the fixed frame dimensions agreed out-of-band by
// sender and receiver.
type Geometry struct {
	Width  int
	Height int
}

// DefaultGeometry returns the 1280x720 sensor geometry
// (230,400 byte frames).
func DefaultGeometry() Geometry {
	return Geometry{Width: 1280, Height: 720}
}

// TotalPixels returns the number of pixels in one frame.
func (g Geometry) TotalPixels() int {
	return g.Width * g.Height
}

// FrameSize returns the packed frame size in bytes, including padding
// bits in the final byte when the pixel count is not a multiple of four.
func (g Geometry) FrameSize() int {
	return (g.TotalPixels() + PixelsPerByte - 1) / PixelsPerByte
}

// Validate checks the geometry for usable dimensions.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("invalid geometry %dx%d: dimensions must be positive", g.Width, g.Height)
	}
	return nil
}

// FormatError reports a buffer with the wrong length for the configured
// geometry. It is recoverable: callers reject the frame and continue.
type FormatError struct {
	Got  int
	Want int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("bad frame buffer length: got %d bytes, want %d", e.Got, e.Want)
}

// Masks holds the per-polarity decode output for one frame. The slices
// are indexed row-major (y*Width + x) and are reused across decodes so
// the hot path stays allocation-free.
type Masks struct {
	Positive []bool
	Negative []bool

	// ReservedCount counts pixels carrying the reserved value 3 in the
	// last decoded frame. Nonzero values are a data-quality signal, not
	// an error.
	ReservedCount int
}

// NewMasks allocates mask storage for the given geometry.
func NewMasks(g Geometry) *Masks {
	n := g.TotalPixels()
	return &Masks{
		Positive: make([]bool, n),
		Negative: make([]bool, n),
	}
}

// Reset clears both masks and the reserved counter.
func (m *Masks) Reset() {
	clear(m.Positive)
	clear(m.Negative)
	m.ReservedCount = 0
}

// Codec packs and unpacks frames for one fixed geometry.
type Codec struct {
	geom        Geometry
	frameSize   int
	totalPixels int
}

// New creates a Codec for the given geometry.
func New(g Geometry) (*Codec, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Codec{
		geom:        g,
		frameSize:   g.FrameSize(),
		totalPixels: g.TotalPixels(),
	}, nil
}

// Geometry returns the codec's frame geometry.
func (c *Codec) Geometry() Geometry { return c.geom }

// FrameSize returns the packed size of one frame in bytes.
func (c *Codec) FrameSize() int { return c.frameSize }

// Encode packs a row-major pixel grid into dst and returns it. The grid
// must hold exactly Width*Height values in [0,3]. dst is reused when it
// has sufficient capacity; pass nil to allocate. Padding slots in the
// final byte are zero.
func (c *Codec) Encode(pixels []uint8, dst []byte) ([]byte, error) {
	if len(pixels) != c.totalPixels {
		return nil, &FormatError{Got: len(pixels), Want: c.totalPixels}
	}
	if cap(dst) < c.frameSize {
		dst = make([]byte, c.frameSize)
	} else {
		dst = dst[:c.frameSize]
		clear(dst)
	}

	// Full groups of four pixels per byte; the tail byte is handled below.
	full := c.totalPixels / PixelsPerByte
	for i := 0; i < full; i++ {
		p := pixels[i*PixelsPerByte:]
		dst[i] = (p[0]&0x03)<<6 | (p[1]&0x03)<<4 | (p[2]&0x03)<<2 | p[3]&0x03
	}
	if rem := c.totalPixels % PixelsPerByte; rem != 0 {
		var b byte
		for j := 0; j < rem; j++ {
			shift := uint(6 - j*BitsPerPixel)
			b |= (pixels[full*PixelsPerByte+j] & 0x03) << shift
		}
		dst[full] = b
	}
	return dst, nil
}

// Decode unpacks a frame into m. The frame must be exactly FrameSize
// bytes. It returns the event count (positive + negative pixels).
//
// Zero bytes carry no events and are skipped without touching the
// masks, which keeps the cost near O(active pixels) for sparse frames
// after the bulk clear.
func (c *Codec) Decode(frame []byte, m *Masks) (int, error) {
	if len(frame) != c.frameSize {
		return 0, &FormatError{Got: len(frame), Want: c.frameSize}
	}
	m.Reset()

	events := 0
	for byteIdx, b := range frame {
		if b == 0 {
			continue
		}
		base := byteIdx * PixelsPerByte
		for slot := 0; slot < PixelsPerByte; slot++ {
			v := (b >> uint(6-slot*BitsPerPixel)) & 0x03
			if v == PixelNone {
				continue
			}
			idx := base + slot
			if idx >= c.totalPixels {
				// Padding slots in the final byte.
				continue
			}
			switch v {
			case PixelPositive:
				m.Positive[idx] = true
				events++
			case PixelNegative:
				m.Negative[idx] = true
				events++
			default:
				m.ReservedCount++
			}
		}
	}
	return events, nil
}

// SetPixel writes a single pixel value into a packed frame buffer.
// Out-of-range coordinates are ignored. Used by scene generators that
// draw directly into packed frames.
func (c *Codec) SetPixel(frame []byte, x, y int, value uint8) {
	if x < 0 || x >= c.geom.Width || y < 0 || y >= c.geom.Height {
		return
	}
	idx := y*c.geom.Width + x
	byteIdx := idx / PixelsPerByte
	shift := uint(6 - (idx%PixelsPerByte)*BitsPerPixel)
	frame[byteIdx] = frame[byteIdx]&^(0x03<<shift) | (value&0x03)<<shift
}

// PixelAt reads a single pixel value from a packed frame buffer.
func (c *Codec) PixelAt(frame []byte, x, y int) uint8 {
	idx := y*c.geom.Width + x
	byteIdx := idx / PixelsPerByte
	shift := uint(6 - (idx%PixelsPerByte)*BitsPerPixel)
	return (frame[byteIdx] >> shift) & 0x03
}
