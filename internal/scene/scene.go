// Package scene pre-generates synthetic event frames for the fake
// camera: moving polarity circles on sinusoidal paths plus optional
// sensor-style salt noise. Generation happens once up front so the send
// loop can sustain high frame rates from a finite pool.
package scene

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/banshee-data/eventcam/internal/evcodec"
)

// Config controls synthetic scene content.
type Config struct {
	Geometry evcodec.Geometry

	// Radius of both moving circles, pixels.
	Radius int

	// PeriodX and PeriodY are the frame counts for one full oscillation
	// of the positive (horizontal) and negative (vertical) circles.
	PeriodX int
	PeriodY int

	// NoiseEvents adds this many random single-pixel events per frame,
	// imitating sensor background activity. Zero disables noise.
	NoiseEvents int

	// Seed for noise placement. Zero means a fixed default so pools are
	// reproducible.
	Seed int64
}

// DefaultConfig mirrors the reference fake-camera scene: radius-40
// circles with 200/150 frame periods at 1280x720.
func DefaultConfig() Config {
	return Config{
		Geometry: evcodec.DefaultGeometry(),
		Radius:   40,
		PeriodX:  200,
		PeriodY:  150,
	}
}

// Pool is an immutable collection of pre-generated packed frames.
type Pool struct {
	frames    [][]byte
	frameSize int
}

// Generate pre-builds count frames of the configured scene.
func Generate(cfg Config, count int) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("frame count must be positive, got %d", count)
	}
	if cfg.Radius <= 0 || cfg.PeriodX <= 0 || cfg.PeriodY <= 0 {
		return nil, fmt.Errorf("invalid scene config: radius=%d periodX=%d periodY=%d", cfg.Radius, cfg.PeriodX, cfg.PeriodY)
	}
	codec, err := evcodec.New(cfg.Geometry)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	rng := rand.New(rand.NewSource(seed))

	w, h := cfg.Geometry.Width, cfg.Geometry.Height
	frames := make([][]byte, count)
	for n := range frames {
		frame := make([]byte, codec.FrameSize())

		// Positive circle sweeps horizontally, negative vertically.
		cxPos := int(float64(w)/2 + float64(w)/3*math.Sin(2*math.Pi*float64(n)/float64(cfg.PeriodX)))
		cyPos := h / 3
		drawCircle(codec, frame, cxPos, cyPos, cfg.Radius, evcodec.PixelPositive)

		cxNeg := w / 2
		cyNeg := int(float64(h)/2 + float64(h)/3*math.Sin(2*math.Pi*float64(n)/float64(cfg.PeriodY)))
		drawCircle(codec, frame, cxNeg, cyNeg, cfg.Radius, evcodec.PixelNegative)

		for i := 0; i < cfg.NoiseEvents; i++ {
			x, y := rng.Intn(w), rng.Intn(h)
			if codec.PixelAt(frame, x, y) != evcodec.PixelNone {
				continue
			}
			v := evcodec.PixelPositive
			if rng.Intn(2) == 1 {
				v = evcodec.PixelNegative
			}
			codec.SetPixel(frame, x, y, v)
		}

		frames[n] = frame
	}

	return &Pool{frames: frames, frameSize: codec.FrameSize()}, nil
}

// drawCircle fills a circle with the given polarity. Existing events
// are never overwritten, so overlapping circles keep their first
// polarity.
func drawCircle(codec *evcodec.Codec, frame []byte, cx, cy, radius int, value uint8) {
	g := codec.Geometry()
	r2 := radius * radius
	for y := max(0, cy-radius); y <= min(g.Height-1, cy+radius); y++ {
		dy := y - cy
		for x := max(0, cx-radius); x <= min(g.Width-1, cx+radius); x++ {
			dx := x - cx
			if dx*dx+dy*dy > r2 {
				continue
			}
			if codec.PixelAt(frame, x, y) == evcodec.PixelNone {
				codec.SetPixel(frame, x, y, value)
			}
		}
	}
}

// Len returns the number of pre-generated frames.
func (p *Pool) Len() int { return len(p.frames) }

// FrameSize returns the packed size of each frame.
func (p *Pool) FrameSize() int { return p.frameSize }

// Frame returns frame i, wrapping modulo the pool size.
func (p *Pool) Frame(i int) []byte {
	return p.frames[i%len(p.frames)]
}

// Batches concatenates the pool into batches of exactly batchFrames
// frames each, wrapping cyclically so every batch is full. The result
// feeds the paced sender's pre-built batch collection.
func (p *Pool) Batches(batchFrames int) ([][]byte, error) {
	if batchFrames <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchFrames)
	}
	numBatches := (len(p.frames) + batchFrames - 1) / batchFrames
	batches := make([][]byte, numBatches)
	idx := 0
	for b := range batches {
		batch := make([]byte, 0, batchFrames*p.frameSize)
		for f := 0; f < batchFrames; f++ {
			batch = append(batch, p.Frame(idx)...)
			idx++
		}
		batches[b] = batch
	}
	return batches, nil
}
