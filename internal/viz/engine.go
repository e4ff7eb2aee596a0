package viz

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/eventcam/internal/evcodec"
	"github.com/banshee-data/eventcam/internal/monitoring"
	"github.com/banshee-data/eventcam/internal/stats"
)

// Mode selects the render style. Switchable at any time; the default
// is ModeStandard.
type Mode int

const (
	ModeStandard Mode = iota + 1
	ModeTimeSurface
	ModeHeatmap
	ModeSplit
)

func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeTimeSurface:
		return "time-surface"
	case ModeHeatmap:
		return "heatmap"
	case ModeSplit:
		return "split-polarity"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps the 1-4 mode keys (and their names) to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "1", "standard":
		return ModeStandard, nil
	case "2", "time-surface":
		return ModeTimeSurface, nil
	case "3", "heatmap":
		return ModeHeatmap, nil
	case "4", "split", "split-polarity":
		return ModeSplit, nil
	}
	return 0, fmt.Errorf("unknown visualization mode %q", s)
}

// Config holds visualization engine tuning.
type Config struct {
	Geometry evcodec.Geometry

	// DecayRate is the time-surface age added per logical tick. A pixel
	// fades out completely after 1/DecayRate ticks.
	DecayRate float64

	// HeatmapDecay multiplies the activity accumulator each tick.
	// Must be in (0, 1).
	HeatmapDecay float64

	// Stats receives per-frame event counts. Optional.
	Stats *stats.Aggregator
}

// DefaultConfig returns engine defaults matching the sensor viewer:
// events fade over ~33 ticks, heatmap halves in ~14 ticks.
func DefaultConfig() Config {
	return Config{
		Geometry:     evcodec.DefaultGeometry(),
		DecayRate:    0.03,
		HeatmapDecay: 0.95,
	}
}

// Engine consumes decoded frames and maintains the per-pixel temporal
// state behind each render mode. All state is owned by the session
// loop; only the stats aggregator is shared.
type Engine struct {
	cfg   Config
	codec *evcodec.Codec
	masks *evcodec.Masks

	mode Mode
	tick float64

	// Last-active tick per pixel, one surface per polarity. Zero means
	// never active since the last reset.
	surfacePos []float64
	surfaceNeg []float64

	// Decaying activity accumulator.
	heat []float64

	reservedSeen int64
}

// NewEngine creates an Engine for the configured geometry.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.DecayRate <= 0 {
		cfg.DecayRate = DefaultConfig().DecayRate
	}
	if cfg.HeatmapDecay <= 0 || cfg.HeatmapDecay >= 1 {
		return nil, fmt.Errorf("heatmap decay must be in (0,1), got %v", cfg.HeatmapDecay)
	}
	codec, err := evcodec.New(cfg.Geometry)
	if err != nil {
		return nil, err
	}
	n := cfg.Geometry.TotalPixels()
	return &Engine{
		cfg:        cfg,
		codec:      codec,
		masks:      evcodec.NewMasks(cfg.Geometry),
		mode:       ModeStandard,
		surfacePos: make([]float64, n),
		surfaceNeg: make([]float64, n),
		heat:       make([]float64, n),
	}, nil
}

// SetMode switches the render mode. Takes effect on the next Render.
func (e *Engine) SetMode(m Mode) { e.mode = m }

// Mode returns the active render mode.
func (e *Engine) Mode() Mode { return e.mode }

// Tick returns the current logical tick (frames processed since reset).
func (e *Engine) Tick() float64 { return e.tick }

// FrameSize returns the packed frame size the engine expects.
func (e *Engine) FrameSize() int { return e.codec.FrameSize() }

// ReservedSeen returns the cumulative count of reserved (value 3)
// pixels observed since the last reset. A data-quality signal only.
func (e *Engine) ReservedSeen() int64 { return e.reservedSeen }

// Process decodes one frame and folds it into the temporal state:
// advances the logical tick, stamps both time surfaces, decays the
// heatmap before adding hits, and forwards the event count to the
// stats aggregator. Returns the frame's event count.
//
// A wrong-size frame yields an evcodec.FormatError; the engine state is
// untouched and the caller may continue the session.
func (e *Engine) Process(frame []byte) (int, error) {
	events, err := e.codec.Decode(frame, e.masks)
	if err != nil {
		return 0, err
	}
	if e.masks.ReservedCount > 0 {
		e.reservedSeen += int64(e.masks.ReservedCount)
		monitoring.Debugf("frame carried %d reserved pixels", e.masks.ReservedCount)
	}

	e.tick++

	floats.Scale(e.cfg.HeatmapDecay, e.heat)
	for i, set := range e.masks.Positive {
		if set {
			e.surfacePos[i] = e.tick
			e.heat[i] += 1.0
		}
	}
	for i, set := range e.masks.Negative {
		if set {
			e.surfaceNeg[i] = e.tick
			e.heat[i] += 1.0
		}
	}

	if e.cfg.Stats != nil {
		e.cfg.Stats.Update(events)
	}
	return events, nil
}

// Reset zeroes the time surfaces, heatmap, logical tick and reserved
// counter, and resets the stats aggregator. Idempotent: the engine ends
// in the same state as freshly constructed (the mode is kept).
func (e *Engine) Reset() {
	clear(e.surfacePos)
	clear(e.surfaceNeg)
	clear(e.heat)
	e.tick = 0
	e.reservedSeen = 0
	e.masks.Reset()
	if e.cfg.Stats != nil {
		e.cfg.Stats.Reset()
	}
}
