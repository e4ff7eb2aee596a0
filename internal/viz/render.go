package viz

import (
	"image"
	"image/color"

	"gonum.org/v1/gonum/floats"
)

// Palette (RGB). Matches the dark viewer theme: cool positive events,
// warm negative events on near-black.
var (
	ColorBackground = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	ColorPositive   = color.RGBA{R: 50, G: 180, B: 255, A: 255}
	ColorNegative   = color.RGBA{R: 255, G: 50, B: 50, A: 255}
	ColorBorder     = color.RGBA{R: 80, G: 80, B: 80, A: 255}

	// splitBackground is the slightly lighter panel fill of split mode.
	splitBackground = color.RGBA{R: 40, G: 40, B: 40, A: 255}
)

// heatmapEpsilon: accumulator values below this render as background.
const heatmapEpsilon = 0.01

// Render draws the current state in the active mode into a fresh image.
func (e *Engine) Render() *image.RGBA {
	switch e.mode {
	case ModeTimeSurface:
		return e.renderTimeSurface()
	case ModeHeatmap:
		return e.renderHeatmap()
	case ModeSplit:
		return e.renderSplit()
	default:
		return e.renderStandard()
	}
}

func (e *Engine) newCanvas() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, e.cfg.Geometry.Width, e.cfg.Geometry.Height))
	fill(img, ColorBackground)
	return img
}

// renderStandard paints the last frame's masks in flat polarity colors.
// Positive wins where a pixel were somehow both (decode keeps the masks
// mutually exclusive, so this is belt only).
func (e *Engine) renderStandard() *image.RGBA {
	img := e.newCanvas()
	for i, set := range e.masks.Negative {
		if set {
			setIdx(img, i, ColorNegative)
		}
	}
	for i, set := range e.masks.Positive {
		if set {
			setIdx(img, i, ColorPositive)
		}
	}
	return img
}

// renderTimeSurface fades each pixel from its polarity color to the
// background as its last event ages. age = (tick - last)*decayRate,
// clamped to [0,1]; pixels that never fired, or fully aged out, show
// background.
func (e *Engine) renderTimeSurface() *image.RGBA {
	img := e.newCanvas()
	e.paintSurface(img, e.surfacePos, ColorPositive)
	e.paintSurface(img, e.surfaceNeg, ColorNegative)
	return img
}

func (e *Engine) paintSurface(img *image.RGBA, surface []float64, c color.RGBA) {
	for i, last := range surface {
		if last <= 0 {
			continue
		}
		age := (e.tick - last) * e.cfg.DecayRate
		if age < 0 {
			age = 0
		}
		if age >= 1 {
			continue
		}
		setIdx(img, i, blend(c, ColorBackground, 1-age))
	}
}

// renderHeatmap normalizes the accumulator by its current maximum
// (denominator floored at 1) and maps it through a jet-style ramp.
// Near-zero cells show background instead of the coldest ramp color.
func (e *Engine) renderHeatmap() *image.RGBA {
	img := e.newCanvas()
	maxVal := floats.Max(e.heat)
	if maxVal < 1 {
		maxVal = 1
	}
	for i, v := range e.heat {
		if v < heatmapEpsilon {
			continue
		}
		n := v / maxVal
		if n > 1 {
			n = 1
		}
		setIdx(img, i, jet(n))
	}
	return img
}

// renderSplit shows positive events on the left half and negative on
// the right, each rescaled to half width, with a divider between them.
func (e *Engine) renderSplit() *image.RGBA {
	w, h := e.cfg.Geometry.Width, e.cfg.Geometry.Height
	half := w / 2

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, splitBackground)

	for y := 0; y < h; y++ {
		row := y * w
		for dx := 0; dx < half; dx++ {
			srcX := dx * w / half
			if e.masks.Positive[row+srcX] {
				img.SetRGBA(dx, y, ColorPositive)
			}
			if e.masks.Negative[row+srcX] {
				img.SetRGBA(half+dx, y, ColorNegative)
			}
		}
	}

	// Divider, two pixels wide.
	for y := 0; y < h; y++ {
		img.SetRGBA(half-1, y, ColorBorder)
		img.SetRGBA(half, y, ColorBorder)
	}
	return img
}

// fill floods the image with one color via row copies.
func fill(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	row := img.Pix[:b.Dx()*4]
	for x := 0; x < b.Dx(); x++ {
		row[x*4+0] = c.R
		row[x*4+1] = c.G
		row[x*4+2] = c.B
		row[x*4+3] = c.A
	}
	for y := 1; y < b.Dy(); y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+len(row)], row)
	}
}

// setIdx writes a color at a row-major pixel index.
func setIdx(img *image.RGBA, idx int, c color.RGBA) {
	w := img.Bounds().Dx()
	img.SetRGBA(idx%w, idx/w, c)
}

// blend mixes a and b with weight w on a (w in [0,1]).
func blend(a, b color.RGBA, w float64) color.RGBA {
	iw := 1 - w
	return color.RGBA{
		R: uint8(float64(a.R)*w + float64(b.R)*iw),
		G: uint8(float64(a.G)*w + float64(b.G)*iw),
		B: uint8(float64(a.B)*w + float64(b.B)*iw),
		A: 255,
	}
}

// jet maps a normalized value to the classic blue→cyan→yellow→red ramp.
func jet(v float64) color.RGBA {
	channel := func(x float64) uint8 {
		if x < 0 {
			x = 0
		}
		if x > 1 {
			x = 1
		}
		return uint8(x * 255)
	}
	return color.RGBA{
		R: channel(1.5 - abs(4*v-3)),
		G: channel(1.5 - abs(4*v-2)),
		B: channel(1.5 - abs(4*v-1)),
		A: 255,
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
