package safety

import (
	"math"

	"github.com/guidoenr/lumen/internal/params"
)

// RGB is a linear color with components in [0,1].
type RGB struct {
	R, G, B float64
}

// Luminance weights the color with the ITU-R BT.709 coefficients.
func (c RGB) Luminance() float64 {
	return 0.2126*c.R + 0.7152*c.G + 0.0722*c.B
}

// RedDominant reports whether red clearly outweighs the other components.
func (c RGB) RedDominant() bool {
	return c.R > c.G*1.5 && c.R > c.B*1.5
}

// DisplayValue is the HSV value p is shown at: brightness raised by the
// strongest pulse. Renderers must not exceed it.
func DisplayValue(p params.VisualParameters) float64 {
	pulse := math.Max(p.BeatPulse, p.OnsetPulse)
	return clampUnit(p.Brightness * (0.7 + 0.3*pulse))
}

// Color returns the representative display color of p.
func Color(p params.VisualParameters) RGB {
	return FromHSV(p.Hue, p.Saturation, DisplayValue(p))
}

// Luminance returns the perceptual luminance of p in [0,1].
func Luminance(p params.VisualParameters) float64 {
	return Color(p).Luminance()
}

// FromHSV converts a hue in turns (wrapped) and saturation and value in
// [0,1] to RGB.
func FromHSV(h, s, v float64) RGB {
	h = params.WrapHue(h)
	s = clampUnit(s)
	v = clampUnit(v)
	if s <= 0 {
		return RGB{v, v, v}
	}
	h *= 6
	i := math.Floor(h)
	f := h - i
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	switch int(i) % 6 {
	case 0:
		return RGB{v, t, p}
	case 1:
		return RGB{q, v, p}
	case 2:
		return RGB{p, v, t}
	case 3:
		return RGB{p, q, v}
	case 4:
		return RGB{t, p, v}
	default:
		return RGB{v, p, q}
	}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
