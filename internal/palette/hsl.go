package palette

import (
	"image/color"
	"math"
)

// hsl holds hue in degrees [0, 360) and saturation/lightness in [0, 1].
type hsl struct {
	h, s, l float64
}

func toHSL(c color.NRGBA) hsl {
	r, g, b := float64(c.R)/255, float64(c.G)/255, float64(c.B)/255
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	l := (hi + lo) / 2
	if hi == lo {
		return hsl{0, 0, l}
	}

	d := hi - lo
	var s float64
	if l > 0.5 {
		s = d / (2 - hi - lo)
	} else {
		s = d / (hi + lo)
	}

	var h float64
	switch hi {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return hsl{h * 60, s, l}
}

func (v hsl) toNRGBA(alpha uint8) color.NRGBA {
	if v.s == 0 {
		c := channel(v.l)
		return color.NRGBA{R: c, G: c, B: c, A: alpha}
	}
	var q float64
	if v.l < 0.5 {
		q = v.l * (1 + v.s)
	} else {
		q = v.l + v.s - v.l*v.s
	}
	p := 2*v.l - q
	h := v.h / 360
	return color.NRGBA{
		R: channel(hueToRGB(p, q, h+1.0/3)),
		G: channel(hueToRGB(p, q, h)),
		B: channel(hueToRGB(p, q, h-1.0/3)),
		A: alpha,
	}
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}

func channel(x float64) uint8 {
	return uint8(math.Round(clamp01(x) * 255))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// shift returns a copy with hue rotated by dh degrees and saturation and
// lightness scaled, clamped back into range.
func (v hsl) shift(dh, sMul, lMul float64) hsl {
	h := math.Mod(v.h+dh, 360)
	if h < 0 {
		h += 360
	}
	return hsl{h, clamp01(v.s * sMul), clamp01(v.l * lMul)}
}
