package render

import (
	"math"

	"github.com/guidoenr/lumen/internal/params"
)

// patternFunc returns a field value in [-1,1] for the point (x,y).
type patternFunc func(x, y float64, fc *frameParams) float64

type patternEntry struct {
	fn patternFunc
	// detailMix is how much noise detail Complexity may blend in.
	detailMix float64
}

var patternRegistry = map[params.Mode]patternEntry{
	params.ModeClassic:        {fn: patternPlasma, detailMix: 0.35},
	params.ModeTunnel:         {fn: patternTunnel, detailMix: 0.2},
	params.ModeParticle:       {fn: patternParticles, detailMix: 0.1},
	params.ModeKaleidoscope:   {fn: patternKaleidoscope, detailMix: 0.3},
	params.ModeParametricWave: {fn: patternWaves, detailMix: 0.25},
	params.ModeFractal:        {fn: patternFractal, detailMix: 0},
}

func patternFor(m params.Mode) patternEntry {
	if e, ok := patternRegistry[m]; ok {
		return e
	}
	return patternRegistry[params.ModeClassic]
}

func patternPlasma(x, y float64, fc *frameParams) float64 {
	f := fc.frequency
	t := fc.time
	v1 := math.Sin((x*3.4*f + t*1.2) * 0.9)
	v2 := math.Sin((y*4.1*f - t*0.7) * 1.1)
	v3 := math.Sin((x+y)*2.3*f + t*1.7 + fc.shift)
	return (v1 + v2 + v3) / 3.0
}

func patternTunnel(x, y float64, fc *frameParams) float64 {
	r := math.Hypot(x, y) + 0.05
	theta := math.Atan2(y, x)
	depth := 0.6/r - fc.time*2
	twist := theta*3 + fc.shift*2
	return math.Sin(depth*fc.frequency*2) * math.Cos(twist+math.Sin(depth*0.5))
}

const particleCount = 9

func patternParticles(x, y float64, fc *frameParams) float64 {
	t := fc.time
	tight := 40 + 80*fc.treble
	best := 0.0
	for i := range particleCount {
		k := float64(i)
		px := 0.42 * math.Sin(t*(0.31+0.07*k)+k*1.7)
		py := 0.42 * math.Cos(t*(0.23+0.05*k)+k*2.3)
		d2 := (x-px)*(x-px) + (y-py)*(y-py)
		if v := math.Exp(-d2 * tight); v > best {
			best = v
		}
	}
	return best*2 - 1
}

const kaleidoSegments = 6

func patternKaleidoscope(x, y float64, fc *frameParams) float64 {
	r := math.Hypot(x, y)
	theta := math.Atan2(y, x) + fc.time*0.1
	seg := 2 * math.Pi / kaleidoSegments
	theta = math.Mod(theta, seg)
	if theta < 0 {
		theta += seg
	}
	if theta > seg/2 {
		theta = seg - theta
	}
	fx, fy := r*math.Cos(theta), r*math.Sin(theta)
	return patternPlasma(fx*1.6, fy*1.6, fc)
}

func patternWaves(x, y float64, fc *frameParams) float64 {
	f := fc.frequency * 6
	t := fc.time
	bend := math.Sin(y*4+t) * (0.3 + 2*fc.bass)
	return math.Sin(x*f+t*1.3+bend) * math.Cos((y-t*0.25)*f*0.8+fc.shift)
}

// patternFractal renders a Julia set whose constant orbits with the phase.
func patternFractal(x, y float64, fc *frameParams) float64 {
	angle := fc.time*0.3 + fc.shift
	cr, ci := 0.7885*math.Cos(angle), 0.7885*math.Sin(angle)
	zr, zi := x*2.6/fc.frequency, y*2.6/fc.frequency
	limit := fc.iterations
	i := 0
	for ; i < limit; i++ {
		zr, zi = zr*zr-zi*zi+cr, 2*zr*zi+ci
		if zr*zr+zi*zi > 4 {
			break
		}
	}
	return float64(i)/float64(limit)*2 - 1
}

func fractalNoise(x, y float64) float64 {
	amp := 0.5
	freq := 1.0
	total := 0.0
	sumAmp := 0.0

	for range noiseOctaves {
		total += valueNoise2(x*freq, y*freq) * amp
		sumAmp += amp
		amp *= 0.5
		freq *= 2.0
	}
	return (total/sumAmp)*2.0 - 1.0
}

const noiseOctaves = 4

func valueNoise2(x, y float64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)

	sx := smoothstep(x - x0)
	sy := smoothstep(y - y0)

	ix0 := lerp(hash2(x0, y0), hash2(x0+1, y0), sx)
	ix1 := lerp(hash2(x0, y0+1), hash2(x0+1, y0+1), sx)
	return lerp(ix0, ix1, sy)
}

func hash2(x, y float64) float64 {
	v := math.Sin(x*127.1+y*311.7) * 43758.5453123
	return v - math.Floor(v)
}

func smoothstep(v float64) float64 {
	return v * v * (3 - 2*v)
}
