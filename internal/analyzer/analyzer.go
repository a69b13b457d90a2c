package analyzer

import (
	"math"

	"github.com/guidoenr/lumen/internal/pcm"
)

const defaultSampleRate = 44_100

// Analyzer runs the spectral transform and band extraction for a stream of
// chunks. It is owned by a single producer goroutine.
type Analyzer struct {
	spectral   *SpectralAnalyzer
	bands      *BandExtractor
	noiseFloor float64
	lastFrame  SpectralFrame
}

// Config controls Analyzer behavior.
type Config struct {
	WindowSize int
	// NoiseFloor gates band energies below this normalised level.
	NoiseFloor float64
}

// New creates an Analyzer with sensible defaults.
func New(cfg Config) *Analyzer {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = WindowSize
	}
	return &Analyzer{
		spectral:   NewSpectralAnalyzer(cfg.WindowSize),
		bands:      NewBandExtractor(),
		noiseFloor: clamp01(cfg.NoiseFloor),
	}
}

// Analyze returns the features of chunk. Empty or silent chunks produce
// silence-equivalent features.
func (a *Analyzer) Analyze(chunk pcm.Chunk) Features {
	frame := a.spectral.Analyze(chunk)
	a.lastFrame = frame
	f := a.bands.Extract(frame)
	return GateFeatures(f, a.noiseFloor)
}

// SetNoiseFloor changes the gate level.
func (a *Analyzer) SetNoiseFloor(floor float64) {
	a.noiseFloor = clamp01(floor)
}

// NoiseFloor returns the gate level.
func (a *Analyzer) NoiseFloor() float64 { return a.noiseFloor }

// WindowSize returns the transform length in use.
func (a *Analyzer) WindowSize() int { return a.spectral.Size() }

// LastFrame returns the most recent spectral frame.
func (a *Analyzer) LastFrame() SpectralFrame { return a.lastFrame }

// Reset clears all retained state.
func (a *Analyzer) Reset() {
	a.bands.Reset()
	a.lastFrame = SpectralFrame{}
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func clamp(v, minVal, maxVal float64) float64 {
	if math.IsNaN(v) {
		return minVal
	}
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
