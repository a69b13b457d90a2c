package analyzer

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/guidoenr/lumen/internal/pcm"
)

// WindowSize is the default analysis window length.
const WindowSize = 1024

// SpectralFrame is the windowed frequency-domain view of one chunk.
type SpectralFrame struct {
	// Bins holds the full complex transform; its length is the window size.
	Bins []complex128
	// Magnitudes holds len(Bins)/2+1 amplitude-normalised magnitudes.
	Magnitudes []float64
	SampleRate float64
	// Samples are the mono time-domain samples that were analysed, before
	// windowing and without padding.
	Samples []float64
	Silent  bool
}

// Size returns the transform length.
func (f SpectralFrame) Size() int { return len(f.Bins) }

// Resolution returns the width of one bin in Hz.
func (f SpectralFrame) Resolution() float64 {
	if len(f.Bins) == 0 || f.SampleRate <= 0 {
		return 0
	}
	return f.SampleRate / float64(len(f.Bins))
}

// Nyquist returns half the sample rate.
func (f SpectralFrame) Nyquist() float64 { return f.SampleRate / 2 }

// SpectralAnalyzer converts PCM chunks into fixed-size spectra. It keeps no
// state between calls beyond its window coefficients.
type SpectralAnalyzer struct {
	size   int
	window []float64
	gain   float64
}

// NewSpectralAnalyzer creates an analyzer whose window is size rounded up to
// a power of two.
func NewSpectralAnalyzer(size int) *SpectralAnalyzer {
	if size <= 0 {
		size = WindowSize
	}
	size = nextPow2(size)
	if size < 64 {
		size = 64
	}
	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1
	}
	window.Hann(coeffs)

	sum := 0.0
	for _, w := range coeffs {
		sum += w
	}
	gain := 0.0
	if sum > 0 {
		gain = 2 / sum
	}
	return &SpectralAnalyzer{size: size, window: coeffs, gain: gain}
}

// Size returns the window length.
func (s *SpectralAnalyzer) Size() int { return s.size }

// Analyze transforms the most recent window of chunk. Shorter chunks are
// zero-padded; an empty chunk yields a silent frame.
func (s *SpectralAnalyzer) Analyze(chunk pcm.Chunk) SpectralFrame {
	sampleRate := chunk.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	mono := chunk.Mono()
	if len(mono) > s.size {
		mono = mono[len(mono)-s.size:]
	}

	frame := SpectralFrame{
		Bins:       make([]complex128, s.size),
		Magnitudes: make([]float64, s.size/2+1),
		SampleRate: sampleRate,
		Samples:    mono,
		Silent:     true,
	}
	if len(mono) == 0 {
		return frame
	}

	buffer := make([]complex128, s.size)
	for i, v := range mono {
		if v != 0 {
			frame.Silent = false
		}
		buffer[i] = complex(v*s.window[i], 0)
	}
	if frame.Silent {
		return frame
	}

	frame.Bins = fft.FFT(buffer)
	for i := range frame.Magnitudes {
		frame.Magnitudes[i] = cmplx.Abs(frame.Bins[i]) * s.gain
	}
	return frame
}
