package analyzer

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Band is a named frequency range in Hz. A zero High extends to Nyquist.
type Band struct {
	Name string
	Low  float64
	High float64
}

// Bands are the five ranges reported in Features, low to high.
var Bands = [5]Band{
	{Name: "subBass", Low: 20, High: 60},
	{Name: "bass", Low: 60, High: 200},
	{Name: "mid", Low: 200, High: 2000},
	{Name: "treble", Low: 2000, High: 8000},
	{Name: "presence", Low: 8000},
}

const (
	// FloorDB is the level mapped to zero energy.
	FloorDB = -60.0

	rolloffFraction  = 0.85
	zcrScale         = 10.0
	onsetGain        = 3.0
	pitchPeaks       = 4
	pitchHalfWidth   = 2
	dynamicWindow    = 100
	dynamicMinFrames = 10
	dynamicGain      = 2.0
	energyEpsilon    = 1e-12
)

// BandExtractor reduces spectra to Features. It retains one frame of
// magnitudes for flux, the previous low-band energy for onsets, and a short
// volume history for dynamic range.
type BandExtractor struct {
	prevMagnitudes []float64
	prevLow        float64
	hasPrev        bool
	volumeHistory  []float64
}

// NewBandExtractor returns an extractor with empty history.
func NewBandExtractor() *BandExtractor {
	return &BandExtractor{
		volumeHistory: make([]float64, 0, dynamicWindow),
	}
}

// Reset discards all retained state.
func (b *BandExtractor) Reset() {
	b.prevMagnitudes = nil
	b.prevLow = 0
	b.hasPrev = false
	b.volumeHistory = b.volumeHistory[:0]
}

// Extract computes band energies and descriptors for frame.
func (b *BandExtractor) Extract(frame SpectralFrame) Features {
	mags := frame.Magnitudes
	res := frame.Resolution()
	nyquist := frame.Nyquist()

	var f Features
	if res > 0 && len(mags) > 1 {
		for i, band := range Bands {
			high := band.High
			if high <= 0 || high > nyquist {
				high = nyquist
			}
			energy := normalizeDB(bandRMS(mags, res, band.Low, high))
			switch i {
			case 0:
				f.SubBass = energy
			case 1:
				f.Bass = energy
			case 2:
				f.Mid = energy
			case 3:
				f.Treble = energy
			case 4:
				f.Presence = energy
			}
		}
		f.Centroid = centroid(mags, res)
		f.Rolloff = rolloff(mags, res, rolloffFraction)
		if nyquist > 0 {
			f.CentroidNorm = clamp01(f.Centroid / nyquist)
			f.RolloffNorm = clamp01(f.Rolloff / nyquist)
		}
		f.PitchConfidence = pitchConfidence(mags)
	}

	f.Flux = b.flux(mags)

	rms, peak := levels(frame.Samples)
	f.VolumeDB = toDB(rms)
	f.Volume = normalizeDB(rms)
	f.Peak = normalizeDB(peak)
	f.ZeroCrossingRate = zeroCrossingRate(frame.Samples)
	f.DynamicRange = b.dynamicRange(f.Volume)

	low := f.Low()
	if b.hasPrev {
		f.OnsetStrength = clamp01((low - b.prevLow) * onsetGain)
	}
	b.prevLow = low
	b.hasPrev = true

	return f.Sanitize()
}

func (b *BandExtractor) flux(mags []float64) float64 {
	defer func() {
		if len(b.prevMagnitudes) != len(mags) {
			b.prevMagnitudes = make([]float64, len(mags))
		}
		copy(b.prevMagnitudes, mags)
	}()
	if len(b.prevMagnitudes) != len(mags) || len(mags) == 0 {
		return 0
	}
	denom := floats.Norm(mags, 2) + floats.Norm(b.prevMagnitudes, 2)
	if denom < energyEpsilon {
		return 0
	}
	return clamp01(floats.Distance(mags, b.prevMagnitudes, 2) / denom)
}

func (b *BandExtractor) dynamicRange(volume float64) float64 {
	b.volumeHistory = append(b.volumeHistory, volume)
	if len(b.volumeHistory) > dynamicWindow {
		copy(b.volumeHistory, b.volumeHistory[1:])
		b.volumeHistory = b.volumeHistory[:len(b.volumeHistory)-1]
	}
	if len(b.volumeHistory) < dynamicMinFrames {
		return 0
	}
	_, std := stat.PopMeanStdDev(b.volumeHistory, nil)
	return clamp01(std * dynamicGain)
}

// bandRange returns the [lo,hi) bin span for a frequency range, always
// covering at least one bin.
func bandRange(n int, resolution, minHz, maxHz float64) (int, int) {
	lo := int(math.Floor(minHz / resolution))
	hi := int(math.Ceil(maxHz / resolution))
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo >= n {
		lo = n - 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

func bandRMS(mags []float64, resolution, minHz, maxHz float64) float64 {
	if minHz >= maxHz {
		return 0
	}
	lo, hi := bandRange(len(mags), resolution, minHz, maxHz)
	sum := 0.0
	for _, m := range mags[lo:hi] {
		sum += m * m
	}
	return math.Sqrt(sum / float64(hi-lo))
}

func centroid(mags []float64, resolution float64) float64 {
	weighted, total := 0.0, 0.0
	for i, m := range mags {
		weighted += float64(i) * resolution * m
		total += m
	}
	if total < energyEpsilon {
		return 0
	}
	return weighted / total
}

func rolloff(mags []float64, resolution, fraction float64) float64 {
	total := 0.0
	for _, m := range mags {
		total += m * m
	}
	if total < energyEpsilon {
		return 0
	}
	threshold := total * fraction
	cum := 0.0
	for i, m := range mags {
		cum += m * m
		if cum >= threshold {
			return float64(i) * resolution
		}
	}
	return float64(len(mags)-1) * resolution
}

// pitchConfidence measures how much of the spectral energy sits in a few
// narrow peaks. Tonal content scores near one, broadband noise near zero.
func pitchConfidence(mags []float64) float64 {
	if len(mags) < 3 {
		return 0
	}
	total := 0.0
	for _, m := range mags[1:] {
		total += m * m
	}
	if total < energyEpsilon {
		return 0
	}

	var peaks []int
	for i := 1; i < len(mags)-1; i++ {
		if mags[i] > mags[i-1] && mags[i] >= mags[i+1] {
			peaks = append(peaks, i)
		}
	}
	if len(peaks) == 0 {
		return 0
	}
	sort.Slice(peaks, func(i, j int) bool { return mags[peaks[i]] > mags[peaks[j]] })
	if len(peaks) > pitchPeaks {
		peaks = peaks[:pitchPeaks]
	}

	used := make([]bool, len(mags))
	peakEnergy := 0.0
	for _, p := range peaks {
		for i := p - pitchHalfWidth; i <= p+pitchHalfWidth; i++ {
			if i < 1 || i >= len(mags) || used[i] {
				continue
			}
			used[i] = true
			peakEnergy += mags[i] * mags[i]
		}
	}
	share := peakEnergy / total
	return clamp01((share - 0.1) / 0.7)
}

func levels(samples []float64) (rms, peak float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range samples {
		sum += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return math.Sqrt(sum / float64(len(samples))), peak
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return clamp01(float64(crossings) / float64(len(samples)-1) * zcrScale)
}

func toDB(amplitude float64) float64 {
	if amplitude <= 0 || math.IsNaN(amplitude) {
		return FloorDB
	}
	db := 20 * math.Log10(amplitude)
	return clamp(db, FloorDB, 0)
}

func normalizeDB(amplitude float64) float64 {
	return clamp01((toDB(amplitude) - FloorDB) / -FloorDB)
}
