package rhythm

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

const (
	gridStep     = 0.01 // autocorrelation resolution in seconds
	histogramBin = 1.0  // BPM
	refineBins   = 2
	smoothingNew = 0.3
	spreadScale  = 20.0
)

// tempoTracker reconciles an inter-onset histogram estimate with an
// autocorrelation estimate and keeps a short history of results.
type tempoTracker struct {
	history    []float64
	bpm        float64
	confidence float64
	ffts       map[int]*fourier.FFT
}

func newTempoTracker() *tempoTracker {
	return &tempoTracker{
		history: make([]float64, 0, estimateHistory),
		bpm:     NeutralBPM,
		ffts:    make(map[int]*fourier.FFT),
	}
}

func (t *tempoTracker) reset() {
	t.history = t.history[:0]
	t.bpm = NeutralBPM
	t.confidence = 0
}

func (t *tempoTracker) estimate(onsets []float64, samples []sample) {
	if len(onsets) < minOnsetsForBPM || onsets[len(onsets)-1]-onsets[0] < minOnsetSpan {
		t.bpm, t.confidence = NeutralBPM, 0
		return
	}

	bpm, conf := histogramTempo(onsets)
	if acfBPM, acfConf := t.autocorrelationTempo(samples); acfConf > conf {
		bpm, conf = acfBPM, acfConf
	}
	if bpm <= 0 {
		t.bpm, t.confidence = NeutralBPM, 0
		return
	}

	if len(t.history) == estimateHistory {
		n := copy(t.history, t.history[1:])
		t.history = t.history[:n]
	}
	t.history = append(t.history, bpm)
	mean, std := stat.PopMeanStdDev(t.history, nil)

	t.bpm = clampBPM(smoothingNew*bpm + (1-smoothingNew)*mean)
	t.confidence = clamp01(conf * clamp01(1-std/spreadScale))
}

// histogramTempo clusters inter-onset intervals into 1-BPM bins.
func histogramTempo(onsets []float64) (float64, float64) {
	bins := int((MaxBPM - MinBPM) / histogramBin)
	hist := make([]float64, bins)
	total := 0.0
	for i := 1; i < len(onsets); i++ {
		ioi := onsets[i] - onsets[i-1]
		if ioi <= 0 {
			continue
		}
		bpm := foldBPM(60 / ioi)
		center := int(math.Round((bpm - MinBPM) / histogramBin))
		for d, w := range [...]float64{0.5, 1, 0.5} {
			idx := center + d - 1
			if idx < 0 || idx >= bins {
				continue
			}
			hist[idx] += w
			total += w
		}
	}
	if total == 0 {
		return 0, 0
	}

	peak := 0
	for i, v := range hist {
		if v > hist[peak] {
			peak = i
		}
	}
	weighted, window := 0.0, 0.0
	for i := peak - refineBins; i <= peak+refineBins; i++ {
		if i < 0 || i >= bins {
			continue
		}
		weighted += (MinBPM + float64(i)*histogramBin) * hist[i]
		window += hist[i]
	}
	if window == 0 {
		return 0, 0
	}
	return weighted / window, clamp01(window / total)
}

// autocorrelationTempo resamples onset strengths onto a fixed grid and finds
// the strongest periodicity between MinBPM and MaxBPM.
func (t *tempoTracker) autocorrelationTempo(samples []sample) (float64, float64) {
	if len(samples) < 2 {
		return 0, 0
	}
	start := samples[0].at
	cells := gridIndex(samples[len(samples)-1].at-start) + 1
	minLag := int(math.Floor(60 / MaxBPM / gridStep))
	maxLag := int(math.Ceil(60 / MinBPM / gridStep))
	if cells <= maxLag+1 {
		return 0, 0
	}

	grid := make([]float64, cells)
	for _, s := range samples {
		idx := gridIndex(s.at - start)
		if idx >= 0 && idx < cells && s.value > grid[idx] {
			grid[idx] = s.value
		}
	}
	mean := stat.Mean(grid, nil)

	n := 1
	for n < 2*cells {
		n <<= 1
	}
	padded := make([]float64, n)
	for i, v := range grid {
		padded[i] = v - mean
	}

	fft := t.fft(n)
	coeffs := fft.Coefficients(nil, padded)
	for i, c := range coeffs {
		coeffs[i] = complex(real(c*cmplx.Conj(c)), 0)
	}
	acf := fft.Sequence(nil, coeffs)
	if acf[0] <= 0 {
		return 0, 0
	}

	peak := minLag
	for lag := minLag; lag <= maxLag && lag < len(acf)-1; lag++ {
		if acf[lag] > acf[peak] {
			peak = lag
		}
	}
	if acf[peak] <= 0 {
		return 0, 0
	}

	lag := float64(peak)
	if peak > 0 {
		a, b, c := acf[peak-1], acf[peak], acf[peak+1]
		if denom := a - 2*b + c; denom != 0 {
			shift := 0.5 * (a - c) / denom
			if math.Abs(shift) < 1 {
				lag += shift
			}
		}
	}
	return foldBPM(60 / (lag * gridStep)), clamp01(acf[peak] / acf[0])
}

func (t *tempoTracker) fft(n int) *fourier.FFT {
	if f, ok := t.ffts[n]; ok {
		return f
	}
	f := fourier.NewFFT(n)
	t.ffts[n] = f
	return f
}

func gridIndex(offset float64) int {
	return int(offset/gridStep + 1e-6)
}

func foldBPM(bpm float64) float64 {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return NeutralBPM
	}
	for bpm < MinBPM {
		bpm *= 2
	}
	for bpm >= MaxBPM {
		bpm /= 2
	}
	return bpm
}

func clampBPM(bpm float64) float64 {
	if math.IsNaN(bpm) {
		return NeutralBPM
	}
	return math.Max(MinBPM, math.Min(MaxBPM, bpm))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
