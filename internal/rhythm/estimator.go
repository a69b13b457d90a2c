package rhythm

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// NeutralBPM is reported until enough onsets have been seen.
	NeutralBPM = 120.0
	MinBPM     = 60.0
	MaxBPM     = 200.0

	historySeconds   = 6.0
	historyCap       = 2048
	thresholdWindow  = 1.0
	thresholdFloor   = 0.1
	thresholdSigma   = 1.5
	minOnsetGap      = 0.1
	maxOnsets        = 50
	minOnsetsForBPM  = 4
	minOnsetSpan     = 2.0
	estimateHistory  = 20
	beatTolerance    = 0.8
	pulseDecay       = 6.0
	downbeatStrength = 0.7
	downbeatCooldown = 2.0
	beatsPerBar      = 4
	timeEpsilon      = 1e-9
)

// State is the read-only view of the estimator after one update.
type State struct {
	BPM          float64 `json:"bpm"`
	Confidence   float64 `json:"confidence"`
	BeatStrength float64 `json:"beatStrength"`
	BeatPhase    int     `json:"beatPhase"` // 0..3
	Beat         bool    `json:"beat"`
	Downbeat     bool    `json:"downbeat"`
	Onset        bool    `json:"onset"`
	Stability    float64 `json:"stability"`

	// Beats and Downbeats count events since the last reset so a reader
	// that skips frames can still notice them.
	Beats     uint64 `json:"beats"`
	Downbeats uint64 `json:"downbeats"`
}

// Neutral returns the state reported before any onset has been seen.
func Neutral() State {
	return State{BPM: NeutralBPM}
}

type sample struct {
	at    float64
	value float64
}

// Estimator tracks onsets, tempo, beat phase and downbeats from a stream of
// onset-strength samples. It is not safe for concurrent use.
type Estimator struct {
	samples []sample
	onsets  []float64
	tempo   *tempoTracker

	lastAt       float64
	hasLast      bool
	lastValue    float64
	lastOnset    float64
	hasOnset     bool
	lastBeat     float64
	hasBeat      bool
	lastDownbeat float64
	hasDownbeat  bool

	state State
}

// New returns an estimator in the neutral state.
func New() *Estimator {
	e := &Estimator{
		samples: make([]sample, 0, historyCap),
		onsets:  make([]float64, 0, maxOnsets),
		tempo:   newTempoTracker(),
	}
	e.state = Neutral()
	return e
}

// Reset discards all history.
func (e *Estimator) Reset() {
	e.samples = e.samples[:0]
	e.onsets = e.onsets[:0]
	e.tempo.reset()
	e.hasLast, e.hasOnset, e.hasBeat, e.hasDownbeat = false, false, false, false
	e.lastAt, e.lastValue, e.lastOnset, e.lastBeat, e.lastDownbeat = 0, 0, 0, 0, 0
	e.state = Neutral()
}

// State returns the result of the last update.
func (e *Estimator) State() State { return e.state }

// Update feeds one onset-strength sample taken at stream time at (seconds).
func (e *Estimator) Update(onset, at float64) State {
	if math.IsNaN(onset) || math.IsInf(onset, 0) || onset < 0 {
		onset = 0
	}
	if onset > 1 {
		onset = 1
	}
	if math.IsNaN(at) || math.IsInf(at, 0) {
		at = e.lastAt
	}
	dt := 0.0
	if e.hasLast {
		if at < e.lastAt {
			at = e.lastAt
		}
		dt = at - e.lastAt
	}

	st := e.state
	st.Beat, st.Downbeat, st.Onset = false, false, false
	st.BeatStrength *= math.Exp(-pulseDecay * dt)

	isOnset := e.detect(onset, at)
	e.push(sample{at: at, value: onset})

	if isOnset {
		st.Onset = true
		e.addOnset(at)
		e.tempo.estimate(e.onsets, e.samples)
		st.BPM, st.Confidence = e.tempo.bpm, e.tempo.confidence
		st.Stability = e.stability()
		e.beat(&st, onset, at)
	}

	e.lastAt, e.hasLast, e.lastValue = at, true, onset
	e.state = st
	return st
}

// detect applies the adaptive threshold, the rising-edge test and the
// minimum onset gap.
func (e *Estimator) detect(value, at float64) bool {
	if e.hasLast && value < e.lastValue {
		return false
	}
	if e.hasOnset && at-e.lastOnset < minOnsetGap-timeEpsilon {
		return false
	}
	return value > e.threshold(at)
}

func (e *Estimator) threshold(at float64) float64 {
	var window []float64
	for i := len(e.samples) - 1; i >= 0; i-- {
		if at-e.samples[i].at > thresholdWindow {
			break
		}
		window = append(window, e.samples[i].value)
	}
	if len(window) == 0 {
		return thresholdFloor
	}
	mean, std := stat.PopMeanStdDev(window, nil)
	return math.Max(thresholdFloor, mean+thresholdSigma*std)
}

func (e *Estimator) push(s sample) {
	cut := 0
	for cut < len(e.samples) && s.at-e.samples[cut].at > historySeconds {
		cut++
	}
	if over := len(e.samples) - cut + 1 - historyCap; over > 0 {
		cut += over
	}
	if cut > 0 {
		n := copy(e.samples, e.samples[cut:])
		e.samples = e.samples[:n]
	}
	e.samples = append(e.samples, s)
}

func (e *Estimator) addOnset(at float64) {
	if len(e.onsets) == maxOnsets {
		n := copy(e.onsets, e.onsets[1:])
		e.onsets = e.onsets[:n]
	}
	e.onsets = append(e.onsets, at)
	e.lastOnset, e.hasOnset = at, true
}

// beat decides whether the onset at time at lands on the predicted beat
// grid, advancing the bar phase and flagging downbeats.
func (e *Estimator) beat(st *State, value, at float64) {
	period := 60 / st.BPM
	if !e.hasBeat {
		st.BeatPhase = 0
	} else {
		elapsed := at - e.lastBeat
		if elapsed < beatTolerance*period-timeEpsilon {
			return
		}
		steps := int(math.Round(elapsed / period))
		if steps < 1 {
			steps = 1
		}
		st.BeatPhase = (st.BeatPhase + steps) % beatsPerBar
	}
	e.lastBeat, e.hasBeat = at, true

	strength := value / e.maxValue()
	if math.IsNaN(strength) || strength > 1 {
		strength = 1
	}
	st.Beat = true
	st.Beats++
	st.BeatStrength = strength

	if st.BeatPhase != 0 || strength <= downbeatStrength {
		return
	}
	if e.hasDownbeat && at-e.lastDownbeat < downbeatCooldown-timeEpsilon {
		return
	}
	e.lastDownbeat, e.hasDownbeat = at, true
	st.Downbeat = true
	st.Downbeats++
}

func (e *Estimator) maxValue() float64 {
	peak := 0.0
	for _, s := range e.samples {
		if s.value > peak {
			peak = s.value
		}
	}
	if peak <= 0 {
		return 1
	}
	return peak
}

func (e *Estimator) stability() float64 {
	if len(e.onsets) < 3 {
		return 0
	}
	intervals := make([]float64, 0, len(e.onsets)-1)
	for i := 1; i < len(e.onsets); i++ {
		intervals = append(intervals, e.onsets[i]-e.onsets[i-1])
	}
	_, std := stat.PopMeanStdDev(intervals, nil)
	return 1 / (1 + 10*std*std)
}
