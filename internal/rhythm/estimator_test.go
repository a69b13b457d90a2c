package rhythm

import (
	"math"
	"testing"
)

const frameRate = 100.0

// metronome feeds an impulse every period frames for the given duration and
// returns every state produced.
func metronome(e *Estimator, period int, seconds float64) []State {
	frames := int(seconds * frameRate)
	states := make([]State, 0, frames)
	for i := 0; i < frames; i++ {
		onset := 0.0
		if i%period == 0 {
			onset = 1
		}
		states = append(states, e.Update(onset, float64(i)/frameRate))
	}
	return states
}

func TestNeutralAtStartup(t *testing.T) {
	e := New()
	st := e.State()
	if st.BPM != NeutralBPM || st.Confidence != 0 {
		t.Fatalf("expected neutral state, got %+v", st)
	}
	for i := 0; i < 3; i++ {
		st = e.Update(1, float64(i)*0.5)
		st = e.Update(0, float64(i)*0.5+0.01)
	}
	if st.Confidence != 0 || st.BPM != NeutralBPM {
		t.Fatalf("insufficient history should stay neutral, got bpm=%f conf=%f", st.BPM, st.Confidence)
	}
}

func TestMetronomeConverges(t *testing.T) {
	cases := map[string]struct {
		period int
		bpm    float64
	}{
		"120bpm": {period: 50, bpm: 120},
		"150bpm": {period: 40, bpm: 150},
		"100bpm": {period: 60, bpm: 100},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := New()
			states := metronome(e, tc.period, 10)
			last := states[len(states)-1]
			if math.Abs(last.BPM-tc.bpm) > 2 {
				t.Fatalf("bpm=%f want %f±2", last.BPM, tc.bpm)
			}
			if last.Confidence <= 0.8 {
				t.Fatalf("confidence=%f want > 0.8", last.Confidence)
			}
			if last.Stability < 0.9 {
				t.Fatalf("stability=%f want >= 0.9", last.Stability)
			}
		})
	}
}

func TestBeatsFollowImpulses(t *testing.T) {
	e := New()
	states := metronome(e, 50, 10)
	beats := 0
	for i, st := range states {
		if st.Beat {
			beats++
			if i%50 != 0 {
				t.Fatalf("beat at frame %d is off the impulse grid", i)
			}
		}
	}
	if beats != 20 {
		t.Fatalf("beats=%d want 20", beats)
	}
	if got := states[len(states)-1].Beats; got != 20 {
		t.Fatalf("beat counter=%d want 20", got)
	}
}

func TestDownbeatsArePhaseZeroAndRateLimited(t *testing.T) {
	e := New()
	states := metronome(e, 50, 10)
	var times []float64
	for i, st := range states {
		if !st.Downbeat {
			continue
		}
		if st.BeatPhase != 0 {
			t.Fatalf("downbeat at frame %d with phase %d", i, st.BeatPhase)
		}
		if st.BeatStrength <= downbeatStrength {
			t.Fatalf("downbeat at frame %d with weak strength %f", i, st.BeatStrength)
		}
		times = append(times, float64(i)/frameRate)
	}
	if len(times) != 5 {
		t.Fatalf("downbeats=%d want 5 (one per bar)", len(times))
	}
	for i := 1; i < len(times); i++ {
		if times[i]-times[i-1] < downbeatCooldown-1e-6 {
			t.Fatalf("downbeats %f and %f closer than cooldown", times[i-1], times[i])
		}
	}
}

func TestDownbeatCooldownAtFastTempo(t *testing.T) {
	e := New()
	// 200ms impulses put four beats in 0.8s, well inside the cooldown.
	states := metronome(e, 20, 8)
	last := -math.MaxFloat64
	for i, st := range states {
		if !st.Downbeat {
			continue
		}
		at := float64(i) / frameRate
		if at-last < downbeatCooldown-1e-6 {
			t.Fatalf("downbeat at %f only %f after previous", at, at-last)
		}
		last = at
	}
}

func TestWeakBeatsNeverDownbeat(t *testing.T) {
	e := New()
	// Stay inside the history window so the first strong onset sets the scale.
	for i := 0; i < 550; i++ {
		onset := 0.0
		switch {
		case i == 0:
			onset = 1
		case i%50 == 0:
			onset = 0.5
		}
		st := e.Update(onset, float64(i)/frameRate)
		if i > 0 && st.Downbeat {
			t.Fatalf("weak beat at frame %d flagged as downbeat", i)
		}
	}
}

func TestBeatPulseDecays(t *testing.T) {
	e := New()
	st := e.Update(1, 0)
	if !st.Beat || st.BeatStrength != 1 {
		t.Fatalf("first onset should be a full-strength beat, got %+v", st)
	}
	prev := st.BeatStrength
	for i := 1; i <= 20; i++ {
		st = e.Update(0, float64(i)/frameRate)
		if st.BeatStrength >= prev {
			t.Fatalf("pulse did not decay at step %d: %f >= %f", i, st.BeatStrength, prev)
		}
		prev = st.BeatStrength
	}
	want := math.Exp(-pulseDecay * 0.2)
	if math.Abs(st.BeatStrength-want) > 1e-9 {
		t.Fatalf("pulse=%f want %f", st.BeatStrength, want)
	}
}

func TestSilenceProducesNoOnsets(t *testing.T) {
	e := New()
	for i := 0; i < 600; i++ {
		st := e.Update(0, float64(i)/frameRate)
		if st.Onset || st.Beat || st.Downbeat {
			t.Fatalf("silence produced an event at frame %d", i)
		}
	}
	if st := e.State(); st.BPM != NeutralBPM || st.Confidence != 0 {
		t.Fatalf("silence should stay neutral, got %+v", st)
	}
}

func TestMinimumOnsetGap(t *testing.T) {
	e := New()
	e.Update(1, 0)
	e.Update(0, 0.01)
	if st := e.Update(1, 0.05); st.Onset {
		t.Fatalf("onset within %fs of the previous one should be ignored", minOnsetGap)
	}
}

func TestDegenerateInputs(t *testing.T) {
	e := New()
	inputs := []float64{math.NaN(), math.Inf(1), -3, 7}
	for i, v := range inputs {
		st := e.Update(v, float64(i)*0.1)
		for name, x := range map[string]float64{"bpm": st.BPM, "confidence": st.Confidence, "strength": st.BeatStrength, "stability": st.Stability} {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				t.Fatalf("input %v produced %s=%f", v, name, x)
			}
		}
	}
	// Time going backwards is treated as no elapsed time.
	st := e.Update(0, -5)
	if st.BeatStrength < 0 || st.BeatStrength > 1 {
		t.Fatalf("strength=%f outside [0,1]", st.BeatStrength)
	}
}

func TestResetRestoresNeutral(t *testing.T) {
	e := New()
	metronome(e, 50, 6)
	e.Reset()
	if st := e.State(); st != Neutral() {
		t.Fatalf("reset state=%+v want neutral", st)
	}
	if len(e.samples) != 0 || len(e.onsets) != 0 {
		t.Fatalf("reset left history behind")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	e := New()
	for i := 0; i < 5000; i++ {
		e.Update(float64(i%7)/7, float64(i)/1000)
	}
	if len(e.samples) > historyCap {
		t.Fatalf("samples=%d exceeds cap %d", len(e.samples), historyCap)
	}
	if len(e.onsets) > maxOnsets {
		t.Fatalf("onsets=%d exceeds cap %d", len(e.onsets), maxOnsets)
	}
	if span := e.samples[len(e.samples)-1].at - e.samples[0].at; span > historySeconds {
		t.Fatalf("history span %f exceeds %f", span, historySeconds)
	}
}

func TestFoldBPM(t *testing.T) {
	cases := map[float64]float64{
		30:  60,
		60:  60,
		120: 120,
		200: 100,
		480: 120,
	}
	for in, want := range cases {
		if got := foldBPM(in); math.Abs(got-want) > 1e-9 {
			t.Fatalf("foldBPM(%f)=%f want %f", in, got, want)
		}
	}
}

func TestHistogramTempo(t *testing.T) {
	onsets := []float64{0, 0.5, 1.0, 1.5, 2.0, 2.5}
	bpm, conf := histogramTempo(onsets)
	if math.Abs(bpm-120) > 0.5 {
		t.Fatalf("bpm=%f want 120", bpm)
	}
	if conf < 0.99 {
		t.Fatalf("confidence=%f want ~1", conf)
	}
}
