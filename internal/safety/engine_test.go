package safety

import (
	"io"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guidoenr/lumen/internal/params"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEngine(level Level) *Engine {
	s := DefaultSettings()
	s.Level = level
	s.Log = quietLogger()
	return NewEngine(s)
}

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func bright(v float64) params.VisualParameters {
	p := params.Rest()
	p.Brightness = v
	p.Saturation = 0.8
	return p
}

// randomCandidate produces arbitrary, possibly out-of-range parameters.
func randomCandidate(rng *rand.Rand) params.VisualParameters {
	p := params.Rest()
	p.BeatPulse = rng.Float64() * 1.5
	p.OnsetPulse = rng.Float64()
	p.Brightness = rng.Float64() * 1.2
	p.Saturation = rng.Float64()
	p.ColorIntensity = rng.Float64()
	p.Hue = rng.Float64()*3 - 1
	p.Complexity = rng.Float64()
	p.Bass = rng.Float64()
	if rng.Intn(20) == 0 {
		p.Brightness = math.NaN()
	}
	return p
}

func TestMultipliersTable(t *testing.T) {
	cases := map[Level]params.Multipliers{
		UltraSafe: {Beat: 0.1, Onset: 0.05, ColorRate: 0.2, Brightness: 0.3, Complexity: 0.3},
		Safe:      {Beat: 0.3, Onset: 0.2, ColorRate: 0.4, Brightness: 0.5, Complexity: 0.5},
		Moderate:  {Beat: 0.6, Onset: 0.4, ColorRate: 0.7, Brightness: 0.7, Complexity: 0.7},
		Standard:  {Beat: 0.8, Onset: 0.6, ColorRate: 0.9, Brightness: 0.9, Complexity: 0.9},
		Disabled:  {Beat: 1, Onset: 1, ColorRate: 1, Brightness: 1, Complexity: 1},
	}
	for level, want := range cases {
		if got := MultipliersFor(level); got != want {
			t.Fatalf("%s: got %+v want %+v", level, got, want)
		}
	}
	if MultipliersFor(Level(42)) != MultipliersFor(DefaultLevel) {
		t.Fatalf("unknown level should use the default multipliers")
	}
}

func TestCycleLevel(t *testing.T) {
	e := newTestEngine(UltraSafe)
	want := []Level{Safe, Moderate, Standard, Disabled, UltraSafe}
	for i, w := range want {
		if got := e.CycleLevel(); got != w {
			t.Fatalf("step %d: level=%s want %s", i, got, w)
		}
	}
	if err := e.SetLevel(Level(-1)); err == nil {
		t.Fatalf("expected error for invalid level")
	}
	if e.Level() != UltraSafe {
		t.Fatalf("invalid SetLevel must not change the level")
	}
}

func TestMultipliersApplyBeforeLimits(t *testing.T) {
	e := newTestEngine(Safe)
	prev := e.Apply(params.Rest(), params.Rest(), at(0))
	cand := prev
	cand.BeatPulse = 0.2
	cand.OnsetPulse = 0.2
	cand.Complexity = 0.8
	out := e.Apply(cand, prev, at(1))
	if math.Abs(out.BeatPulse-0.06) > 1e-9 || math.Abs(out.OnsetPulse-0.04) > 1e-9 {
		t.Fatalf("pulses not scaled: beat=%f onset=%f", out.BeatPulse, out.OnsetPulse)
	}
	if math.Abs(out.Complexity-0.4) > 1e-9 {
		t.Fatalf("complexity=%f want 0.4", out.Complexity)
	}
	if out.Multipliers != MultipliersFor(Safe) || out.Level != Safe {
		t.Fatalf("multipliers/level not stamped: %+v %s", out.Multipliers, out.Level)
	}
}

func TestColorRateScalesHueStep(t *testing.T) {
	e := newTestEngine(UltraSafe)
	prev := params.Rest()
	prev.Hue = 0.95
	cand := prev
	cand.Hue = 0.05 // shortest path is +0.1 across the wrap
	out := e.Apply(cand, prev, at(0))
	want := params.WrapHue(0.95 + 0.2*0.1)
	if math.Abs(out.Hue-want) > 1e-9 {
		t.Fatalf("hue=%f want %f", out.Hue, want)
	}
}

func TestFlashRateInvariant(t *testing.T) {
	for _, level := range Levels() {
		t.Run(level.String(), func(t *testing.T) {
			e := newTestEngine(level)
			rng := rand.New(rand.NewSource(int64(level) + 11))
			prev := e.Apply(params.Rest(), params.Rest(), at(0))
			var lastMajor time.Time
			hasMajor := false
			now := at(0)
			for i := 0; i < 5000; i++ {
				now = now.Add(time.Duration(rng.Intn(40)+1) * time.Millisecond)
				out := e.Apply(randomCandidate(rng), prev, now)
				if magnitude(prev, out) > MajorChangeThreshold {
					if hasMajor && now.Sub(lastMajor) < MinFlashInterval {
						t.Fatalf("frame %d: major changes %v apart", i, now.Sub(lastMajor))
					}
					lastMajor, hasMajor = now, true
				}
				prev = out
			}
		})
	}
}

func TestFlashSuppressedInsideCooldown(t *testing.T) {
	e := newTestEngine(Disabled)
	prev := e.Apply(bright(0.2), bright(0.2), at(0))

	flash := bright(0.2)
	flash.BeatPulse = 1
	first := e.Apply(flash, prev, at(1))
	if magnitude(prev, first) <= MajorChangeThreshold {
		t.Fatalf("first flash should be applied, magnitude=%f", magnitude(prev, first))
	}

	second := bright(0.2)
	held := e.Apply(second, first, at(1.1))
	if held.BeatPulse != first.BeatPulse {
		t.Fatalf("change inside cooldown should be held: beat=%f want %f", held.BeatPulse, first.BeatPulse)
	}
	if e.Status().Suppressed != 1 {
		t.Fatalf("suppressed=%d want 1", e.Status().Suppressed)
	}

	released := e.Apply(second, held, at(1.5))
	if released.BeatPulse != 0 {
		t.Fatalf("change after cooldown should apply, beat=%f", released.BeatPulse)
	}
}

func TestClockGoingBackwardsCountsAsCooldown(t *testing.T) {
	e := newTestEngine(Disabled)
	prev := e.Apply(bright(0.2), bright(0.2), at(5))
	flash := bright(0.2)
	flash.BeatPulse = 1
	first := e.Apply(flash, prev, at(6))
	out := e.Apply(bright(0.2), first, at(2))
	if out.BeatPulse != first.BeatPulse {
		t.Fatalf("earlier timestamp must be treated as inside cooldown")
	}
}

func TestLuminanceInvariant(t *testing.T) {
	for _, level := range Levels() {
		t.Run(level.String(), func(t *testing.T) {
			e := newTestEngine(level)
			rng := rand.New(rand.NewSource(int64(level) + 3))
			prev := e.Apply(params.Rest(), params.Rest(), at(0))
			now := at(0)
			for i := 0; i < 5000; i++ {
				now = now.Add(16 * time.Millisecond)
				out := e.Apply(randomCandidate(rng), prev, now)
				if d := math.Abs(Luminance(out) - Luminance(prev)); d > LuminanceLimit+1e-9 {
					t.Fatalf("frame %d: luminance delta %f", i, d)
				}
				if err := out.Validate(); err != nil {
					t.Fatalf("frame %d: %v", i, err)
				}
				prev = out
			}
		})
	}
}

func TestLuminanceLimitInterpolates(t *testing.T) {
	e := newTestEngine(Disabled)
	prev := e.Apply(bright(0), bright(0), at(0))
	out := e.Apply(bright(1), prev, at(1))
	d := Luminance(out) - Luminance(prev)
	if d <= 0 || d > LuminanceLimit+1e-9 {
		t.Fatalf("luminance step=%f want (0,%f]", d, LuminanceLimit)
	}
	if d < LuminanceLimit-1e-3 {
		t.Fatalf("limiter should move as far as allowed, step=%f", d)
	}
	if out.Brightness <= 0 || out.Brightness >= 1 {
		t.Fatalf("brightness=%f should be between previous and target", out.Brightness)
	}
	if e.Status().Limited == 0 {
		t.Fatalf("expected limited counter to increase")
	}
}

func TestEmergencyStopInvariant(t *testing.T) {
	e := newTestEngine(Standard)
	rng := rand.New(rand.NewSource(5))
	prev := e.Apply(params.Rest(), params.Rest(), at(0))
	e.EmergencyStop()
	safe := params.SafeParameters()
	for i := 0; i < 500; i++ {
		out := e.Apply(randomCandidate(rng), prev, at(float64(i)*0.016))
		if out != safe {
			t.Fatalf("frame %d: emergency output %+v differs from safe value", i, out)
		}
		prev = out
	}
	if !e.Status().Emergency {
		t.Fatalf("status should report emergency")
	}
	if e.ToggleEmergency() {
		t.Fatalf("toggle should release emergency")
	}
	out := e.Apply(bright(0.5), prev, at(20))
	if out.Emergency {
		t.Fatalf("output after resume should not be flagged emergency")
	}
	if d := math.Abs(Luminance(out) - Luminance(prev)); d > LuminanceLimit+1e-9 {
		t.Fatalf("resume luminance step %f", d)
	}
}

func TestResumeRightAfterEmergencyIsHeld(t *testing.T) {
	e := newTestEngine(Standard)
	loud := bright(1)
	loud.Saturation = 1
	loud.ColorIntensity = 1
	loud.BeatPulse = 1

	prev := e.Apply(params.Rest(), params.Rest(), at(0))
	now := at(0)
	for i := 0; i < 120; i++ {
		now = now.Add(16 * time.Millisecond)
		prev = e.Apply(loud, prev, now)
	}

	e.EmergencyStop()
	now = now.Add(16 * time.Millisecond)
	stopped := e.Apply(loud, prev, now)
	if magnitude(prev, stopped) <= MajorChangeThreshold {
		t.Fatalf("entering emergency should be a major change, magnitude=%f", magnitude(prev, stopped))
	}

	e.Resume()
	now = now.Add(16 * time.Millisecond)
	resumed := e.Apply(loud, stopped, now)
	if m := magnitude(stopped, resumed); m > MajorChangeThreshold {
		t.Fatalf("resume 16ms after emergency applied a major change, magnitude=%f", m)
	}

	later := now.Add(MinFlashInterval)
	released := e.Apply(loud, resumed, later)
	if released.Saturation <= resumed.Saturation {
		t.Fatalf("change after the cooldown should apply, saturation %f -> %f", resumed.Saturation, released.Saturation)
	}
}

func TestLevelSwitchMidStream(t *testing.T) {
	e := newTestEngine(Standard)
	prev := e.Apply(params.Rest(), params.Rest(), at(0))
	now := at(0)
	beat := bright(0.6)
	beat.BeatPulse = 1
	beat.OnsetPulse = 1
	for i := 0; i < 120; i++ {
		now = now.Add(16 * time.Millisecond)
		prev = e.Apply(beat, prev, now)
	}
	if prev.Multipliers.Beat != 0.8 {
		t.Fatalf("standard beat multiplier=%f", prev.Multipliers.Beat)
	}

	if err := e.SetLevel(UltraSafe); err != nil {
		t.Fatal(err)
	}
	now = now.Add(16 * time.Millisecond)
	out := e.Apply(beat, prev, now)
	if out.Multipliers.Beat != 0.1 || out.Multipliers.Onset != 0.05 {
		t.Fatalf("multipliers not reduced at transition: %+v", out.Multipliers)
	}
	if out.BeatPulse > prev.BeatPulse {
		t.Fatalf("beat pulse grew across a stricter level switch")
	}
	if d := math.Abs(Luminance(out) - Luminance(prev)); d > LuminanceLimit+1e-9 {
		t.Fatalf("transition luminance step %f", d)
	}

	for i := 0; i < 120; i++ {
		now = now.Add(16 * time.Millisecond)
		out = e.Apply(beat, out, now)
	}
	if math.Abs(out.BeatPulse-0.1) > 1e-9 {
		t.Fatalf("beat pulse=%f want settled at 0.1", out.BeatPulse)
	}
}

func TestDisabledPolicy(t *testing.T) {
	cases := map[string]struct {
		enforce bool
		limited bool
	}{
		"enforced":   {enforce: true, limited: true},
		"unenforced": {enforce: false, limited: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := DefaultSettings()
			s.Level = Disabled
			s.EnforceLimitsWhenDisabled = tc.enforce
			s.Log = quietLogger()
			e := NewEngine(s)
			prev := e.Apply(bright(0), bright(0), at(0))
			out := e.Apply(bright(1), prev, at(1))
			step := math.Abs(Luminance(out) - Luminance(prev))
			if tc.limited && step > LuminanceLimit+1e-9 {
				t.Fatalf("limits should apply, step=%f", step)
			}
			if !tc.limited && step <= LuminanceLimit {
				t.Fatalf("limits should be bypassed, step=%f", step)
			}
		})
	}
}

func TestSanitizeUsesPrevious(t *testing.T) {
	e := newTestEngine(Disabled)
	prev := e.Apply(bright(0.3), bright(0.3), at(0))
	cand := bright(0.3)
	cand.Brightness = math.NaN()
	cand.Saturation = math.Inf(1)
	out := e.Apply(cand, prev, at(1))
	if out.Brightness != prev.Brightness || out.Saturation != prev.Saturation {
		t.Fatalf("non-finite values should take previous: %+v", out)
	}
}

func TestStatusWindow(t *testing.T) {
	e := newTestEngine(Disabled)
	prev := e.Apply(bright(0.2), bright(0.2), at(0))
	red := bright(0.2)
	red.Hue = 0
	red.Saturation = 1
	red.BeatPulse = 1
	out := e.Apply(red, prev, at(1))
	st := e.Status()
	if st.RecentChanges != 1 || st.RedFlashes != 1 {
		t.Fatalf("status=%+v want one red major change", st)
	}
	for i := 1; i <= 80; i++ {
		out = e.Apply(out, out, at(1+float64(i)*0.016))
	}
	st = e.Status()
	if st.RecentChanges != 0 {
		t.Fatalf("changes older than a second should expire, got %d", st.RecentChanges)
	}
	if st.ShouldWarn {
		t.Fatalf("steady output should not warn")
	}
	if st.Message != "DISABLED" {
		t.Fatalf("message=%q", st.Message)
	}
}

func TestLuminanceHelpers(t *testing.T) {
	white := RGB{1, 1, 1}
	if math.Abs(white.Luminance()-1) > 1e-9 {
		t.Fatalf("white luminance=%f", white.Luminance())
	}
	if !(RGB{1, 0.2, 0.2}).RedDominant() {
		t.Fatalf("expected red dominance")
	}
	if (RGB{1, 1, 0.2}).RedDominant() {
		t.Fatalf("yellow is not red dominant")
	}
	grey := params.Rest()
	grey.Saturation = 0
	grey.Brightness = 0.5
	if got := Luminance(grey); math.Abs(got-0.35) > 1e-9 {
		t.Fatalf("grey luminance=%f want 0.35", got)
	}
}
