package params

import (
	"fmt"
	"math"
	"strings"
)

// Level names a safety preset constraining how strongly audio may drive
// visual intensity.
type Level int

const (
	LevelUltraSafe Level = iota
	LevelSafe
	LevelModerate
	LevelStandard
	LevelDisabled
)

var levelNames = []string{"ultrasafe", "safe", "moderate", "standard", "disabled"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Valid reports whether l is one of the declared levels.
func (l Level) Valid() bool {
	return l >= LevelUltraSafe && l <= LevelDisabled
}

// LevelNames returns the accepted level identifiers in order of strictness.
func LevelNames() []string {
	out := make([]string, len(levelNames))
	copy(out, levelNames)
	return out
}

// ParseLevel accepts the names returned by LevelNames plus a few aliases.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(name, "-", ""))) {
	case "ultrasafe", "ultra":
		return LevelUltraSafe, nil
	case "safe", "":
		return LevelSafe, nil
	case "moderate":
		return LevelModerate, nil
	case "standard":
		return LevelStandard, nil
	case "disabled", "off", "none":
		return LevelDisabled, nil
	}
	return LevelSafe, fmt.Errorf("unknown safety level %q", name)
}

// Multipliers scale the audio-driven channels before the hard limits apply.
type Multipliers struct {
	Beat       float64 `json:"beat"`
	Onset      float64 `json:"onset"`
	ColorRate  float64 `json:"colorRate"`
	Brightness float64 `json:"brightness"`
	Complexity float64 `json:"complexity"`
}

// EmergencyMultipliers is the multiplier set reported while emergency stop is
// active.
var EmergencyMultipliers = Multipliers{Beat: 0, Onset: 0, ColorRate: 0, Brightness: 0.1, Complexity: 0}

// VisualParameters is the bounded snapshot delivered to the renderer once per
// frame. Every intensity lies in a documented closed range; Time and Phase are
// clocks.
type VisualParameters struct {
	Time  float64 `json:"time"`
	Phase float64 `json:"phase"`
	Frame uint64  `json:"frame"`

	SubBass  float64 `json:"subBass"`
	Bass     float64 `json:"bass"`
	Mid      float64 `json:"mid"`
	Treble   float64 `json:"treble"`
	Presence float64 `json:"presence"`
	Volume   float64 `json:"volume"`

	ColorIntensity float64 `json:"colorIntensity"`
	FrequencyScale float64 `json:"frequencyScale"` // [0.5,2]
	SpectralShift  float64 `json:"spectralShift"`  // [-1,1]
	Saturation     float64 `json:"saturation"`
	Brightness     float64 `json:"brightness"`
	Complexity     float64 `json:"complexity"`
	Speed          float64 `json:"speed"`
	Hue            float64 `json:"hue"` // [0,1), wraps

	BeatPulse       float64 `json:"beatPulse"`
	OnsetPulse      float64 `json:"onsetPulse"`
	BPM             float64 `json:"bpm"` // [60,200]
	TempoConfidence float64 `json:"tempoConfidence"`
	BeatPhase       float64 `json:"beatPhase"` // [0,3]
	Stability       float64 `json:"stability"`
	Downbeat        bool    `json:"downbeat"`

	PaletteIndex int     `json:"paletteIndex"`
	PaletteNext  int     `json:"paletteNext"`
	PaletteBlend float64 `json:"paletteBlend"`
	Mode         Mode    `json:"mode"`

	Multipliers Multipliers `json:"multipliers"`
	Level       Level       `json:"level"`
	Emergency   bool        `json:"emergency"`
}

const (
	MinBPM     = 60.0
	MaxBPM     = 200.0
	NeutralBPM = 120.0

	restBrightness = 0.15
	restComplexity = 0.25
	restSpeed      = 0.2
)

// Rest returns the candidate produced for a silent input: the minimum-energy
// state of the composer.
func Rest() VisualParameters {
	return VisualParameters{
		FrequencyScale: 1,
		SpectralShift:  -1,
		Brightness:     restBrightness,
		Complexity:     restComplexity,
		Speed:          restSpeed,
		Hue:            Palettes[0].BaseHue,
		BPM:            NeutralBPM,
		PaletteBlend:   1,
		Mode:           ModeClassic,
		Multipliers:    Multipliers{Beat: 1, Onset: 1, ColorRate: 1, Brightness: 1, Complexity: 1},
		Level:          LevelSafe,
	}
}

// SafeParameters returns the fixed dim, neutral, non-flashing output used
// while emergency stop is active.
func SafeParameters() VisualParameters {
	return VisualParameters{
		FrequencyScale: 1,
		SpectralShift:  0,
		Saturation:     0,
		Brightness:     0.1,
		Complexity:     0,
		Speed:          0,
		Hue:            0,
		BPM:            NeutralBPM,
		Mode:           ModeClassic,
		Multipliers:    EmergencyMultipliers,
		Level:          LevelUltraSafe,
		Emergency:      true,
	}
}

// Unstamped returns a copy with the per-frame clock fields cleared.
func (p VisualParameters) Unstamped() VisualParameters {
	p.Time = 0
	p.Frame = 0
	return p
}

// Clamp forces every scalar into its documented range. NaN values become the
// low end of the range.
func (p VisualParameters) Clamp() VisualParameters {
	p.Time = clampClock(p.Time)
	p.Phase = clampClock(p.Phase)

	p.SubBass = clamp01(p.SubBass)
	p.Bass = clamp01(p.Bass)
	p.Mid = clamp01(p.Mid)
	p.Treble = clamp01(p.Treble)
	p.Presence = clamp01(p.Presence)
	p.Volume = clamp01(p.Volume)

	p.ColorIntensity = clamp01(p.ColorIntensity)
	p.FrequencyScale = clamp(p.FrequencyScale, 0.5, 2)
	p.SpectralShift = clamp(p.SpectralShift, -1, 1)
	p.Saturation = clamp01(p.Saturation)
	p.Brightness = clamp01(p.Brightness)
	p.Complexity = clamp01(p.Complexity)
	p.Speed = clamp01(p.Speed)
	p.Hue = WrapHue(p.Hue)

	p.BeatPulse = clamp01(p.BeatPulse)
	p.OnsetPulse = clamp01(p.OnsetPulse)
	p.BPM = clamp(p.BPM, MinBPM, MaxBPM)
	p.TempoConfidence = clamp01(p.TempoConfidence)
	p.BeatPhase = clamp(math.Round(p.BeatPhase), 0, 3)
	p.Stability = clamp01(p.Stability)

	p.PaletteIndex = clampIndex(p.PaletteIndex, len(Palettes))
	p.PaletteNext = clampIndex(p.PaletteNext, len(Palettes))
	p.PaletteBlend = clamp01(p.PaletteBlend)
	if !p.Mode.Valid() {
		p.Mode = ModeClassic
	}

	p.Multipliers.Beat = clamp01(p.Multipliers.Beat)
	p.Multipliers.Onset = clamp01(p.Multipliers.Onset)
	p.Multipliers.ColorRate = clamp01(p.Multipliers.ColorRate)
	p.Multipliers.Brightness = clamp01(p.Multipliers.Brightness)
	p.Multipliers.Complexity = clamp01(p.Multipliers.Complexity)
	if !p.Level.Valid() {
		p.Level = LevelSafe
	}
	return p
}

type rangeCheck struct {
	name     string
	value    float64
	min, max float64
}

// Validate reports the first field outside its documented range. A non-nil
// result means the safety layer let an invalid value through.
func (p VisualParameters) Validate() error {
	checks := []rangeCheck{
		{"subBass", p.SubBass, 0, 1},
		{"bass", p.Bass, 0, 1},
		{"mid", p.Mid, 0, 1},
		{"treble", p.Treble, 0, 1},
		{"presence", p.Presence, 0, 1},
		{"volume", p.Volume, 0, 1},
		{"colorIntensity", p.ColorIntensity, 0, 1},
		{"frequencyScale", p.FrequencyScale, 0.5, 2},
		{"spectralShift", p.SpectralShift, -1, 1},
		{"saturation", p.Saturation, 0, 1},
		{"brightness", p.Brightness, 0, 1},
		{"complexity", p.Complexity, 0, 1},
		{"speed", p.Speed, 0, 1},
		{"hue", p.Hue, 0, 1},
		{"beatPulse", p.BeatPulse, 0, 1},
		{"onsetPulse", p.OnsetPulse, 0, 1},
		{"bpm", p.BPM, MinBPM, MaxBPM},
		{"tempoConfidence", p.TempoConfidence, 0, 1},
		{"beatPhase", p.BeatPhase, 0, 3},
		{"stability", p.Stability, 0, 1},
		{"paletteBlend", p.PaletteBlend, 0, 1},
		{"multipliers.beat", p.Multipliers.Beat, 0, 1},
		{"multipliers.onset", p.Multipliers.Onset, 0, 1},
		{"multipliers.colorRate", p.Multipliers.ColorRate, 0, 1},
		{"multipliers.brightness", p.Multipliers.Brightness, 0, 1},
		{"multipliers.complexity", p.Multipliers.Complexity, 0, 1},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || c.value < c.min || c.value > c.max {
			return fmt.Errorf("%s=%v outside [%v,%v]", c.name, c.value, c.min, c.max)
		}
	}
	if p.Hue >= 1 {
		return fmt.Errorf("hue=%v outside [0,1)", p.Hue)
	}
	if p.Time < 0 || math.IsNaN(p.Time) || p.Phase < 0 || math.IsNaN(p.Phase) {
		return fmt.Errorf("clock fields must be non-negative (time=%v phase=%v)", p.Time, p.Phase)
	}
	if p.PaletteIndex < 0 || p.PaletteIndex >= len(Palettes) || p.PaletteNext < 0 || p.PaletteNext >= len(Palettes) {
		return fmt.Errorf("palette index out of range (%d,%d)", p.PaletteIndex, p.PaletteNext)
	}
	if !p.Mode.Valid() {
		return fmt.Errorf("invalid mode %d", p.Mode)
	}
	if !p.Level.Valid() {
		return fmt.Errorf("invalid level %d", p.Level)
	}
	return nil
}

// WrapHue maps any hue onto [0,1).
func WrapHue(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	h = math.Mod(h, 1)
	if h < 0 {
		h++
	}
	if h >= 1 {
		h = 0
	}
	return h
}

// HueDelta returns the signed shortest-path distance from a to b on the hue
// circle, in [-0.5,0.5].
func HueDelta(a, b float64) float64 {
	d := WrapHue(b) - WrapHue(a)
	if d > 0.5 {
		d--
	} else if d < -0.5 {
		d++
	}
	return d
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

func clampClock(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	return v
}

func clampIndex(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
