package params

import (
	"fmt"
	"strings"
	"time"

	"github.com/guidoenr/lumen/internal/analyzer"
	"github.com/guidoenr/lumen/internal/rhythm"
)

// Mode selects which pattern generator the renderer runs.
type Mode int

const (
	ModeClassic Mode = iota
	ModeTunnel
	ModeParticle
	ModeKaleidoscope
	ModeParametricWave
	ModeFractal

	// ModeAuto is only meaningful as an override request; it clears the
	// manual override and is never emitted in VisualParameters.
	ModeAuto Mode = -1
)

var modeNames = []string{"classic", "tunnel", "particle", "kaleidoscope", "wave", "fractal"}

func (m Mode) String() string {
	if m == ModeAuto {
		return "auto"
	}
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Valid reports whether m names a concrete mode.
func (m Mode) Valid() bool {
	return m >= ModeClassic && m <= ModeFractal
}

// ModeNames returns the concrete mode identifiers.
func ModeNames() []string {
	out := make([]string, len(modeNames))
	copy(out, modeNames)
	return out
}

// ParseMode resolves a mode name. "auto" returns ModeAuto.
func ParseMode(name string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "auto", "":
		return ModeAuto, nil
	case "parametricwave", "parametric", "waves":
		return ModeParametricWave, nil
	case "particles":
		return ModeParticle, nil
	}
	for i, n := range modeNames {
		if n == key {
			return Mode(i), nil
		}
	}
	return ModeAuto, fmt.Errorf("unknown mode %q", name)
}

const defaultModeCooldown = 2500 * time.Millisecond

// ModeSelector picks a visual mode from the audio character, switching at
// most once per cooldown. A manual override wins until auto is restored.
type ModeSelector struct {
	current    Mode
	override   Mode
	lastSwitch float64
	cooldown   float64
}

// NewModeSelector creates a selector starting in initial. Passing ModeAuto
// starts in classic with automatic selection.
func NewModeSelector(initial Mode) *ModeSelector {
	s := &ModeSelector{
		current:    ModeClassic,
		override:   ModeAuto,
		lastSwitch: -defaultModeCooldown.Seconds(),
		cooldown:   defaultModeCooldown.Seconds(),
	}
	if initial.Valid() {
		s.current = initial
		s.override = initial
	}
	return s
}

// SetOverride pins the mode. ModeAuto returns to automatic selection.
func (s *ModeSelector) SetOverride(m Mode) {
	if m.Valid() {
		s.override = m
		s.current = m
		return
	}
	s.override = ModeAuto
}

// Override returns the pinned mode or ModeAuto.
func (s *ModeSelector) Override() Mode { return s.override }

// Current returns the mode last selected.
func (s *ModeSelector) Current() Mode { return s.current }

// Select returns the mode for this frame.
func (s *ModeSelector) Select(now float64, f analyzer.Features, r rhythm.State) Mode {
	if s.override.Valid() {
		s.current = s.override
		return s.current
	}
	if now-s.lastSwitch < s.cooldown {
		return s.current
	}
	next := Recommend(f, r)
	if next != s.current {
		s.current = next
		s.lastSwitch = now
	}
	return s.current
}

// Recommend maps audio character to a mode without any cooldown.
func Recommend(f analyzer.Features, r rhythm.State) Mode {
	low := (f.SubBass + f.Bass) / 2
	high := (f.Treble + f.Presence) / 2
	switch {
	case low > 0.7 && r.Confidence > 0.8:
		return ModeTunnel
	case low > 0.7:
		return ModeClassic
	case high > 0.6 && f.OnsetStrength > 0.5:
		return ModeParticle
	case f.PitchConfidence > 0.7 && r.Stability > 0.6:
		return ModeKaleidoscope
	case f.Flux > 0.4:
		return ModeParametricWave
	case f.DynamicRange > 0.6:
		return ModeFractal
	default:
		return ModeClassic
	}
}
