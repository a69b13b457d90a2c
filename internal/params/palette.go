package params

import (
	"math"
	"strings"
)

// Palette is a hue family the composer draws colors from.
type Palette struct {
	Name    string
	BaseHue float64
	// HueRange bounds the drift around BaseHue. A range of 1 rotates through
	// the full spectrum.
	HueRange float64
}

// Palettes lists the palettes in switching order.
var Palettes = []Palette{
	{Name: "rainbow", BaseHue: 0, HueRange: 1},
	{Name: "red", BaseHue: 0, HueRange: 0.083},
	{Name: "orange", BaseHue: 0.083, HueRange: 0.083},
	{Name: "yellow", BaseHue: 0.167, HueRange: 0.083},
	{Name: "green", BaseHue: 0.333, HueRange: 0.167},
	{Name: "blue", BaseHue: 0.667, HueRange: 0.167},
	{Name: "indigo", BaseHue: 0.75, HueRange: 0.083},
	{Name: "violet", BaseHue: 0.833, HueRange: 0.083},
}

// PaletteNames returns palette identifiers in switching order.
func PaletteNames() []string {
	names := make([]string, len(Palettes))
	for i, p := range Palettes {
		names[i] = p.Name
	}
	return names
}

// PaletteIndex resolves a palette name, returning -1 if unknown.
func PaletteIndex(name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, p := range Palettes {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// hueAt returns the palette hue for a drift phase in [0,1).
func (p Palette) hueAt(drift float64) float64 {
	if p.HueRange >= 1 {
		return WrapHue(p.BaseHue + drift)
	}
	return WrapHue(p.BaseHue + p.HueRange*math.Sin(2*math.Pi*drift))
}

const (
	defaultPaletteCooldown = 2.0
	defaultPaletteFade     = 1.0
	paletteDriftRate       = 0.1
)

// PaletteState is the palette portion of a composed frame.
type PaletteState struct {
	Index int
	Next  int
	Blend float64
	Hue   float64
}

// PaletteManager advances palettes on downbeats and crossfades between them.
type PaletteManager struct {
	current    int
	previous   int
	lastSwitch float64
	inFade     bool
	drift      float64

	cooldown float64
	fade     float64
}

// NewPaletteManager starts on the given palette index.
func NewPaletteManager(start int) *PaletteManager {
	start = clampIndex(start, len(Palettes))
	return &PaletteManager{
		current:  start,
		previous: start,
		cooldown: defaultPaletteCooldown,
		fade:     defaultPaletteFade,
	}
}

// SetCooldown changes the minimum time between switches. The cooldown never
// drops below the crossfade duration.
func (m *PaletteManager) SetCooldown(seconds float64) {
	m.cooldown = math.Max(seconds, m.fade)
}

// Current returns the palette being faded to.
func (m *PaletteManager) Current() int { return m.current }

// TrySwitch advances to the next palette if the cooldown has elapsed.
func (m *PaletteManager) TrySwitch(now float64) bool {
	if now-m.lastSwitch < m.cooldown {
		return false
	}
	m.previous = m.current
	m.current = (m.current + 1) % len(Palettes)
	m.lastSwitch = now
	m.inFade = true
	return true
}

// Update advances drift and crossfade state. A downbeat triggers a switch
// when the cooldown allows it. colorIntensity in [0,1] sets the drift speed.
func (m *PaletteManager) Update(now, dt, colorIntensity float64, downbeat bool) PaletteState {
	if downbeat {
		m.TrySwitch(now)
	}
	if dt > 0 {
		m.drift = math.Mod(m.drift+dt*paletteDriftRate*clamp01(colorIntensity), 1)
	}

	blend := 1.0
	if m.inFade {
		elapsed := now - m.lastSwitch
		if elapsed >= m.fade || m.fade <= 0 {
			m.inFade = false
			m.previous = m.current
		} else {
			t := clamp01(elapsed / m.fade)
			blend = t * t * (3 - 2*t)
		}
	}

	from := Palettes[m.previous].hueAt(m.drift)
	to := Palettes[m.current].hueAt(m.drift)
	return PaletteState{
		Index: m.previous,
		Next:  m.current,
		Blend: blend,
		Hue:   WrapHue(from + HueDelta(from, to)*blend),
	}
}
