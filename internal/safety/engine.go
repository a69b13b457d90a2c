package safety

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guidoenr/lumen/internal/params"
)

const (
	// MajorChangeThreshold is the change magnitude above which a frame counts
	// as a flash.
	MajorChangeThreshold = 0.3
	// MinFlashInterval caps major changes at 3 per second.
	MinFlashInterval = time.Second / 3
	// LuminanceLimit is the largest luminance step allowed between frames.
	LuminanceLimit = 0.1

	statusWindow   = time.Second
	warnRate       = 0.08
	highRate       = 0.05
	bisectionSteps = 32
)

// Settings configures an Engine.
type Settings struct {
	Level Level
	// EnforceLimitsWhenDisabled keeps the flash and luminance limits active
	// at the Disabled level.
	EnforceLimitsWhenDisabled bool

	MajorChangeThreshold float64
	MinFlashInterval     time.Duration
	LuminanceLimit       float64

	Log logrus.FieldLogger
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Level:                     DefaultLevel,
		EnforceLimitsWhenDisabled: true,
		MajorChangeThreshold:      MajorChangeThreshold,
		MinFlashInterval:          MinFlashInterval,
		LuminanceLimit:            LuminanceLimit,
	}
}

// Status summarises recent safety activity.
type Status struct {
	Level         Level   `json:"level"`
	LevelName     string  `json:"levelName"`
	Emergency     bool    `json:"emergency"`
	RecentChanges int     `json:"recentChanges"`
	LuminanceRate float64 `json:"luminanceRate"`
	RedFlashes    int     `json:"redFlashes"`
	Suppressed    uint64  `json:"suppressed"`
	Limited       uint64  `json:"limited"`
	ShouldWarn    bool    `json:"shouldWarn"`
	Message       string  `json:"message"`
}

type change struct {
	at    time.Time
	delta float64
	major bool
	red   bool
}

// Engine constrains composed parameters so the rendered output stays below
// flash and luminance thresholds. It is owned by the render goroutine.
type Engine struct {
	settings Settings
	log      logrus.FieldLogger

	level     Level
	emergency bool

	lastMajor  time.Time
	hasMajor   bool
	recent     []change
	lastNow    time.Time
	suppressed uint64
	limited    uint64
}

// NewEngine creates an engine. Zero thresholds fall back to the defaults.
func NewEngine(s Settings) *Engine {
	def := DefaultSettings()
	if s.MajorChangeThreshold <= 0 {
		s.MajorChangeThreshold = def.MajorChangeThreshold
	}
	if s.MinFlashInterval <= 0 {
		s.MinFlashInterval = def.MinFlashInterval
	}
	if s.LuminanceLimit <= 0 {
		s.LuminanceLimit = def.LuminanceLimit
	}
	if !s.Level.Valid() {
		s.Level = DefaultLevel
	}
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{settings: s, log: log, level: s.Level}
}

// Level returns the active safety level.
func (e *Engine) Level() Level { return e.level }

// SetLevel switches level. The new multipliers apply from the next Apply.
func (e *Engine) SetLevel(l Level) error {
	if !l.Valid() {
		return fmt.Errorf("invalid safety level %d", int(l))
	}
	if l != e.level {
		e.log.WithFields(logrus.Fields{"from": e.level.String(), "to": l.String()}).Info("safety level changed")
	}
	e.level = l
	return nil
}

// CycleLevel advances to the next level and returns it.
func (e *Engine) CycleLevel() Level {
	_ = e.SetLevel(NextLevel(e.level))
	return e.level
}

// Emergency reports whether emergency stop is active.
func (e *Engine) Emergency() bool { return e.emergency }

// EmergencyStop forces the fixed safe output until Resume.
func (e *Engine) EmergencyStop() {
	if !e.emergency {
		e.log.Warn("emergency stop engaged")
	}
	e.emergency = true
}

// Resume clears emergency stop.
func (e *Engine) Resume() {
	if e.emergency {
		e.log.Info("emergency stop released")
	}
	e.emergency = false
}

// ToggleEmergency flips emergency stop and returns the new state.
func (e *Engine) ToggleEmergency() bool {
	if e.emergency {
		e.Resume()
	} else {
		e.EmergencyStop()
	}
	return e.emergency
}

// Apply turns candidate into a compliant frame given the previously delivered
// frame. The result depends only on its arguments and the engine state.
func (e *Engine) Apply(candidate, prev params.VisualParameters, now time.Time) params.VisualParameters {
	if e.emergency {
		// The jump to the safe frame is never held, but it still starts a
		// flash cooldown so an immediate resume cannot flash back.
		safe := params.SafeParameters()
		e.record(prev.Clamp(), safe, now)
		return safe
	}

	prev = prev.Clamp()
	out := sanitize(candidate, prev)
	out = e.scale(out, prev)

	if e.enforcing() {
		if magnitude(prev, out) > e.settings.MajorChangeThreshold && e.inCooldown(now) {
			out = hold(out, prev)
			e.suppressed++
		}
		var limited bool
		out, limited = limitLuminance(prev, out, e.settings.LuminanceLimit)
		if limited {
			e.limited++
		}
	}

	e.record(prev, out, now)
	return out
}

func (e *Engine) enforcing() bool {
	return e.level != Disabled || e.settings.EnforceLimitsWhenDisabled
}

func (e *Engine) inCooldown(now time.Time) bool {
	return e.hasMajor && now.Sub(e.lastMajor) < e.settings.MinFlashInterval
}

// scale applies the level multipliers to the audio-driven channels.
func (e *Engine) scale(p, prev params.VisualParameters) params.VisualParameters {
	m := MultipliersFor(e.level)
	p.BeatPulse *= m.Beat
	p.OnsetPulse *= m.Onset
	p.Hue = prev.Hue + m.ColorRate*params.HueDelta(prev.Hue, p.Hue)
	p.Brightness *= m.Brightness
	p.Complexity *= m.Complexity
	p.Multipliers = m
	p.Level = e.level
	p.Emergency = false
	return p.Clamp()
}

func (e *Engine) record(prev, out params.VisualParameters, now time.Time) {
	mag := magnitude(prev, out)
	c := change{
		at:    now,
		delta: math.Abs(Luminance(out) - Luminance(prev)),
		major: mag > e.settings.MajorChangeThreshold,
	}
	if c.major {
		e.lastMajor, e.hasMajor = now, true
		c.red = Color(out).RedDominant()
	}

	cut := 0
	for cut < len(e.recent) && now.Sub(e.recent[cut].at) >= statusWindow {
		cut++
	}
	if cut > 0 {
		n := copy(e.recent, e.recent[cut:])
		e.recent = e.recent[:n]
	}
	e.recent = append(e.recent, c)
	e.lastNow = now
}

// Status reports activity over the last second of applied frames.
func (e *Engine) Status() Status {
	st := Status{
		Level:      e.level,
		LevelName:  e.level.String(),
		Emergency:  e.emergency,
		Suppressed: e.suppressed,
		Limited:    e.limited,
	}
	total := 0.0
	for _, c := range e.recent {
		if e.lastNow.Sub(c.at) >= statusWindow {
			continue
		}
		if c.major {
			st.RecentChanges++
		}
		if c.red {
			st.RedFlashes++
		}
		total += c.delta
	}
	if len(e.recent) > 0 {
		st.LuminanceRate = total / float64(len(e.recent))
	}
	st.ShouldWarn = st.LuminanceRate > warnRate
	st.Message = statusMessage(st)
	return st
}

func statusMessage(st Status) string {
	if st.Emergency {
		return "EMERGENCY STOP ACTIVE"
	}
	msg := Label(st.Level)
	if st.LuminanceRate > highRate {
		msg += " (high activity)"
	}
	return msg
}

// magnitude is the largest change over the flash-relevant channels.
func magnitude(a, b params.VisualParameters) float64 {
	m := math.Abs(b.BeatPulse - a.BeatPulse)
	m = math.Max(m, math.Abs(b.OnsetPulse-a.OnsetPulse))
	m = math.Max(m, math.Abs(b.Brightness-a.Brightness))
	m = math.Max(m, math.Abs(b.Saturation-a.Saturation))
	m = math.Max(m, math.Abs(b.ColorIntensity-a.ColorIntensity))
	m = math.Max(m, math.Abs(params.HueDelta(a.Hue, b.Hue)))
	return m
}

// hold freezes the flash-relevant channels at their previous values.
func hold(p, prev params.VisualParameters) params.VisualParameters {
	p.BeatPulse = prev.BeatPulse
	p.OnsetPulse = prev.OnsetPulse
	p.Brightness = prev.Brightness
	p.Saturation = prev.Saturation
	p.ColorIntensity = prev.ColorIntensity
	p.Hue = prev.Hue
	return p
}

// limitLuminance pulls p toward prev until the luminance step is within
// limit. The interpolation factor is found by bisection and the lower bound
// always satisfies the limit.
func limitLuminance(prev, p params.VisualParameters, limit float64) (params.VisualParameters, bool) {
	base := Luminance(prev)
	if math.Abs(Luminance(p)-base) <= limit {
		return p, false
	}
	lo, hi := 0.0, 1.0
	for i := 0; i < bisectionSteps; i++ {
		mid := (lo + hi) / 2
		if math.Abs(Luminance(interpolate(prev, p, mid))-base) <= limit {
			lo = mid
		} else {
			hi = mid
		}
	}
	return interpolate(prev, p, lo), true
}

// interpolate moves every continuous visual channel a fraction t from prev
// toward p. Discrete fields and rhythm scalars follow p.
func interpolate(prev, p params.VisualParameters, t float64) params.VisualParameters {
	out := p
	out.SubBass = mix(prev.SubBass, p.SubBass, t)
	out.Bass = mix(prev.Bass, p.Bass, t)
	out.Mid = mix(prev.Mid, p.Mid, t)
	out.Treble = mix(prev.Treble, p.Treble, t)
	out.Presence = mix(prev.Presence, p.Presence, t)
	out.Volume = mix(prev.Volume, p.Volume, t)
	out.ColorIntensity = mix(prev.ColorIntensity, p.ColorIntensity, t)
	out.FrequencyScale = mix(prev.FrequencyScale, p.FrequencyScale, t)
	out.SpectralShift = mix(prev.SpectralShift, p.SpectralShift, t)
	out.Saturation = mix(prev.Saturation, p.Saturation, t)
	out.Brightness = mix(prev.Brightness, p.Brightness, t)
	out.Complexity = mix(prev.Complexity, p.Complexity, t)
	out.Speed = mix(prev.Speed, p.Speed, t)
	out.BeatPulse = mix(prev.BeatPulse, p.BeatPulse, t)
	out.OnsetPulse = mix(prev.OnsetPulse, p.OnsetPulse, t)
	out.Hue = params.WrapHue(prev.Hue + t*params.HueDelta(prev.Hue, p.Hue))
	return out
}

func mix(a, b, t float64) float64 {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return a + t*(b-a)
}

// sanitize replaces non-finite scalars with the previous frame's values.
func sanitize(p, prev params.VisualParameters) params.VisualParameters {
	fields := []struct {
		v        *float64
		fallback float64
	}{
		{&p.Time, prev.Time}, {&p.Phase, prev.Phase},
		{&p.SubBass, prev.SubBass}, {&p.Bass, prev.Bass}, {&p.Mid, prev.Mid},
		{&p.Treble, prev.Treble}, {&p.Presence, prev.Presence}, {&p.Volume, prev.Volume},
		{&p.ColorIntensity, prev.ColorIntensity}, {&p.FrequencyScale, prev.FrequencyScale},
		{&p.SpectralShift, prev.SpectralShift}, {&p.Saturation, prev.Saturation},
		{&p.Brightness, prev.Brightness}, {&p.Complexity, prev.Complexity},
		{&p.Speed, prev.Speed}, {&p.Hue, prev.Hue},
		{&p.BeatPulse, prev.BeatPulse}, {&p.OnsetPulse, prev.OnsetPulse},
		{&p.BPM, prev.BPM}, {&p.TempoConfidence, prev.TempoConfidence},
		{&p.BeatPhase, prev.BeatPhase}, {&p.Stability, prev.Stability},
		{&p.PaletteBlend, prev.PaletteBlend},
	}
	for _, f := range fields {
		if math.IsNaN(*f.v) || math.IsInf(*f.v, 0) {
			*f.v = f.fallback
		}
	}
	return p
}
