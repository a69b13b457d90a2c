package params

import (
	"math"
	"time"

	"github.com/guidoenr/lumen/internal/analyzer"
	"github.com/guidoenr/lumen/internal/rhythm"
	"github.com/guidoenr/lumen/internal/smoothing"
)

// Smoothed parameter names.
const (
	NameSubBass        = "subBass"
	NameBass           = "bass"
	NameMid            = "mid"
	NameTreble         = "treble"
	NamePresence       = "presence"
	NameVolume         = "volume"
	NameColorIntensity = "colorIntensity"
	NameFrequencyScale = "frequencyScale"
	NameSpectralShift  = "spectralShift"
	NameSaturation     = "saturation"
	NameBrightness     = "brightness"
	NameComplexity     = "complexity"
	NameSpeed          = "speed"
)

// DefaultSmoothing returns the per-parameter strategies for a render loop
// running at fps frames per second.
func DefaultSmoothing(fps float64) map[string]smoothing.Strategy {
	bands := smoothing.Adaptive(0.1, 0.6, 4)
	highs := smoothing.Adaptive(0.05, 0.5, 5)
	return map[string]smoothing.Strategy{
		NameColorIntensity: smoothing.Adaptive(0.05, 0.3, 3),
		NameFrequencyScale: smoothing.ExponentialRate(2, fps),
		NameSpeed:          smoothing.Linear(0.02),
		NameSubBass:        bands,
		NameBass:           bands,
		NameMid:            smoothing.Adaptive(0.08, 0.4, 2.5),
		NameTreble:         highs,
		NamePresence:       highs,
		NameBrightness:     smoothing.ExponentialRate(3, fps),
		NameSpectralShift:  smoothing.ExponentialRate(1.5, fps),
		NameSaturation:     smoothing.ExponentialRate(4, fps),
		NameVolume:         smoothing.ExponentialRate(3, fps),
		NameComplexity:     smoothing.ExponentialRate(1, fps),
	}
}

// Targets are the visual values derived from one set of features, before
// smoothing.
type Targets struct {
	SubBass  float64
	Bass     float64
	Mid      float64
	Treble   float64
	Presence float64
	Volume   float64

	ColorIntensity float64
	FrequencyScale float64
	SpectralShift  float64
	Saturation     float64
	Brightness     float64
	Complexity     float64
	Speed          float64
}

// TargetsFrom maps audio features onto visual targets.
func TargetsFrom(f analyzer.Features) Targets {
	low := f.Low()
	return Targets{
		SubBass:  clamp01(f.SubBass),
		Bass:     clamp01(f.Bass),
		Mid:      clamp01(f.Mid),
		Treble:   clamp01(f.Treble),
		Presence: clamp01(f.Presence),
		Volume:   clamp01(f.Volume),

		ColorIntensity: clamp01(0.4*low + 0.4*f.Mid + 0.2*f.Treble),
		FrequencyScale: clamp(1+f.Centroid/10000, 0.5, 2),
		SpectralShift:  clamp(2*f.RolloffNorm-1, -1, 1),
		Saturation:     saturationCurve(f.VolumeDB),
		Brightness:     clamp01(restBrightness + (1-restBrightness)*f.Volume),
		Complexity:     clamp01(restComplexity + (1-restComplexity)*(0.5*f.DynamicRange+0.5*f.Flux)),
		Speed:          clamp01(restSpeed + (1-restSpeed)*f.Volume),
	}
}

// saturationCurve keeps quiet passages grey and opens up color quickly once
// the signal is clearly audible.
func saturationCurve(db float64) float64 {
	switch {
	case math.IsNaN(db) || db < -50:
		return 0
	case db < -30:
		x := (db + 50) / 20
		return clamp01(0.3 * x * x)
	default:
		x := (db + 60) / 54
		return clamp01(x * x)
	}
}

// Smoothed runs every target through s.
func (t Targets) Smoothed(s *smoothing.Smoother) Targets {
	return Targets{
		SubBass:        s.Smooth(NameSubBass, t.SubBass),
		Bass:           s.Smooth(NameBass, t.Bass),
		Mid:            s.Smooth(NameMid, t.Mid),
		Treble:         s.Smooth(NameTreble, t.Treble),
		Presence:       s.Smooth(NamePresence, t.Presence),
		Volume:         s.Smooth(NameVolume, t.Volume),
		ColorIntensity: s.Smooth(NameColorIntensity, t.ColorIntensity),
		FrequencyScale: s.Smooth(NameFrequencyScale, t.FrequencyScale),
		SpectralShift:  s.Smooth(NameSpectralShift, t.SpectralShift),
		Saturation:     s.Smooth(NameSaturation, t.Saturation),
		Brightness:     s.Smooth(NameBrightness, t.Brightness),
		Complexity:     s.Smooth(NameComplexity, t.Complexity),
		Speed:          s.Smooth(NameSpeed, t.Speed),
	}
}

// Inputs is everything the composer needs for one frame.
type Inputs struct {
	Features analyzer.Features
	Rhythm   rhythm.State
	Targets  Targets
	// Downbeat is set when at least one downbeat happened since the
	// previous frame.
	Downbeat bool
	// Now is the stream clock in seconds.
	Now float64
}

// Composer assembles the pre-safety parameter candidate for each frame. It
// owns the palette and mode state.
type Composer struct {
	palettes *PaletteManager
	modes    *ModeSelector
}

// NewComposer creates a composer starting on the given palette and mode.
// ModeAuto enables automatic mode selection.
func NewComposer(palette int, mode Mode) *Composer {
	return &Composer{
		palettes: NewPaletteManager(palette),
		modes:    NewModeSelector(mode),
	}
}

// Palettes exposes the palette manager for control commands.
func (c *Composer) Palettes() *PaletteManager { return c.palettes }

// Modes exposes the mode selector for control commands.
func (c *Composer) Modes() *ModeSelector { return c.modes }

// Compose builds the candidate for this frame. dt is the time since the
// previous frame in seconds.
func (c *Composer) Compose(in Inputs, prev VisualParameters, dt float64) VisualParameters {
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}
	t := in.Targets
	p := Rest()

	p.SubBass = t.SubBass
	p.Bass = t.Bass
	p.Mid = t.Mid
	p.Treble = t.Treble
	p.Presence = t.Presence
	p.Volume = t.Volume
	p.ColorIntensity = t.ColorIntensity
	p.FrequencyScale = t.FrequencyScale
	p.SpectralShift = t.SpectralShift
	p.Saturation = t.Saturation
	p.Brightness = t.Brightness
	p.Complexity = t.Complexity
	p.Speed = t.Speed
	p.Phase = clampClock(prev.Phase + dt*(restSpeed+t.Speed))

	p.BeatPulse = in.Rhythm.BeatStrength
	p.OnsetPulse = in.Features.OnsetStrength
	p.BPM = in.Rhythm.BPM
	p.TempoConfidence = in.Rhythm.Confidence
	p.BeatPhase = float64(in.Rhythm.BeatPhase)
	p.Stability = in.Rhythm.Stability
	p.Downbeat = in.Downbeat

	ps := c.palettes.Update(in.Now, dt, t.ColorIntensity, in.Downbeat)
	p.PaletteIndex = ps.Index
	p.PaletteNext = ps.Next
	p.PaletteBlend = ps.Blend
	p.Hue = ps.Hue

	p.Mode = c.modes.Select(in.Now, in.Features, in.Rhythm)
	return p.Clamp()
}

// Stamp sets the frame clock fields after safety has been applied.
func Stamp(p VisualParameters, now, start time.Time, frame uint64) VisualParameters {
	p.Time = clampClock(now.Sub(start).Seconds())
	p.Frame = frame
	return p
}
