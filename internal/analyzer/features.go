package analyzer

import "math"

// Features describes the spectral energy distribution and texture of one
// analysed chunk. All normalised fields lie in [0,1].
type Features struct {
	SubBass  float64 `json:"subBass"`
	Bass     float64 `json:"bass"`
	Mid      float64 `json:"mid"`
	Treble   float64 `json:"treble"`
	Presence float64 `json:"presence"`

	Volume       float64 `json:"volume"`
	VolumeDB     float64 `json:"volumeDb"` // [-60,0]
	Peak         float64 `json:"peak"`
	DynamicRange float64 `json:"dynamicRange"`

	Centroid     float64 `json:"centroid"` // Hz
	CentroidNorm float64 `json:"centroidNorm"`
	Rolloff      float64 `json:"rolloff"` // Hz
	RolloffNorm  float64 `json:"rolloffNorm"`

	Flux             float64 `json:"flux"`
	ZeroCrossingRate float64 `json:"zeroCrossingRate"`
	PitchConfidence  float64 `json:"pitchConfidence"`
	OnsetStrength    float64 `json:"onsetStrength"`
}

// Silence returns the features of an all-zero input.
func Silence() Features {
	return Features{VolumeDB: FloorDB}
}

// Low returns the combined sub-bass and bass energy.
func (f Features) Low() float64 {
	return (f.SubBass + f.Bass) / 2
}

// Bands returns the five band energies in ascending frequency order.
func (f Features) Bands() [5]float64 {
	return [5]float64{f.SubBass, f.Bass, f.Mid, f.Treble, f.Presence}
}

// Sanitize replaces NaN or infinite values and clamps every normalised field.
func (f Features) Sanitize() Features {
	f.SubBass = clamp01(f.SubBass)
	f.Bass = clamp01(f.Bass)
	f.Mid = clamp01(f.Mid)
	f.Treble = clamp01(f.Treble)
	f.Presence = clamp01(f.Presence)
	f.Volume = clamp01(f.Volume)
	f.Peak = clamp01(f.Peak)
	f.DynamicRange = clamp01(f.DynamicRange)
	f.VolumeDB = clamp(f.VolumeDB, FloorDB, 0)
	f.Centroid = nonNegative(f.Centroid)
	f.CentroidNorm = clamp01(f.CentroidNorm)
	f.Rolloff = nonNegative(f.Rolloff)
	f.RolloffNorm = clamp01(f.RolloffNorm)
	f.Flux = clamp01(f.Flux)
	f.ZeroCrossingRate = clamp01(f.ZeroCrossingRate)
	f.PitchConfidence = clamp01(f.PitchConfidence)
	f.OnsetStrength = clamp01(f.OnsetStrength)
	return f
}

// GateFeatures applies a noise floor to the band energies so weak signals
// read as silence.
func GateFeatures(f Features, floor float64) Features {
	if floor <= 0 {
		return f
	}
	if floor >= 1 {
		floor = 0.999
	}
	gate := func(v float64) float64 {
		if v <= floor {
			return 0
		}
		return clamp01((v - floor) / (1.0 - floor))
	}

	f.SubBass = gate(f.SubBass)
	f.Bass = gate(f.Bass)
	f.Mid = gate(f.Mid)
	f.Treble = gate(f.Treble)
	f.Presence = gate(f.Presence)
	f.Volume = gate(f.Volume)
	if f.OnsetStrength <= floor {
		f.OnsetStrength = 0
	}
	if f.Volume == 0 && f.SubBass == 0 && f.Bass == 0 && f.Mid == 0 && f.Treble == 0 && f.Presence == 0 {
		f.Flux = 0
		f.PitchConfidence = 0
	}
	return f
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return 0
	}
	return v
}
