package render

import "time"

// qualityOrder lists presets from cheapest to most detailed.
var qualityOrder = []qualityMode{qualityEco, qualityBalanced, qualityHigh}

const (
	governorWindow = 30 // frames between decisions
	downshiftRatio = 0.8
	upshiftRatio   = 0.4
	governorWeight = 0.1
)

// QualityGovernor steps the renderer's quality preset down when frames take
// too long to draw and back up when there is headroom.
type QualityGovernor struct {
	budget  time.Duration
	avg     time.Duration
	samples int
}

// NewQualityGovernor sizes the frame budget from the target frame rate.
func NewQualityGovernor(fps float64) *QualityGovernor {
	if fps <= 0 {
		fps = 60
	}
	return &QualityGovernor{budget: time.Duration(float64(time.Second) / fps)}
}

// Adjust records how long the last frame took to render and moves r one
// preset when the running average leaves the budget band. It reports whether
// the preset changed.
func (g *QualityGovernor) Adjust(r *Renderer, took time.Duration) bool {
	if g.samples == 0 {
		g.avg = took
	} else {
		g.avg += time.Duration(governorWeight * float64(took-g.avg))
	}
	g.samples++
	if g.samples < governorWindow {
		return false
	}

	idx := qualityIndex(r.quality)
	switch {
	case g.avg > time.Duration(downshiftRatio*float64(g.budget)) && idx > 0:
		idx--
	case g.avg < time.Duration(upshiftRatio*float64(g.budget)) && idx < len(qualityOrder)-1:
		idx++
	default:
		return false
	}
	r.quality = qualityOrder[idx]
	g.samples = 0
	return true
}

func qualityIndex(q qualityMode) int {
	for i, m := range qualityOrder {
		if m == q {
			return i
		}
	}
	return 1
}
