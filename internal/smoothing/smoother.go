// Package smoothing provides per-parameter temporal filters that turn raw
// per-frame features into jitter-free control values.
package smoothing

import "math"

// Kind identifies a smoothing algorithm.
type Kind int

const (
	// KindLinear moves a fixed step toward the target each tick.
	KindLinear Kind = iota
	// KindExponential moves a fixed fraction of the remaining distance.
	KindExponential
	// KindAdaptive blends a slow and a fast exponential rate by change size.
	KindAdaptive
)

func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindExponential:
		return "exponential"
	case KindAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// Strategy configures how one named parameter is smoothed.
type Strategy struct {
	Kind Kind

	// Step is the per-tick change for KindLinear.
	Step float64
	// Alpha is the per-tick fraction for KindExponential.
	Alpha float64
	// Slow, Fast and Sensitivity configure KindAdaptive.
	Slow        float64
	Fast        float64
	Sensitivity float64
}

// Linear returns a fixed-step strategy.
func Linear(step float64) Strategy {
	return Strategy{Kind: KindLinear, Step: math.Abs(step)}
}

// Exponential returns a fixed-fraction strategy.
func Exponential(alpha float64) Strategy {
	return Strategy{Kind: KindExponential, Alpha: clamp01(alpha)}
}

// ExponentialRate derives the per-tick fraction from a decay rate per second
// at the given tick rate.
func ExponentialRate(decayPerSecond, ticksPerSecond float64) Strategy {
	if ticksPerSecond <= 0 {
		ticksPerSecond = 60
	}
	return Exponential(1 - math.Exp(-decayPerSecond/ticksPerSecond))
}

// Adaptive returns a strategy that smooths small changes with the slow rate
// and tracks large changes with the fast rate.
func Adaptive(slow, fast, sensitivity float64) Strategy {
	slow = clamp01(slow)
	fast = clamp01(fast)
	if fast < slow {
		slow, fast = fast, slow
	}
	return Strategy{Kind: KindAdaptive, Slow: slow, Fast: fast, Sensitivity: math.Abs(sensitivity)}
}

// Next computes one tick from current toward target. The result always lies
// between current and target.
func (s Strategy) Next(current, target float64) float64 {
	delta := target - current
	if delta == 0 {
		return target
	}
	switch s.Kind {
	case KindLinear:
		if math.Abs(delta) <= s.Step {
			return target
		}
		return current + math.Copysign(s.Step, delta)
	case KindExponential:
		return current + delta*clamp01(s.Alpha)
	case KindAdaptive:
		mix := clamp01(math.Abs(delta) * s.Sensitivity)
		alpha := clamp01(s.Slow + (s.Fast-s.Slow)*mix)
		return current + delta*alpha
	default:
		return target
	}
}

type state struct {
	value      float64
	velocity   float64
	changeRate float64
}

// Smoother holds one filter state per named parameter. It is not safe for
// concurrent use; the render loop owns it.
type Smoother struct {
	strategies map[string]Strategy
	states     map[string]*state
}

// New creates a Smoother with the given per-name strategies.
func New(strategies map[string]Strategy) *Smoother {
	s := &Smoother{
		strategies: make(map[string]Strategy, len(strategies)),
		states:     make(map[string]*state, len(strategies)),
	}
	for name, strat := range strategies {
		s.strategies[name] = strat
	}
	return s
}

// Configure sets or replaces the strategy for name. Existing state is kept.
func (s *Smoother) Configure(name string, strat Strategy) {
	s.strategies[name] = strat
}

// Strategy returns the configured strategy for name.
func (s *Smoother) Strategy(name string) (Strategy, bool) {
	strat, ok := s.strategies[name]
	return strat, ok
}

// Smooth advances the filter for name toward target and returns the new
// output. The first value seen for a name seeds its state. Names without a
// strategy pass through unchanged.
func (s *Smoother) Smooth(name string, target float64) float64 {
	st, seen := s.states[name]
	if math.IsNaN(target) || math.IsInf(target, 0) {
		if seen {
			return st.value
		}
		return 0
	}
	if !seen {
		s.states[name] = &state{value: target}
		return target
	}

	strat, ok := s.strategies[name]
	next := target
	if ok {
		next = strat.Next(st.value, target)
	}

	step := next - st.value
	st.velocity = st.velocity*0.8 + step*0.2
	st.changeRate = math.Abs(step)
	st.value = next
	return next
}

// Value returns the last output for name.
func (s *Smoother) Value(name string) (float64, bool) {
	st, ok := s.states[name]
	if !ok {
		return 0, false
	}
	return st.value, true
}

// Velocity returns the smoothed per-tick velocity estimate for name.
func (s *Smoother) Velocity(name string) float64 {
	if st, ok := s.states[name]; ok {
		return st.velocity
	}
	return 0
}

// ChangeRate returns the magnitude of the last step for name.
func (s *Smoother) ChangeRate(name string) float64 {
	if st, ok := s.states[name]; ok {
		return st.changeRate
	}
	return 0
}

// Reset forgets the state for name so the next value reseeds it.
func (s *Smoother) Reset(name string) {
	delete(s.states, name)
}

// ResetAll forgets every parameter state.
func (s *Smoother) ResetAll() {
	for name := range s.states {
		delete(s.states, name)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
