package audio

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/guidoenr/lumen/internal/pcm"
)

// SynthConfig controls the demo signal generator.
type SynthConfig struct {
	SampleRate float64
	BPM        float64
	ChunkSize  int
	// Realtime paces Read at the sample rate.
	Realtime bool
	Seed     int64
}

// Synth generates a four-on-the-floor kick with off-beat hats over a slowly
// drifting pad. It stands in for an input device with --no-audio and never
// ends.
type Synth struct {
	cfg SynthConfig
	rng *rand.Rand

	mu     sync.Mutex
	frames int64
	start  time.Time
	closed bool
}

// NewSynth returns a generator. Zero fields take defaults of 44.1kHz and
// 120 BPM.
func NewSynth(cfg SynthConfig) *Synth {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44_100
	}
	if cfg.BPM <= 0 {
		cfg.BPM = 120
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synth{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Read renders the next chunk.
func (s *Synth) Read(ctx context.Context) (pcm.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return pcm.Chunk{}, ErrSourceClosed
	}

	position := framesToDuration(s.frames, s.cfg.SampleRate)
	if s.cfg.Realtime {
		if s.start.IsZero() {
			s.start = time.Now()
		}
		if wait := time.Until(s.start.Add(position)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return pcm.Chunk{}, ctx.Err()
			}
		}
	} else if err := ctx.Err(); err != nil {
		return pcm.Chunk{}, err
	}

	samples := make([]float32, s.cfg.ChunkSize)
	for i := range samples {
		t := float64(s.frames+int64(i)) / s.cfg.SampleRate
		samples[i] = float32(s.sample(t))
	}
	s.frames += int64(len(samples))
	return pcm.Chunk{
		Samples:    samples,
		Channels:   1,
		SampleRate: s.cfg.SampleRate,
		Position:   position,
	}, nil
}

func (s *Synth) sample(t float64) float64 {
	beat := 60 / s.cfg.BPM
	age := math.Mod(t, beat)

	// Kick: a sine sweeping from 150Hz down to 50Hz.
	sweep := 50*age + 100*(1-math.Exp(-30*age))/30
	kick := 0.8 * math.Exp(-18*age) * math.Sin(2*math.Pi*sweep)

	var hat float64
	if off := age - beat/2; off >= 0 {
		hat = 0.08 * math.Exp(-60*off) * (2*s.rng.Float64() - 1)
	}

	swell := 0.6 + 0.4*math.Sin(2*math.Pi*0.1*t)
	drift := 0.5 * math.Sin(2*math.Pi*0.03*t)
	pad := 0.12 * swell * (math.Sin(2*math.Pi*440*t) + 0.5*math.Sin(2*math.Pi*660*t+drift))

	v := kick + hat + pad
	return math.Max(-1, math.Min(1, v))
}

// SampleRate returns the generator's sample rate.
func (s *Synth) SampleRate() float64 { return s.cfg.SampleRate }

// Close makes further reads fail with ErrSourceClosed.
func (s *Synth) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
