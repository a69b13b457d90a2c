package pcm

import "time"

// Chunk is a block of interleaved PCM samples as delivered by a capture
// driver or a file decoder.
type Chunk struct {
	Samples    []float32
	Channels   int
	SampleRate float64
	// Position is the stream offset of the first frame in the chunk.
	Position time.Duration
}

// Frames returns the number of sample frames in the chunk.
func (c Chunk) Frames() int {
	ch := c.Channels
	if ch <= 0 {
		ch = 1
	}
	return len(c.Samples) / ch
}

// Duration returns the playback duration covered by the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.Frames()) / c.SampleRate * float64(time.Second))
}

// End returns the stream offset just past the last frame.
func (c Chunk) End() time.Duration {
	return c.Position + c.Duration()
}

// Mono averages all channels into a single float64 slice.
func (c Chunk) Mono() []float64 {
	ch := c.Channels
	if ch <= 1 {
		out := make([]float64, len(c.Samples))
		for i, v := range c.Samples {
			out[i] = float64(v)
		}
		return out
	}
	frames := len(c.Samples) / ch
	out := make([]float64, frames)
	for i := range out {
		sum := 0.0
		base := i * ch
		for j := 0; j < ch; j++ {
			sum += float64(c.Samples[base+j])
		}
		out[i] = sum / float64(ch)
	}
	return out
}
