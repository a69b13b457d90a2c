package audio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"github.com/guidoenr/lumen/internal/pcm"
)

// Capture reads chunks from a PortAudio input stream. The stream callback
// never blocks; if Read falls behind, the oldest chunks are dropped.
type Capture struct {
	stream     *portaudio.Stream
	sampleRate float64
	channels   int
	chunkSize  int
	device     *portaudio.DeviceInfo
	queue      *chunkQueue
	log        logrus.FieldLogger

	frames    int64 // written only by the stream callback
	closeOnce sync.Once
	closeErr  error
}

// CaptureConfig controls how a Capture instance is created.
type CaptureConfig struct {
	// DeviceName selects the first input device whose name contains it
	// (case-insensitive). Empty picks the best available input.
	DeviceName string
	// ChunkSize is the number of frames per chunk.
	ChunkSize  int
	Channels   int
	QueueDepth int
	Log        logrus.FieldLogger
}

// NewCapture opens and starts a PortAudio input stream. Initialize must have
// been called.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	device, err := findInputDevice(cfg.DeviceName)
	if err != nil {
		return nil, err
	}
	if device.MaxInputChannels < cfg.Channels {
		cfg.Channels = device.MaxInputChannels
	}

	c := &Capture{
		sampleRate: device.DefaultSampleRate,
		channels:   cfg.Channels,
		chunkSize:  cfg.ChunkSize,
		device:     device,
		queue:      newChunkQueue(cfg.QueueDepth),
		log: log.WithFields(logrus.Fields{
			"component": "capture",
			"device":    device.Name,
		}),
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      c.sampleRate,
		FramesPerBuffer: cfg.ChunkSize,
	}, c.process)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	c.stream = stream

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	c.log.WithFields(logrus.Fields{
		"sample_rate": c.sampleRate,
		"channels":    c.channels,
		"chunk":       c.chunkSize,
	}).Info("capture started")
	return c, nil
}

// Read returns the next captured chunk.
func (c *Capture) Read(ctx context.Context) (pcm.Chunk, error) {
	chunk, ok, err := c.queue.pop(ctx)
	if err != nil {
		return pcm.Chunk{}, err
	}
	if !ok {
		return pcm.Chunk{}, ErrSourceClosed
	}
	return chunk, nil
}

// Close stops and closes the stream. Pending and future Reads return
// ErrSourceClosed.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		if err := c.stream.Stop(); err != nil && !isInvalidStreamState(err) {
			c.closeErr = err
		}
		if err := c.stream.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
		c.queue.close()
		if n := c.queue.Dropped(); n > 0 {
			c.log.WithField("dropped", n).Warn("reader fell behind the capture stream")
		}
	})
	return c.closeErr
}

// SampleRate returns the stream sample rate.
func (c *Capture) SampleRate() float64 { return c.sampleRate }

// Device returns the PortAudio device the stream was opened on.
func (c *Capture) Device() *portaudio.DeviceInfo { return c.device }

// process runs on the PortAudio callback thread. in is reused by PortAudio
// after return, so it is copied.
func (c *Capture) process(in []float32) {
	if len(in) == 0 {
		return
	}
	samples := make([]float32, len(in))
	copy(samples, in)
	chunk := pcm.Chunk{
		Samples:    samples,
		Channels:   c.channels,
		SampleRate: c.sampleRate,
		Position:   framesToDuration(c.frames, c.sampleRate),
	}
	c.frames += int64(len(in) / c.channels)
	c.queue.push(chunk)
}

func framesToDuration(frames int64, rate float64) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / rate * float64(time.Second))
}

// isInvalidStreamState reports whether err stems from stopping an already
// stopped stream.
func isInvalidStreamState(err error) bool {
	return err != nil && strings.Contains(err.Error(), "PaErrorCode -9986")
}
