package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/sirupsen/logrus"

	"github.com/guidoenr/lumen/internal/pcm"
)

// FileConfig controls how a FileSource is opened.
type FileConfig struct {
	Path      string
	ChunkSize int
	// Playback sends the decoded audio to the default output device. The
	// speaker then paces reads.
	Playback bool
	// Realtime paces reads at the file's sample rate when Playback is off.
	// Without it the file is analysed as fast as Read is called.
	Realtime   bool
	QueueDepth int
	Log        logrus.FieldLogger
}

// FileSource decodes an audio file into chunks. The end of the file is
// reported as io.EOF.
type FileSource struct {
	cfg      FileConfig
	streamer beep.StreamSeekCloser
	format   beep.Format
	tap      *Tap
	log      logrus.FieldLogger

	mu     sync.Mutex // guards the pull path below
	buf    [][2]float64
	frames int64
	start  time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// decoders maps lower-case file extensions to beep decoders.
var decoders = map[string]func(f *os.File) (beep.StreamSeekCloser, beep.Format, error){
	".wav":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
	".mp3":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".flac": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) },
	".ogg":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
}

// SupportedExtensions lists the file extensions OpenFile accepts.
func SupportedExtensions() []string {
	return []string{".wav", ".mp3", ".flac", ".ogg"}
}

// OpenFile opens and decodes cfg.Path. With Playback on the speaker is
// initialised and playback starts immediately.
func OpenFile(cfg FileConfig) (*FileSource, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	ext := strings.ToLower(filepath.Ext(cfg.Path))
	decode, ok := decoders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	streamer, format, err := decode(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: decode %s: %w", ErrUnsupportedFormat, filepath.Base(cfg.Path), err)
	}

	s := &FileSource{
		cfg:      cfg,
		streamer: streamer,
		format:   format,
		log: log.WithFields(logrus.Fields{
			"component": "file",
			"file":      filepath.Base(cfg.Path),
		}),
	}
	s.log.WithFields(logrus.Fields{
		"sample_rate": int(format.SampleRate),
		"channels":    format.NumChannels,
		"duration":    format.SampleRate.D(streamer.Len()).Round(time.Second).String(),
	}).Info("audio file opened")

	if !cfg.Playback {
		s.buf = make([][2]float64, cfg.ChunkSize)
		return s, nil
	}

	s.tap = NewTap(streamer, format.SampleRate, cfg.ChunkSize, cfg.QueueDepth)
	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		_ = streamer.Close()
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(s.tap)
	return s, nil
}

// Read returns the next chunk of the file.
func (s *FileSource) Read(ctx context.Context) (pcm.Chunk, error) {
	if s.closed.Load() {
		return pcm.Chunk{}, ErrSourceClosed
	}
	if s.tap != nil {
		return s.readTap(ctx)
	}
	return s.pull(ctx)
}

func (s *FileSource) readTap(ctx context.Context) (pcm.Chunk, error) {
	chunk, ok, err := s.tap.queue.pop(ctx)
	if err != nil {
		return pcm.Chunk{}, err
	}
	if ok {
		return chunk, nil
	}
	if s.closed.Load() {
		return pcm.Chunk{}, ErrSourceClosed
	}
	if err := s.tap.Err(); err != nil {
		return pcm.Chunk{}, err
	}
	return pcm.Chunk{}, io.EOF
}

// pull decodes the next chunk on the caller's goroutine.
func (s *FileSource) pull(ctx context.Context) (pcm.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	position := framesToDuration(s.frames, float64(s.format.SampleRate))
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

	n, _ := s.streamer.Stream(s.buf)
	if n == 0 {
		if err := s.streamer.Err(); err != nil {
			return pcm.Chunk{}, err
		}
		return pcm.Chunk{}, io.EOF
	}
	samples := make([]float32, n)
	for i := range n {
		samples[i] = float32((s.buf[i][0] + s.buf[i][1]) / 2)
	}
	s.frames += int64(n)
	return pcm.Chunk{
		Samples:    samples,
		Channels:   1,
		SampleRate: float64(s.format.SampleRate),
		Position:   position,
	}, nil
}

// SampleRate returns the file's sample rate.
func (s *FileSource) SampleRate() float64 { return float64(s.format.SampleRate) }

// Duration returns the decoded length of the file.
func (s *FileSource) Duration() time.Duration {
	return s.format.SampleRate.D(s.streamer.Len())
}

// Close stops playback and releases the decoder.
func (s *FileSource) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.tap != nil {
			speaker.Clear()
			speaker.Close()
			s.tap.Close()
		}
		s.mu.Lock()
		s.closeErr = s.streamer.Close()
		s.mu.Unlock()
	})
	return s.closeErr
}
