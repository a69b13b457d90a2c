package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guidoenr/lumen/internal/analyzer"
	"github.com/guidoenr/lumen/internal/pcm"
	"github.com/guidoenr/lumen/internal/rhythm"
)

// ErrSourceFailed wraps any non-EOF error returned by a chunk source.
var ErrSourceFailed = errors.New("audio source failed")

// Source delivers PCM chunks. Read blocks until a chunk is available, the
// stream ends with io.EOF, or ctx is done.
type Source interface {
	Read(ctx context.Context) (pcm.Chunk, error)
}

// Snapshot is the unit published from the producer to the consumer.
type Snapshot struct {
	Features analyzer.Features
	Rhythm   rhythm.State
	Position time.Duration
	Seq      uint64
	Silent   bool
}

// SilentSnapshot returns the snapshot published when no audio is available.
func SilentSnapshot() Snapshot {
	return Snapshot{Features: analyzer.Silence(), Rhythm: rhythm.Neutral(), Silent: true}
}

// ProducerConfig configures a Producer.
type ProducerConfig struct {
	Analyzer analyzer.Config
	Log      logrus.FieldLogger
}

// Producer analyses chunks from a source and publishes snapshots. Its
// analyzer and rhythm state are only touched by the Run goroutine.
type Producer struct {
	src      Source
	analyzer *analyzer.Analyzer
	rhythm   *rhythm.Estimator
	out      *Cell[Snapshot]
	log      logrus.FieldLogger
	seq      uint64
	position time.Duration
}

// NewProducer wires src to out.
func NewProducer(src Source, out *Cell[Snapshot], cfg ProducerConfig) *Producer {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Producer{
		src:      src,
		analyzer: analyzer.New(cfg.Analyzer),
		rhythm:   rhythm.New(),
		out:      out,
		log:      log.WithField("component", "producer"),
	}
}

// Run processes chunks until the source ends, fails, or ctx is cancelled. On
// end of stream or failure it publishes silence so the renderer idles.
func (p *Producer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := p.src.Read(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			p.publishSilence()
			if errors.Is(err, io.EOF) {
				p.log.Info("audio stream ended")
				return nil
			}
			p.log.WithError(err).Warn("audio source failed, continuing on silence")
			return fmt.Errorf("%w: %w", ErrSourceFailed, err)
		}
		p.Process(chunk)
	}
}

// Process analyses one chunk and publishes the result.
func (p *Producer) Process(chunk pcm.Chunk) Snapshot {
	f := p.analyzer.Analyze(chunk)
	end := chunk.End()
	if chunk.Position < p.position {
		// The source does not track positions; count them here.
		end = p.position + chunk.Duration()
	}
	p.position = end

	r := p.rhythm.Update(f.OnsetStrength, end.Seconds())
	p.seq++
	snap := Snapshot{
		Features: f,
		Rhythm:   r,
		Position: end,
		Seq:      p.seq,
		Silent:   p.analyzer.LastFrame().Silent,
	}
	p.out.Publish(snap)
	return snap
}

func (p *Producer) publishSilence() {
	snap := SilentSnapshot()
	// Keep the event counters so the consumer does not see a reset.
	last := p.rhythm.State()
	snap.Rhythm.Beats = last.Beats
	snap.Rhythm.Downbeats = last.Downbeats
	snap.Position = p.position
	p.seq++
	snap.Seq = p.seq
	p.out.Publish(snap)
}
