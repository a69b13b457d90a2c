package pipeline

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guidoenr/lumen/internal/analyzer"
	"github.com/guidoenr/lumen/internal/params"
	"github.com/guidoenr/lumen/internal/pcm"
	"github.com/guidoenr/lumen/internal/safety"
)

const testRate = 44_100.0

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type scriptedSource struct {
	chunks []pcm.Chunk
	err    error
}

func (s *scriptedSource) Read(ctx context.Context) (pcm.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return pcm.Chunk{}, err
	}
	if len(s.chunks) == 0 {
		return pcm.Chunk{}, s.err
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

type blockingSource struct{}

func (blockingSource) Read(ctx context.Context) (pcm.Chunk, error) {
	<-ctx.Done()
	return pcm.Chunk{}, ctx.Err()
}

func toneChunk(freq, amp float64, n int, pos time.Duration) pcm.Chunk {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	return pcm.Chunk{Samples: samples, Channels: 1, SampleRate: testRate, Position: pos}
}

func silentChunk(n int, pos time.Duration) pcm.Chunk {
	return pcm.Chunk{Samples: make([]float32, n), Channels: 1, SampleRate: testRate, Position: pos}
}

func newTestConsumer(in *Cell[Snapshot], level params.Level) *Consumer {
	s := safety.DefaultSettings()
	s.Level = level
	return NewConsumer(in, ConsumerConfig{FPS: 60, Safety: s, Mode: params.ModeAuto, Log: quietLogger()})
}

func TestCellLatestWins(t *testing.T) {
	var c Cell[int]
	if _, _, ok := c.Load(); ok {
		t.Fatalf("empty cell should report !ok")
	}
	for i := 1; i <= 3; i++ {
		c.Publish(i * 10)
	}
	v, version, ok := c.Load()
	if !ok || v != 30 || version != 3 {
		t.Fatalf("load=%d version=%d ok=%v", v, version, ok)
	}
	// Reading again returns the same value rather than blocking.
	if v2, version2, _ := c.Load(); v2 != v || version2 != version {
		t.Fatalf("second load changed: %d/%d", v2, version2)
	}
}

func TestCellConcurrentAccess(t *testing.T) {
	var c Cell[[2]int]
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 10000; i++ {
			c.Publish([2]int{i, -i})
		}
	}()

	var lastVersion uint64
	for i := 0; i < 10000; i++ {
		v, version, ok := c.Load()
		if !ok {
			continue
		}
		if v[0] != -v[1] {
			t.Fatalf("torn read %v", v)
		}
		if version < lastVersion {
			t.Fatalf("version went backwards %d < %d", version, lastVersion)
		}
		lastVersion = version
	}
	wg.Wait()
	if v, version, _ := c.Load(); v[0] != 10000 || version != 10000 {
		t.Fatalf("final value %v version %d", v, version)
	}
}

func TestProducerEOFPublishesSilence(t *testing.T) {
	src := &scriptedSource{
		chunks: []pcm.Chunk{toneChunk(100, 0.8, 1024, 0), toneChunk(100, 0.8, 1024, 23*time.Millisecond)},
		err:    io.EOF,
	}
	var cell Cell[Snapshot]
	p := NewProducer(src, &cell, ProducerConfig{Log: quietLogger()})
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("EOF should end cleanly, got %v", err)
	}
	snap, version, ok := cell.Load()
	if !ok || version != 3 {
		t.Fatalf("expected two chunk snapshots and one silent one, version=%d", version)
	}
	if !snap.Silent || snap.Features != analyzer.Silence() {
		t.Fatalf("last snapshot should be silence, got %+v", snap)
	}
	if snap.Position <= 0 {
		t.Fatalf("silent snapshot should keep the stream position")
	}
}

func TestProducerFailureWrapsSentinel(t *testing.T) {
	boom := errors.New("device unplugged")
	src := &scriptedSource{chunks: []pcm.Chunk{toneChunk(440, 0.5, 1024, 0)}, err: boom}
	var cell Cell[Snapshot]
	p := NewProducer(src, &cell, ProducerConfig{Log: quietLogger()})
	err := p.Run(context.Background())
	if !errors.Is(err, ErrSourceFailed) || !errors.Is(err, boom) {
		t.Fatalf("err=%v should wrap both ErrSourceFailed and the cause", err)
	}
	if snap, _, _ := cell.Load(); !snap.Silent {
		t.Fatalf("failure should leave a silent snapshot published")
	}
}

func TestProducerStopsOnCancel(t *testing.T) {
	var cell Cell[Snapshot]
	p := NewProducer(blockingSource{}, &cell, ProducerConfig{Log: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("producer did not stop on cancel")
	}
}

func TestProducerPositionAdvances(t *testing.T) {
	var cell Cell[Snapshot]
	p := NewProducer(&scriptedSource{}, &cell, ProducerConfig{Log: quietLogger()})
	a := p.Process(silentChunk(441, 0))
	b := p.Process(silentChunk(441, 0))
	if b.Position <= a.Position || b.Seq != a.Seq+1 {
		t.Fatalf("position %v -> %v seq %d -> %d", a.Position, b.Position, a.Seq, b.Seq)
	}
}

func TestConsumerWithoutSnapshotIsSafe(t *testing.T) {
	var cell Cell[Snapshot]
	c := newTestConsumer(&cell, safety.Safe)
	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		out := c.Next(now.Add(time.Duration(i) * 16 * time.Millisecond))
		if err := out.Validate(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if out.Frame != uint64(i) {
			t.Fatalf("frame counter=%d want %d", out.Frame, i)
		}
	}
	if _, ok := c.Latest(); !ok {
		t.Fatalf("consumer should publish its output")
	}
	st, ok := c.Status()
	if !ok || !st.Silent || st.Safety.Level != safety.Safe {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestSilenceScenarioIsStable(t *testing.T) {
	var cell Cell[Snapshot]
	p := NewProducer(&scriptedSource{}, &cell, ProducerConfig{Log: quietLogger()})
	c := newTestConsumer(&cell, safety.Safe)

	now := time.Unix(0, 0)
	var first params.VisualParameters
	for i := 0; i < 300; i++ {
		snap := p.Process(silentChunk(735, time.Duration(i)*time.Second/60))
		for j, band := range snap.Features.Bands() {
			if band != 0 {
				t.Fatalf("frame %d: band %d=%f", i, j, band)
			}
		}
		if snap.Features.OnsetStrength != 0 {
			t.Fatalf("frame %d: onset=%f", i, snap.Features.OnsetStrength)
		}
		out := c.Next(now.Add(time.Duration(i) * time.Second / 60))
		out = out.Unstamped()
		out.Phase = 0
		if i == 0 {
			first = out
			continue
		}
		if out != first {
			t.Fatalf("frame %d: silent output changed\n got %+v\nwant %+v", i, out, first)
		}
	}
	if first.BeatPulse != 0 || first.OnsetPulse != 0 || first.Brightness > 0.15 {
		t.Fatalf("silence should rest at minimum energy, got %+v", first)
	}
}

func TestCommandsApplyOnNextFrame(t *testing.T) {
	var cell Cell[Snapshot]
	cell.Publish(SilentSnapshot())
	c := newTestConsumer(&cell, safety.Standard)
	now := time.Unix(0, 0)
	frame := func() params.VisualParameters {
		now = now.Add(16 * time.Millisecond)
		return c.Next(now)
	}
	frame()

	if !c.Submit(EmergencyStop()) {
		t.Fatalf("submit refused")
	}
	if out := frame(); out.Unstamped() != params.SafeParameters() {
		t.Fatalf("emergency should take effect on the next frame, got %+v", out)
	}
	c.Submit(Resume())
	c.Submit(SetSafetyLevel(safety.UltraSafe))
	out := frame()
	if out.Emergency || out.Level != safety.UltraSafe || out.Multipliers != safety.MultipliersFor(safety.UltraSafe) {
		t.Fatalf("resume and level change not applied: %+v", out)
	}

	c.Submit(CycleSafetyLevel())
	if out := frame(); out.Level != safety.Safe {
		t.Fatalf("cycle from ultrasafe should give safe, got %s", out.Level)
	}

	c.Submit(SetMode(params.ModeFractal))
	if out := frame(); out.Mode != params.ModeFractal {
		t.Fatalf("mode override not applied, got %s", out.Mode)
	}
	c.Submit(CycleMode())
	frame()
	if st, _ := c.Status(); st.ModeOverride != "auto" {
		t.Fatalf("cycling past fractal should return to auto, got %s", st.ModeOverride)
	}

	c.Submit(ToggleEmergency())
	if out := frame(); !out.Emergency {
		t.Fatalf("toggle should engage emergency")
	}
}

func TestSubmitNeverBlocks(t *testing.T) {
	var cell Cell[Snapshot]
	c := newTestConsumer(&cell, safety.Safe)
	accepted := 0
	for i := 0; i < commandBuffer+10; i++ {
		if c.Submit(CycleSafetyLevel()) {
			accepted++
		}
	}
	if accepted != commandBuffer {
		t.Fatalf("accepted=%d want %d", accepted, commandBuffer)
	}
	c.Next(time.Unix(0, 0))
	if !c.Submit(NextPalette()) {
		t.Fatalf("queue should drain on Next")
	}
}

func TestDownbeatCounterDrivesPaletteSwitch(t *testing.T) {
	var cell Cell[Snapshot]
	c := newTestConsumer(&cell, safety.Safe)
	now := time.Unix(0, 0)
	snap := SilentSnapshot()
	cell.Publish(snap)
	c.Next(now)

	// Two downbeats happened between frames; the consumer only sees the
	// counter move.
	now = now.Add(3 * time.Second)
	snap.Rhythm.Downbeats = 2
	cell.Publish(snap)
	out := c.Next(now)
	if !out.Downbeat || out.PaletteNext != 1 {
		t.Fatalf("downbeat not detected from counter: downbeat=%v next=%d", out.Downbeat, out.PaletteNext)
	}
	now = now.Add(16 * time.Millisecond)
	if out := c.Next(now); out.Downbeat {
		t.Fatalf("an unchanged counter must not repeat the downbeat")
	}
}

func TestNextMode(t *testing.T) {
	cases := map[params.Mode]params.Mode{
		params.ModeAuto:    params.ModeClassic,
		params.ModeClassic: params.ModeTunnel,
		params.ModeFractal: params.ModeAuto,
	}
	for in, want := range cases {
		if got := nextMode(in); got != want {
			t.Fatalf("nextMode(%s)=%s want %s", in, got, want)
		}
	}
}
