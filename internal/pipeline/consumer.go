package pipeline

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guidoenr/lumen/internal/params"
	"github.com/guidoenr/lumen/internal/safety"
	"github.com/guidoenr/lumen/internal/smoothing"
)

const (
	commandBuffer = 32
	maxFrameStep  = 0.25 // seconds; longer stalls advance animation by this much
)

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	FPS    float64
	Safety safety.Settings
	// Palette is the starting palette index.
	Palette int
	// Mode pins a mode; params.ModeAuto selects automatically.
	Mode params.Mode
	Log  logrus.FieldLogger
}

// Status is the consumer's view of the pipeline, published once per frame
// for the control surface.
type Status struct {
	Safety       safety.Status           `json:"safety"`
	Mode         string                  `json:"mode"`
	ModeOverride string                  `json:"modeOverride"`
	Palette      string                  `json:"palette"`
	BPM          float64                 `json:"bpm"`
	Confidence   float64                 `json:"confidence"`
	Frame        uint64                  `json:"frame"`
	Seq          uint64                  `json:"seq"`
	Silent       bool                    `json:"silent"`
	Params       params.VisualParameters `json:"params"`
}

// Consumer turns the latest snapshot into one safe parameter frame per call
// to Next. Smoothing, composition and safety state belong to the goroutine
// calling Next; Submit may be called from anywhere.
type Consumer struct {
	snapshots *Cell[Snapshot]
	output    Cell[params.VisualParameters]
	status    Cell[Status]
	commands  chan Command

	smoother *smoothing.Smoother
	composer *params.Composer
	engine   *safety.Engine
	log      logrus.FieldLogger

	prev          params.VisualParameters
	started       bool
	start         time.Time
	last          time.Time
	frame         uint64
	lastDownbeats uint64
}

// NewConsumer reads snapshots from in.
func NewConsumer(in *Cell[Snapshot], cfg ConsumerConfig) *Consumer {
	if cfg.FPS <= 0 {
		cfg.FPS = 60
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Safety.Log == nil {
		cfg.Safety.Log = log.WithField("component", "safety")
	}
	return &Consumer{
		snapshots: in,
		commands:  make(chan Command, commandBuffer),
		smoother:  smoothing.New(params.DefaultSmoothing(cfg.FPS)),
		composer:  params.NewComposer(cfg.Palette, cfg.Mode),
		engine:    safety.NewEngine(cfg.Safety),
		log:       log.WithField("component", "consumer"),
		prev:      params.Rest(),
	}
}

// Submit queues a command for the next frame. It never blocks and reports
// false when the queue is full.
func (c *Consumer) Submit(cmd Command) bool {
	select {
	case c.commands <- cmd:
		return true
	default:
		return false
	}
}

// Next produces the frame for wall-clock time now.
func (c *Consumer) Next(now time.Time) params.VisualParameters {
	if !c.started {
		c.started = true
		c.start, c.last = now, now
	}
	dt := now.Sub(c.last).Seconds()
	if dt < 0 {
		dt = 0
	} else if dt > maxFrameStep {
		dt = maxFrameStep
	}
	c.last = now
	clock := now.Sub(c.start).Seconds()

	c.drain(clock)

	snap, _, ok := c.snapshots.Load()
	if !ok {
		snap = SilentSnapshot()
	}

	downbeat := false
	if snap.Rhythm.Downbeats > c.lastDownbeats {
		downbeat = true
	}
	c.lastDownbeats = snap.Rhythm.Downbeats

	in := params.Inputs{
		Features: snap.Features,
		Rhythm:   snap.Rhythm,
		Targets:  params.TargetsFrom(snap.Features).Smoothed(c.smoother),
		Downbeat: downbeat,
		Now:      clock,
	}
	candidate := c.composer.Compose(in, c.prev, dt)
	out := c.engine.Apply(candidate, c.prev, now)
	out = params.Stamp(out, now, c.start, c.frame)

	if err := out.Validate(); err != nil {
		c.log.WithError(err).WithField("frame", c.frame).Error("parameters escaped safety limits")
		out = params.Stamp(params.SafeParameters(), now, c.start, c.frame)
	}

	c.prev = out
	c.frame++
	c.output.Publish(out)
	c.status.Publish(c.buildStatus(out, snap))
	return out
}

func (c *Consumer) drain(clock float64) {
	for {
		select {
		case cmd := <-c.commands:
			c.apply(cmd, clock)
		default:
			return
		}
	}
}

func (c *Consumer) apply(cmd Command, clock float64) {
	log := c.log.WithField("command", cmd.Kind.String())
	switch cmd.Kind {
	case CmdCycleSafetyLevel:
		c.engine.CycleLevel()
	case CmdSetSafetyLevel:
		if err := c.engine.SetLevel(cmd.Level); err != nil {
			log.WithError(err).Warn("ignoring command")
		}
	case CmdToggleEmergency:
		c.engine.ToggleEmergency()
	case CmdEmergencyStop:
		c.engine.EmergencyStop()
	case CmdResume:
		c.engine.Resume()
	case CmdSetMode:
		c.composer.Modes().SetOverride(cmd.Mode)
	case CmdCycleMode:
		c.composer.Modes().SetOverride(nextMode(c.composer.Modes().Override()))
	case CmdNextPalette:
		if !c.composer.Palettes().TrySwitch(clock) {
			log.Debug("palette switch still cooling down")
		}
	default:
		log.Warn("unknown command")
	}
}

func (c *Consumer) buildStatus(out params.VisualParameters, snap Snapshot) Status {
	return Status{
		Safety:       c.engine.Status(),
		Mode:         out.Mode.String(),
		ModeOverride: c.composer.Modes().Override().String(),
		Palette:      params.Palettes[out.PaletteNext].Name,
		BPM:          snap.Rhythm.BPM,
		Confidence:   snap.Rhythm.Confidence,
		Frame:        out.Frame,
		Seq:          snap.Seq,
		Silent:       snap.Silent,
		Params:       out,
	}
}

// Latest returns the most recent frame without blocking.
func (c *Consumer) Latest() (params.VisualParameters, bool) {
	p, _, ok := c.output.Load()
	return p, ok
}

// Status returns the most recent status without blocking.
func (c *Consumer) Status() (Status, bool) {
	s, _, ok := c.status.Load()
	return s, ok
}

// Level returns the active safety level. Only call it from the goroutine
// that calls Next.
func (c *Consumer) Level() params.Level { return c.engine.Level() }
