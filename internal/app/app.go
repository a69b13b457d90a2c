package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/guidoenr/lumen/internal/analyzer"
	"github.com/guidoenr/lumen/internal/audio"
	"github.com/guidoenr/lumen/internal/config"
	"github.com/guidoenr/lumen/internal/params"
	"github.com/guidoenr/lumen/internal/pipeline"
	"github.com/guidoenr/lumen/internal/render"
	"github.com/guidoenr/lumen/internal/safety"
	"github.com/guidoenr/lumen/internal/web"
)

// Config configures the application runtime.
type Config struct {
	DeviceName   string
	File         string
	Playback     bool
	DisableAudio bool
	SynthBPM     float64

	Width      int
	Height     int
	FPS        float64
	ChunkSize  int
	NoiseFloor float64

	Safety  safety.Settings
	Mode    params.Mode
	Palette int

	Glyphs        string
	Quality       string
	UseANSI       bool
	Window        bool
	ShowStatusBar bool
	// AdaptiveQuality lets the renderer trade detail for frame rate.
	AdaptiveQuality bool

	// WebAddr enables the control server when non-empty.
	WebAddr     string
	ConfigPath  string
	ProfilePath string

	Log logrus.FieldLogger
	// Out receives terminal frames. Defaults to stdout.
	Out io.Writer
}

// App ties together the audio source, the analysis pipeline, rendering and
// the control surfaces.
type App struct {
	cfg      Config
	log      logrus.FieldLogger
	out      io.Writer
	source   audio.Source
	cell     *pipeline.Cell[pipeline.Snapshot]
	producer *pipeline.Producer
	consumer *pipeline.Consumer
	renderer *render.Renderer
	server   *web.Server
	prof     *profiler
	governor *render.QualityGovernor

	sourceLabel  string
	width        int
	height       int
	renderHeight int
}

// New opens the audio source and builds the pipeline. audio.Initialize must
// have been called unless the source is a file or the synthesizer.
func New(cfg Config) (*App, error) {
	if cfg.FPS <= 0 {
		cfg.FPS = 60
	}
	if cfg.Width <= 0 {
		cfg.Width = 80
	}
	if cfg.Height <= 0 {
		cfg.Height = 24
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Safety.Log == nil {
		cfg.Safety.Log = cfg.Log.WithField("component", "safety")
	}

	renderHeight := cfg.Height
	if cfg.ShowStatusBar && !cfg.Window && renderHeight > 1 {
		renderHeight--
	}
	renderer, err := render.New(render.Config{
		Width:   cfg.Width,
		Height:  renderHeight,
		Glyphs:  cfg.Glyphs,
		Quality: cfg.Quality,
		ANSI:    cfg.UseANSI,
		Window:  cfg.Window,
	})
	if err != nil {
		return nil, err
	}

	src, label, err := openSource(cfg)
	if err != nil {
		_ = renderer.Close()
		return nil, err
	}

	a := &App{
		cfg:          cfg,
		log:          cfg.Log.WithField("component", "app"),
		out:          cfg.Out,
		source:       src,
		cell:         &pipeline.Cell[pipeline.Snapshot]{},
		renderer:     renderer,
		sourceLabel:  label,
		width:        cfg.Width,
		height:       cfg.Height,
		renderHeight: renderHeight,
	}
	a.producer = pipeline.NewProducer(src, a.cell, pipeline.ProducerConfig{
		Analyzer: analyzer.Config{NoiseFloor: cfg.NoiseFloor},
		Log:      cfg.Log,
	})
	a.consumer = pipeline.NewConsumer(a.cell, pipeline.ConsumerConfig{
		FPS:     cfg.FPS,
		Safety:  cfg.Safety,
		Palette: cfg.Palette,
		Mode:    cfg.Mode,
		Log:     cfg.Log,
	})
	if cfg.WebAddr != "" {
		a.server = web.NewServer(a, web.Config{
			Addr:       cfg.WebAddr,
			ConfigPath: cfg.ConfigPath,
			Log:        cfg.Log,
		})
	}
	a.prof = newProfiler(cfg.ProfilePath, a.log)
	if cfg.AdaptiveQuality {
		a.governor = render.NewQualityGovernor(cfg.FPS)
	}
	return a, nil
}

func openSource(cfg Config) (audio.Source, string, error) {
	switch {
	case cfg.File != "":
		src, err := audio.OpenFile(audio.FileConfig{
			Path:      cfg.File,
			ChunkSize: cfg.ChunkSize,
			Playback:  cfg.Playback,
			Realtime:  true,
			Log:       cfg.Log,
		})
		if err != nil {
			return nil, "", err
		}
		return src, "file=" + cfg.File, nil
	case cfg.DisableAudio:
		cfg.Log.WithField("bpm", cfg.SynthBPM).Info("audio disabled, using synthetic generator")
		return audio.NewSynth(audio.SynthConfig{
			BPM:       cfg.SynthBPM,
			ChunkSize: cfg.ChunkSize,
			Realtime:  true,
		}), "synth", nil
	default:
		c, err := audio.NewCapture(audio.CaptureConfig{
			DeviceName: cfg.DeviceName,
			ChunkSize:  cfg.ChunkSize,
			Channels:   2,
			Log:        cfg.Log,
		})
		if err != nil {
			return nil, "", fmt.Errorf("audio capture: %w", err)
		}
		return c, "mic=" + c.Device().Name, nil
	}
}

// Run renders until ctx is cancelled or the user quits. The producer and
// web server run alongside and are stopped before Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := a.producer.Run(ctx)
		switch {
		case err == nil:
			a.log.Info("audio finished, visuals continue on silence")
		case errors.Is(err, context.Canceled):
		default:
			a.log.WithError(err).Warn("audio stopped, visuals continue on silence")
		}
	}()
	if a.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.server.Run(ctx); err != nil {
				a.log.WithError(err).Error("control server stopped")
			}
		}()
	}
	defer wg.Wait()
	defer cancel()

	if !a.renderer.Windowed() {
		enterAltScreen(a.out)
		clearScreen(a.out)
		hideCursor(a.out)
		defer func() {
			showCursor(a.out)
			exitAltScreen(a.out)
		}()
	}

	keys := startKeyboard(ctx, a.log)
	a.ensureDimensions()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / a.cfg.FPS))
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case k, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			if a.handleKey(k) {
				return nil
			}
		case now := <-ticker.C:
			fps := 0.0
			if dt := now.Sub(last).Seconds(); dt > 0 {
				fps = 1 / dt
			}
			last = now
			if err := a.step(now, fps); err != nil {
				if errors.Is(err, render.ErrRendererQuit) {
					return nil
				}
				return err
			}
		}
	}
}

// handleKey applies a key press and reports whether the user asked to quit.
func (a *App) handleKey(k keyPress) bool {
	cmd, ok, quit := keyCommand(k)
	if quit {
		return true
	}
	if ok && !a.consumer.Submit(cmd) {
		a.log.WithField("command", cmd.Kind.String()).Warn("command queue full, key ignored")
	}
	return false
}

func (a *App) step(now time.Time, fps float64) error {
	a.prof.beginFrame()
	defer a.prof.endFrame()
	a.ensureDimensions()

	p := a.consumer.Next(now)
	a.prof.markSection("compose")

	started := time.Now()
	frame := a.renderer.Render(p, fps)
	a.prof.markSection("render")
	if a.governor != nil && a.governor.Adjust(a.renderer, time.Since(started)) {
		a.log.WithField("quality", a.renderer.QualityName()).Info("render quality changed")
	}

	status := frame.Status + " | " + a.sourceLabel
	if frame.Present != nil {
		err := frame.Present(status)
		a.prof.markSection("present")
		return err
	}

	var b strings.Builder
	b.WriteString("\x1b[H")
	b.WriteString(strings.Join(frame.Lines, "\r\n"))
	if a.cfg.ShowStatusBar {
		b.WriteString("\r\n")
		b.WriteString(statusBar(status, a.width))
	}
	if _, err := io.WriteString(a.out, b.String()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	a.prof.markSection("present")
	return nil
}

func (a *App) ensureDimensions() {
	if a.renderer.Windowed() {
		return
	}
	f, ok := a.out.(*os.File)
	if !ok {
		return
	}
	w, h, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return
	}
	renderHeight := h
	if a.cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}
	if w == a.width && h == a.height && renderHeight == a.renderHeight {
		return
	}
	a.width, a.height, a.renderHeight = w, h, renderHeight
	a.renderer.Resize(w, renderHeight)
}

// Submit queues a command for the next frame.
func (a *App) Submit(cmd pipeline.Command) bool { return a.consumer.Submit(cmd) }

// Status returns the latest frame status.
func (a *App) Status() (pipeline.Status, bool) { return a.consumer.Status() }

// Settings returns the current settings, including live level, mode and
// palette, in saved form.
func (a *App) Settings() config.SavedConfig {
	enforce := a.cfg.Safety.EnforceLimitsWhenDisabled
	s := config.SavedConfig{
		AudioDevice:         a.cfg.DeviceName,
		NoiseFloor:          a.cfg.NoiseFloor,
		ChunkSize:           a.cfg.ChunkSize,
		FPS:                 a.cfg.FPS,
		SafetyLevel:         a.cfg.Safety.Level.String(),
		EnforceWhenDisabled: &enforce,
		Mode:                a.cfg.Mode.String(),
		Glyphs:              a.renderer.GlyphsName(),
		Quality:             a.renderer.QualityName(),
	}
	if a.cfg.Palette >= 0 && a.cfg.Palette < len(params.Palettes) {
		s.Palette = params.Palettes[a.cfg.Palette].Name
	}
	if st, ok := a.consumer.Status(); ok {
		s.SafetyLevel = st.Safety.Level.String()
		s.Mode = st.ModeOverride
		s.Palette = st.Palette
	}
	return s
}

// Close releases the audio source, the window and the profile log.
func (a *App) Close() error {
	return errors.Join(a.source.Close(), a.renderer.Close(), a.prof.Close())
}

func statusBar(text string, width int) string {
	if width <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return text + strings.Repeat(" ", width-len(runes))
}

func clearScreen(w io.Writer)    { fmt.Fprint(w, "\x1b[2J\x1b[H") }
func hideCursor(w io.Writer)     { fmt.Fprint(w, "\x1b[?25l") }
func showCursor(w io.Writer)     { fmt.Fprint(w, "\x1b[?25h") }
func enterAltScreen(w io.Writer) { fmt.Fprint(w, "\x1b[?1049h") }
func exitAltScreen(w io.Writer)  { fmt.Fprint(w, "\x1b[?1049l\x1b[0m") }
