package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/guidoenr/lumen/internal/app"
	"github.com/guidoenr/lumen/internal/audio"
	"github.com/guidoenr/lumen/internal/config"
	"github.com/guidoenr/lumen/internal/params"
	"github.com/guidoenr/lumen/internal/safety"
)

var version = "0.3.0"

// CLI defines the command-line interface. Flags can also come from LUMEN_*
// environment variables and from the saved config file.
type CLI struct {
	AudioDevice string  `help:"PortAudio input device (substring match)." placeholder:"NAME"`
	File        string  `short:"f" type:"existingfile" help:"Analyse an audio file (wav, mp3, flac, ogg) instead of capturing."`
	NoAudio     bool    `help:"Use the built-in synthetic beat instead of a real source."`
	SynthBPM    float64 `name:"synth-bpm" default:"120" help:"Tempo of the synthetic beat."`
	Playback    bool    `help:"Play --file through the speakers while analysing it."`

	Width      int     `help:"Frame width in cells. 0 follows the terminal." default:"0"`
	Height     int     `help:"Frame height in cells. 0 follows the terminal." default:"0"`
	FPS        float64 `name:"fps" default:"60" help:"Target frames per second."`
	ChunkSize  int     `default:"1024" help:"Samples per capture chunk."`
	NoiseFloor float64 `default:"0.01" help:"Normalised band energy (0-1) below which a band reads as silent."`

	SafetyLevel         string `default:"safe" help:"Safety level (ultrasafe|safe|moderate|standard|disabled)."`
	EnforceWhenDisabled bool   `default:"true" negatable:"" help:"Keep flash and luminance limits at the disabled level."`

	Mode    string `default:"auto" help:"Visual mode (auto|classic|tunnel|particle|kaleidoscope|wave|fractal)."`
	Palette string `default:"rainbow" help:"Starting palette (rainbow|red|orange|yellow|green|blue|indigo|violet)."`
	Glyphs  string `default:"default" enum:"default,blocks,lines,spark,ascii" help:"Character ramp (${enum})."`
	Quality string `default:"balanced" enum:"high,balanced,eco" help:"Render quality (${enum})."`
	NoColor bool   `help:"Disable ANSI colour output."`
	Window  bool   `help:"Render into an SDL window (needs a build with the sdl tag)."`

	AdaptiveQuality bool `default:"true" negatable:"" help:"Lower or raise render quality to hold the frame rate."`

	Status  bool   `default:"true" negatable:"" help:"Show the status bar."`
	Web     bool   `help:"Serve the control page and API."`
	WebPort int    `default:"8080" help:"Port for --web."`
	Profile string `type:"path" help:"Append per-frame timings to this CSV file."`

	SkipWarning      bool `help:"Skip the photosensitivity warning screen."`
	ListAudioDevices bool `help:"List audio devices and exit."`
	Debug            bool `help:"Enable debug logging."`
	Version          bool `short:"v" help:"Show version information."`
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("lumen"),
		kong.Description("Audio-reactive visualizer with photosensitive epilepsy safety limits"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.DefaultEnvars("LUMEN"),
		kong.Configuration(kong.JSON, config.DefaultPath()),
	)

	if cli.Version {
		app.PrintVersion(version)
		os.Exit(0)
	}

	log := newLogger(os.Stderr, cli.Debug)

	if err := run(cli, log); err != nil {
		app.PrintError(err.Error())
		os.Exit(1)
	}
}

func newLogger(w io.Writer, debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func run(cli *CLI, log *logrus.Logger) error {
	cfg, err := buildConfig(cli, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	needPortAudio := cli.ListAudioDevices || (cli.File == "" && !cli.NoAudio)
	if needPortAudio {
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
	}

	if cli.ListAudioDevices {
		return listDevices()
	}

	if !cli.SkipWarning {
		choice, err := app.ShowWarning(ctx)
		if err != nil {
			return err
		}
		switch choice {
		case app.ChoiceExit:
			return nil
		case app.ChoiceSafetyMode:
			cfg.Safety.Level = safety.UltraSafe
			log.Info("safety mode selected, starting at ultrasafe")
		}
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("cleanup")
		}
	}()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("runtime error: %w", err)
	}
	return nil
}

func buildConfig(cli *CLI, log *logrus.Logger) (app.Config, error) {
	if cli.FPS <= 0 {
		return app.Config{}, fmt.Errorf("fps must be positive (got %.2f)", cli.FPS)
	}
	if cli.ChunkSize <= 0 {
		return app.Config{}, fmt.Errorf("chunk-size must be positive (got %d)", cli.ChunkSize)
	}
	if cli.Width < 0 || cli.Height < 0 {
		return app.Config{}, fmt.Errorf("invalid dimensions: width=%d height=%d", cli.Width, cli.Height)
	}
	level, err := safety.ParseLevel(cli.SafetyLevel)
	if err != nil {
		return app.Config{}, err
	}
	mode, err := params.ParseMode(cli.Mode)
	if err != nil {
		return app.Config{}, err
	}
	palette := params.PaletteIndex(cli.Palette)
	if palette < 0 {
		return app.Config{}, fmt.Errorf("unknown palette %q", cli.Palette)
	}

	settings := safety.DefaultSettings()
	settings.Level = level
	settings.EnforceLimitsWhenDisabled = cli.EnforceWhenDisabled
	settings.Log = log.WithField("component", "safety")

	cfg := app.Config{
		DeviceName:      cli.AudioDevice,
		File:            cli.File,
		Playback:        cli.Playback,
		DisableAudio:    cli.NoAudio,
		SynthBPM:        cli.SynthBPM,
		Width:           cli.Width,
		Height:          cli.Height,
		FPS:             cli.FPS,
		ChunkSize:       cli.ChunkSize,
		NoiseFloor:      cli.NoiseFloor,
		Safety:          settings,
		Mode:            mode,
		Palette:         palette,
		Glyphs:          cli.Glyphs,
		Quality:         cli.Quality,
		AdaptiveQuality: cli.AdaptiveQuality,
		UseANSI:         !cli.NoColor,
		Window:          cli.Window,
		ShowStatusBar:   cli.Status,
		ProfilePath:     cli.Profile,
		Log:             log,
	}
	if cli.Web {
		cfg.WebAddr = fmt.Sprintf(":%d", cli.WebPort)
		cfg.ConfigPath = config.DefaultPath()
	}
	return cfg, nil
}

func listDevices() error {
	devices, err := audio.ListDevices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	fmt.Println(app.TitleStyle.Render("Audio input devices"))
	for _, dev := range devices {
		if dev.MaxInput == 0 {
			continue
		}
		markers := ""
		if dev.IsDefaultInput {
			markers += " (default)"
		}
		fmt.Printf("- %s [%s]%s\n    inputs:%d outputs:%d sample:%.0f Hz\n",
			app.ValueStyle.Render(dev.Name), dev.HostAPI, markers, dev.MaxInput, dev.MaxOutput, dev.DefaultSampleHz)
	}
	if dev, err := audio.AutoDetectDevice(); err == nil && dev != nil {
		fmt.Printf("\n%s %s (%.0f Hz, %d channels)\n", app.KeyStyle.Render("Auto-detected input:"),
			dev.Name, dev.DefaultSampleRate, dev.MaxInputChannels)
	}
	return nil
}
