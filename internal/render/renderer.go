package render

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/guidoenr/lumen/internal/params"
	"github.com/guidoenr/lumen/internal/safety"
)

// ErrRendererQuit is returned by Frame.Present when the user closed the
// window.
var ErrRendererQuit = errors.New("renderer quit")

type qualityMode string

const (
	qualityHigh     qualityMode = "high"
	qualityBalanced qualityMode = "balanced"
	qualityEco      qualityMode = "eco"
)

// QualityNames returns the supported quality presets.
func QualityNames() []string {
	out := []string{string(qualityHigh), string(qualityBalanced), string(qualityEco)}
	sort.Strings(out)
	return out
}

func parseQualityMode(name string) qualityMode {
	switch strings.ToLower(name) {
	case "eco", "low", "pi":
		return qualityEco
	case "high", "full", "max":
		return qualityHigh
	default:
		return qualityBalanced
	}
}

// Config controls how a Renderer is created.
type Config struct {
	Width   int
	Height  int
	Glyphs  string
	Quality string
	// ANSI enables 256-color escape codes in terminal frames.
	ANSI bool
	// Window renders into an SDL window instead of text. It needs a binary
	// built with the sdl tag.
	Window bool
}

// Renderer converts visual parameters into frames. It holds no animation
// state of its own: the same parameters always draw the same frame.
type Renderer struct {
	width      int
	height     int
	glyphs     []rune
	glyphsName string
	quality    qualityMode
	useANSI    bool
	xCoords    []float64
	yCoords    []float64
	sdl        *sdlState

	statusBuilder strings.Builder
}

// Frame is one rendered picture. Terminal frames carry Lines; window frames
// carry a Present func that pushes pixels to the screen.
type Frame struct {
	Lines   []string
	Status  string
	Present func(status string) error
}

var (
	resetANSI       = "\x1b[0m"
	precomputedANSI [256]string
)

func init() {
	for i := range precomputedANSI {
		precomputedANSI[i] = "\x1b[38;5;" + strconv.Itoa(i) + "m"
	}
}

// New creates a Renderer.
func New(cfg Config) (*Renderer, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d height=%d", cfg.Width, cfg.Height)
	}
	r := &Renderer{
		width:   cfg.Width,
		height:  cfg.Height,
		useANSI: cfg.ANSI,
	}
	r.SetGlyphs(cfg.Glyphs)
	r.SetQuality(cfg.Quality)
	if cfg.Window {
		if err := r.initSDL(); err != nil {
			return nil, fmt.Errorf("window backend: %w", err)
		}
	}
	return r, nil
}

// SetGlyphs switches the character ramp.
func (r *Renderer) SetGlyphs(name string) {
	if name == "" {
		name = "default"
	}
	r.glyphs = Glyphs(name)
	r.glyphsName = strings.ToLower(name)
}

// SetQuality updates the quality preset.
func (r *Renderer) SetQuality(name string) {
	r.quality = parseQualityMode(name)
}

// Resize updates the framebuffer dimensions.
func (r *Renderer) Resize(width, height int) {
	if width <= 0 || height <= 0 || (width == r.width && height == r.height) {
		return
	}
	r.width, r.height = width, height
	r.xCoords, r.yCoords = nil, nil
	r.resizeSDL()
}

func (r *Renderer) GlyphsName() string  { return r.glyphsName }
func (r *Renderer) QualityName() string { return string(r.quality) }
func (r *Renderer) Windowed() bool      { return r.sdl != nil }

// Close releases the window backend, if any.
func (r *Renderer) Close() error { return r.closeSDL() }

// Render draws p.
func (r *Renderer) Render(p params.VisualParameters, fps float64) Frame {
	if r.width <= 0 || r.height <= 0 {
		return Frame{}
	}
	fc := r.buildFrameParams(p)
	r.ensureCoordinateCache(r.width, r.height)
	status := r.buildStatus(p, fps)
	if r.sdl != nil {
		return r.renderSDL(&fc, status)
	}

	width, height := r.width, r.height
	lines := make([]string, height)

	numWorkers := min(runtime.GOMAXPROCS(0), height)
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	rowJobs := make(chan int, numWorkers)
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rowJobs {
				var builder strings.Builder
				builder.Grow(width * 8)
				lastColor := -1
				for x := range width {
					px := r.evaluatePixel(r.xCoords[x], r.yCoords[y], &fc)
					if r.useANSI {
						c := rgbToANSI(safety.FromHSV(px.h, px.s, px.v))
						if c != lastColor {
							builder.WriteString(precomputedANSI[c])
							lastColor = c
						}
					}
					builder.WriteRune(r.glyph(px.level))
				}
				if r.useANSI {
					builder.WriteString(resetANSI)
				}
				lines[y] = builder.String()
			}
		}()
	}
	for y := range height {
		rowJobs <- y
	}
	close(rowJobs)
	wg.Wait()

	return Frame{Lines: lines, Status: status}
}

type frameParams struct {
	pattern      patternFunc
	time         float64
	zoom         float64
	sinRot       float64
	cosRot       float64
	frequency    float64
	shift        float64
	bass         float64
	treble       float64
	warpStrength float64
	detailWeight float64
	iterations   int
	gamma        float64
	vignette     float64

	hue       float64
	hueSpread float64
	sat       float64
	value     float64
}

func (r *Renderer) buildFrameParams(p params.VisualParameters) frameParams {
	entry := patternFor(p.Mode)
	t := p.Phase
	pulse := math.Max(p.BeatPulse, p.OnsetPulse)
	sinRot, cosRot := math.Sincos(t * 0.2)

	fc := frameParams{
		pattern:      entry.fn,
		time:         t,
		zoom:         1 + 0.25*p.BeatPulse*math.Sin(t*2.1),
		sinRot:       sinRot,
		cosRot:       cosRot,
		frequency:    clamp(p.FrequencyScale, 0.5, 2),
		shift:        clamp(p.SpectralShift, -1, 1),
		bass:         clamp01(p.Bass),
		treble:       clamp01(p.Treble),
		warpStrength: clamp01(p.Complexity) * 0.3,
		detailWeight: clamp01(entry.detailMix * p.Complexity),
		iterations:   8 + int(clamp01(p.Complexity)*24),
		gamma:        1.1 - 0.3*pulse,
		vignette:     0.35,
		hue:          p.Hue,
		hueSpread:    0.08 * clamp01(p.ColorIntensity),
		sat:          clamp01(p.Saturation),
		value:        safety.DisplayValue(p),
	}

	switch r.quality {
	case qualityEco:
		fc.detailWeight *= 0.35
		fc.warpStrength *= 0.6
		fc.iterations = max(6, fc.iterations/2)
	case qualityBalanced:
		fc.detailWeight *= 0.75
		fc.warpStrength *= 0.85
	}
	return fc
}

type pixel struct {
	level   float64 // glyph brightness in [0,1]
	h, s, v float64
}

func (r *Renderer) evaluatePixel(vx, vy float64, fc *frameParams) pixel {
	bx, by := vx*fc.zoom, vy*fc.zoom
	x := bx*fc.cosRot - by*fc.sinRot
	y := bx*fc.sinRot + by*fc.cosRot

	if fc.warpStrength > 0 {
		warp := fractalNoise(vx*3+fc.time*0.15, vy*3-fc.time*0.12)
		x += warp * fc.warpStrength
		y += warp * fc.warpStrength
	}

	value := fc.pattern(x, y, fc)
	if fc.detailWeight > 0 {
		detail := fractalNoise(x*2+fc.time*0.4, y*2-fc.time*0.3)
		value = value*(1-fc.detailWeight) + detail*fc.detailWeight
	}
	shade := clamp01((clamp(value, -1, 1) + 1) * 0.5)
	if r.quality != qualityEco {
		shade = math.Pow(shade, fc.gamma)
	}
	if fc.vignette > 0 {
		dist := math.Min(1, math.Hypot(vx, vy)*2)
		shade *= 1 - fc.vignette*math.Pow(dist, 1.2)
	}

	return pixel{
		level: shade,
		h:     fc.hue + (shade-0.5)*fc.hueSpread,
		s:     fc.sat,
		v:     fc.value * shade,
	}
}

func (r *Renderer) glyph(level float64) rune {
	n := len(r.glyphs) - 1
	return r.glyphs[clampInt(int(level*float64(n)+0.5), 0, n)]
}

func rgbToANSI(c safety.RGB) int {
	// Grays get the finer 24-step ramp.
	if math.Abs(c.R-c.G) < 0.02 && math.Abs(c.G-c.B) < 0.02 {
		return 232 + int(clamp(math.Round(c.R*23), 0, 23))
	}
	ri := int(clamp(c.R*5+0.5, 0, 5))
	gi := int(clamp(c.G*5+0.5, 0, 5))
	bi := int(clamp(c.B*5+0.5, 0, 5))
	return 16 + 36*ri + 6*gi + bi
}

func (r *Renderer) ensureCoordinateCache(width, height int) {
	if len(r.xCoords) != width {
		r.xCoords = axis(width)
	}
	if len(r.yCoords) != height {
		r.yCoords = axis(height)
	}
}

// axis maps n cells onto [-0.5,0.5).
func axis(n int) []float64 {
	out := make([]float64, n)
	if n <= 1 {
		return out
	}
	scale := 1.0 / float64(n)
	for i := range out {
		out[i] = float64(i)*scale - 0.5
	}
	return out
}

func (r *Renderer) buildStatus(p params.VisualParameters, fps float64) string {
	b := &r.statusBuilder
	b.Reset()
	b.Grow(128)
	if p.Emergency {
		b.WriteString("EMERGENCY STOP | ")
	}
	b.WriteString(safety.Label(p.Level))
	b.WriteString(" | mode=")
	b.WriteString(p.Mode.String())
	b.WriteString(" palette=")
	b.WriteString(params.Palettes[clampInt(p.PaletteNext, 0, len(params.Palettes)-1)].Name)
	b.WriteString(" | bpm ")
	appendFloat(b, p.BPM, 0)
	b.WriteString(" conf ")
	appendFloat(b, p.TempoConfidence, 2)
	b.WriteString(" | bass ")
	appendFloat(b, p.Bass, 2)
	b.WriteString(" mid ")
	appendFloat(b, p.Mid, 2)
	b.WriteString(" treble ")
	appendFloat(b, p.Treble, 2)
	b.WriteString(" fps ")
	appendFloat(b, fps, 1)
	return b.String()
}

func appendFloat(b *strings.Builder, value float64, precision int) {
	var buf [32]byte
	b.Write(strconv.AppendFloat(buf[:0], value, 'f', precision, 64))
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}
