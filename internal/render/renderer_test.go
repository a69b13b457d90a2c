package render

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/guidoenr/lumen/internal/params"
	"github.com/guidoenr/lumen/internal/safety"
)

func activeParams() params.VisualParameters {
	p := params.Rest()
	p.Brightness = 0.8
	p.Saturation = 0.9
	p.Complexity = 0.7
	p.ColorIntensity = 0.6
	p.BeatPulse = 0.5
	p.Phase = 3.7
	p.Hue = 0.6
	p.Bass = 0.5
	p.Treble = 0.4
	p.Level = safety.Standard
	return p
}

func TestNewRejectsBadDimensions(t *testing.T) {
	if _, err := New(Config{Width: 0, Height: 10}); err == nil {
		t.Fatalf("zero width accepted")
	}
}

func TestRenderDimensionsForEveryMode(t *testing.T) {
	r, err := New(Config{Width: 40, Height: 12})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, name := range params.ModeNames() {
		t.Run(name, func(t *testing.T) {
			m, err := params.ParseMode(name)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			p := activeParams()
			p.Mode = m
			frame := r.Render(p, 60)
			if len(frame.Lines) != 12 {
				t.Fatalf("lines=%d want 12", len(frame.Lines))
			}
			for i, line := range frame.Lines {
				if n := utf8.RuneCountInString(line); n != 40 {
					t.Fatalf("line %d has %d runes", i, n)
				}
			}
			if !strings.Contains(frame.Status, "mode="+name) {
				t.Fatalf("status %q does not name the mode", frame.Status)
			}
		})
	}
}

func TestRenderIsAFunctionOfParameters(t *testing.T) {
	r, _ := New(Config{Width: 30, Height: 8, ANSI: true})
	p := activeParams()
	a := r.Render(p, 60)
	b := r.Render(p, 60)
	if strings.Join(a.Lines, "\n") != strings.Join(b.Lines, "\n") {
		t.Fatalf("same parameters drew different frames")
	}
	p.Phase += 1
	c := r.Render(p, 60)
	if strings.Join(a.Lines, "\n") == strings.Join(c.Lines, "\n") {
		t.Fatalf("phase should animate the frame")
	}
}

func TestPixelsNeverExceedDisplayValue(t *testing.T) {
	r, _ := New(Config{Width: 16, Height: 16, Quality: "high"})
	p := activeParams()
	limit := safety.DisplayValue(p)
	for _, mode := range []params.Mode{params.ModeClassic, params.ModeTunnel, params.ModeFractal} {
		p.Mode = mode
		fc := r.buildFrameParams(p)
		r.ensureCoordinateCache(16, 16)
		for _, y := range r.yCoords {
			for _, x := range r.xCoords {
				px := r.evaluatePixel(x, y, &fc)
				if px.v > limit+1e-12 || px.v < 0 {
					t.Fatalf("%s: pixel value %f outside [0,%f]", mode, px.v, limit)
				}
				if px.level < 0 || px.level > 1 {
					t.Fatalf("%s: glyph level %f", mode, px.level)
				}
			}
		}
	}
}

func TestEmergencyFrameIsDark(t *testing.T) {
	r, _ := New(Config{Width: 20, Height: 6})
	p := params.SafeParameters()
	p.Emergency = true
	frame := r.Render(p, 30)
	if !strings.HasPrefix(frame.Status, "EMERGENCY STOP") {
		t.Fatalf("status=%q", frame.Status)
	}
	fc := r.buildFrameParams(p)
	if fc.value > 0.2 {
		t.Fatalf("emergency display value=%f", fc.value)
	}
}

func TestGlyphLookup(t *testing.T) {
	if string(Glyphs("nope")) != string(Glyphs("default")) {
		t.Fatalf("unknown ramp should fall back to default")
	}
	r, _ := New(Config{Width: 1, Height: 1, Glyphs: "ascii"})
	ramp := Glyphs("ascii")
	if r.glyph(0) != ramp[0] || r.glyph(1) != ramp[len(ramp)-1] {
		t.Fatalf("glyph ends %q %q", r.glyph(0), r.glyph(1))
	}
	if len(GlyphNames()) != len(glyphRamps) {
		t.Fatalf("GlyphNames out of sync with ramps")
	}
}

func TestRGBToANSI(t *testing.T) {
	cases := map[string]struct {
		c    safety.RGB
		want int
	}{
		"black": {safety.RGB{}, 232},
		"white": {safety.RGB{R: 1, G: 1, B: 1}, 255},
		"red":   {safety.RGB{R: 1}, 196},
		"blue":  {safety.RGB{B: 1}, 21},
	}
	for name, tc := range cases {
		if got := rgbToANSI(tc.c); got != tc.want {
			t.Fatalf("%s: got %d want %d", name, got, tc.want)
		}
	}
}
