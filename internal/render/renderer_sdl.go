//go:build sdl

package render

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/guidoenr/lumen/internal/safety"
)

type sdlState struct {
	window      *sdl.Window
	renderer    *sdl.Renderer
	texture     *sdl.Texture
	pixelBuffer []byte
	width       int
	height      int
	pitch       int
	windowTitle string
}

func (r *Renderer) initSDL() error {
	if r.sdl != nil {
		return nil
	}
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return err
	}
	r.sdl = &sdlState{}
	r.useANSI = false
	return nil
}

func (r *Renderer) ensureSDLResources() error {
	state := r.sdl
	if state.window == nil {
		window, err := sdl.CreateWindow(
			"lumen",
			sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
			int32(r.width), int32(r.height),
			sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE,
		)
		if err != nil {
			return fmt.Errorf("create window: %w", err)
		}
		state.window = window
	}
	if state.renderer == nil {
		renderer, err := sdl.CreateRenderer(state.window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
		if err != nil {
			return fmt.Errorf("create renderer: %w", err)
		}
		state.renderer = renderer
	}
	if state.texture == nil || state.width != r.width || state.height != r.height {
		if state.texture != nil {
			state.texture.Destroy()
			state.texture = nil
		}
		_ = state.renderer.SetLogicalSize(int32(r.width), int32(r.height))
		tex, err := state.renderer.CreateTexture(
			sdl.PIXELFORMAT_ABGR8888,
			sdl.TEXTUREACCESS_STREAMING,
			int32(r.width), int32(r.height),
		)
		if err != nil {
			return fmt.Errorf("create texture: %w", err)
		}
		state.texture = tex
		state.width = r.width
		state.height = r.height
		state.pitch = r.width * 4
		state.pixelBuffer = make([]byte, state.pitch*r.height)
	}
	return nil
}

func (r *Renderer) renderSDL(fc *frameParams, status string) Frame {
	if err := r.ensureSDLResources(); err != nil {
		return Frame{
			Status:  fmt.Sprintf("SDL error: %v", err),
			Present: func(string) error { return err },
		}
	}
	state := r.sdl
	for y := range r.height {
		row := y * state.pitch
		for x := range r.width {
			px := r.evaluatePixel(r.xCoords[x], r.yCoords[y], fc)
			c := safety.FromHSV(px.h, px.s, px.v)
			off := row + x*4
			state.pixelBuffer[off+0] = byte(clamp(c.R*255, 0, 255))
			state.pixelBuffer[off+1] = byte(clamp(c.G*255, 0, 255))
			state.pixelBuffer[off+2] = byte(clamp(c.B*255, 0, 255))
			state.pixelBuffer[off+3] = 255
		}
	}

	return Frame{
		Status: status,
		Present: func(status string) error {
			if status != "" && status != state.windowTitle {
				state.window.SetTitle("lumen | " + status)
				state.windowTitle = status
			}
			if err := state.texture.Update(nil, state.pixelBuffer, state.pitch); err != nil {
				return err
			}
			if err := state.renderer.Clear(); err != nil {
				return err
			}
			if err := state.renderer.Copy(state.texture, nil, nil); err != nil {
				return err
			}
			state.renderer.Present()
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch e := event.(type) {
				case *sdl.QuitEvent:
					return ErrRendererQuit
				case *sdl.KeyboardEvent:
					if e.Type == sdl.KEYDOWN && (e.Keysym.Sym == sdl.K_ESCAPE || e.Keysym.Sym == sdl.K_q) {
						return ErrRendererQuit
					}
				}
			}
			return nil
		},
	}
}

func (r *Renderer) resizeSDL() {
	if r.sdl == nil {
		return
	}
	r.sdl.width = 0
	r.sdl.height = 0
}

func (r *Renderer) closeSDL() error {
	if r.sdl == nil {
		return nil
	}
	if r.sdl.texture != nil {
		r.sdl.texture.Destroy()
	}
	if r.sdl.renderer != nil {
		r.sdl.renderer.Destroy()
	}
	if r.sdl.window != nil {
		r.sdl.window.Destroy()
	}
	sdl.QuitSubSystem(sdl.INIT_VIDEO)
	r.sdl = nil
	return nil
}

// SupportsSDL reports whether this binary was built with the sdl tag.
func SupportsSDL() bool { return true }
