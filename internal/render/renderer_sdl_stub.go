//go:build !sdl

package render

import "errors"

type sdlState struct{}

var errNoSDL = errors.New("SDL backend not enabled; rebuild with -tags sdl")

func (r *Renderer) initSDL() error { return errNoSDL }

func (r *Renderer) renderSDL(*frameParams, string) Frame {
	return Frame{Status: errNoSDL.Error(), Present: func(string) error { return errNoSDL }}
}

func (r *Renderer) resizeSDL() {}

func (r *Renderer) closeSDL() error { return nil }

// SupportsSDL reports whether this binary was built with the sdl tag.
func SupportsSDL() bool { return false }
