package app

import (
	"context"
	"sync"

	"github.com/eiannone/keyboard"
	"github.com/sirupsen/logrus"

	"github.com/guidoenr/lumen/internal/params"
	"github.com/guidoenr/lumen/internal/pipeline"
)

type keyPress struct {
	char rune
	key  keyboard.Key
}

// keyCommand maps a key press to a pipeline command. quit is set for q, Esc
// and Ctrl+C.
func keyCommand(k keyPress) (cmd pipeline.Command, ok, quit bool) {
	switch {
	case k.key == keyboard.KeyEsc || k.key == keyboard.KeyCtrlC:
		return cmd, false, true
	case k.key == keyboard.KeySpace:
		return pipeline.ToggleEmergency(), true, false
	}
	switch k.char {
	case 'q', 'Q':
		return cmd, false, true
	case 's', 'S':
		return pipeline.CycleSafetyLevel(), true, false
	case 'e', 'E', ' ':
		return pipeline.ToggleEmergency(), true, false
	case 'm', 'M':
		return pipeline.CycleMode(), true, false
	case 'a', 'A':
		return pipeline.SetMode(params.ModeAuto), true, false
	case 'p', 'P':
		return pipeline.NextPalette(), true, false
	}
	return cmd, false, false
}

// startKeyboard reads key presses until ctx is done. It returns nil if the
// terminal cannot be put into raw mode.
func startKeyboard(ctx context.Context, log logrus.FieldLogger) <-chan keyPress {
	if err := keyboard.Open(); err != nil {
		log.WithError(err).Warn("keyboard input disabled")
		return nil
	}

	events := make(chan keyPress, 16)
	var closeOnce sync.Once
	closeKeyboard := func() { closeOnce.Do(func() { _ = keyboard.Close() }) }
	go func() {
		<-ctx.Done()
		closeKeyboard()
	}()

	go func() {
		defer close(events)
		defer closeKeyboard()
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			k := keyPress{char: char, key: key}
			select {
			case <-ctx.Done():
				return
			case events <- k:
			}
			if _, _, quit := keyCommand(k); quit {
				return
			}
		}
	}()
	return events
}
