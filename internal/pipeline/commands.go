package pipeline

import (
	"fmt"

	"github.com/guidoenr/lumen/internal/params"
)

// CommandKind enumerates the control-surface commands.
type CommandKind int

const (
	CmdCycleSafetyLevel CommandKind = iota
	CmdSetSafetyLevel
	CmdToggleEmergency
	CmdEmergencyStop
	CmdResume
	CmdSetMode
	CmdCycleMode
	CmdNextPalette
)

func (k CommandKind) String() string {
	switch k {
	case CmdCycleSafetyLevel:
		return "cycle-safety-level"
	case CmdSetSafetyLevel:
		return "set-safety-level"
	case CmdToggleEmergency:
		return "toggle-emergency"
	case CmdEmergencyStop:
		return "emergency-stop"
	case CmdResume:
		return "resume"
	case CmdSetMode:
		return "set-mode"
	case CmdCycleMode:
		return "cycle-mode"
	case CmdNextPalette:
		return "next-palette"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is a discrete user request applied at the next frame boundary.
type Command struct {
	Kind  CommandKind
	Level params.Level
	Mode  params.Mode
}

func CycleSafetyLevel() Command { return Command{Kind: CmdCycleSafetyLevel} }

func SetSafetyLevel(l params.Level) Command { return Command{Kind: CmdSetSafetyLevel, Level: l} }

func ToggleEmergency() Command { return Command{Kind: CmdToggleEmergency} }

func EmergencyStop() Command { return Command{Kind: CmdEmergencyStop} }

func Resume() Command { return Command{Kind: CmdResume} }

// SetMode pins a mode; params.ModeAuto restores automatic selection.
func SetMode(m params.Mode) Command { return Command{Kind: CmdSetMode, Mode: m} }

// CycleMode steps through auto and then each concrete mode.
func CycleMode() Command { return Command{Kind: CmdCycleMode} }

func NextPalette() Command { return Command{Kind: CmdNextPalette} }

// nextMode returns the override after m in the cycle auto, classic, ...,
// fractal, auto.
func nextMode(m params.Mode) params.Mode {
	if !m.Valid() {
		return params.ModeClassic
	}
	if m == params.ModeFractal {
		return params.ModeAuto
	}
	return m + 1
}
