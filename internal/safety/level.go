package safety

import "github.com/guidoenr/lumen/internal/params"

// Level is the user-selected safety preset.
type Level = params.Level

const (
	UltraSafe = params.LevelUltraSafe
	Safe      = params.LevelSafe
	Moderate  = params.LevelModerate
	Standard  = params.LevelStandard
	Disabled  = params.LevelDisabled

	// DefaultLevel is used when nothing else was configured.
	DefaultLevel = Safe
)

var levelTable = [...]params.Multipliers{
	UltraSafe: {Beat: 0.1, Onset: 0.05, ColorRate: 0.2, Brightness: 0.3, Complexity: 0.3},
	Safe:      {Beat: 0.3, Onset: 0.2, ColorRate: 0.4, Brightness: 0.5, Complexity: 0.5},
	Moderate:  {Beat: 0.6, Onset: 0.4, ColorRate: 0.7, Brightness: 0.7, Complexity: 0.7},
	Standard:  {Beat: 0.8, Onset: 0.6, ColorRate: 0.9, Brightness: 0.9, Complexity: 0.9},
	Disabled:  {Beat: 1, Onset: 1, ColorRate: 1, Brightness: 1, Complexity: 1},
}

var levelLabels = [...]string{
	UltraSafe: "Ultra Safe",
	Safe:      "Safe",
	Moderate:  "Moderate",
	Standard:  "Standard",
	Disabled:  "DISABLED",
}

// MultipliersFor returns the multiplier set of a level. Unknown levels get
// the default level's set.
func MultipliersFor(l Level) params.Multipliers {
	if !l.Valid() {
		l = DefaultLevel
	}
	return levelTable[l]
}

// NextLevel returns the level after l in the cycle
// UltraSafe, Safe, Moderate, Standard, Disabled.
func NextLevel(l Level) Level {
	if !l.Valid() {
		return DefaultLevel
	}
	return Level((int(l) + 1) % len(levelTable))
}

// Label returns a human readable level name.
func Label(l Level) string {
	if !l.Valid() {
		return l.String()
	}
	return levelLabels[l]
}

// ParseLevel resolves a level name.
func ParseLevel(name string) (Level, error) {
	return params.ParseLevel(name)
}

// Levels lists every level from strictest to most permissive.
func Levels() []Level {
	return []Level{UltraSafe, Safe, Moderate, Standard, Disabled}
}
