package render

import "strings"

var glyphRamps = map[string][]rune{
	"default": []rune(" .,:-;+=*%#@▓█"),
	"blocks":  []rune(" ░▒▓█"),
	"lines":   []rune(" `.-=+*/\\|╱╲╳╬"),
	"spark":   []rune("  ´`^\"~:;*+×•°oO@#█"),
	"ascii":   []rune(" .:-=+*#%@"),
}

// Glyphs returns the character ramp used for brightness mapping, darkest
// first. Unknown names fall back to "default".
func Glyphs(name string) []rune {
	if ramp, ok := glyphRamps[strings.ToLower(name)]; ok {
		return ramp
	}
	return glyphRamps["default"]
}

// GlyphNames returns all glyph ramp identifiers.
func GlyphNames() []string {
	return []string{"default", "blocks", "lines", "spark", "ascii"}
}
