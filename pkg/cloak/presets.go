package cloak

import (
	"fmt"
	"strconv"
	"strings"
)

// Preset colour names
const (
	ColorRed    = "red"
	ColorBlue   = "blue"
	ColorGreen  = "green"
	ColorWhite  = "white"
	ColorYellow = "yellow"
)

// Red spans both ends of the hue axis.
func Red() ColorSpec {
	return Wrapped("Red",
		HSV{0, 120, 70}, HSV{10, 255, 255},
		HSV{170, 120, 70}, HSV{180, 255, 255},
	)
}

// Blue returns the blue cloak range.
func Blue() ColorSpec {
	return Single("Blue", HSV{94, 80, 2}, HSV{126, 255, 255})
}

// Green returns the green cloak range.
func Green() ColorSpec {
	return Single("Green", HSV{40, 40, 40}, HSV{70, 255, 255})
}

// White matches any hue with low saturation and high value.
func White() ColorSpec {
	return Single("White", HSV{0, 0, 200}, HSV{180, 25, 255})
}

// Yellow returns the yellow cloak range.
func Yellow() ColorSpec {
	return Single("Yellow", HSV{20, 100, 100}, HSV{30, 255, 255})
}

// PresetNames returns the preset names in menu order (1-based).
func PresetNames() []string {
	return []string{ColorRed, ColorBlue, ColorGreen, ColorWhite, ColorYellow}
}

// Presets returns all preset specs keyed by name.
func Presets() map[string]ColorSpec {
	return map[string]ColorSpec{
		ColorRed:    Red(),
		ColorBlue:   Blue(),
		ColorGreen:  Green(),
		ColorWhite:  White(),
		ColorYellow: Yellow(),
	}
}

// Lookup resolves a preset by name (case-insensitive) or by its menu
// number, so "red", "Red" and "1" all return Red().
func Lookup(key string) (ColorSpec, error) {
	key = strings.ToLower(strings.TrimSpace(key))

	if n, err := strconv.Atoi(key); err == nil {
		names := PresetNames()
		if n < 1 || n > len(names) {
			return ColorSpec{}, fmt.Errorf("%w: choice %d (want 1-%d)", ErrUnknownColor, n, len(names))
		}
		key = names[n-1]
	}

	spec, ok := Presets()[key]
	if !ok {
		return ColorSpec{}, fmt.Errorf("%w: %q", ErrUnknownColor, key)
	}
	return spec, nil
}
