package led

// Pattern is how the indicator LED is driven.
type Pattern string

// Indicator patterns.
const (
	PatternOff   Pattern = "off"
	PatternSolid Pattern = "solid"
	PatternBlink Pattern = "blink"
)

// Controller drives the board LED that mirrors capture state.
type Controller interface {
	// Set switches the LED to pattern p.
	Set(p Pattern) error

	// Name returns the LED's sysfs name, or "" when there is none.
	Name() string
}
