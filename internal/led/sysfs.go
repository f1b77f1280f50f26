package led

import (
	"fmt"
	"os"
	"path/filepath"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs implements Controller using the Linux LED class interface.
type sysfs struct {
	root string
	name string
}

func newSysfs(name string) *sysfs {
	return &sysfs{root: sysfsLEDPath, name: name}
}

// Set writes the trigger and brightness for p.
func (s *sysfs) Set(p Pattern) error {
	ledPath := filepath.Join(s.root, s.name)
	if _, err := os.Stat(ledPath); err != nil {
		return fmt.Errorf("LED %q not found at %s: %w", s.name, ledPath, err)
	}

	trigger, brightness := "none", "0"
	switch p {
	case PatternSolid:
		brightness = "1"
	case PatternBlink:
		trigger, brightness = "heartbeat", "1"
	case PatternOff:
	default:
		return fmt.Errorf("unknown LED pattern %q", p)
	}

	// The trigger goes first: writing "none" resets brightness on most drivers.
	if err := os.WriteFile(filepath.Join(ledPath, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("failed to set LED trigger: %w", err)
	}
	if trigger != "none" {
		return nil
	}
	if err := os.WriteFile(filepath.Join(ledPath, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

func (s *sysfs) Name() string { return s.name }
