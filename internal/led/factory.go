package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// DisabledName turns the indicator off entirely when passed to New.
const DisabledName = "none"

// boardLEDs maps a device tree model substring to the LED used as indicator.
var boardLEDs = []struct {
	model string
	led   string
}{
	{"NanoPC-T6", "usr_led"},
	{"Orange Pi", "green_led"},
	{"Raspberry Pi", "ACT"},
}

// New returns a controller for the named LED under /sys/class/leds.
// An empty name picks the LED from the detected board; boards without a
// known LED and DisabledName get a no-op controller.
func New(name string, logger *slog.Logger) Controller {
	switch name {
	case DisabledName:
		return newNoop(logger)
	case "":
	default:
		return newSysfs(name)
	}

	model := detectBoard(deviceTreeModelPath)
	if led := ledForBoard(model); led != "" {
		logger.Info("Detected board, using sysfs LED controller", "board_model", model, "led", led)
		return newSysfs(led)
	}
	logger.Info("No LED support detected, using no-op controller", "board_model", model)
	return newNoop(logger)
}

func ledForBoard(model string) string {
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			return b.led
		}
	}
	return ""
}

// detectBoard reads the device tree model to identify the board.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	// Device tree strings are NUL terminated
	return strings.TrimRight(string(data), "\x00")
}
