package led

import "log/slog"

// noop implements Controller for systems without an indicator LED.
type noop struct {
	logger *slog.Logger
}

func newNoop(logger *slog.Logger) *noop {
	return &noop{logger: logger}
}

// Set logs the request and does nothing else.
func (n *noop) Set(p Pattern) error {
	n.logger.Debug("LED control not available (no-op)", "pattern", p)
	return nil
}

func (n *noop) Name() string { return "" }
