package config

import (
	"log/slog"

	"github.com/smazurov/v4l2cam/internal/logging"
)

// WatchLogging starts a watcher that re-applies log levels whenever the
// [logging] table of configPath changes. The output format is fixed at
// startup and is not reloaded.
func WatchLogging(configPath string, logger *slog.Logger) (*Watcher[logging.Config], error) {
	w := NewConfigWatcher(configPath, ReadLoggingConfig, logger)
	w.OnReload(func(cfg logging.Config) {
		changed := logging.ApplyLevels(cfg)
		logger.Info("Logging levels reloaded", "level", cfg.Level, "changed_modules", changed)
	})
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}
