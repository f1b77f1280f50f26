// Package systemd reports service readiness and liveness to systemd through
// sd_notify. Outside a systemd unit every call is a no-op.
package systemd

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger   *slog.Logger
	notify   func(state string) (bool, error)
	interval func() (time.Duration, error)
}

// NewNotifier creates a notifier for the unit this process runs under.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		interval: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

// Ready tells systemd start-up has finished (Type=notify units).
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping tells systemd shutdown has begun.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) {
	n.send("STATUS=" + msg)
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// Watchdog pings WATCHDOG=1 at half the unit's WatchdogSec while healthy
// returns true, until ctx is done. A stalled capture that stops the pings
// lets systemd restart the service. Returns at once when the unit has no
// watchdog configured.
func (n *Notifier) Watchdog(ctx context.Context, healthy func() bool) {
	interval, err := n.interval()
	if err != nil {
		n.logger.Warn("Invalid watchdog configuration", "error", err)
		return
	}
	if interval <= 0 {
		return
	}

	n.logger.Info("Watchdog enabled", "interval", interval)
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if healthy() {
				n.send(daemon.SdNotifyWatchdog)
			} else {
				n.logger.Warn("Capture unhealthy, withholding watchdog ping")
			}
		}
	}
}
