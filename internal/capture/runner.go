package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/v4l2cam/internal/events"
	"github.com/smazurov/v4l2cam/internal/logging"
	"github.com/smazurov/v4l2cam/internal/metrics"
	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
)

var logger = logging.GetLogger("capture")

// DefaultMaxConsecutiveErrors is how many failed grabs in a row end a run.
const DefaultMaxConsecutiveErrors = 10

// ErrTooManyErrors ends a run after repeated grab failures.
var ErrTooManyErrors = errors.New("too many consecutive grab errors")

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(events.Event) {}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithEventBus publishes session lifecycle and frame events to bus.
func WithEventBus(bus EventPublisher) RunnerOption {
	return func(r *Runner) {
		r.bus = bus
	}
}

// WithMaxConsecutiveErrors overrides DefaultMaxConsecutiveErrors.
func WithMaxConsecutiveErrors(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxErrors = n
		}
	}
}

// WithFrameInterval records the requested interval for SessionOpenedEvent.
func WithFrameInterval(interval v4l2.Framerate) RunnerOption {
	return func(r *Runner) {
		r.interval = interval
	}
}

// Status is a point-in-time view of a Runner.
type Status struct {
	SessionID  string
	DevicePath string
	State      string
	Format     v4l2.Format
	Frames     uint64
	Errors     uint64
	LastError  string
	StartedAt  time.Time
	Restarts   int // set by Supervisor
}

// Runner grabs frames continuously and keeps a copy of the latest one.
// The session is owned by the runner goroutine; other goroutines only read
// the copied frame and the status.
type Runner struct {
	session   Session
	bus       EventPublisher
	logger    *slog.Logger
	maxErrors int
	interval  v4l2.Framerate
	id        string
	device    string

	mu        sync.RWMutex
	state     v4l2.State
	format    v4l2.Format
	latest    Frame
	hasFrame  bool
	frames    uint64
	errors    uint64
	lastError string
	startedAt time.Time
}

// NewRunner creates a runner for s. Each runner gets a fresh session ID.
func NewRunner(s Session, opts ...RunnerOption) *Runner {
	r := &Runner{
		session:   s,
		bus:       noopPublisher{},
		maxErrors: DefaultMaxConsecutiveErrors,
		id:        uuid.NewString(),
		device:    s.DevicePath(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.With("session_id", r.id, "device", r.device)
	return r
}

// ID returns the session identifier used in logs and events.
func (r *Runner) ID() string {
	return r.id
}

// Run opens the session and grabs until ctx is cancelled or too many grabs
// fail in a row. Cancellation is observed between frames. The session is
// always closed before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	device := r.device

	if err := r.session.Open(); err != nil {
		r.recordError(err)
		releaseQuietly(r.session)
		r.setState(r.session.State())
		return fmt.Errorf("failed to open %s: %w", device, err)
	}

	format := r.session.Format()
	r.mu.Lock()
	r.state = r.session.State()
	r.format = format
	r.startedAt = time.Now()
	r.mu.Unlock()

	metrics.SetStreaming(device, true)
	r.logger.Info("Capture session streaming",
		"width", format.Width,
		"height", format.Height,
		"format", v4l2.FormatFourCC(format.FourCC))

	opened := events.SessionOpenedEvent{
		SessionID:   r.id,
		DevicePath:  device,
		Width:       format.Width,
		Height:      format.Height,
		PixelFormat: v4l2.FormatFourCC(format.FourCC),
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if r.interval.Denominator != 0 {
		opened.FrameInterval = fmt.Sprintf("%d/%d", r.interval.Numerator, r.interval.Denominator)
	}
	r.bus.Publish(opened)

	runErr := r.loop(ctx)

	reason := "stopped"
	if runErr != nil {
		reason = "failed"
	}
	if err := r.session.Close(); err != nil {
		r.recordError(err)
		r.logger.Error("Failed to close capture session", "error", err)
		if runErr == nil {
			runErr = err
		}
		releaseQuietly(r.session)
	}
	r.setState(r.session.State())
	metrics.SetStreaming(device, false)

	r.mu.RLock()
	frames := r.frames
	r.mu.RUnlock()
	r.bus.Publish(events.SessionClosedEvent{
		SessionID:  r.id,
		DevicePath: device,
		Frames:     frames,
		Reason:     reason,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
	r.logger.Info("Capture session closed", "frames", frames, "reason", reason)

	return runErr
}

func (r *Runner) loop(ctx context.Context) error {
	device := r.device
	consecutive := 0

	for ctx.Err() == nil {
		start := time.Now()
		n, err := r.session.Grab()
		if err != nil {
			r.recordError(err)
			consecutive++
			r.logger.Warn("Grab failed", "error", err, "consecutive", consecutive)
			if consecutive >= r.maxErrors {
				return fmt.Errorf("%w: last: %w", ErrTooManyErrors, err)
			}
			continue
		}
		consecutive = 0

		frame := snapshotFrame(r.session)
		metrics.RecordFrame(device, n, time.Since(start))

		r.mu.Lock()
		r.latest = frame
		r.hasFrame = true
		r.frames++
		r.mu.Unlock()

		r.bus.Publish(events.FrameCapturedEvent{
			SessionID: r.id,
			Sequence:  frame.Sequence,
			Bytes:     n,
			Timestamp: frame.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return nil
}

func (r *Runner) recordError(err error) {
	code := v4l2.ErrorCode(err)
	device := r.device
	metrics.RecordError(device, code)

	r.mu.Lock()
	r.errors++
	r.lastError = err.Error()
	r.mu.Unlock()

	r.bus.Publish(events.CaptureErrorEvent{
		SessionID:  r.id,
		DevicePath: device,
		Code:       code,
		Error:      err.Error(),
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

func (r *Runner) setState(state v4l2.State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

// Latest returns a copy of the most recent frame.
func (r *Runner) Latest() (Frame, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasFrame {
		return Frame{}, ErrNoFrame
	}
	return r.latest, nil
}

// Status returns the runner's current counters.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		SessionID:  r.id,
		DevicePath: r.device,
		State:      r.state.String(),
		Format:     r.format,
		Frames:     r.frames,
		Errors:     r.errors,
		LastError:  r.lastError,
		StartedAt:  r.startedAt,
	}
}
