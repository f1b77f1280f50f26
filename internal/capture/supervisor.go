package capture

import (
	"context"
	"os"
	"sync"
	"time"
)

// NodeWaiter blocks until the device node exists or ctx is done.
type NodeWaiter func(ctx context.Context, node string) error

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithRunnerOptions applies opts to every runner the supervisor starts.
func WithRunnerOptions(opts ...RunnerOption) SupervisorOption {
	return func(s *Supervisor) {
		s.runnerOpts = append(s.runnerOpts, opts...)
	}
}

// WithNodeWaiter sets how the supervisor waits for an unplugged device.
// Without one it polls with backoff.
func WithNodeWaiter(w NodeWaiter) SupervisorOption {
	return func(s *Supervisor) {
		s.waitNode = w
	}
}

// WithRestartBackoff sets the delay bounds between failed runs.
func WithRestartBackoff(minDelay, maxDelay time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.minBackoff = minDelay
		s.maxBackoff = maxDelay
	}
}

// Supervisor restarts the capture runner with a fresh session whenever a run
// ends before ctx is cancelled, for instance after a USB camera is unplugged.
type Supervisor struct {
	newSession func() Session
	runnerOpts []RunnerOption
	waitNode   NodeWaiter
	nodeExists func(string) bool
	minBackoff time.Duration
	maxBackoff time.Duration

	mu       sync.RWMutex
	current  *Runner
	restarts int
}

// NewSupervisor creates a supervisor that builds each session with newSession.
func NewSupervisor(newSession func() Session, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		newSession: newSession,
		nodeExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run keeps a runner going until ctx is cancelled. A run that ends with the
// device node missing waits for the node to come back; any other failure is
// retried with exponential backoff.
func (s *Supervisor) Run(ctx context.Context) {
	backoff := s.minBackoff
	for {
		session := s.newSession()
		r := NewRunner(session, s.runnerOpts...)
		s.mu.Lock()
		s.current = r
		s.mu.Unlock()

		err := r.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if r.Status().Frames > 0 {
			backoff = s.minBackoff
		}

		node := session.DevicePath()
		logger.Warn("Capture session ended, restarting", "device", node, "session_id", r.ID(), "error", err)

		if s.waitNode != nil && !s.nodeExists(node) {
			logger.Info("Waiting for device to reappear", "device", node)
			if waitErr := s.waitNode(ctx, node); waitErr != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("Device wait failed, retrying with backoff", "device", node, "error", waitErr)
				backoff = s.sleep(ctx, backoff)
			}
		} else {
			backoff = s.sleep(ctx, backoff)
		}
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
	}
}

// sleep waits d or until ctx ends and returns the next delay.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) time.Duration {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	return min(d*2, s.maxBackoff)
}

// Latest returns the current runner's latest frame. Frames from a previous
// run are not served after a restart.
func (s *Supervisor) Latest() (Frame, error) {
	s.mu.RLock()
	r := s.current
	s.mu.RUnlock()
	if r == nil {
		return Frame{}, ErrNoFrame
	}
	return r.Latest()
}

// Status returns the current runner's status with the restart count.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	r, restarts := s.current, s.restarts
	s.mu.RUnlock()
	if r == nil {
		return Status{State: "closed", Restarts: restarts}
	}
	st := r.Status()
	st.Restarts = restarts
	return st
}
