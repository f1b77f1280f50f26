package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/v4l2cam/internal/events"
)

// Manager mirrors capture state on the indicator LED: solid while a session
// streams, blinking while the device is missing or being reopened.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	logger     *slog.Logger
	unsubs     []func()

	mu         sync.Mutex
	current    string // streaming session ID
	lastClosed string
	pattern    Pattern
}

// NewManager creates a manager; call Start to begin following events.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Start blinks the LED until the first session opens and subscribes to
// session events.
func (m *Manager) Start() {
	m.mu.Lock()
	m.apply(PatternBlink)
	m.mu.Unlock()

	m.unsubs = append(m.unsubs,
		m.eventBus.Subscribe(m.onOpened),
		m.eventBus.Subscribe(m.onClosed),
	)
	m.logger.Info("LED manager started", "led", m.controller.Name())
}

// Stop unsubscribes and switches the LED off.
func (m *Manager) Stop() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil

	m.mu.Lock()
	m.apply(PatternOff)
	m.mu.Unlock()
	m.logger.Info("LED manager stopped")
}

// Pattern returns the pattern last applied.
func (m *Manager) Pattern() Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pattern
}

// Handlers run on separate goroutines per event type, so a close can be
// delivered before the open of the same session.
func (m *Manager) onOpened(e events.SessionOpenedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.SessionID == m.lastClosed {
		return
	}
	m.current = e.SessionID
	m.apply(PatternSolid)
}

func (m *Manager) onClosed(e events.SessionClosedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastClosed = e.SessionID
	if m.current != "" && m.current != e.SessionID {
		return
	}
	m.current = ""
	m.apply(PatternBlink)
}

// apply must be called with mu held.
func (m *Manager) apply(p Pattern) {
	if p == m.pattern {
		return
	}
	if err := m.controller.Set(p); err != nil {
		m.logger.Warn("Failed to set LED", "led", m.controller.Name(), "pattern", p, "error", err)
		return
	}
	m.pattern = p
	m.logger.Debug("LED pattern changed", "led", m.controller.Name(), "pattern", p)
}
