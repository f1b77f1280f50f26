package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/smazurov/v4l2cam/internal/events"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                       { return t.wait(time.Hour) }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return t.wait(d) }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

func (t *fakeToken) wait(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

type message struct {
	topic    string
	retained bool
	payload  string
}

type fakeClient struct {
	connect    paho.Token
	publishErr error

	mu           sync.Mutex
	messages     []message
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token { return c.connect }

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload any) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic, retained, string(payload.([]byte))})
	return doneToken(c.publishErr)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) find(topic string) (message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.messages {
		if m.topic == topic {
			return m, true
		}
	}
	return message{}, false
}

func (c *fakeClient) lastState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := ""
	for _, m := range c.messages {
		if m.topic == "cam/state" {
			state = m.payload
		}
	}
	return state
}

func newTestPublisher(c *fakeClient) (*Publisher, *events.Bus) {
	bus := events.New()
	return &Publisher{
		client:    c,
		bus:       bus,
		prefix:    "cam",
		logger:    slog.New(slog.NewTextHandler(os.Stderr, nil)),
		connected: true,
	}, bus
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublisherForwardsSessionEvents(t *testing.T) {
	c := &fakeClient{}
	p, bus := newTestPublisher(c)
	p.Start()

	if got := c.lastState(); got != StateOnline {
		t.Fatalf("state after Start = %q, want %q", got, StateOnline)
	}

	bus.Publish(events.SessionOpenedEvent{SessionID: "abc", DevicePath: "/dev/video0", Width: 640, Height: 480})
	waitFor(t, "session-opened", func() bool {
		_, ok := c.find("cam/events/session-opened")
		return ok && c.lastState() == StateStreaming
	})

	m, _ := c.find("cam/events/session-opened")
	if m.retained {
		t.Error("events should not be retained")
	}
	var got events.SessionOpenedEvent
	if err := json.Unmarshal([]byte(m.payload), &got); err != nil || got.SessionID != "abc" {
		t.Errorf("payload = %q (%v)", m.payload, err)
	}

	bus.Publish(events.CaptureErrorEvent{SessionID: "abc", Code: "DEQUEUE_FAILED"})
	waitFor(t, "capture-error", func() bool {
		_, ok := c.find("cam/events/capture-error")
		return ok
	})

	p.Stop()
	if got := c.lastState(); got != StateOffline {
		t.Errorf("state after Stop = %q, want %q", got, StateOffline)
	}
	if !c.disconnected {
		t.Error("Stop did not disconnect")
	}
}

func TestPublisherSkipsFrameEvents(t *testing.T) {
	c := &fakeClient{}
	p, bus := newTestPublisher(c)
	p.Start()
	defer p.Stop()

	bus.Publish(events.FrameCapturedEvent{SessionID: "abc", Sequence: 1})
	bus.Publish(events.SessionClosedEvent{SessionID: "abc", Reason: "stopped"})
	waitFor(t, "session-closed", func() bool {
		_, ok := c.find("cam/events/session-closed")
		return ok
	})
	if _, ok := c.find("cam/events/frame-captured"); ok {
		t.Error("frame events should not be forwarded")
	}
}

func TestPublisherCountsErrors(t *testing.T) {
	c := &fakeClient{publishErr: errors.New("broker gone")}
	p, _ := newTestPublisher(c)

	p.publishState(StateOnline)
	p.setConnected(false)
	p.publishState(StateOnline)

	st := p.Stats()
	if st.Errors != 2 || st.Published != 0 {
		t.Errorf("stats = %+v, want 2 errors and none published", st)
	}
}

func TestConnect(t *testing.T) {
	c := &fakeClient{connect: doneToken(nil)}
	p, _ := newTestPublisher(c)
	p.connected = false

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !p.Stats().Connected {
		t.Error("not connected after Connect")
	}

	pending := &fakeClient{connect: &fakeToken{done: make(chan struct{})}}
	p, _ = newTestPublisher(pending)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() error = %v, want deadline exceeded", err)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:1883", "tcp://localhost:1883"},
		{"ssl://broker:8883", "ssl://broker:8883"},
		{"ws://broker/mqtt", "ws://broker/mqtt"},
	}
	for _, tt := range tests {
		if got := brokerURL(tt.in); got != tt.want {
			t.Errorf("brokerURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
