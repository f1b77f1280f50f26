package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan SessionOpenedEvent, 1)

	unsub := bus.Subscribe(func(e SessionOpenedEvent) {
		received <- e
	})
	defer unsub()

	event := SessionOpenedEvent{
		SessionID:   "abc",
		DevicePath:  "/dev/video0",
		Width:       640,
		Height:      480,
		PixelFormat: "YUYV",
		Timestamp:   "2026-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got != event {
		t.Errorf("received %+v, want %+v", got, event)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureErrorEvent, 1)

	unsub := bus.Subscribe(func(e CaptureErrorEvent) {
		received <- e
	})

	bus.Publish(CaptureErrorEvent{DevicePath: "/dev/video0"})
	<-received

	unsub()

	bus.Publish(CaptureErrorEvent{DevicePath: "/dev/video1"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	frames := make(chan bool, 1)
	closed := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ FrameCapturedEvent) { frames <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(_ SessionClosedEvent) { closed <- true })
	defer unsub2()

	bus.Publish(FrameCapturedEvent{Sequence: 1})
	<-frames

	select {
	case <-closed:
		t.Fatal("SessionClosedEvent subscriber received a FrameCapturedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(SessionClosedEvent{Reason: "stopped"})
	<-closed

	select {
	case <-frames:
		t.Fatal("FrameCapturedEvent subscriber received a SessionClosedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub() // no-op, must not panic
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ FrameCapturedEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range eventsPerGoroutine {
				bus.Publish(FrameCapturedEvent{
					Sequence:  uint32(i),
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
		want  uint32
	}{
		{"SessionOpened", SessionOpenedEvent{DevicePath: "/dev/video0"}, TypeSessionOpened},
		{"SessionClosed", SessionClosedEvent{Reason: "stopped"}, TypeSessionClosed},
		{"FrameCaptured", FrameCapturedEvent{Sequence: 7}, TypeFrameCaptured},
		{"CaptureError", CaptureErrorEvent{Code: "DEQUEUE_FAILED"}, TypeCaptureError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.Type(); got != tt.want {
				t.Errorf("Type() = %d, want %d", got, tt.want)
			}

			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case SessionOpenedEvent:
				unsub = bus.Subscribe(func(e SessionOpenedEvent) { received <- e })
			case SessionClosedEvent:
				unsub = bus.Subscribe(func(e SessionClosedEvent) { received <- e })
			case FrameCapturedEvent:
				unsub = bus.Subscribe(func(e FrameCapturedEvent) { received <- e })
			case CaptureErrorEvent:
				unsub = bus.Subscribe(func(e CaptureErrorEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			if got := <-received; got != tt.event {
				t.Errorf("received %+v, want %+v", got, tt.event)
			}
		})
	}
}

func TestEventJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(CaptureErrorEvent{
		SessionID:  "abc",
		DevicePath: "/dev/video0",
		Code:       "BUFFER_MAP_FAILED",
		Error:      "BUFFER_MAP_FAILED: mmap: cannot allocate memory",
		Timestamp:  "2026-01-27T10:30:00Z",
	})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	for _, key := range []string{"session_id", "device_path", "code", "error", "timestamp"} {
		if _, ok := result[key]; !ok {
			t.Errorf("JSON is missing %q: %s", key, data)
		}
	}

	// frame_interval is omitted when the driver default was kept
	data, _ = json.Marshal(SessionOpenedEvent{SessionID: "abc"})
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if _, ok := result["frame_interval"]; ok {
		t.Errorf("frame_interval should be omitted: %s", data)
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[SessionClosedEvent](bus, ch)
	defer unsub()

	event := SessionClosedEvent{DevicePath: "/dev/video0", Frames: 30, Reason: "stopped"}
	bus.Publish(event)

	received := <-ch
	closed, ok := received.(SessionClosedEvent)
	if !ok {
		t.Fatalf("Expected SessionClosedEvent, got %T", received)
	}
	if closed != event {
		t.Errorf("received %+v, want %+v", closed, event)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[FrameCapturedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(FrameCapturedEvent{Sequence: 1})
		done <- true
	}()

	<-done // Should complete without blocking
}

func TestNamesCoverEveryType(t *testing.T) {
	for _, e := range []Event{SessionOpenedEvent{}, SessionClosedEvent{}, FrameCapturedEvent{}, CaptureErrorEvent{}} {
		if Names[e.Type()] == "" {
			t.Errorf("%T has no wire name", e)
		}
	}
}
