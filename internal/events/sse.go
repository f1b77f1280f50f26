package events

import (
	"github.com/kelindar/event"
	"github.com/smazurov/v4l2cam/internal/metrics"
)

// Names maps event types to the names used on the SSE wire and in metrics.
var Names = map[uint32]string{
	TypeSessionOpened: "session-opened",
	TypeSessionClosed: "session-closed",
	TypeFrameCaptured: "frame-captured",
	TypeCaptureError:  "capture-error",
}

// SubscribeToChannel forwards events of type T into ch for a select loop.
// An event is dropped and counted when ch is full, so a slow client never
// holds up the dispatcher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			metrics.RecordDroppedEvent(Names[e.Type()])
		}
	})
}
