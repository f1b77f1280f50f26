package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/v4l2cam/internal/api/models"
	"github.com/smazurov/v4l2cam/internal/events"
)

// sseBuffer is how many events a client may fall behind before events drop.
const sseBuffer = 32

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Capture session lifecycle and error events. Per-frame events are opt-in with frames=true.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		events.Names[events.TypeSessionOpened]: events.SessionOpenedEvent{},
		events.Names[events.TypeSessionClosed]: events.SessionClosedEvent{},
		events.Names[events.TypeFrameCaptured]: events.FrameCapturedEvent{},
		events.Names[events.TypeCaptureError]:  events.CaptureErrorEvent{},
	}, func(ctx context.Context, input *models.EventsInput, send sse.Sender) {
		eventCh := make(chan any, sseBuffer)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionOpenedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionClosedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CaptureErrorEvent](s.eventBus, eventCh),
		}
		if input.Frames {
			unsubscribers = append(unsubscribers,
				events.SubscribeToChannel[events.FrameCapturedEvent](s.eventBus, eventCh))
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		s.logger.Debug("Event stream opened", "frames", input.Frames)
		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Event stream closed")
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
