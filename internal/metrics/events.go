package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "v4l2cam",
	Subsystem: "events",
	Name:      "dropped_total",
	Help:      "Events not delivered to a stream client whose buffer was full",
}, []string{"type"})

// RecordDroppedEvent counts one event of the given type lost to a slow client.
func RecordDroppedEvent(eventType string) {
	eventsDropped.WithLabelValues(eventType).Inc()
}
