// Package metrics provides Prometheus metrics for capture sessions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	captureFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4l2cam",
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Frames grabbed from the device",
	}, []string{"device"})

	captureBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4l2cam",
		Subsystem: "capture",
		Name:      "bytes_total",
		Help:      "Valid frame bytes reported by the driver",
	}, []string{"device"})

	captureErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4l2cam",
		Subsystem: "capture",
		Name:      "errors_total",
		Help:      "Failed capture steps by error code",
	}, []string{"device", "code"})

	captureStreaming = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "v4l2cam",
		Subsystem: "capture",
		Name:      "streaming",
		Help:      "1 while the session is streaming, 0 otherwise",
	}, []string{"device"})

	captureGrabSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "v4l2cam",
		Subsystem: "capture",
		Name:      "grab_duration_seconds",
		Help:      "Time blocked in a single grab",
		Buckets:   []float64{.001, .005, .01, .02, .034, .05, .067, .1, .2, .5, 1},
	}, []string{"device"})

	// Local cache for the API session view.
	captureCache   = make(map[string]*CaptureStats)
	captureCacheMu sync.RWMutex
)

// CaptureStats holds current values for one device.
type CaptureStats struct {
	Frames    uint64
	Bytes     uint64
	Errors    uint64
	Streaming bool
	LastFrame time.Time
}

// RecordFrame counts one grabbed frame of n bytes.
func RecordFrame(device string, n int, took time.Duration) {
	captureFrames.WithLabelValues(device).Inc()
	captureBytes.WithLabelValues(device).Add(float64(n))
	captureGrabSeconds.WithLabelValues(device).Observe(took.Seconds())
	updateCache(device, func(s *CaptureStats) {
		s.Frames++
		s.Bytes += uint64(n)
		s.LastFrame = time.Now()
	})
}

// RecordError counts a failed step; code is the session error code.
func RecordError(device, code string) {
	if code == "" {
		code = "UNKNOWN"
	}
	captureErrors.WithLabelValues(device, code).Inc()
	updateCache(device, func(s *CaptureStats) { s.Errors++ })
}

// SetStreaming records whether the device is currently streaming.
func SetStreaming(device string, streaming bool) {
	v := 0.0
	if streaming {
		v = 1
	}
	captureStreaming.WithLabelValues(device).Set(v)
	updateCache(device, func(s *CaptureStats) { s.Streaming = streaming })
}

// DeleteCaptureMetrics removes all series for a device.
func DeleteCaptureMetrics(device string) {
	captureFrames.DeleteLabelValues(device)
	captureBytes.DeleteLabelValues(device)
	captureStreaming.DeleteLabelValues(device)
	captureGrabSeconds.DeleteLabelValues(device)
	captureErrors.DeletePartialMatch(prometheus.Labels{"device": device})

	captureCacheMu.Lock()
	delete(captureCache, device)
	captureCacheMu.Unlock()
}

// GetCaptureStats returns a copy of the current values for a device.
func GetCaptureStats(device string) *CaptureStats {
	captureCacheMu.RLock()
	defer captureCacheMu.RUnlock()
	if s, ok := captureCache[device]; ok {
		dup := *s
		return &dup
	}
	return nil
}

func updateCache(device string, update func(*CaptureStats)) {
	captureCacheMu.Lock()
	defer captureCacheMu.Unlock()
	s, ok := captureCache[device]
	if !ok {
		s = &CaptureStats{}
		captureCache[device] = s
	}
	update(s)
}
