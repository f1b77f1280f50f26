package events

// Event type constants for kelindar/event.
const (
	TypeSessionOpened uint32 = iota + 1
	TypeSessionClosed
	TypeFrameCaptured
	TypeCaptureError
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionOpenedEvent is published once a capture session is streaming.
type SessionOpenedEvent struct {
	SessionID     string `json:"session_id" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427" doc:"Capture session identifier"`
	DevicePath    string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Width         uint32 `json:"width" example:"640" doc:"Negotiated frame width"`
	Height        uint32 `json:"height" example:"480" doc:"Negotiated frame height"`
	PixelFormat   string `json:"pixel_format" example:"YUYV" doc:"Negotiated FourCC"`
	FrameInterval string `json:"frame_interval,omitempty" example:"1/30" doc:"Requested seconds per frame"`
	Timestamp     string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionOpenedEvent.
func (e SessionOpenedEvent) Type() uint32 { return TypeSessionOpened }

// SessionClosedEvent is published after a session is torn down.
type SessionClosedEvent struct {
	SessionID  string `json:"session_id" doc:"Capture session identifier"`
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Frames     uint64 `json:"frames" example:"1800" doc:"Frames grabbed during the session"`
	Reason     string `json:"reason" example:"stopped" doc:"Why the session ended: stopped or failed"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionClosedEvent.
func (e SessionClosedEvent) Type() uint32 { return TypeSessionClosed }

// FrameCapturedEvent is published for every grabbed frame.
type FrameCapturedEvent struct {
	SessionID string `json:"session_id" doc:"Capture session identifier"`
	Sequence  uint32 `json:"sequence" example:"42" doc:"Driver frame sequence number"`
	Bytes     int    `json:"bytes" example:"614400" doc:"Valid bytes in the frame"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Capture timestamp"`
}

// Type returns the event type identifier for FrameCapturedEvent.
func (e FrameCapturedEvent) Type() uint32 { return TypeFrameCaptured }

// CaptureErrorEvent represents a failed open, grab or close step.
type CaptureErrorEvent struct {
	SessionID  string `json:"session_id" doc:"Capture session identifier"`
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Code       string `json:"code" example:"DEQUEUE_FAILED" doc:"Failing step"`
	Error      string `json:"error" example:"DEQUEUE_FAILED: VIDIOC_DQBUF: input/output error" doc:"Detailed error description"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Error timestamp"`
}

// Type returns the event type identifier for CaptureErrorEvent.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }
