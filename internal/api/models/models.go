package models

import "time"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Session models
type FormatData struct {
	Width        uint32 `json:"width" example:"640" doc:"Negotiated frame width"`
	Height       uint32 `json:"height" example:"480" doc:"Negotiated frame height"`
	PixelFormat  string `json:"pixel_format" example:"YUYV" doc:"Negotiated FourCC"`
	BytesPerLine uint32 `json:"bytes_per_line" example:"1280" doc:"Row stride in bytes"`
	SizeImage    uint32 `json:"size_image" example:"614400" doc:"Driver buffer size for one frame"`
}

type SessionData struct {
	SessionID  string            `json:"session_id" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427" doc:"Capture session identifier"`
	DevicePath string            `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	State      string            `json:"state" enum:"closed,opened,streaming" example:"streaming" doc:"Session lifecycle state"`
	Format     *FormatData       `json:"format,omitempty" doc:"Negotiated format, once the session has been opened"`
	Frames     uint64            `json:"frames" example:"1200" doc:"Frames grabbed by this session"`
	Bytes      uint64            `json:"bytes" example:"737280000" doc:"Bytes grabbed from this device since start"`
	Errors     uint64            `json:"errors" example:"0" doc:"Failed open or grab attempts"`
	LastError  string            `json:"last_error,omitempty" example:"DQBUF_FAILED: dequeue buffer: input/output error" doc:"Most recent error"`
	Restarts   int               `json:"restarts" example:"0" doc:"Times the session was reopened after failing"`
	StartedAt  *time.Time        `json:"started_at,omitempty" doc:"When streaming started"`
	LastFrame  *time.Time        `json:"last_frame,omitempty" doc:"When the latest frame was grabbed"`
	LogLevels  map[string]string `json:"log_levels,omitempty" doc:"Effective log level per module"`
}

type SessionResponse struct {
	Body SessionData
}

// Frame models
type FrameInput struct {
	Encoding string `query:"encoding" enum:"png,jpeg,raw" default:"png" doc:"Output encoding"`
	Order    string `query:"order" enum:"rgb,bgr" doc:"Byte order for raw output, defaults to the configured order"`
}

type FrameResponse struct {
	ContentType string `header:"Content-Type"`
	Sequence    string `header:"X-Frame-Sequence"`
	Body        []byte
}

// EventsInput selects which events /api/events streams.
type EventsInput struct {
	Frames bool `query:"frames" default:"false" doc:"Also stream a frame-captured event for every grabbed frame"`
}
