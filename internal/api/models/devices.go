package models

// DeviceInfo represents a video capture device with snake_case fields
type DeviceInfo struct {
	DevicePath   string   `json:"device_path" example:"/dev/video0" doc:"System device path"`
	DeviceName   string   `json:"device_name" example:"USB Camera" doc:"Device name"`
	Driver       string   `json:"driver" example:"uvcvideo" doc:"Kernel driver"`
	BusInfo      string   `json:"bus_info" example:"usb-0000:00:14.0-1" doc:"Bus location reported by the driver"`
	Caps         uint32   `json:"caps" example:"84000001" doc:"Raw V4L2 capability flags"`
	Capabilities []string `json:"capabilities" example:"[\"Video Capture\", \"Streaming I/O\"]" doc:"Device capabilities"`
}

// FormatInfo represents a pixel format the device offers
type FormatInfo struct {
	FourCC       string `json:"fourcc" example:"YUYV" doc:"Pixel format code"`
	OriginalName string `json:"original_name" example:"YUYV 4:2:2" doc:"Original V4L2 format name"`
	Emulated     bool   `json:"emulated" example:"false" doc:"Whether format is emulated"`
	Supported    bool   `json:"supported" example:"true" doc:"Whether a capture session can request this format"`
}

// Device API response models
type DeviceData struct {
	Devices []DeviceInfo `json:"devices" doc:"List of available video devices"`
	Count   int          `json:"count" example:"2" doc:"Number of devices found"`
}

type DeviceResponse struct {
	Body DeviceData
}

type DeviceFormatsInput struct {
	Device string `query:"device" required:"true" example:"/dev/video0" doc:"Path to the video device"`
}

type DeviceFormatsData struct {
	DevicePath string       `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Formats    []FormatInfo `json:"formats" doc:"Formats offered by the device"`
}

type DeviceFormatsResponse struct {
	Body DeviceFormatsData
}
