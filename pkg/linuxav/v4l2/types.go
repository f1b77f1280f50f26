//go:build linux

package v4l2

import "fmt"

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	Driver     string
	BusInfo    string
	Caps       uint32
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
}

// Framerate is a frame interval expressed as seconds-per-frame,
// the way the driver's timeperframe field stores it.
type Framerate struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns the framerate as frames per second.
func (f Framerate) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

// Valid reports whether f can be handed to the driver as timeperframe.
func (f Framerate) Valid() bool {
	return f.Numerator > 0 && f.Denominator > 0
}

// PixelFormat is the fixed set of capture formats a session can request.
type PixelFormat int

// Pixel formats. Unknown values are requested as YUYV.
const (
	PixelFormatYUYV PixelFormat = iota
	PixelFormatMJPEG
	PixelFormatGrey
	PixelFormatY16
)

// fourcc translates the format to the driver constant.
func (p PixelFormat) fourcc() uint32 {
	switch p {
	case PixelFormatMJPEG:
		return v4l2PixFmtMJPEG
	case PixelFormatGrey:
		return v4l2PixFmtGrey
	case PixelFormatY16:
		return v4l2PixFmtY16
	default:
		return v4l2PixFmtYUYV
	}
}

// String returns the lowercase name used in configuration files.
func (p PixelFormat) String() string {
	switch p {
	case PixelFormatYUYV:
		return "yuyv"
	case PixelFormatMJPEG:
		return "mjpeg"
	case PixelFormatGrey:
		return "grey"
	case PixelFormatY16:
		return "y16"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(p))
	}
}

// BytesPerPixel returns the uncompressed sample size, or 0 for MJPEG.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatYUYV, PixelFormatY16:
		return 2
	case PixelFormatGrey:
		return 1
	default:
		return 0
	}
}

// ParsePixelFormat parses a configuration name such as "yuyv" or "mjpeg".
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "yuyv", "yuyv422", "yuv", "":
		return PixelFormatYUYV, nil
	case "mjpeg", "mjpg":
		return PixelFormatMJPEG, nil
	case "grey", "gray", "y8":
		return PixelFormatGrey, nil
	case "y16":
		return PixelFormatY16, nil
	default:
		return PixelFormatYUYV, fmt.Errorf("unknown pixel format %q", s)
	}
}

// pixelFormatFromFourCC maps a driver constant back to the enum.
func pixelFormatFromFourCC(code uint32) (PixelFormat, bool) {
	switch code {
	case v4l2PixFmtYUYV:
		return PixelFormatYUYV, true
	case v4l2PixFmtMJPEG:
		return PixelFormatMJPEG, true
	case v4l2PixFmtGrey:
		return PixelFormatGrey, true
	case v4l2PixFmtY16:
		return PixelFormatY16, true
	default:
		return PixelFormatYUYV, false
	}
}

// ColorOrder selects the byte order of converted pixels.
type ColorOrder int

// Colour orders.
const (
	ColorOrderRGB ColorOrder = iota
	ColorOrderBGR
)

// String returns "rgb" or "bgr".
func (o ColorOrder) String() string {
	if o == ColorOrderBGR {
		return "bgr"
	}
	return "rgb"
}

// ParseColorOrder parses "rgb" or "bgr".
func ParseColorOrder(s string) (ColorOrder, error) {
	switch s {
	case "rgb", "rgb24", "":
		return ColorOrderRGB, nil
	case "bgr", "bgr24":
		return ColorOrderBGR, nil
	default:
		return ColorOrderRGB, fmt.Errorf("unknown colour order %q", s)
	}
}

// State is the lifecycle state of a CaptureSession.
type State int

// Session states.
const (
	StateClosed State = iota
	StateOpened
	StateStreaming
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateOpened:
		return "opened"
	case StateStreaming:
		return "streaming"
	default:
		return "closed"
	}
}

// Format holds the values the driver reported back from format negotiation.
type Format struct {
	Width        uint32
	Height       uint32
	PixelFormat  PixelFormat
	FourCC       uint32
	BytesPerLine uint32
	SizeImage    uint32
	// Known is false when the driver chose a fourcc outside PixelFormat.
	Known bool
}

// Capability flags.
const (
	v4l2CapVideoCapture = 0x00000001
	v4l2CapStreaming    = 0x04000000
	v4l2CapDeviceCaps   = 0x80000000
)

// Format flags.
const (
	v4l2FmtFlagEmulated = 0x0002
)

// Pixel formats.
const (
	v4l2PixFmtYUYV  = 0x56595559 // 'YUYV'
	v4l2PixFmtMJPEG = 0x47504A4D // 'MJPG'
	v4l2PixFmtGrey  = 0x59455247 // 'GREY'
	v4l2PixFmtY16   = 0x20363159 // 'Y16 '
	v4l2PixFmtNV12  = 0x3231564E // 'NV12'
)

// Buffer type.
const (
	v4l2BufTypeVideoCapture = 1
)

// Memory type.
const (
	v4l2MemoryMMAP = 1
)

// Field order.
const (
	v4l2FieldNone = 1
)
