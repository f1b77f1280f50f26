//go:build linux

package v4l2

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

// TestErrnoComparison verifies that errors.Is works correctly with syscall.Errno.
// xioctl and GetFormats rely on errors.Is to spot EINTR and EINVAL.
func TestErrnoComparison(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   error
		expected bool
	}{
		{
			name:     "EINTR matches EINTR",
			err:      syscall.EINTR,
			target:   syscall.EINTR,
			expected: true,
		},
		{
			name:     "wrapped EINTR matches EINTR",
			err:      newSessionError(ErrCodeDequeueFailed, "VIDIOC_DQBUF", syscall.EINTR),
			target:   syscall.EINTR,
			expected: true,
		},
		{
			name:     "ENOTTY matches ENOTTY",
			err:      syscall.ENOTTY,
			target:   syscall.ENOTTY,
			expected: true,
		},
		{
			name:     "EBUSY does not match ENOTTY",
			err:      syscall.EBUSY,
			target:   syscall.ENOTTY,
			expected: false,
		},
		{
			name:     "EINVAL matches EINVAL",
			err:      syscall.EINVAL,
			target:   syscall.EINVAL,
			expected: true,
		},
		{
			name:     "ENODEV matches ENODEV",
			err:      syscall.ENODEV,
			target:   syscall.ENODEV,
			expected: true,
		},
		{
			name:     "ENXIO matches ENXIO",
			err:      syscall.ENXIO,
			target:   syscall.ENXIO,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errors.Is(tt.err, tt.target)
			if result != tt.expected {
				t.Errorf("errors.Is(%v, %v) = %v, want %v",
					tt.err, tt.target, result, tt.expected)
			}
		})
	}
}

func TestFormatFourCC(t *testing.T) {
	tests := []struct {
		name     string
		format   uint32
		expected string
	}{
		{
			name:     "YUYV format",
			format:   v4l2PixFmtYUYV,
			expected: "YUYV",
		},
		{
			name:     "MJPEG format",
			format:   v4l2PixFmtMJPEG,
			expected: "MJPG",
		},
		{
			name:     "H264 format",
			format:   0x34363248,
			expected: "H264",
		},
		{
			name:     "GREY format",
			format:   v4l2PixFmtGrey,
			expected: "GREY",
		},
		{
			name:     "Y16 format",
			format:   v4l2PixFmtY16,
			expected: "Y16 ",
		},
		{
			name:     "NV12 format",
			format:   v4l2PixFmtNV12,
			expected: "NV12",
		},
		{
			name:     "null bytes",
			format:   0x00000000,
			expected: "\x00\x00\x00\x00",
		},
		{
			name:     "all 0xFF bytes",
			format:   0xFFFFFFFF,
			expected: "\xFF\xFF\xFF\xFF",
		},
		{
			name:     "mixed bytes",
			format:   0x01020304,
			expected: "\x04\x03\x02\x01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatFourCC(tt.format)
			if result != tt.expected {
				t.Errorf("FormatFourCC(0x%08X) = %q, want %q", tt.format, result, tt.expected)
			}
		})
	}
}

func TestFramerateFPS(t *testing.T) {
	tests := []struct {
		name        string
		framerate   Framerate
		expectedFPS float64
	}{
		{
			name:        "60 fps (1/60)",
			framerate:   Framerate{Numerator: 1, Denominator: 60},
			expectedFPS: 60.0,
		},
		{
			name:        "30 fps (1/30)",
			framerate:   Framerate{Numerator: 1, Denominator: 30},
			expectedFPS: 30.0,
		},
		{
			name:        "29.97 fps (1001/30000)",
			framerate:   Framerate{Numerator: 1001, Denominator: 30000},
			expectedFPS: 30000.0 / 1001.0, // ~29.97
		},
		{
			name:        "25 fps (1/25)",
			framerate:   Framerate{Numerator: 1, Denominator: 25},
			expectedFPS: 25.0,
		},
		{
			name:        "zero numerator returns 0",
			framerate:   Framerate{Numerator: 0, Denominator: 60},
			expectedFPS: 0.0,
		},
		{
			name:        "zero denominator with non-zero numerator",
			framerate:   Framerate{Numerator: 1, Denominator: 0},
			expectedFPS: 0.0, // Division by numerator=1 gives 0/1=0
		},
		{
			name:        "both zero",
			framerate:   Framerate{Numerator: 0, Denominator: 0},
			expectedFPS: 0.0,
		},
		{
			name:        "large values",
			framerate:   Framerate{Numerator: 1000000, Denominator: 60000000},
			expectedFPS: 60.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.framerate.FPS()
			// Use approximate comparison for floating point
			if math.Abs(result-tt.expectedFPS) > 0.001 {
				t.Errorf("Framerate{%d, %d}.FPS() = %f, want %f",
					tt.framerate.Numerator, tt.framerate.Denominator,
					result, tt.expectedFPS)
			}
		})
	}
}

func TestParsePixelFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    PixelFormat
		wantErr bool
	}{
		{"yuyv", PixelFormatYUYV, false},
		{"", PixelFormatYUYV, false},
		{"mjpeg", PixelFormatMJPEG, false},
		{"mjpg", PixelFormatMJPEG, false},
		{"gray", PixelFormatGrey, false},
		{"y16", PixelFormatY16, false},
		{"h264", PixelFormatYUYV, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePixelFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePixelFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePixelFormat(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestPixelFormatFourCCRoundTrip(t *testing.T) {
	for _, pf := range []PixelFormat{PixelFormatYUYV, PixelFormatMJPEG, PixelFormatGrey, PixelFormatY16} {
		got, ok := pixelFormatFromFourCC(pf.fourcc())
		if !ok || got != pf {
			t.Errorf("pixelFormatFromFourCC(%s) = %s, %v", FormatFourCC(pf.fourcc()), got, ok)
		}
	}

	if _, ok := pixelFormatFromFourCC(v4l2PixFmtNV12); ok {
		t.Error("NV12 should not map to a session pixel format")
	}
	if got := PixelFormat(99).fourcc(); got != v4l2PixFmtYUYV {
		t.Errorf("unknown PixelFormat fourcc = %s, want YUYV", FormatFourCC(got))
	}
}

func TestPixelFormatBytesPerPixel(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   int
	}{
		{PixelFormatYUYV, 2},
		{PixelFormatY16, 2},
		{PixelFormatGrey, 1},
		{PixelFormatMJPEG, 0},
	}
	for _, tt := range tests {
		if got := tt.format.BytesPerPixel(); got != tt.want {
			t.Errorf("%s.BytesPerPixel() = %d, want %d", tt.format, got, tt.want)
		}
	}
}

func TestParseColorOrder(t *testing.T) {
	tests := []struct {
		input   string
		want    ColorOrder
		wantErr bool
	}{
		{"rgb", ColorOrderRGB, false},
		{"bgr", ColorOrderBGR, false},
		{"bgr24", ColorOrderBGR, false},
		{"", ColorOrderRGB, false},
		{"rgba", ColorOrderRGB, true},
	}
	for _, tt := range tests {
		got, err := ParseColorOrder(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseColorOrder(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseColorOrder(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestFindDevices(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"video2", "video0", "vbi0", "v4l-subdev0"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	d := newFakeDriver()
	devices, err := findDevices(dir, d)
	if err != nil {
		t.Fatalf("findDevices() error = %v", err)
	}

	if len(devices) != 2 {
		t.Fatalf("findDevices() returned %d devices, want 2", len(devices))
	}
	if devices[0].DevicePath != "/dev/video0" || devices[1].DevicePath != "/dev/video2" {
		t.Errorf("devices not sorted by path: %s, %s", devices[0].DevicePath, devices[1].DevicePath)
	}
	if devices[0].DeviceName != "Fake Camera" || devices[0].Driver != "fakecam" {
		t.Errorf("device info = %+v", devices[0])
	}
	if d.opens != 2 || d.closes != 2 {
		t.Errorf("opens=%d closes=%d, want 2 and 2", d.opens, d.closes)
	}
}

func TestFindDevicesMissingSysfs(t *testing.T) {
	devices, err := findDevices(filepath.Join(t.TempDir(), "missing"), newFakeDriver())
	if err != nil {
		t.Fatalf("findDevices() error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("findDevices() = %v, want none", devices)
	}
}

func TestFindDevicesSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "video0"), 0o755); err != nil {
		t.Fatal(err)
	}

	d := newFakeDriver()
	d.ioctlErr[vidiocQuerycap] = syscall.ENOTTY
	devices, err := findDevices(dir, d)
	if err != nil {
		t.Fatalf("findDevices() error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("findDevices() = %v, want none", devices)
	}
	if d.closes != 1 {
		t.Errorf("closes = %d, want 1", d.closes)
	}
}

func TestFindDevicesRequiresStreaming(t *testing.T) {
	tests := []struct {
		name string
		caps uint32
		want int
	}{
		{"capture and streaming", v4l2CapVideoCapture | v4l2CapStreaming, 1},
		{"read/write only", v4l2CapVideoCapture, 0},
		{"streaming output", v4l2CapStreaming, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.Mkdir(filepath.Join(dir, "video0"), 0o755); err != nil {
				t.Fatal(err)
			}

			d := newFakeDriver()
			d.caps = tt.caps
			devices, err := findDevices(dir, d)
			if err != nil {
				t.Fatalf("findDevices() error = %v", err)
			}
			if len(devices) != tt.want {
				t.Errorf("findDevices() returned %d devices, want %d", len(devices), tt.want)
			}
		})
	}
}

func TestGetFormats(t *testing.T) {
	d := newFakeDriver()
	d.formats = []uint32{v4l2PixFmtYUYV, v4l2PixFmtMJPEG, v4l2PixFmtNV12}

	formats, err := getFormats(d, "/dev/video0")
	if err != nil {
		t.Fatalf("getFormats() error = %v", err)
	}
	if len(formats) != 3 {
		t.Fatalf("getFormats() returned %d formats, want 3", len(formats))
	}
	if formats[1].FormatName != "MJPG" {
		t.Errorf("formats[1].FormatName = %q, want MJPG", formats[1].FormatName)
	}

	supported := 0
	for _, f := range formats {
		if f.Supported() {
			supported++
		}
	}
	if supported != 2 {
		t.Errorf("supported formats = %d, want 2", supported)
	}
}

func TestGetFormatsOpenFailure(t *testing.T) {
	d := newFakeDriver()
	d.openErr = syscall.EACCES
	if _, err := getFormats(d, "/dev/video0"); !errors.Is(err, syscall.EACCES) {
		t.Errorf("getFormats() error = %v, want EACCES", err)
	}
}
