//go:build linux

package v4l2

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

const sysfsVideoDir = "/sys/class/video4linux"

// FindDevices finds all V4L2 video capture devices on the system.
func FindDevices() ([]DeviceInfo, error) {
	return findDevices(sysfsVideoDir, nonBlockingDriver{})
}

func findDevices(sysfsDir string, d Driver) ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysfsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	devices := []DeviceInfo{}
	logger := slog.With("component", "linuxav")

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "video") {
			continue
		}

		devicePath := "/dev/" + entry.Name()
		info, err := queryDevice(d, devicePath)
		if err != nil {
			logger.Debug("failed to query video device", "path", devicePath, "error", err)
			continue
		}

		// Only include capture devices that support mmap streaming
		if info.Caps&v4l2CapVideoCapture == 0 || info.Caps&v4l2CapStreaming == 0 {
			continue
		}
		devices = append(devices, info)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DevicePath < devices[j].DevicePath
	})
	return devices, nil
}

// queryDevice opens the node briefly and reads its capability block.
func queryDevice(d Driver, devicePath string) (DeviceInfo, error) {
	fd, err := d.Open(devicePath)
	if err != nil {
		return DeviceInfo{}, err
	}
	defer d.Close(fd)

	c := v4l2Capability{}
	if err := xioctl(d, fd, vidiocQuerycap, unsafe.Pointer(&c)); err != nil {
		return DeviceInfo{}, err
	}

	// Get the effective capabilities
	caps := c.capabilities
	if caps&v4l2CapDeviceCaps != 0 {
		caps = c.deviceCaps
	}

	return DeviceInfo{
		DevicePath: devicePath,
		DeviceName: cstr(c.card[:]),
		Driver:     cstr(c.driver[:]),
		BusInfo:    cstr(c.busInfo[:]),
		Caps:       caps,
	}, nil
}

// nonBlockingDriver opens nodes with O_NONBLOCK so enumeration never waits
// on a device another process is streaming from.
type nonBlockingDriver struct{ sysDriver }

func (nonBlockingDriver) Open(path string) (int, error) {
	return openNonBlocking(path)
}

// GetFormats returns all supported pixel formats for a device.
func GetFormats(devicePath string) ([]FormatInfo, error) {
	return getFormats(nonBlockingDriver{}, devicePath)
}

func getFormats(d Driver, devicePath string) ([]FormatInfo, error) {
	fd, err := d.Open(devicePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	defer d.Close(fd)

	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		fmtdesc := v4l2Fmtdesc{
			index: i,
			typ:   v4l2BufTypeVideoCapture,
		}

		if ioctlErr := xioctl(d, fd, vidiocEnumFmt, unsafe.Pointer(&fmtdesc)); ioctlErr != nil {
			if errors.Is(ioctlErr, unix.EINVAL) {
				break // End of enumeration
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, ioctlErr)
		}

		formats = append(formats, FormatInfo{
			PixelFormat: fmtdesc.pixelformat,
			FormatName:  cstr(fmtdesc.description[:]),
			Emulated:    fmtdesc.flags&v4l2FmtFlagEmulated != 0,
		})
	}

	return formats, nil
}

// Supported reports whether a FormatInfo is one a CaptureSession can request.
func (f FormatInfo) Supported() bool {
	_, ok := pixelFormatFromFourCC(f.PixelFormat)
	return ok
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
