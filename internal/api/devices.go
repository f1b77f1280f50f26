package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/v4l2cam/internal/api/models"
	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
)

// systemDevices reads the devices present on this host.
type systemDevices struct{}

func (systemDevices) FindDevices() ([]v4l2.DeviceInfo, error) { return v4l2.FindDevices() }

func (systemDevices) GetFormats(devicePath string) ([]v4l2.FormatInfo, error) {
	return v4l2.GetFormats(devicePath)
}

// V4L2 capability flags reported in the device list (from linux/videodev2.h)
const (
	capVideoCapture       = 0x00000001
	capVideoOutput        = 0x00000002
	capVideoOverlay       = 0x00000004
	capVideoCaptureMplane = 0x00001000
	capVideoM2M           = 0x00008000
	capExtPixFormat       = 0x00200000
	capMetaCapture        = 0x00800000
	capReadWrite          = 0x01000000
	capStreaming          = 0x04000000
	capIOMC               = 0x20000000
)

// capabilityNames is ordered by bit so the output is stable.
var capabilityNames = []struct {
	flag uint32
	name string
}{
	{capVideoCapture, "Video Capture"},
	{capVideoOutput, "Video Output"},
	{capVideoOverlay, "Video Overlay"},
	{capVideoCaptureMplane, "Video Capture Multiplanar"},
	{capVideoM2M, "Video Memory-to-Memory"},
	{capExtPixFormat, "Extended Pix Format"},
	{capMetaCapture, "Metadata Capture"},
	{capReadWrite, "Read/Write"},
	{capStreaming, "Streaming I/O"},
	{capIOMC, "I/O Media Controller"},
}

// translateCapabilities converts V4L2 capability flags to readable strings
func translateCapabilities(caps uint32) []string {
	capabilities := []string{}
	for _, c := range capabilityNames {
		if caps&c.flag != 0 {
			capabilities = append(capabilities, c.name)
		}
	}
	return capabilities
}

// registerDeviceRoutes registers all device-related endpoints
func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List all V4L2 video capture devices",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.DeviceResponse, error) {
		found, err := s.devices.FindDevices()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get devices", err)
		}

		devices := make([]models.DeviceInfo, len(found))
		for i, d := range found {
			devices[i] = models.DeviceInfo{
				DevicePath:   d.DevicePath,
				DeviceName:   d.DeviceName,
				Driver:       d.Driver,
				BusInfo:      d.BusInfo,
				Caps:         d.Caps,
				Capabilities: translateCapabilities(d.Caps),
			}
		}
		return &models.DeviceResponse{
			Body: models.DeviceData{Devices: devices, Count: len(devices)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "device-formats",
		Method:      http.MethodGet,
		Path:        "/api/devices/formats",
		Summary:     "Formats",
		Description: "List the pixel formats a device offers and whether a capture session can request them",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(_ context.Context, input *models.DeviceFormatsInput) (*models.DeviceFormatsResponse, error) {
		known, err := s.devices.FindDevices()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get devices", err)
		}
		if !hasDevice(known, input.Device) {
			return nil, huma.Error404NotFound("Device not found: " + input.Device)
		}

		found, err := s.devices.GetFormats(input.Device)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get device formats", err)
		}

		formats := make([]models.FormatInfo, len(found))
		for i, f := range found {
			formats[i] = models.FormatInfo{
				FourCC:       v4l2.FormatFourCC(f.PixelFormat),
				OriginalName: f.FormatName,
				Emulated:     f.Emulated,
				Supported:    f.Supported(),
			}
		}
		return &models.DeviceFormatsResponse{
			Body: models.DeviceFormatsData{DevicePath: input.Device, Formats: formats},
		}, nil
	})
}

// hasDevice keeps the formats endpoint from opening arbitrary paths.
func hasDevice(devices []v4l2.DeviceInfo, path string) bool {
	for _, d := range devices {
		if d.DevicePath == path {
			return true
		}
	}
	return false
}
