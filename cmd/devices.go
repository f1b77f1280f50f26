package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/smazurov/v4l2cam/internal/logging"
	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
	"github.com/spf13/cobra"
)

// deviceListing is one device with its formats, as printed by the devices command.
type deviceListing struct {
	v4l2.DeviceInfo
	Formats []formatListing `json:"formats"`
}

type formatListing struct {
	FourCC    string `json:"fourcc"`
	Name      string `json:"name"`
	Emulated  bool   `json:"emulated"`
	Supported bool   `json:"supported"`
}

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List V4L2 capture devices and their pixel formats",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logger := logging.GetLogger("devices")

			listings, err := listDevices(v4l2.FindDevices, v4l2.GetFormats)
			if err != nil {
				logger.Error("Failed to list devices", "error", err)
				os.Exit(1)
			}

			if asJSON {
				err = json.NewEncoder(os.Stdout).Encode(listings)
			} else {
				err = printDevices(os.Stdout, listings)
			}
			if err != nil {
				logger.Error("Failed to write device list", "error", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

// listDevices enumerates devices; a device whose formats cannot be read is
// listed without formats.
func listDevices(find func() ([]v4l2.DeviceInfo, error), formats func(string) ([]v4l2.FormatInfo, error)) ([]deviceListing, error) {
	devices, err := find()
	if err != nil {
		return nil, err
	}

	logger := logging.GetLogger("devices")
	listings := make([]deviceListing, 0, len(devices))
	for _, d := range devices {
		l := deviceListing{DeviceInfo: d, Formats: []formatListing{}}
		found, err := formats(d.DevicePath)
		if err != nil {
			logger.Warn("Failed to read formats", "device", d.DevicePath, "error", err)
		}
		for _, f := range found {
			l.Formats = append(l.Formats, formatListing{
				FourCC:    v4l2.FormatFourCC(f.PixelFormat),
				Name:      f.FormatName,
				Emulated:  f.Emulated,
				Supported: f.Supported(),
			})
		}
		listings = append(listings, l)
	}
	return listings, nil
}

func printDevices(w io.Writer, listings []deviceListing) error {
	if len(listings) == 0 {
		_, err := fmt.Fprintln(w, "no capture devices found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tNAME\tDRIVER\tFORMATS")
	for _, l := range listings {
		formats := ""
		for i, f := range l.Formats {
			if i > 0 {
				formats += " "
			}
			formats += f.FourCC
			if !f.Supported {
				formats += "*"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.DevicePath, l.DeviceName, l.Driver, formats)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "* not available as a capture format")
	return err
}
