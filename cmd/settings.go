// Package cmd holds the v4l2cam subcommands and the capture settings they
// share with the serve command.
package cmd

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
)

// CaptureSettings are the capture options as they arrive from flags,
// environment or the config file.
type CaptureSettings struct {
	DeviceIndex int
	DevicePath  string // overrides DeviceIndex when set
	Width       int
	Height      int
	FPS         string // "30", "29.97" or "30000/1001"; empty keeps the driver default
	Format      string
	ColorOrder  string
}

// ParseFPS accepts a decimal rate or a num/den fraction. Rates that are
// negative, non-finite or have no uint32 frame interval are rejected.
func ParseFPS(s string) (float64, error) {
	fps, err := parseFPS(s)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps < 0 {
		return 0, fmt.Errorf("invalid fps %q: out of range", s)
	}
	if fps > 0 && !v4l2.FrameInterval(fps).Valid() {
		return 0, fmt.Errorf("invalid fps %q: no frame interval fits", s)
	}
	return fps, nil
}

func parseFPS(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid fps %q: %w", s, err)
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid fps %q: %w", s, err)
		}
		if d == 0 {
			return 0, fmt.Errorf("invalid fps %q: zero denominator", s)
		}
		return n / d, nil
	}
	fps, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fps %q: %w", s, err)
	}
	return fps, nil
}

// SessionConfig validates the settings and converts them for v4l2.
func (c CaptureSettings) SessionConfig() (v4l2.Config, v4l2.ColorOrder, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return v4l2.Config{}, 0, fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height)
	}
	if c.DeviceIndex < 0 {
		return v4l2.Config{}, 0, fmt.Errorf("invalid device index %d", c.DeviceIndex)
	}
	fps, err := ParseFPS(c.FPS)
	if err != nil {
		return v4l2.Config{}, 0, err
	}
	format, err := v4l2.ParsePixelFormat(strings.ToLower(c.Format))
	if err != nil {
		return v4l2.Config{}, 0, err
	}
	order, err := v4l2.ParseColorOrder(strings.ToLower(c.ColorOrder))
	if err != nil {
		return v4l2.Config{}, 0, err
	}
	return v4l2.Config{
		DeviceIndex: c.DeviceIndex,
		Width:       uint32(c.Width),
		Height:      uint32(c.Height),
		FrameRate:   fps,
		PixelFormat: format,
	}, order, nil
}

// SessionFactory validates the settings once and returns a constructor for
// fresh sessions, one per (re)open.
func (c CaptureSettings) SessionFactory(logger *slog.Logger) (func() *v4l2.CaptureSession, v4l2.ColorOrder, error) {
	cfg, order, err := c.SessionConfig()
	if err != nil {
		return nil, 0, err
	}
	opts := []v4l2.Option{v4l2.WithLogger(logger)}
	if c.DevicePath != "" {
		path := c.DevicePath
		opts = append(opts, v4l2.WithPathFunc(func(int) string { return path }))
	}
	return func() *v4l2.CaptureSession {
		return v4l2.NewCaptureSession(cfg, opts...)
	}, order, nil
}

// NewSession builds a single capture session from the settings.
func (c CaptureSettings) NewSession(logger *slog.Logger) (*v4l2.CaptureSession, v4l2.ColorOrder, error) {
	factory, order, err := c.SessionFactory(logger)
	if err != nil {
		return nil, 0, err
	}
	return factory(), order, nil
}
