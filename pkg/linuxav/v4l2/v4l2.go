//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for single-buffer frame capture, device enumeration and YUV conversion.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Capture Sessions
//
// A CaptureSession owns one device handle and exactly one memory-mapped
// capture buffer:
//
//	session := v4l2.NewCaptureSession(v4l2.Config{
//	    DeviceIndex: 0,
//	    Width:       640,
//	    Height:      480,
//	    FrameRate:   30,
//	    PixelFormat: v4l2.PixelFormatYUYV,
//	})
//	if err := session.Open(); err != nil {
//	    _ = session.Close() // open does not roll back
//	    return err
//	}
//	defer session.Close()
//
//	n, err := session.Grab() // blocks until the driver delivers a frame
//	frame := session.Frame() // valid until the next Grab
//
// Grab re-queues the buffer before returning, so the frame must be consumed
// (or copied) before the next call.
//
// # Colour Conversion
//
// Packed YUYV frames convert to interleaved 24-bit RGB or BGR:
//
//	rgb := make([]byte, width*height*3)
//	v4l2.ConvertYUYV(rgb, frame, width, height, v4l2.ColorOrderRGB)
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
package v4l2
