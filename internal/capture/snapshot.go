package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
)

// SnapshotOptions controls how long a one-shot capture discards frames
// before keeping one. Many devices deliver dark or half-exposed frames right
// after STREAMON; capture cards often need a few seconds to show a signal.
type SnapshotOptions struct {
	WarmupFrames int
	Warmup       time.Duration
}

// Snapshot opens s, discards warm-up frames, copies one frame and closes s.
// The context is checked between grabs; a grab already blocked in the driver
// is not interrupted.
func Snapshot(ctx context.Context, s Session, opts SnapshotOptions) (Frame, error) {
	var frame Frame
	err := CaptureFrames(ctx, s, 1, opts, func(_ int, f Frame) error {
		frame = f
		return nil
	})
	return frame, err
}

// CaptureFrames opens s, discards warm-up frames, hands count consecutive
// frames to handle and closes s. Each frame is a copy, so handle may keep it.
// An error from handle stops the capture and is returned.
func CaptureFrames(ctx context.Context, s Session, count int, opts SnapshotOptions, handle func(i int, f Frame) error) (err error) {
	if count < 1 {
		return fmt.Errorf("invalid frame count %d", count)
	}
	if err := s.Open(); err != nil {
		releaseQuietly(s)
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			releaseQuietly(s)
			if err == nil {
				err = closeErr
			}
		}
	}()

	deadline := time.Now().Add(opts.Warmup)
	kept := 0
	for grabbed := 0; kept < count; {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if _, err := s.Grab(); err != nil {
			return err
		}
		grabbed++
		if grabbed <= opts.WarmupFrames || time.Now().Before(deadline) {
			continue
		}
		if err := handle(kept, snapshotFrame(s)); err != nil {
			return err
		}
		kept++
	}
	return nil
}

// CaptureToBytes takes a snapshot and returns it encoded.
func CaptureToBytes(ctx context.Context, s Session, encoding string, order v4l2.ColorOrder, opts SnapshotOptions) ([]byte, error) {
	frame, err := Snapshot(ctx, s, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, frame, encoding, order); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CaptureScreenshot takes a snapshot and writes it to outputPath, picking
// the encoding from the extension.
func CaptureScreenshot(ctx context.Context, s Session, outputPath string, order v4l2.ColorOrder, opts SnapshotOptions) error {
	outputDir := filepath.Dir(outputPath)
	if outputDir != "." {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
		}
	}

	data, err := CaptureToBytes(ctx, s, EncodingForPath(outputPath), order, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}

// releaseQuietly frees whatever a failed Open or Close left behind.
func releaseQuietly(s Session) {
	if err := s.Release(); err != nil {
		logger.Debug("Release failed", "device", s.DevicePath(), "error", err)
	}
}
