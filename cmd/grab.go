package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/smazurov/v4l2cam/internal/capture"
	"github.com/smazurov/v4l2cam/internal/logging"
	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
	"github.com/spf13/cobra"
)

// CreateGrabCmd creates the grab command. settings is read when the command
// runs, after configuration has been loaded.
func CreateGrabCmd(settings func() CaptureSettings) *cobra.Command {
	var output string
	var count int
	var warmupFrames int
	var warmup time.Duration

	cmd := &cobra.Command{
		Use:   "grab",
		Short: "Capture frames to files",
		Long: `Opens the configured device, discards warm-up frames and writes the next frames to disk. ` +
			`The encoding follows the output extension: .png, .jpg/.jpeg, anything else is raw RGB24/BGR24. ` +
			`With --count above one, files are numbered: frame.png becomes frame-0000.png, frame-0001.png, ...`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logger := logging.GetLogger("capture")

			s := settings()
			session, order, err := s.NewSession(logging.GetLogger("linuxav"))
			if err != nil {
				logger.Error("Invalid capture settings", "error", err)
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := capture.SnapshotOptions{WarmupFrames: warmupFrames, Warmup: warmup}
			err = grabFrames(ctx, logger, session, order, output, count, opts)
			if err != nil {
				logger.Error("Capture failed", "device", session.DevicePath(), "error", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "frame.png", "Output file; the extension selects the encoding")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of frames to write")
	cmd.Flags().IntVar(&warmupFrames, "warmup-frames", 5, "Frames to discard after streaming starts")
	cmd.Flags().DurationVar(&warmup, "warmup", 0, "Minimum time to discard frames for, e.g. 2s for capture cards")

	return cmd
}

// numberedPath inserts a zero-padded frame index before the extension
// when more than one frame is written.
func numberedPath(path string, i, count int) string {
	if count <= 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%04d%s", strings.TrimSuffix(path, ext), i, ext)
}

// grabFrames writes count frames to output. A single frame is written to
// output as is; more frames go to numbered files.
func grabFrames(ctx context.Context, logger *slog.Logger, session capture.Session, order v4l2.ColorOrder, output string, count int, opts capture.SnapshotOptions) error {
	if count == 1 {
		if err := capture.CaptureScreenshot(ctx, session, output, order, opts); err != nil {
			return err
		}
		logger.Info("Frame written", "path", output)
		return nil
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	encoding := capture.EncodingForPath(output)
	return capture.CaptureFrames(ctx, session, count, opts, func(i int, f capture.Frame) error {
		path := numberedPath(output, i, count)
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := capture.Encode(file, f, encoding, order); err != nil {
			file.Close()
			return fmt.Errorf("failed to encode frame %d: %w", f.Sequence, err)
		}
		if err := file.Close(); err != nil {
			return err
		}
		logger.Info("Frame written", "path", path, "sequence", f.Sequence,
			"width", f.Format.Width, "height", f.Format.Height)
		return nil
	})
}
