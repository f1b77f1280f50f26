package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/v4l2cam/internal/api/models"
	"github.com/smazurov/v4l2cam/internal/capture"
	"github.com/smazurov/v4l2cam/internal/logging"
	"github.com/smazurov/v4l2cam/internal/metrics"
	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
)

// sessionData merges the runner status with the device's metric totals.
func sessionData(st capture.Status) models.SessionData {
	data := models.SessionData{
		SessionID:  st.SessionID,
		DevicePath: st.DevicePath,
		State:      st.State,
		Frames:     st.Frames,
		Errors:     st.Errors,
		LastError:  st.LastError,
		Restarts:   st.Restarts,
		LogLevels:  logging.Levels(),
	}
	if st.Format.Width > 0 {
		data.Format = &models.FormatData{
			Width:        st.Format.Width,
			Height:       st.Format.Height,
			PixelFormat:  v4l2.FormatFourCC(st.Format.FourCC),
			BytesPerLine: st.Format.BytesPerLine,
			SizeImage:    st.Format.SizeImage,
		}
	}
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		data.StartedAt = &started
	}
	if stats := metrics.GetCaptureStats(st.DevicePath); stats != nil {
		data.Bytes = stats.Bytes
		if !stats.LastFrame.IsZero() {
			last := stats.LastFrame
			data.LastFrame = &last
		}
	}
	return data
}

// registerSessionRoutes registers the status and latest-frame endpoints.
func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "Session",
		Description: "Get the capture session state, negotiated format and counters",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SessionResponse, error) {
		return &models.SessionResponse{Body: sessionData(s.source.Status())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-frame",
		Method:      http.MethodGet,
		Path:        "/api/frame",
		Summary:     "Latest Frame",
		Description: "Get the most recently captured frame as PNG, JPEG or packed 24-bit pixels",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 500, 503},
	}, func(_ context.Context, input *models.FrameInput) (*models.FrameResponse, error) {
		frame, err := s.source.Latest()
		if errors.Is(err, capture.ErrNoFrame) {
			return nil, huma.Error503ServiceUnavailable("No frame captured yet")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to read frame", err)
		}

		order := s.options.ColorOrder
		if input.Order != "" {
			if order, err = v4l2.ParseColorOrder(input.Order); err != nil {
				return nil, huma.Error400BadRequest("Invalid colour order", err)
			}
		}

		encoding := input.Encoding
		if encoding == "" {
			encoding = capture.EncodingPNG
		}

		var buf bytes.Buffer
		if err := capture.Encode(&buf, frame, encoding, order); err != nil {
			s.logger.Warn("Failed to encode frame", "encoding", encoding, "sequence", frame.Sequence, "error", err)
			return nil, huma.Error500InternalServerError("Failed to encode frame", err)
		}

		return &models.FrameResponse{
			ContentType: capture.ContentType(encoding),
			Sequence:    strconv.FormatUint(uint64(frame.Sequence), 10),
			Body:        buf.Bytes(),
		}, nil
	})
}
