package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/v4l2cam/internal/api/models"
	"github.com/smazurov/v4l2cam/internal/capture"
	"github.com/smazurov/v4l2cam/internal/events"
	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
)

type fakeSource struct {
	frame  capture.Frame
	err    error
	status capture.Status
}

func (f *fakeSource) Latest() (capture.Frame, error) { return f.frame, f.err }
func (f *fakeSource) Status() capture.Status         { return f.status }

type fakeDevices struct {
	devices []v4l2.DeviceInfo
	formats []v4l2.FormatInfo
	err     error
	opened  []string
}

func (f *fakeDevices) FindDevices() ([]v4l2.DeviceInfo, error) { return f.devices, f.err }

func (f *fakeDevices) GetFormats(path string) ([]v4l2.FormatInfo, error) {
	f.opened = append(f.opened, path)
	return f.formats, nil
}

// redFrame is a 2x1 YUYV frame that converts to pure red.
func redFrame() capture.Frame {
	return capture.Frame{
		Data:     []byte{81, 90, 81, 240},
		Sequence: 42,
		Format: v4l2.Format{
			Width:        2,
			Height:       1,
			PixelFormat:  v4l2.PixelFormatYUYV,
			FourCC:       0x56595559,
			BytesPerLine: 4,
			SizeImage:    4,
			Known:        true,
		},
	}
}

func newTestServer(t *testing.T, opts *Options) *httptest.Server {
	t.Helper()
	if opts.Source == nil {
		opts.Source = &fakeSource{err: capture.ErrNoFrame}
	}
	if opts.Devices == nil {
		opts.Devices = &fakeDevices{}
	}
	ts := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, auth bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if auth {
		req.SetBasicAuth("admin", "secret")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndVersionNeedNoAuth(t *testing.T) {
	ts := newTestServer(t, &Options{AuthUsername: "admin", AuthPassword: "secret"})

	for _, path := range []string{"/api/health", "/api/version"} {
		if resp := get(t, ts.URL+path, false); resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, &Options{AuthUsername: "admin", AuthPassword: "secret"})

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Bearer token", "", http.StatusUnauthorized},
		{"bad base64", "Basic !!!", "", http.StatusUnauthorized},
		{"wrong password", "Basic YWRtaW46bm9wZQ==", "", http.StatusUnauthorized},
		{"valid header", "Basic YWRtaW46c2VjcmV0", "", http.StatusOK},
		{"valid query", "", "?auth=YWRtaW46c2VjcmV0", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/session"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	started := time.Date(2026, 1, 27, 10, 30, 0, 0, time.UTC)
	source := &fakeSource{status: capture.Status{
		SessionID:  "abc",
		DevicePath: "/dev/video-api",
		State:      "streaming",
		Format:     redFrame().Format,
		Frames:     7,
		Errors:     1,
		LastError:  "DQBUF_FAILED: dequeue buffer: input/output error",
		StartedAt:  started,
		Restarts:   2,
	}}
	ts := newTestServer(t, &Options{Source: source})

	resp := get(t, ts.URL+"/api/session", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got models.SessionData
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "abc" || got.State != "streaming" || got.Frames != 7 || got.Errors != 1 || got.Restarts != 2 {
		t.Errorf("session = %+v", got)
	}
	if got.Format == nil || got.Format.PixelFormat != "YUYV" || got.Format.Width != 2 {
		t.Errorf("format = %+v, want 2x1 YUYV", got.Format)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
}

func TestGetSessionBeforeOpen(t *testing.T) {
	ts := newTestServer(t, &Options{Source: &fakeSource{status: capture.Status{State: "closed"}}})

	var got models.SessionData
	if err := json.NewDecoder(get(t, ts.URL+"/api/session", false).Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Format != nil || got.StartedAt != nil {
		t.Errorf("unopened session should omit format and start time: %+v", got)
	}
}

func TestGetFrame(t *testing.T) {
	ts := newTestServer(t, &Options{Source: &fakeSource{frame: redFrame()}})

	t.Run("png", func(t *testing.T) {
		resp := get(t, ts.URL+"/api/frame", false)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("Content-Type = %q", ct)
		}
		if seq := resp.Header.Get("X-Frame-Sequence"); seq != "42" {
			t.Errorf("X-Frame-Sequence = %q, want 42", seq)
		}
		img, err := png.Decode(resp.Body)
		if err != nil {
			t.Fatalf("body is not a PNG: %v", err)
		}
		if r, g, b, _ := img.At(1, 0).RGBA(); r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
			t.Errorf("pixel = (%d,%d,%d), want red", r>>8, g>>8, b>>8)
		}
	})

	t.Run("raw in both orders", func(t *testing.T) {
		tests := []struct {
			query string
			want  []byte
		}{
			{"?encoding=raw", []byte{255, 0, 0, 255, 0, 0}},
			{"?encoding=raw&order=bgr", []byte{0, 0, 255, 0, 0, 255}},
		}
		for _, tt := range tests {
			resp := get(t, ts.URL+"/api/frame"+tt.query, false)
			body, _ := io.ReadAll(resp.Body)
			if !bytes.Equal(body, tt.want) {
				t.Errorf("%s body = %v, want %v", tt.query, body, tt.want)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
				t.Errorf("%s Content-Type = %q", tt.query, ct)
			}
		}
	})

	t.Run("unknown encoding", func(t *testing.T) {
		if resp := get(t, ts.URL+"/api/frame?encoding=gif", false); resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", resp.StatusCode)
		}
	})
}

func TestGetFrameDefaultOrder(t *testing.T) {
	ts := newTestServer(t, &Options{
		Source:     &fakeSource{frame: redFrame()},
		ColorOrder: v4l2.ColorOrderBGR,
	})

	body, _ := io.ReadAll(get(t, ts.URL+"/api/frame?encoding=raw", false).Body)
	if want := []byte{0, 0, 255, 0, 0, 255}; !bytes.Equal(body, want) {
		t.Errorf("body = %v, want %v", body, want)
	}
}

func TestGetFrameErrors(t *testing.T) {
	tests := []struct {
		name   string
		source *fakeSource
		want   int
	}{
		{"nothing captured", &fakeSource{err: capture.ErrNoFrame}, http.StatusServiceUnavailable},
		{"source failure", &fakeSource{err: errors.New("boom")}, http.StatusInternalServerError},
		{"short frame", &fakeSource{frame: capture.Frame{Data: []byte{1}, Format: redFrame().Format}}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &Options{Source: tt.source})
			if resp := get(t, ts.URL+"/api/frame", false); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestDevices(t *testing.T) {
	devices := &fakeDevices{
		devices: []v4l2.DeviceInfo{{
			DevicePath: "/dev/video0",
			DeviceName: "USB Camera",
			Driver:     "uvcvideo",
			Caps:       capVideoCapture | capStreaming,
		}},
		formats: []v4l2.FormatInfo{
			{PixelFormat: 0x56595559, FormatName: "YUYV 4:2:2"},
			{PixelFormat: 0x34363248, FormatName: "H.264"},
		},
	}
	ts := newTestServer(t, &Options{Devices: devices})

	var list models.DeviceData
	if err := json.NewDecoder(get(t, ts.URL+"/api/devices", false).Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || list.Devices[0].Driver != "uvcvideo" {
		t.Fatalf("devices = %+v", list)
	}
	if caps := strings.Join(list.Devices[0].Capabilities, ","); caps != "Video Capture,Streaming I/O" {
		t.Errorf("capabilities = %q", caps)
	}

	var formats models.DeviceFormatsData
	if err := json.NewDecoder(get(t, ts.URL+"/api/devices/formats?device=/dev/video0", false).Body).Decode(&formats); err != nil {
		t.Fatal(err)
	}
	if len(formats.Formats) != 2 || !formats.Formats[0].Supported || formats.Formats[1].Supported {
		t.Errorf("formats = %+v", formats.Formats)
	}
	if formats.Formats[1].FourCC != "H264" {
		t.Errorf("fourcc = %q, want H264", formats.Formats[1].FourCC)
	}

	if resp := get(t, ts.URL+"/api/devices/formats?device=/etc/passwd", false); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", resp.StatusCode)
	}
	if len(devices.opened) != 1 {
		t.Errorf("GetFormats called for %v, want only /dev/video0", devices.opened)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "v4l2cam_up 1\n")
	})
	ts := newTestServer(t, &Options{
		AuthUsername:      "admin",
		AuthPassword:      "secret",
		PrometheusHandler: handler,
	})

	resp := get(t, ts.URL+"/metrics", false)
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "v4l2cam_up") {
		t.Errorf("GET /metrics = %d %q", resp.StatusCode, body)
	}
}

// readEvent publishes with publish until a stream opened on path yields an
// event named name, and returns its data line.
func readEvent(t *testing.T, path, name string, publish func(*events.Bus)) string {
	t.Helper()
	bus := events.New()
	ts := newTestServer(t, &Options{EventBus: bus})

	// The handler subscribes only once the request arrives, so keep
	// publishing until an event makes it through.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				publish(bus)
			}
		}
	}()

	resp := get(t, ts.URL+path, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	timeout := time.After(2 * time.Second)
	var current string
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before an event arrived")
			}
			if ev, found := strings.CutPrefix(line, "event: "); found {
				current = ev
			}
			if strings.HasPrefix(line, "data:") {
				if current == name {
					return line
				}
				if current == "frame-captured" && name != current {
					t.Errorf("unexpected frame-captured event on %s", path)
				}
			}
		case <-timeout:
			t.Fatalf("no %s event received", name)
		}
	}
}

func TestEventsStream(t *testing.T) {
	data := readEvent(t, "/api/events?frames=true", "frame-captured", func(bus *events.Bus) {
		bus.Publish(events.FrameCapturedEvent{SessionID: "abc", Sequence: 1, Bytes: 4})
	})
	if !strings.Contains(data, `"session_id":"abc"`) {
		t.Errorf("data = %q", data)
	}
}

func TestEventsStreamOmitsFramesByDefault(t *testing.T) {
	data := readEvent(t, "/api/events", "session-opened", func(bus *events.Bus) {
		bus.Publish(events.FrameCapturedEvent{SessionID: "abc", Sequence: 1, Bytes: 4})
		bus.Publish(events.SessionOpenedEvent{SessionID: "abc", DevicePath: "/dev/video0"})
	})
	if !strings.Contains(data, `"device_path":"/dev/video0"`) {
		t.Errorf("data = %q", data)
	}
}

func TestEventsStreamDisabledWithoutBus(t *testing.T) {
	ts := newTestServer(t, &Options{})
	if resp := get(t, ts.URL+"/api/events", false); resp.StatusCode == http.StatusOK {
		t.Error("/api/events should not be served without an event bus")
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		wantVary string
		want     string
	}{
		{"any origin", "", "", "*"},
		{"fixed origin", "http://cam.local", "Origin", "http://cam.local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &Options{CORSOrigin: tt.origin})

			req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/frame", nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent {
				t.Errorf("preflight status = %d, want 204", resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
			if got := resp.Header.Get("Vary"); got != tt.wantVary {
				t.Errorf("Vary = %q, want %q", got, tt.wantVary)
			}

			health := get(t, ts.URL+"/api/health", false)
			if got := health.Header.Get("Access-Control-Expose-Headers"); got != "X-Frame-Sequence" {
				t.Errorf("Expose-Headers = %q, want X-Frame-Sequence", got)
			}
		})
	}
}
