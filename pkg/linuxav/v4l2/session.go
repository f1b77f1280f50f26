//go:build linux

package v4l2

import (
	"fmt"
	"log/slog"
	"unsafe"
)

// Config describes the capture a session should negotiate.
type Config struct {
	DeviceIndex int
	Width       uint32
	Height      uint32
	// FrameRate in frames per second; zero or negative keeps the driver default.
	FrameRate   float64
	PixelFormat PixelFormat
}

// DevicePath returns the conventional node for a device index.
func DevicePath(index int) string {
	return fmt.Sprintf("/dev/video%d", index)
}

// Option configures a CaptureSession.
type Option func(*CaptureSession)

// WithDriver replaces the kernel driver surface, mainly for tests.
func WithDriver(d Driver) Option {
	return func(s *CaptureSession) {
		s.driver = d
	}
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(s *CaptureSession) {
		s.logger = logger
	}
}

// WithPathFunc overrides how the device index maps to a node path.
func WithPathFunc(fn func(index int) string) Option {
	return func(s *CaptureSession) {
		s.pathFunc = fn
	}
}

// CaptureSession owns one V4L2 capture channel: the device handle, exactly
// one memory-mapped buffer and the streaming state.
//
// A session is not safe for concurrent use. Callers serialize Open, Grab and
// Close, and must finish reading Frame before calling Grab again because the
// driver refills the same buffer.
type CaptureSession struct {
	cfg      Config
	driver   Driver
	pathFunc func(int) string
	logger   *slog.Logger

	fd        int
	state     State
	buf       *mappedBuffer
	format    Format
	bytesUsed int
	sequence  uint32
}

// NewCaptureSession creates a closed session for cfg.
func NewCaptureSession(cfg Config, opts ...Option) *CaptureSession {
	s := &CaptureSession{
		cfg:      cfg,
		driver:   SystemDriver(),
		pathFunc: DevicePath,
		logger:   slog.With("component", "linuxav"),
		fd:       -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open negotiates the format and frame interval, maps a single buffer and
// starts streaming.
//
// Each step either succeeds or Open returns its SessionError. Earlier steps
// are not rolled back: the device stays open (and the buffer mapped, if that
// step was reached), so callers should Close after a failed Open.
func (s *CaptureSession) Open() error {
	if s == nil {
		return newSessionError(ErrCodeNullSession, "session is nil", nil)
	}
	if s.state != StateClosed {
		return newSessionError(ErrCodeSessionAlreadyOpen, "session is already open", nil)
	}
	if s.cfg.Width == 0 || s.cfg.Height == 0 {
		return newSessionError(ErrCodeInvalidConfig,
			fmt.Sprintf("invalid frame size %dx%d", s.cfg.Width, s.cfg.Height), nil)
	}

	path := s.DevicePath()
	fd, err := s.driver.Open(path)
	if err != nil {
		s.logger.Debug("open device failed", "path", path, "error", err)
		return newSessionError(ErrCodeDeviceUnavailable, "open "+path, err)
	}
	s.fd = fd
	s.state = StateOpened

	caps := v4l2Capability{}
	if err := xioctl(s.driver, s.fd, vidiocQuerycap, unsafe.Pointer(&caps)); err != nil {
		s.logger.Debug("query capability failed", "path", path, "error", err)
		return newSessionError(ErrCodeCapabilityQueryFailed, "VIDIOC_QUERYCAP", err)
	}

	if err := s.setFormat(); err != nil {
		return err
	}

	if s.cfg.FrameRate > 0 {
		if err := s.setFrameRate(); err != nil {
			return err
		}
	}

	req := v4l2RequestBuffers{
		count:  1,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMMAP,
	}
	if err := xioctl(s.driver, s.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		s.logger.Debug("request buffer failed", "path", path, "error", err)
		return newSessionError(ErrCodeBufferRequestFailed, "VIDIOC_REQBUFS", err)
	}

	qb := v4l2Buffer{
		index:  0,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMMAP,
	}
	if err := xioctl(s.driver, s.fd, vidiocQuerybuf, unsafe.Pointer(&qb)); err != nil {
		s.logger.Debug("query buffer failed", "path", path, "error", err)
		return newSessionError(ErrCodeBufferQueryFailed, "VIDIOC_QUERYBUF", err)
	}

	buf, err := mapBuffer(s.driver, s.fd, qb.offset, qb.length)
	if err != nil {
		s.logger.Debug("map buffer failed", "path", path, "length", qb.length, "error", err)
		return newSessionError(ErrCodeBufferMapFailed,
			fmt.Sprintf("mmap %d bytes at offset %d", qb.length, qb.offset), err)
	}
	s.buf = buf

	qb.typ = v4l2BufTypeVideoCapture
	qb.memory = v4l2MemoryMMAP
	qb.index = 0
	if err := xioctl(s.driver, s.fd, vidiocQbuf, unsafe.Pointer(&qb)); err != nil {
		s.logger.Debug("queue buffer failed", "path", path, "error", err)
		return newSessionError(ErrCodeBufferEnqueueFailed, "VIDIOC_QBUF", err)
	}

	typ := uint32(v4l2BufTypeVideoCapture)
	if err := xioctl(s.driver, s.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		s.logger.Debug("start stream failed", "path", path, "error", err)
		return newSessionError(ErrCodeStreamStartFailed, "VIDIOC_STREAMON", err)
	}
	s.state = StateStreaming

	s.logger.Debug("capture session streaming",
		"path", path,
		"width", s.format.Width,
		"height", s.format.Height,
		"format", FormatFourCC(s.format.FourCC),
		"buffer_length", s.buf.Len())
	return nil
}

// setFormat issues VIDIOC_S_FMT and records what the driver wrote back.
func (s *CaptureSession) setFormat() error {
	f := v4l2Format{typ: v4l2BufTypeVideoCapture}
	f.pix.width = s.cfg.Width
	f.pix.height = s.cfg.Height
	f.pix.pixelformat = s.cfg.PixelFormat.fourcc()
	f.pix.field = v4l2FieldNone

	if err := xioctl(s.driver, s.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		s.logger.Debug("setup format failed", "error", err)
		return newSessionError(ErrCodeFormatNegotiationFailed,
			fmt.Sprintf("VIDIOC_S_FMT %dx%d %s", s.cfg.Width, s.cfg.Height, s.cfg.PixelFormat), err)
	}

	pf, known := pixelFormatFromFourCC(f.pix.pixelformat)
	s.format = Format{
		Width:        f.pix.width,
		Height:       f.pix.height,
		PixelFormat:  pf,
		FourCC:       f.pix.pixelformat,
		BytesPerLine: f.pix.bytesperline,
		SizeImage:    f.pix.sizeimage,
		Known:        known,
	}
	if f.pix.width != s.cfg.Width || f.pix.height != s.cfg.Height || f.pix.pixelformat != s.cfg.PixelFormat.fourcc() {
		s.logger.Debug("driver adjusted format",
			"requested_width", s.cfg.Width,
			"requested_height", s.cfg.Height,
			"width", f.pix.width,
			"height", f.pix.height,
			"format", FormatFourCC(f.pix.pixelformat))
	}
	return nil
}

// setFrameRate issues VIDIOC_S_PARM with the exact frame interval.
func (s *CaptureSession) setFrameRate() error {
	interval := FrameInterval(s.cfg.FrameRate)
	if !interval.Valid() {
		return newSessionError(ErrCodeFrameRateNegotiationFailed,
			fmt.Sprintf("%g fps has no representable frame interval", s.cfg.FrameRate), nil)
	}
	parm := v4l2StreamParm{typ: v4l2BufTypeVideoCapture}
	parm.capture.timeperframe = v4l2Fract{
		numerator:   interval.Numerator,
		denominator: interval.Denominator,
	}

	if err := xioctl(s.driver, s.fd, vidiocSParm, unsafe.Pointer(&parm)); err != nil {
		s.logger.Debug("setup frame rate failed", "fps", s.cfg.FrameRate, "error", err)
		return newSessionError(ErrCodeFrameRateNegotiationFailed,
			fmt.Sprintf("VIDIOC_S_PARM %d/%d", interval.Numerator, interval.Denominator), err)
	}
	return nil
}

// Grab blocks until the driver fills the buffer, then hands the buffer back
// to the driver and returns the number of valid bytes. Interrupted waits are
// retried. On error the frame is lost but the session stays usable.
func (s *CaptureSession) Grab() (int, error) {
	if s == nil {
		return 0, newSessionError(ErrCodeNullSession, "session is nil", nil)
	}
	if s.state != StateStreaming {
		return 0, newSessionError(ErrCodeNotStreaming, "session is "+s.state.String(), nil)
	}

	b := v4l2Buffer{
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMMAP,
		length: uint32(s.buf.Len()),
	}
	if err := xioctl(s.driver, s.fd, vidiocDqbuf, unsafe.Pointer(&b)); err != nil {
		s.bytesUsed = 0
		s.logger.Debug("dequeue buffer failed", "error", err)
		return 0, newSessionError(ErrCodeDequeueFailed, "VIDIOC_DQBUF", err)
	}

	n := int(b.bytesused)
	if n > s.buf.Len() {
		n = s.buf.Len()
	}
	s.bytesUsed = n
	s.sequence = b.sequence

	if err := xioctl(s.driver, s.fd, vidiocQbuf, unsafe.Pointer(&b)); err != nil {
		s.bytesUsed = 0
		s.logger.Debug("queue buffer failed", "error", err)
		return 0, newSessionError(ErrCodeEnqueueFailed, "VIDIOC_QBUF", err)
	}

	return n, nil
}

// Close stops streaming, unmaps the buffer and closes the device.
//
// The first failing step aborts the remaining ones and leaves the session
// partially torn down; calling Close again resumes from that step. Close on
// a session that is not open returns ErrSessionNotOpen without touching the
// device, so a second Close can never release the same resources twice.
func (s *CaptureSession) Close() error {
	if s == nil {
		return newSessionError(ErrCodeNullSession, "session is nil", nil)
	}
	if s.state == StateClosed {
		return newSessionError(ErrCodeSessionNotOpen, "session is not open", nil)
	}

	typ := uint32(v4l2BufTypeVideoCapture)
	if err := xioctl(s.driver, s.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		s.logger.Debug("stop stream failed", "error", err)
		return newSessionError(ErrCodeStreamStopFailed, "VIDIOC_STREAMOFF", err)
	}
	s.state = StateOpened

	if err := s.buf.release(); err != nil {
		s.logger.Debug("unmap buffer failed", "error", err)
		return newSessionError(ErrCodeBufferUnmapFailed, "munmap", err)
	}
	s.buf = nil
	s.bytesUsed = 0

	if err := s.driver.Close(s.fd); err != nil {
		s.logger.Debug("close device failed", "error", err)
		return newSessionError(ErrCodeDeviceCloseFailed, "close "+s.DevicePath(), err)
	}
	s.fd = -1
	s.state = StateClosed

	return nil
}

// Release tears the session down after a failed Open or Close. Unlike Close
// it only issues STREAMOFF when the stream was started, and it keeps going
// past a failed step so the buffer is unmapped and the descriptor closed
// regardless. The first failure is returned. Releasing a closed session
// does nothing.
func (s *CaptureSession) Release() error {
	if s == nil {
		return newSessionError(ErrCodeNullSession, "session is nil", nil)
	}
	if s.state == StateClosed {
		return nil
	}

	var first error
	if s.state == StateStreaming {
		typ := uint32(v4l2BufTypeVideoCapture)
		if err := xioctl(s.driver, s.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
			s.logger.Debug("stop stream failed", "error", err)
			first = newSessionError(ErrCodeStreamStopFailed, "VIDIOC_STREAMOFF", err)
		}
	}

	if err := s.buf.release(); err != nil {
		s.logger.Debug("unmap buffer failed", "error", err)
		if first == nil {
			first = newSessionError(ErrCodeBufferUnmapFailed, "munmap", err)
		}
	}
	s.buf = nil
	s.bytesUsed = 0

	if err := s.driver.Close(s.fd); err != nil {
		s.logger.Debug("close device failed", "error", err)
		if first == nil {
			first = newSessionError(ErrCodeDeviceCloseFailed, "close "+s.DevicePath(), err)
		}
	}
	s.fd = -1
	s.state = StateClosed

	return first
}

// Frame returns the bytes written by the driver for the last successful
// Grab. The slice aliases the mapped buffer and is only valid until the next
// Grab or Close.
func (s *CaptureSession) Frame() []byte {
	if s == nil || s.buf == nil {
		return nil
	}
	return s.buf.Bytes()[:s.bytesUsed]
}

// Buffer returns the whole mapped region, or nil when nothing is mapped.
func (s *CaptureSession) Buffer() []byte {
	if s == nil {
		return nil
	}
	return s.buf.Bytes()
}

// BufferLen returns the driver-reported buffer length, or 0 when unmapped.
func (s *CaptureSession) BufferLen() int {
	if s == nil {
		return 0
	}
	return s.buf.Len()
}

// State returns the current lifecycle state.
func (s *CaptureSession) State() State {
	if s == nil {
		return StateClosed
	}
	return s.state
}

// Streaming reports whether the buffer is queued and the stream is on.
func (s *CaptureSession) Streaming() bool {
	return s.State() == StateStreaming
}

// Format returns the format the driver accepted during Open. Drivers may
// silently adjust the requested size or pixel format.
func (s *CaptureSession) Format() Format {
	if s == nil {
		return Format{}
	}
	return s.format
}

// Sequence returns the driver sequence number of the last grabbed frame.
func (s *CaptureSession) Sequence() uint32 {
	if s == nil {
		return 0
	}
	return s.sequence
}

// Config returns the requested capture configuration.
func (s *CaptureSession) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.cfg
}

// DevicePath returns the node this session opens.
func (s *CaptureSession) DevicePath() string {
	return s.pathFunc(s.cfg.DeviceIndex)
}
