// Package capture drives a V4L2 capture session: one-shot snapshots for the
// CLI and a continuous runner that keeps the latest frame for the API.
package capture

import (
	"errors"
	"time"

	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
)

// Session is the part of *v4l2.CaptureSession the runner needs.
type Session interface {
	Open() error
	Grab() (int, error)
	Close() error
	Release() error
	Frame() []byte
	Format() v4l2.Format
	Sequence() uint32
	State() v4l2.State
	DevicePath() string
}

var _ Session = (*v4l2.CaptureSession)(nil)

// ErrNoFrame is returned when no frame has been captured yet.
var ErrNoFrame = errors.New("no frame captured yet")

// ErrShortFrame is returned when a frame holds fewer bytes than its format needs.
var ErrShortFrame = errors.New("frame shorter than its format")

// Frame is a copy of one captured buffer together with the negotiated format.
type Frame struct {
	Data      []byte
	Format    v4l2.Format
	Sequence  uint32
	Timestamp time.Time
}

// snapshotFrame copies the session's current frame out of the mapped buffer.
func snapshotFrame(s Session) Frame {
	src := s.Frame()
	data := make([]byte, len(src))
	copy(data, src)
	return Frame{
		Data:      data,
		Format:    s.Format(),
		Sequence:  s.Sequence(),
		Timestamp: time.Now(),
	}
}
