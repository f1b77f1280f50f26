package capture

import (
	"sync"

	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
)

// fakeSession is a scripted Session.
type fakeSession struct {
	mu sync.Mutex

	openErr  error
	grabErrs []error
	closeErr error
	onGrab   func(grabs int)

	format v4l2.Format
	size   int
	data   []byte
	state  v4l2.State
	seq    uint32

	opens    int
	grabs    int
	closes   int
	releases int
}

func newFakeSession(w, h uint32) *fakeSession {
	return &fakeSession{
		format: v4l2.Format{
			Width:        w,
			Height:       h,
			PixelFormat:  v4l2.PixelFormatYUYV,
			FourCC:       0x56595559,
			BytesPerLine: w * 2,
			SizeImage:    w * h * 2,
			Known:        true,
		},
		size: int(w * h * 2),
	}
}

func (f *fakeSession) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErr != nil {
		f.state = v4l2.StateOpened
		return f.openErr
	}
	f.data = make([]byte, f.size)
	f.state = v4l2.StateStreaming
	return nil
}

func (f *fakeSession) Grab() (int, error) {
	f.mu.Lock()
	if f.state != v4l2.StateStreaming {
		f.mu.Unlock()
		return 0, v4l2.ErrNotStreaming
	}
	f.grabs++
	grabs := f.grabs
	var err error
	if len(f.grabErrs) > 0 {
		err = f.grabErrs[0]
		f.grabErrs = f.grabErrs[1:]
	}
	if err == nil {
		f.seq++
		for i := range f.data {
			f.data[i] = byte(f.seq)
		}
	}
	hook := f.onGrab
	f.mu.Unlock()

	if hook != nil {
		hook(grabs)
	}
	if err != nil {
		return 0, err
	}
	return f.size, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == v4l2.StateClosed {
		return v4l2.ErrSessionNotOpen
	}
	f.closes++
	if f.closeErr != nil {
		return f.closeErr
	}
	f.state = v4l2.StateClosed
	f.data = nil
	return nil
}

func (f *fakeSession) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == v4l2.StateClosed {
		return nil
	}
	f.releases++
	f.state = v4l2.StateClosed
	f.data = nil
	return nil
}

func (f *fakeSession) Frame() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}

func (f *fakeSession) Format() v4l2.Format { return f.format }

func (f *fakeSession) Sequence() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

func (f *fakeSession) State() v4l2.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) DevicePath() string { return "/dev/video-fake" }

func (f *fakeSession) counts() (opens, grabs, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.grabs, f.closes
}

func (f *fakeSession) released() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}
