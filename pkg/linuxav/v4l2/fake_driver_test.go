//go:build linux

package v4l2

import (
	"syscall"
	"unsafe"
)

// fakeDriver emulates a single-buffer capture device.
type fakeDriver struct {
	openErr   error
	mmapErr   error
	munmapErr error
	closeErr  error
	ioctlErr  map[uint]error
	eintr     map[uint]int

	caps      uint32
	bufLen    uint32
	bytesUsed uint32
	formats   []uint32
	negotiate func(pix *v4l2PixFormat)

	calls     []string
	opens     int
	closes    int
	munmaps   int
	queued    int
	streaming bool
	sequence  uint32
	mapped    []byte
	lastFmt   v4l2PixFormat
	lastParm  v4l2StreamParm
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		ioctlErr:  map[uint]error{},
		eintr:     map[uint]int{},
		caps:      v4l2CapVideoCapture | v4l2CapStreaming,
		bufLen:    640 * 480 * 2,
		bytesUsed: 640 * 480 * 2,
	}
}

func requestName(req uint) string {
	switch req {
	case vidiocQuerycap:
		return "QUERYCAP"
	case vidiocEnumFmt:
		return "ENUM_FMT"
	case vidiocSFmt:
		return "S_FMT"
	case vidiocSParm:
		return "S_PARM"
	case vidiocReqbufs:
		return "REQBUFS"
	case vidiocQuerybuf:
		return "QUERYBUF"
	case vidiocQbuf:
		return "QBUF"
	case vidiocDqbuf:
		return "DQBUF"
	case vidiocStreamon:
		return "STREAMON"
	case vidiocStreamoff:
		return "STREAMOFF"
	default:
		return "UNKNOWN"
	}
}

func (f *fakeDriver) Open(_ string) (int, error) {
	f.calls = append(f.calls, "open")
	if f.openErr != nil {
		return -1, f.openErr
	}
	f.opens++
	return 3, nil
}

func (f *fakeDriver) Ioctl(_ int, req uint, arg unsafe.Pointer) error {
	name := requestName(req)
	f.calls = append(f.calls, name)

	if n := f.eintr[req]; n > 0 {
		f.eintr[req] = n - 1
		return syscall.EINTR
	}
	if err := f.ioctlErr[req]; err != nil {
		return err
	}

	switch req {
	case vidiocQuerycap:
		c := (*v4l2Capability)(arg)
		copy(c.driver[:], "fakecam")
		copy(c.card[:], "Fake Camera")
		copy(c.busInfo[:], "platform:fake")
		c.capabilities = f.caps
	case vidiocEnumFmt:
		d := (*v4l2Fmtdesc)(arg)
		if int(d.index) >= len(f.formats) {
			return syscall.EINVAL
		}
		d.pixelformat = f.formats[d.index]
		copy(d.description[:], FormatFourCC(d.pixelformat))
	case vidiocSFmt:
		fm := (*v4l2Format)(arg)
		f.lastFmt = fm.pix
		if f.negotiate != nil {
			f.negotiate(&fm.pix)
		}
		fm.pix.bytesperline = fm.pix.width * 2
		fm.pix.sizeimage = fm.pix.bytesperline * fm.pix.height
	case vidiocSParm:
		f.lastParm = *(*v4l2StreamParm)(arg)
	case vidiocReqbufs:
		r := (*v4l2RequestBuffers)(arg)
		r.count = 1
	case vidiocQuerybuf:
		b := (*v4l2Buffer)(arg)
		b.length = f.bufLen
		b.offset = 0
	case vidiocQbuf:
		f.queued++
	case vidiocDqbuf:
		if f.queued == 0 || !f.streaming {
			return syscall.EINVAL
		}
		f.queued--
		b := (*v4l2Buffer)(arg)
		b.bytesused = f.bytesUsed
		b.sequence = f.sequence
		for i := range f.mapped {
			f.mapped[i] = byte(f.sequence)
		}
		f.sequence++
	case vidiocStreamon:
		f.streaming = true
	case vidiocStreamoff:
		f.streaming = false
		f.queued = 0
	}
	return nil
}

func (f *fakeDriver) Mmap(_ int, _ int64, length int) ([]byte, error) {
	f.calls = append(f.calls, "mmap")
	if f.mmapErr != nil {
		return nil, f.mmapErr
	}
	if length <= 0 {
		return nil, syscall.EINVAL
	}
	f.mapped = make([]byte, length)
	return f.mapped, nil
}

func (f *fakeDriver) Munmap(_ []byte) error {
	f.calls = append(f.calls, "munmap")
	if f.munmapErr != nil {
		return f.munmapErr
	}
	f.munmaps++
	f.mapped = nil
	return nil
}

func (f *fakeDriver) Close(_ int) error {
	f.calls = append(f.calls, "close")
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closes++
	return nil
}

func (f *fakeDriver) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}
