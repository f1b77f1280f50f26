//go:build linux

package v4l2

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Driver is the kernel surface a CaptureSession talks to. The default
// implementation issues real syscalls; tests substitute a fake.
type Driver interface {
	Open(path string) (int, error)
	Ioctl(fd int, req uint, arg unsafe.Pointer) error
	Mmap(fd int, offset int64, length int) ([]byte, error)
	Munmap(b []byte) error
	Close(fd int) error
}

// SystemDriver returns the Driver backed by the running kernel.
func SystemDriver() Driver {
	return sysDriver{}
}

type sysDriver struct{}

// Open opens the node in blocking mode so VIDIOC_DQBUF waits for a frame.
func (sysDriver) Open(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
}

func (sysDriver) Ioctl(fd int, req uint, arg unsafe.Pointer) error {
	return ioctl(fd, req, arg)
}

func (sysDriver) Mmap(fd int, offset int64, length int) ([]byte, error) {
	return unix.Mmap(fd, offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (sysDriver) Munmap(b []byte) error {
	return unix.Munmap(b)
}

func (sysDriver) Close(fd int) error {
	return unix.Close(fd)
}

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// xioctl retries the request while it is interrupted by a signal.
func xioctl(d Driver, fd int, req uint, arg unsafe.Pointer) error {
	for {
		err := d.Ioctl(fd, req, arg)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

// openNonBlocking is used for short-lived queries that must not stall on a busy device.
func openNonBlocking(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
}
