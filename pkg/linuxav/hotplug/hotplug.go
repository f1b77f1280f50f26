//go:build linux

// Package hotplug watches kernel uevents for video4linux nodes appearing and
// disappearing. It reads the netlink kobject-uevent socket directly, so it
// needs neither cgo nor a running udev.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Actions reported for video nodes.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

const subsystemVideo4Linux = "video4linux"

// settleTimeout is how long a matching add waits for udev to create
// symlinks such as /dev/v4l/by-id/*.
const settleTimeout = 2 * time.Second

// Event is one uevent for a video4linux node.
type Event struct {
	Action  string            // "add", "remove", "change", ...
	KObj    string            // /devices/pci0000:00/.../video4linux/video0
	DevName string            // video0
	Node    string            // /dev/video0
	Env     map[string]string // all KEY=VALUE pairs
}

// Monitor receives kernel uevents over netlink.
type Monitor struct {
	fd   int
	recv func(buf []byte) (int, error)
}

// NewMonitor opens a netlink socket bound to the kernel broadcast group.
func NewMonitor() (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	// A receive timeout lets Run notice cancellation.
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, err
	}

	recv := func(buf []byte) (int, error) {
		n, _, err := unix.Recvfrom(fd, buf, 0)
		return n, err
	}
	return &Monitor{fd: fd, recv: recv}, nil
}

// Close releases the socket.
func (m *Monitor) Close() error {
	if m.fd < 0 {
		return nil
	}
	fd := m.fd
	m.fd = -1
	return unix.Close(fd)
}

// Run sends video4linux events to events until ctx is cancelled or the
// socket fails. events is closed when Run returns.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := m.recv(buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}

		ev, ok := ParseUEvent(buf[:n])
		if !ok {
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ParseUEvent decodes "ACTION@KOBJ\0KEY=VALUE\0..." and reports whether it
// describes a video4linux node.
func ParseUEvent(data []byte) (Event, bool) {
	parts := bytes.Split(data, []byte{0})
	action, kobj, found := strings.Cut(string(parts[0]), "@")
	if !found || action == "" {
		return Event{}, false
	}

	ev := Event{Action: action, KObj: kobj, Env: map[string]string{}}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
	}

	if ev.Env["SUBSYSTEM"] != subsystemVideo4Linux {
		return Event{}, false
	}
	ev.DevName = ev.Env["DEVNAME"]
	if ev.DevName == "" {
		ev.DevName = filepath.Base(kobj)
	}
	ev.Node = "/dev/" + ev.DevName
	return ev, true
}

// WaitForNode blocks until node exists or ctx is done. node may be a plain
// /dev/videoN or a udev symlink to one.
func WaitForNode(ctx context.Context, node string) error {
	m, err := NewMonitor()
	if err != nil {
		return err
	}
	defer m.Close()
	return m.waitFor(ctx, node, nodeExists)
}

// waitFor subscribes before checking exists so an add racing with the
// check is not lost.
func (m *Monitor) waitFor(ctx context.Context, node string, exists func(string) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan Event, 8)
	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(ctx, events) }()

	if exists(node) {
		return nil
	}

	for ev := range events {
		if ev.Action != ActionAdd {
			continue
		}
		if settle(ctx, node, exists) {
			return nil
		}
	}
	return <-runErr
}

// settle polls for node after an add, since udev symlinks lag the kernel event.
func settle(ctx context.Context, node string, exists func(string) bool) bool {
	deadline := time.Now().Add(settleTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if exists(node) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func nodeExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
