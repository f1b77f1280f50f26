//go:build linux

package v4l2

// mappedBuffer owns one mmap'd capture buffer shared with the driver.
// release is idempotent; after it returns nil the region must not be touched.
type mappedBuffer struct {
	driver Driver
	data   []byte
}

func mapBuffer(d Driver, fd int, offset, length uint32) (*mappedBuffer, error) {
	data, err := d.Mmap(fd, int64(offset), int(length))
	if err != nil {
		return nil, err
	}
	return &mappedBuffer{driver: d, data: data}, nil
}

// Bytes returns the whole mapped region.
func (b *mappedBuffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the driver-reported buffer length.
func (b *mappedBuffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

func (b *mappedBuffer) release() error {
	if b == nil || len(b.data) == 0 {
		return nil
	}
	if err := b.driver.Munmap(b.data); err != nil {
		return err
	}
	b.data = nil
	return nil
}
