//go:build linux && arm && !arm64

package v4l2

import "unsafe"

// Compile-time struct size assertions for 32-bit ARM.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [48]byte  = [unsafe.Sizeof(v4l2PixFormat{})]byte{}
	_ [204]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Fract{})]byte{}
	_ [40]byte  = [unsafe.Sizeof(v4l2CaptureParm{})]byte{}
	_ [204]byte = [unsafe.Sizeof(v4l2StreamParm{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2RequestBuffers{})]byte{}
	_ [16]byte  = [unsafe.Sizeof(v4l2Timecode{})]byte{}
	_ [80]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants for 32-bit ARM.
// v4l2_format is 4 bytes shorter (union is 4-byte aligned) and
// v4l2_buffer uses the 64-bit time layout (80 bytes).
const (
	vidiocQuerycap  = 0x80685600
	vidiocEnumFmt   = 0xc0405602
	vidiocSFmt      = 0xc0cc5605
	vidiocReqbufs   = 0xc0145608
	vidiocQuerybuf  = 0xc0505609
	vidiocQbuf      = 0xc050560f
	vidiocDqbuf     = 0xc0505611
	vidiocStreamon  = 0x40045612
	vidiocStreamoff = 0x40045613
	vidiocSParm     = 0xc0cc5616
)

// v4l2Capability - size 104 bytes (same as 64-bit)
type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

// v4l2Fmtdesc - size 64 bytes (same as 64-bit)
type v4l2Fmtdesc struct {
	index       uint32
	typ         uint32
	flags       uint32
	description [32]byte
	pixelformat uint32
	mbusCode    uint32
	reserved    [3]uint32
}

// v4l2PixFormat - size 48 bytes
type v4l2PixFormat struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcrEnc     uint32
	quantization uint32
	xferFunc     uint32
}

// v4l2Format - size 204 bytes
type v4l2Format struct {
	typ uint32
	pix v4l2PixFormat
	_   [152]byte
}

// v4l2Fract - size 8 bytes
type v4l2Fract struct {
	numerator   uint32
	denominator uint32
}

// v4l2CaptureParm - size 40 bytes
type v4l2CaptureParm struct {
	capability   uint32
	capturemode  uint32
	timeperframe v4l2Fract
	extendedmode uint32
	readbuffers  uint32
	reserved     [4]uint32
}

// v4l2StreamParm - size 204 bytes
type v4l2StreamParm struct {
	typ     uint32
	capture v4l2CaptureParm
	_       [160]byte
}

// v4l2RequestBuffers - size 20 bytes
type v4l2RequestBuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

// v4l2Timecode - size 16 bytes
type v4l2Timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

// v4l2Buffer - size 80 bytes
type v4l2Buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	_         [4]byte  // padding before the 64-bit timeval
	timestamp [16]byte // struct timeval
	timecode  v4l2Timecode
	sequence  uint32
	memory    uint32
	offset    uint32 // union m
	length    uint32
	_         [8]byte // reserved2, request_fd
}
