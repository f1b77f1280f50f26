//go:build linux

package v4l2

// ConvertYUYV converts packed YUV 4:2:2 (YUYV) into interleaved 24-bit pixels.
//
// src holds width*height*2 bytes, one {Y0, U, Y1, V} macropixel per two
// pixels; dst receives width*height*3 bytes in the requested order. Nothing
// is written when either slice is empty or a dimension is not positive.
// Short slices are not a fault: only the macropixels both can hold are
// converted.
//
// The transform is the integer BT.601 approximation with 8-bit fixed-point
// rounding. ConvertYUYV keeps no state and is safe for concurrent use on
// independent buffers.
func ConvertYUYV(dst, src []byte, width, height int, order ColorOrder) {
	if len(src) == 0 || len(dst) == 0 || width <= 0 || height <= 0 {
		return
	}

	macropixels := (width * height) >> 1
	if n := len(src) / 4; n < macropixels {
		macropixels = n
	}
	if n := len(dst) / 6; n < macropixels {
		macropixels = n
	}

	for i := 0; i < macropixels; i++ {
		in := src[i*4 : i*4+4 : i*4+4]
		out := dst[i*6 : i*6+6 : i*6+6]
		u, v := in[1], in[3]

		r, g, b := yuvToRGB(in[0], u, v)
		putPixel(out[0:3], r, g, b, order)

		r, g, b = yuvToRGB(in[2], u, v)
		putPixel(out[3:6], r, g, b, order)
	}
}

// yuvToRGB converts one luma sample with its shared chroma pair.
func yuvToRGB(y, u, v byte) (r, g, b byte) {
	c := 298 * (int32(y) - 16)
	d := int32(u) - 128
	e := int32(v) - 128

	r = clamp8((c + 409*e + 128) >> 8)
	g = clamp8((c - 100*d - 208*e + 128) >> 8)
	b = clamp8((c + 516*d + 128) >> 8)
	return r, g, b
}

func putPixel(px []byte, r, g, b byte, order ColorOrder) {
	if order == ColorOrderBGR {
		px[0], px[1], px[2] = b, g, r
		return
	}
	px[0], px[1], px[2] = r, g, b
}

// clamp8 saturates to [0, 255].
func clamp8(n int32) byte {
	switch {
	case n <= 0:
		return 0
	case n >= 255:
		return 255
	default:
		return byte(n)
	}
}
