package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/smazurov/v4l2cam/pkg/linuxav/v4l2"
)

// Output encodings.
const (
	EncodingPNG  = "png"
	EncodingJPEG = "jpeg"
	EncodingRaw  = "raw"
)

// EncodingForPath picks an encoding from the file extension; unknown
// extensions produce raw RGB24/BGR24.
func EncodingForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return EncodingPNG
	case ".jpg", ".jpeg":
		return EncodingJPEG
	default:
		return EncodingRaw
	}
}

// ContentType returns the MIME type for an encoding.
func ContentType(encoding string) string {
	switch encoding {
	case EncodingPNG:
		return "image/png"
	case EncodingJPEG:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// Encode writes the frame in the requested encoding. Raw output is packed
// 24-bit pixels in order; MJPEG frames requested as JPEG are passed through.
func Encode(w io.Writer, f Frame, encoding string, order v4l2.ColorOrder) error {
	if encoding == EncodingJPEG && f.Format.PixelFormat == v4l2.PixelFormatMJPEG && f.Format.Known {
		_, err := w.Write(f.Data)
		return err
	}

	if encoding == EncodingRaw {
		rgb, err := PackedRGB(f, order)
		if err != nil {
			return err
		}
		_, err = w.Write(rgb)
		return err
	}

	img, err := ToImage(f)
	if err != nil {
		return err
	}

	switch encoding {
	case EncodingPNG:
		return png.Encode(w, img)
	case EncodingJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	default:
		return fmt.Errorf("unknown encoding %q", encoding)
	}
}

// PackedRGB returns width*height*3 bytes of interleaved pixels in order.
func PackedRGB(f Frame, order v4l2.ColorOrder) ([]byte, error) {
	w, h := int(f.Format.Width), int(f.Format.Height)

	if f.Format.PixelFormat == v4l2.PixelFormatYUYV && f.Format.Known {
		stride, err := checkFrame(f)
		if err != nil {
			return nil, err
		}
		dst := make([]byte, w*h*3)
		if stride == w*2 {
			v4l2.ConvertYUYV(dst, f.Data, w, h, order)
			return dst, nil
		}
		// Padded rows convert one line at a time.
		for y := 0; y < h; y++ {
			v4l2.ConvertYUYV(dst[y*w*3:(y+1)*w*3], f.Data[y*stride:y*stride+w*2], w, 1, order)
		}
		return dst, nil
	}

	img, err := ToImage(f)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	dst := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if order == v4l2.ColorOrderBGR {
				dst = append(dst, byte(bl>>8), byte(g>>8), byte(r>>8))
			} else {
				dst = append(dst, byte(r>>8), byte(g>>8), byte(bl>>8))
			}
		}
	}
	return dst, nil
}

// ToImage wraps the frame as an image.Image.
func ToImage(f Frame) (image.Image, error) {
	w, h := int(f.Format.Width), int(f.Format.Height)
	if !f.Format.Known {
		return nil, fmt.Errorf("unsupported pixel format %s", v4l2.FormatFourCC(f.Format.FourCC))
	}

	switch f.Format.PixelFormat {
	case v4l2.PixelFormatYUYV:
		rgb, err := PackedRGB(f, v4l2.ColorOrderRGB)
		if err != nil {
			return nil, err
		}
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for i, j := 0, 0; i < len(rgb); i, j = i+3, j+4 {
			img.Pix[j+0] = rgb[i+0]
			img.Pix[j+1] = rgb[i+1]
			img.Pix[j+2] = rgb[i+2]
			img.Pix[j+3] = 0xff
		}
		return img, nil

	case v4l2.PixelFormatGrey:
		stride, err := checkFrame(f)
		if err != nil {
			return nil, err
		}
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+w], f.Data[y*stride:])
		}
		return img, nil

	case v4l2.PixelFormatY16:
		stride, err := checkFrame(f)
		if err != nil {
			return nil, err
		}
		// V4L2 Y16 is little-endian, image.Gray16 is big-endian.
		img := image.NewGray16(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			src := f.Data[y*stride:]
			dst := img.Pix[y*img.Stride:]
			for x := 0; x < w; x++ {
				dst[2*x], dst[2*x+1] = src[2*x+1], src[2*x]
			}
		}
		return img, nil

	case v4l2.PixelFormatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(f.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode MJPEG frame: %w", err)
		}
		return img, nil

	default:
		return nil, fmt.Errorf("unsupported pixel format %s", f.Format.PixelFormat)
	}
}

// checkFrame returns the row stride and verifies the frame covers every row.
func checkFrame(f Frame) (int, error) {
	w, h := int(f.Format.Width), int(f.Format.Height)
	if w <= 0 || h <= 0 {
		return 0, fmt.Errorf("invalid frame size %dx%d", w, h)
	}
	bytesPerPixel := f.Format.PixelFormat.BytesPerPixel()
	if bytesPerPixel == 0 {
		return 0, fmt.Errorf("pixel format %s has no fixed sample size", f.Format.PixelFormat)
	}
	stride := int(f.Format.BytesPerLine)
	if stride < w*bytesPerPixel {
		stride = w * bytesPerPixel
	}
	if need := stride*(h-1) + w*bytesPerPixel; len(f.Data) < need {
		return 0, fmt.Errorf("%w: %d bytes, need %d", ErrShortFrame, len(f.Data), need)
	}
	return stride, nil
}
