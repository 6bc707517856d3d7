//go:build linux

package display

import (
	"fmt"

	"kvmvideo.dev/frame"
	"kvmvideo.dev/kvmerr"
)

// softwareJPEGDecoder is the fallback collaborator present_centered uses
// to turn an MJPEG source frame into RGB24 before the RGB24 conversion
// path runs. The real hardware path (Transcoder) never needs this; it is
// only exercised when a capture source delivers MJPEG straight to the
// display sink. Dependency-injected so tests can substitute a fake.
type softwareJPEGDecoder interface {
	DecodeToRGB24(jpeg []byte) (data []byte, width, height int, err error)
}

// convertIntoXRGB writes src (in one of the formats present_centered
// accepts) into dst, an XRGB8888 buffer with the given stride, at the
// pixel offset (offX, offY). dst must already be sized for the
// destination mode.
func convertIntoXRGB(dst []byte, dstStride int, offX, offY int, src *frame.Frame, decoder softwareJPEGDecoder) error {
	switch src.Format {
	case frame.YUYV:
		return yuyvIntoXRGB(dst, dstStride, offX, offY, src)
	case frame.RGB24:
		return rgbIntoXRGB(dst, dstStride, offX, offY, src, false)
	case frame.BGR24:
		return rgbIntoXRGB(dst, dstStride, offX, offY, src, true)
	case frame.MJPEG:
		if decoder == nil {
			return fmt.Errorf("%w: no software JPEG decoder configured", kvmerr.ErrFormatUnsupported)
		}
		data, w, h, err := decoder.DecodeToRGB24(src.Data[:src.Used])
		if err != nil {
			return fmt.Errorf("%w: software jpeg decode: %v", kvmerr.ErrDecode, err)
		}
		rgb := &frame.Frame{Width: w, Height: h, Stride: w * 3, Format: frame.RGB24, Data: data, Used: len(data)}
		return rgbIntoXRGB(dst, dstStride, offX, offY, rgb, false)
	default:
		return fmt.Errorf("%w: %s not supported by centered presentation", kvmerr.ErrFormatUnsupported, src.Format)
	}
}

// yuyvIntoXRGB converts a packed YUYV source, two pixels per 4 bytes,
// using BT.601-style integer constants (see yuvToRGB). These are separate
// from the transcoder's float RGB->NV12 constants in transcode/convert.go.
func yuyvIntoXRGB(dst []byte, dstStride, offX, offY int, src *frame.Frame) error {
	w, h := src.Width, src.Height
	srcStride := src.Stride
	if srcStride == 0 {
		srcStride = w * 2
	}
	for y := 0; y < h; y++ {
		srcRow := src.Data[y*srcStride:]
		dstRow := dst[(offY+y)*dstStride+offX*4:]
		for x := 0; x+1 < w; x += 2 {
			y0 := int(srcRow[x*2+0])
			u := int(srcRow[x*2+1])
			y1 := int(srcRow[x*2+2])
			v := int(srcRow[x*2+3])
			r0, g0, b0 := yuvToRGB(y0, u, v)
			r1, g1, b1 := yuvToRGB(y1, u, v)
			writeXRGB(dstRow, (x+0)*4, r0, g0, b0)
			writeXRGB(dstRow, (x+1)*4, r1, g1, b1)
		}
	}
	return nil
}

func yuvToRGB(y, u, v int) (r, g, b int) {
	c := y - 16
	d := u - 128
	e := v - 128
	r = clampByte((298*c + 409*e + 128) >> 8)
	g = clampByte((298*c - 100*d - 208*e + 128) >> 8)
	b = clampByte((298*c + 516*d + 128) >> 8)
	return
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func writeXRGB(row []byte, off, r, g, b int) {
	row[off+0] = byte(b)
	row[off+1] = byte(g)
	row[off+2] = byte(r)
	row[off+3] = 0xff
}

// rgbIntoXRGB converts a packed 24bpp RGB24/BGR24 source row-by-row.
// swapRB is set for BGR24 sources, where R and B are swapped on write.
func rgbIntoXRGB(dst []byte, dstStride, offX, offY int, src *frame.Frame, swapRB bool) error {
	w, h := src.Width, src.Height
	srcStride := src.Stride
	if srcStride == 0 {
		srcStride = w * 3
	}
	for y := 0; y < h; y++ {
		srcRow := src.Data[y*srcStride:]
		dstRow := dst[(offY+y)*dstStride+offX*4:]
		for x := 0; x < w; x++ {
			a := srcRow[x*3+0]
			bMid := srcRow[x*3+1]
			c := srcRow[x*3+2]
			r, b := a, c
			if swapRB {
				r, b = c, a
			}
			writeXRGB(dstRow, x*4, int(r), int(bMid), int(b))
		}
	}
	return nil
}
