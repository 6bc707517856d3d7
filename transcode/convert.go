package transcode

import (
	"fmt"
	"math"

	"kvmvideo.dev/frame"
	"kvmvideo.dev/kvmerr"
)

// convertToNV12 performs the CPU pre-encode conversion from spec.md
// §4.2.4. dst must already be sized to w*h*3/2 (NV12Size).
func convertToNV12(dst []byte, src *frame.Frame) error {
	switch src.Format {
	case frame.YUYV:
		yuyvToNV12(dst, src)
	case frame.YUV420:
		i420ToNV12(dst, src)
	case frame.RGB24:
		rgbToNV12(dst, src, false)
	case frame.BGR24:
		rgbToNV12(dst, src, true)
	case frame.NV16:
		nv16ToNV12(dst, src)
	default:
		return errUnsupportedConversion(src.Format)
	}
	return nil
}

// NV12Size is the byte size of a w x h NV12 buffer.
func NV12Size(w, h int) int {
	return w * h * 3 / 2
}

// yuyvToNV12 repacks a packed YUYV (Y0 U0 Y1 V0 per 2 pixels) source
// into planar NV12 (Y plane, then interleaved UV at half resolution).
// This is a pure memory-layout transform, not a color-space conversion,
// so it is implemented directly rather than reaching for a color
// library.
func yuyvToNV12(dst []byte, src *frame.Frame) {
	w, h := src.Width, src.Height
	srcStride := src.Stride
	if srcStride == 0 {
		srcStride = w * 2
	}
	ySize := w * h
	y := dst[:ySize]
	uv := dst[ySize : ySize+ySize/2]
	for row := 0; row < h; row++ {
		srcRow := src.Data[row*srcStride:]
		yRow := y[row*w:]
		for col := 0; col < w; col++ {
			yRow[col] = srcRow[col*2]
		}
		if row%2 == 0 {
			uvRow := uv[(row/2)*w:]
			for col := 0; col+1 < w; col += 2 {
				uvRow[col] = srcRow[col*2+1]   // U
				uvRow[col+1] = srcRow[col*2+3] // V
			}
		}
	}
}

// i420ToNV12 interleaves I420's separate U and V planes into NV12's
// combined UV plane; the Y plane is copied unchanged.
func i420ToNV12(dst []byte, src *frame.Frame) {
	w, h := src.Width, src.Height
	ySize := w * h
	chromaW, chromaH := w/2, h/2
	chromaSize := chromaW * chromaH

	copy(dst[:ySize], src.Data[:ySize])
	uPlane := src.Data[ySize : ySize+chromaSize]
	vPlane := src.Data[ySize+chromaSize : ySize+2*chromaSize]
	uv := dst[ySize : ySize+ySize/2]
	for i := 0; i < chromaSize; i++ {
		uv[i*2] = uPlane[i]
		uv[i*2+1] = vPlane[i]
	}
}

// rgbToNV12 converts packed 24bpp RGB24/BGR24 to NV12 using the
// integer-free formulas from spec.md §4.2.4: per-pixel Y, and
// 2x2-block-averaged chroma.
func rgbToNV12(dst []byte, src *frame.Frame, swapRB bool) {
	w, h := src.Width, src.Height
	srcStride := src.Stride
	if srcStride == 0 {
		srcStride = w * 3
	}
	ySize := w * h
	yPlane := dst[:ySize]
	uv := dst[ySize : ySize+ySize/2]

	pixel := func(x, y int) (r, g, b float64) {
		off := y*srcStride + x*3
		a, bMid, c := float64(src.Data[off]), float64(src.Data[off+1]), float64(src.Data[off+2])
		if swapRB {
			return c, bMid, a
		}
		return a, bMid, c
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := pixel(x, y)
			yPlane[y*w+x] = clampByteF(0.299*r + 0.587*g + 0.114*b)
		}
	}
	for by := 0; by < h; by += 2 {
		for bx := 0; bx < w; bx += 2 {
			var rs, gs, bs float64
			n := 0.0
			for dy := 0; dy < 2 && by+dy < h; dy++ {
				for dx := 0; dx < 2 && bx+dx < w; dx++ {
					r, g, b := pixel(bx+dx, by+dy)
					rs += r
					gs += g
					bs += b
					n++
				}
			}
			r, g, b := rs/n, gs/n, bs/n
			u := clampByteF(math.Round(-0.147*r - 0.289*g + 0.436*b + 128))
			v := clampByteF(math.Round(0.615*r - 0.515*g - 0.100*b + 128))
			row := (by / 2) * w
			uv[row+bx] = u
			uv[row+bx+1] = v
		}
	}
}

func clampByteF(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// nv16ToNV12 copies the Y plane unchanged and vertically decimates the
// interleaved UV plane by selecting every second row (not averaging),
// per spec.md §4.2.4.
func nv16ToNV12(dst []byte, src *frame.Frame) {
	w, h := src.Width, src.Height
	ySize := w * h
	copy(dst[:ySize], src.Data[:ySize])

	srcUV := src.Data[ySize : ySize+ySize] // NV16: full-height UV plane
	dstUV := dst[ySize : ySize+ySize/2]
	for row := 0; row < h/2; row++ {
		copy(dstUV[row*w:(row+1)*w], srcUV[(row*2)*w:(row*2+1)*w])
	}
}

func errUnsupportedConversion(f frame.PixelFormat) error {
	return fmt.Errorf("%w: no NV12 conversion for %s", kvmerr.ErrFormatUnsupported, f)
}
