//go:build linux

package display

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// osdEngine renders multi-line status text for the stub presentation
// path, grounded in the library-routine text layout the
// original implementation's software OSD performs, using
// golang.org/x/image/font instead of hand-rolled glyph blitting.
type osdEngine struct {
	face font.Face
	img  *image.RGBA
}

func newOSDEngine(width, height int) *osdEngine {
	return &osdEngine{
		face: basicfont.Face7x13,
		img:  image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

var (
	osdBackground = color.RGBA{0, 0, 0, 255}
	osdForeground = color.RGBA{0xe0, 0xe0, 0xe0, 255}
)

const osdLineHeight = 16

// render draws lines centered horizontally and vertically into the
// engine's scratch RGBA image and returns it. Callers convert the
// result into the destination buffer's own pixel format.
func (o *osdEngine) render(lines []string) *image.RGBA {
	b := o.img.Bounds()
	draw.Draw(o.img, b, &image.Uniform{osdBackground}, image.Point{}, draw.Src)

	totalHeight := len(lines) * osdLineHeight
	top := (b.Dy() - totalHeight) / 2
	if top < 0 {
		top = 0
	}
	for i, line := range lines {
		width := font.MeasureString(o.face, line).Ceil()
		x := (b.Dx() - width) / 2
		if x < 0 {
			x = 0
		}
		y := top + i*osdLineHeight + osdLineHeight - 4
		d := &font.Drawer{
			Dst:  o.img,
			Src:  image.NewUniform(osdForeground),
			Face: o.face,
			Dot:  fixed.P(x, y),
		}
		d.DrawString(line)
	}
	return o.img
}

// blitXRGB copies the engine's rendered RGBA image into an XRGB8888
// destination buffer at the given stride.
func blitXRGB(dst []byte, dstStride int, img *image.RGBA) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		srcRow := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		dstRow := dst[y*dstStride:]
		for x := 0; x < b.Dx(); x++ {
			r := srcRow[x*4+0]
			g := srcRow[x*4+1]
			bl := srcRow[x*4+2]
			dstRow[x*4+0] = bl
			dstRow[x*4+1] = g
			dstRow[x*4+2] = r
			dstRow[x*4+3] = 0xff
		}
	}
}
