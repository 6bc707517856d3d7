//go:build linux

package display

import "testing"

func TestOSDRenderProducesNonEmptyImage(t *testing.T) {
	eng := newOSDEngine(320, 240)
	img := eng.render([]string{"NO LIVE VIDEO"})
	if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 240 {
		t.Fatalf("unexpected image bounds: %v", img.Bounds())
	}
	var lit bool
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 || img.Pix[i+1] != 0 || img.Pix[i+2] != 0 {
			lit = true
			break
		}
	}
	if !lit {
		t.Fatal("expected at least one non-background pixel after rendering text")
	}
}

func TestBlitXRGBByteOrder(t *testing.T) {
	eng := newOSDEngine(4, 1)
	img := eng.render(nil)
	img.Pix[0], img.Pix[1], img.Pix[2], img.Pix[3] = 0x11, 0x22, 0x33, 0xff
	dst := make([]byte, 16)
	blitXRGB(dst, 16, img)
	if dst[0] != 0x33 || dst[1] != 0x22 || dst[2] != 0x11 || dst[3] != 0xff {
		t.Fatalf("unexpected blit layout: %x", dst[:4])
	}
}
