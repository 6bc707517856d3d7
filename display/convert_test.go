//go:build linux

package display

import "testing"

func TestYUVToRGBWhiteLevel(t *testing.T) {
	r, g, b := yuvToRGB(235, 128, 128)
	if r < 250 || g < 250 || b < 250 {
		t.Fatalf("expected near-white for luma=235 chroma=128, got r=%d g=%d b=%d", r, g, b)
	}
}

func TestYUVToRGBBlackLevel(t *testing.T) {
	r, g, b := yuvToRGB(16, 128, 128)
	if r > 5 || g > 5 || b > 5 {
		t.Fatalf("expected near-black for luma=16 chroma=128, got r=%d g=%d b=%d", r, g, b)
	}
}

func TestClampByte(t *testing.T) {
	cases := map[int]int{-10: 0, 0: 0, 128: 128, 255: 255, 300: 255}
	for in, want := range cases {
		if got := clampByte(in); got != want {
			t.Errorf("clampByte(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestWriteXRGBByteOrder(t *testing.T) {
	row := make([]byte, 4)
	writeXRGB(row, 0, 0x11, 0x22, 0x33)
	if row[0] != 0x33 || row[1] != 0x22 || row[2] != 0x11 || row[3] != 0xff {
		t.Fatalf("unexpected byte layout: %x", row)
	}
}
