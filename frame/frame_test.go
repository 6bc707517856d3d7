package frame

import "testing"

func TestAlign16(t *testing.T) {
	cases := map[int]int{0: 0, 1: 16, 15: 16, 16: 16, 17: 32, 640: 640, 1921: 1936}
	for in, want := range cases {
		if got := Align16(in); got != want {
			t.Errorf("Align16(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestAlign64(t *testing.T) {
	if got := Align64(65); got != 128 {
		t.Errorf("Align64(65) = %d, want 128", got)
	}
	if got := Align64(64); got != 64 {
		t.Errorf("Align64(64) = %d, want 64", got)
	}
}

func TestCenterFitsStrictlySmaller(t *testing.T) {
	g := Center(640, 480, 1920, 1080)
	if !g.NeedsCenter {
		t.Fatal("expected NeedsCenter true")
	}
	if g.OffsetX != (1920-640)/2 || g.OffsetY != (1080-480)/2 {
		t.Errorf("unexpected offsets: %+v", g)
	}
}

func TestCenterEqualDimensionsIsCentered(t *testing.T) {
	// Open Question resolution in spec.md §9: equal dimensions are
	// treated as needs_center=true with a zero offset.
	g := Center(1920, 1080, 1920, 1080)
	if !g.NeedsCenter {
		t.Fatal("expected NeedsCenter true for equal dimensions")
	}
	if g.OffsetX != 0 || g.OffsetY != 0 {
		t.Errorf("expected zero offsets, got %+v", g)
	}
}

func TestCenterSourceExceedsDestination(t *testing.T) {
	g := Center(1920, 1080, 640, 480)
	if g.NeedsCenter {
		t.Fatal("expected NeedsCenter false when source exceeds destination")
	}
}

func TestFrameEnsureGrows(t *testing.T) {
	var f Frame
	f.Ensure(100)
	if len(f.Data) != 100 {
		t.Fatalf("len(Data) = %d, want 100", len(f.Data))
	}
	f.Data[0] = 0xAB
	f.Ensure(50)
	if len(f.Data) != 50 {
		t.Fatalf("len(Data) = %d, want 50", len(f.Data))
	}
}

func TestFrameHasDMA(t *testing.T) {
	f := Frame{}
	if f.HasDMA() {
		t.Fatal("zero-value frame should not have DMA")
	}
	f.DMAHandle = 7
	if !f.HasDMA() {
		t.Fatal("expected HasDMA true")
	}
}
