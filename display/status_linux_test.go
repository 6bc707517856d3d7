//go:build linux

package display

import "testing"

func TestConnectorStatusPath(t *testing.T) {
	got := connectorStatusPath("/dev/dri/card0", "HDMI-A-1")
	want := "/sys/class/drm/card0-HDMI-A-1/status"
	if got != want {
		t.Fatalf("connectorStatusPath() = %q, want %q", got, want)
	}
}

func TestCheckConnectorStatusNoPortConfigured(t *testing.T) {
	s := New(Config{})
	unplugged, err := s.checkConnectorStatus()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unplugged {
		t.Fatal("expected connected (no port configured means status is not tracked)")
	}
}
