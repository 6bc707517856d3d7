//go:build linux

package display

import (
	"errors"
	"os"
	"testing"
	"time"
	"unsafe"

	"kvmvideo.dev/frame"
	"kvmvideo.dev/kvmerr"
)

// fakeIoctlSuccess stands in for a working display controller so the
// present/vsync state machine can be exercised without a real DRM
// device, mirroring the transcode package's decoderHW/encoderHW fake
// hardware seam.
func fakeIoctlSuccess(fd int, req uint32, arg unsafe.Pointer) error {
	return nil
}

func withFakeIoctl(t *testing.T) {
	t.Helper()
	orig := doIoctl
	doIoctl = fakeIoctlSuccess
	t.Cleanup(func() { doIoctl = orig })
}

func TestEnsureNoSignalDeadlinePersistsAcrossCalls(t *testing.T) {
	withFakeIoctl(t)

	s := New(Config{BlankAfter: time.Hour, Timeout: time.Millisecond})
	s.runtime.fd = -1
	s.runtime.bufs = []ScanoutBuffer{{Mapped: []byte{}}}

	if !s.runtime.blankAt.IsZero() {
		t.Fatal("expected a fresh sink to start with a zero blankAt")
	}

	if err := s.EnsureNoSignal(); err != nil {
		t.Fatalf("EnsureNoSignal() (arm) = %v, want nil", err)
	}
	armed := s.runtime.blankAt
	if armed.IsZero() {
		t.Fatal("EnsureNoSignal should arm blankAt on first call")
	}

	if err := s.EnsureNoSignal(); err != nil {
		t.Fatalf("EnsureNoSignal() (hold) = %v, want nil", err)
	}
	if s.runtime.blankAt != armed {
		t.Fatalf("blankAt changed across calls: got %v, want unchanged %v (PresentStub/WaitForVsync must not leak their own zeroing of it)", s.runtime.blankAt, armed)
	}
}

func TestEnsureNoSignalPowersOffAfterDeadline(t *testing.T) {
	withFakeIoctl(t)

	s := New(Config{BlankAfter: time.Hour, Timeout: time.Millisecond})
	s.runtime.fd = -1
	s.runtime.blankAt = time.Now().Add(-time.Minute)

	if err := s.EnsureNoSignal(); err != nil {
		t.Fatalf("EnsureNoSignal() past deadline = %v, want nil (no-op power off, dpmsPropID 0)", err)
	}
	if s.runtime.blankAt.After(time.Now()) {
		t.Fatal("the power-off branch must not re-arm the deadline")
	}
}

func TestEnsureNoSignalUnpluggedIsNoOp(t *testing.T) {
	s := New(Config{Port: "HDMI-A-1", BlankAfter: time.Hour})
	s.runtime.statusFD = disconnectedStatusFile(t)
	s.runtime.fd = -1 // would fault on any real ioctl

	if err := s.EnsureNoSignal(); err != nil {
		t.Fatalf("EnsureNoSignal() while unplugged = %v, want nil", err)
	}
	if !s.runtime.blankAt.IsZero() {
		t.Fatal("unplugged ensure_no_signal must not touch the blank deadline")
	}
	if s.runtime.dpmsState != -1 {
		t.Fatal("unplugged ensure_no_signal must not power the display on or off")
	}
}

func TestWaitForVsyncUnpluggedIsNoOp(t *testing.T) {
	s := New(Config{Port: "HDMI-A-1"})
	s.runtime.statusFD = disconnectedStatusFile(t)
	s.runtime.fd = -1

	if err := s.WaitForVsync(); err != nil {
		t.Fatalf("WaitForVsync() while unplugged = %v, want nil", err)
	}
	if s.runtime.dpmsState != -1 {
		t.Fatal("an unplugged WaitForVsync must not drive DPMS")
	}
}

func TestPowerOffUnpluggedIsNoOp(t *testing.T) {
	s := New(Config{Port: "HDMI-A-1"})
	s.runtime.statusFD = disconnectedStatusFile(t)
	s.runtime.fd = -1
	s.runtime.dpmsPropID = 1 // would otherwise trigger a real DPMS ioctl

	if err := s.PowerOff(); err != nil {
		t.Fatalf("PowerOff() while unplugged = %v, want nil", err)
	}
	if s.runtime.dpmsState != -1 {
		t.Fatal("PowerOff against an unplugged connector must not reach ensurePower")
	}
}

func TestWaitForVsyncSkipsPollWhenAlreadySynced(t *testing.T) {
	s := New(Config{})
	s.runtime.fd = -1
	s.runtime.hasVsync = true

	if err := s.WaitForVsync(); err != nil {
		t.Fatalf("WaitForVsync() with hasVsync already set = %v, want nil", err)
	}
}

func TestWaitForVsyncTimesOutWithoutEvent(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	s := New(Config{Timeout: 20 * time.Millisecond})
	s.runtime.fd = int(r.Fd())
	s.runtime.hasVsync = false

	err = s.WaitForVsync()
	if err == nil || !errors.Is(err, kvmerr.ErrTimeout) {
		t.Fatalf("WaitForVsync() with no writer = %v, want a kvmerr.ErrTimeout", err)
	}
}

func TestPresentDMARejectsOutOfRangeIndex(t *testing.T) {
	s := New(Config{})
	s.runtime.fd = -1
	s.runtime.bufs = []ScanoutBuffer{{}}

	f := &frame.Frame{BufferIndex: 5}
	if _, err := s.PresentDMA(f); err == nil || !errors.Is(err, kvmerr.ErrInvalidParam) {
		t.Fatalf("PresentDMA(out of range) = %v, want ErrInvalidParam", err)
	}
}

func TestPresentDMASucceedsAndClearsBlankDeadline(t *testing.T) {
	withFakeIoctl(t)

	s := New(Config{})
	s.runtime.fd = -1
	s.runtime.bufs = []ScanoutBuffer{{FBID: 7, Handle: 3}}
	s.runtime.blankAt = time.Now().Add(time.Hour)

	f := &frame.Frame{BufferIndex: 0}
	res, err := s.PresentDMA(f)
	if err != nil {
		t.Fatalf("PresentDMA() = %v, want nil", err)
	}
	if res != PresentOK {
		t.Fatalf("PresentDMA() result = %v, want PresentOK", res)
	}
	if !s.runtime.blankAt.IsZero() {
		t.Fatal("a successful present must clear the blank deadline")
	}
	if !s.runtime.exposingDMA {
		t.Fatal("PresentDMA should mark the buffer as exposing")
	}
	if s.stats.FramesPresented != 1 {
		t.Fatalf("FramesPresented = %d, want 1", s.stats.FramesPresented)
	}
}

// disconnectedStatusFile returns an open file whose contents mimic a
// sysfs connector status reporting "disconnected", pre-seeded into
// DisplayRuntime.statusFD so checkConnectorStatus skips the real sysfs
// path lookup and reads this file instead.
func disconnectedStatusFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "status")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.WriteString("disconnected\n"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}
