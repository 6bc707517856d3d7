//go:build linux

package display

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DisplayRuntime holds everything DisplaySink needs for the lifetime of
// an open device session. Close resets the device fd, buffers, saved CRTC,
// status file and the vsync/DPMS latches; the other fields (mode,
// platform, cached stride, OSD engine, ...) keep their last values.
type DisplayRuntime struct {
	fd           int
	connectorID  uint32
	crtcID       uint32
	mode         DisplayMode
	dpmsPropID   uint32
	dpmsState    int // -1 unknown, 0 off, 1 on
	bufs         []ScanoutBuffer
	savedCrtc    *drmModeCrtc
	stubBufIdx   int
	hasVsync     bool
	exposingDMA  bool
	exposingDMAHandle int
	blankAt      time.Time
	osd          *osdEngine
	platform     Platform
	detectedBPP  int
	displayStride int
	portName     string
	statusFD     *os.File
	driverName   string
	lastCenteredW int
	lastCenteredH int
}

// Stats is the statistics snapshot exposed for a supervisor thread,
// mirroring the original implementation's per-component stats struct
// (SUPPLEMENTED FEATURES, SPEC_FULL.md).
type Stats struct {
	FramesPresented   uint64
	PresentErrors     uint64
	ConsecutiveErrors uint32
	VsyncTimeouts     uint64
}

// DisplaySink is the kernel-mode-setting client described in SPEC_FULL.md
// §4.1. A DisplaySink is driven from a single capture thread. It has no
// internal lock: its control operations (Close, PowerOff, Stats) are not
// synchronized against the data path and read or modify the same runtime
// state it uses.
type DisplaySink struct {
	config  Config
	runtime DisplayRuntime

	opened   bool
	stopping bool
	stats    Stats
}

// New is init(config) -> handle: it allocates a DisplaySink without
// touching any device node.
func New(config Config) *DisplaySink {
	return &DisplaySink{
		config: config.withDefaults(),
		runtime: DisplayRuntime{
			fd:        -1,
			dpmsState: -1,
			hasVsync:  true,
		},
	}
}

// Stats returns a snapshot of the sink's statistics.
func (s *DisplaySink) Stats() Stats {
	return s.stats
}

// Platform reports the detected platform tag; it is PlatformUnknown
// before a successful Open.
func (s *DisplaySink) Platform() Platform {
	return s.runtime.platform
}

// Destroy tears down a DisplaySink. It is safe after New with no
// intervening Open, and safe to call after Close: both are idempotent.
func (s *DisplaySink) Destroy() {
	s.Close()
	s.stopping = true
}

// Close restores the saved CRTC, releases buffers in reverse order,
// drops display-master, and closes the device. It is idempotent
// (spec.md §8 invariant: close followed by close is a no-op) and waits
// for any pending DMA page-flip to complete first.
func (s *DisplaySink) Close() error {
	if !s.opened {
		return nil
	}
	r := &s.runtime

	if r.exposingDMA {
		// Best effort: wait briefly for the in-flight flip so we don't
		// tear down buffers the kernel is still scanning out.
		_ = s.waitForVsyncTimeout(s.config.Timeout)
	}

	if r.savedCrtc != nil {
		_ = ioctlNamed(r.fd, "DRM_IOCTL_MODE_SETCRTC", reqModeSetCrtc, ptrOf(r.savedCrtc))
		r.savedCrtc = nil
	}

	for i := len(r.bufs) - 1; i >= 0; i-- {
		_ = r.bufs[i].release(r.fd)
	}
	r.bufs = nil

	if r.statusFD != nil {
		r.statusFD.Close()
		r.statusFD = nil
	}

	_ = ioctlNamed(r.fd, "DRM_IOCTL_DROP_MASTER", reqDropMaster, nil)
	if r.fd >= 0 {
		unix.Close(r.fd)
	}
	r.fd = -1
	r.hasVsync = true
	r.exposingDMA = false
	r.dpmsState = -1
	s.opened = false
	return nil
}

func deviceCapability(fd int, cap uint64) (uint64, error) {
	req := drmGetCap{Capability: cap}
	if err := ioctlNamed(fd, "DRM_IOCTL_GET_CAP", reqGetCap, ptrOf(&req)); err != nil {
		return 0, err
	}
	return req.Value, nil
}
