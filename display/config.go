// Package display implements DisplaySink, a kernel-mode-setting (KMS)
// client that owns a display controller, negotiates a mode, provisions
// scan-out buffers, and presents frames synchronized to vertical
// blanking. See SPEC_FULL.md §4.1.
package display

import (
	"log"
	"os"
	"time"

	"kvmvideo.dev/frame"
)

// Config is the caller-supplied configuration for a DisplaySink. It has
// no file-backed representation: CLI/flag parsing and config files are
// out of scope per spec.md §1; the embedding process populates this
// struct directly.
type Config struct {
	// Path is the device-node path, e.g. "/dev/dri/card0". Defaults to
	// DefaultDevicePath if empty.
	Path string
	// Port is the connector name (e.g. "HDMI-A-1"). If empty, the first
	// connected connector is auto-detected.
	Port string
	// Timeout is how long wait_for_vsync blocks for a page-flip event.
	Timeout time.Duration
	// BlankAfter is how long ensure_no_signal waits with no live video
	// before powering the display off.
	BlankAfter time.Duration
	// CenterMode forces the centering (Amlogic-style) presentation path
	// even on platforms that would otherwise use the DMA-import path.
	CenterMode bool
	// Logger receives non-fatal diagnostics (debug-level conditions like
	// a swallowed permission error on set-crtc). Defaults to a logger
	// writing to os.Stderr with the "drm: " prefix.
	Logger *log.Logger
}

// DefaultDevicePath mirrors the original implementation's default
// connector-agnostic card path.
const DefaultDevicePath = "/dev/dri/by-path/platform-gpu-card"

// DefaultTimeout and DefaultBlankAfter mirror the original's defaults
// (drm.c's us_drm_init: timeout=5, blank_after=5).
const (
	DefaultTimeout    = 5 * time.Second
	DefaultBlankAfter = 5 * time.Second
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.Path == "" {
		out.Path = DefaultDevicePath
	}
	if out.Timeout == 0 {
		out.Timeout = DefaultTimeout
	}
	if out.BlankAfter == 0 {
		out.BlankAfter = DefaultBlankAfter
	}
	if out.Logger == nil {
		out.Logger = log.New(os.Stderr, "drm: ", log.LstdFlags)
	}
	return out
}

// CaptureInfo describes the attached capture source, as far as
// DisplaySink needs to know: its negotiated format, dimensions, refresh
// rate, and number of driver-side buffers. The capture device itself is
// an external collaborator (spec.md §1).
type CaptureInfo struct {
	Width, Height int
	RefreshHz     float64
	Format        frame.PixelFormat
	NumBuffers    int
	// DMAFDs holds one dma-buf file descriptor per driver-side capture
	// buffer, when the capture source exposes them for zero-copy scan-out.
	// A live buffer whose index has no entry (or whose import fails) falls
	// back to a dumb buffer sized to the negotiated mode.
	DMAFDs []int
}

// OpenResult is the tagged variant returned by DisplaySink.Open.
type OpenResult int

const (
	// ResultLive means the capture format is directly scan-outable.
	ResultLive OpenResult = iota
	// ResultStub means the sink fell back to the status-text path; the
	// reason is reported separately via StubReason.
	ResultStub
	// ResultUnplugged means the configured connector reports
	// disconnected.
	ResultUnplugged
)

// StubReason classifies why Open chose the stub path.
type StubReason int

const (
	StubNone StubReason = iota
	StubUser
	StubBadFormat
	StubBadResolution
	StubNoSignal
	StubBusy
)

func (r StubReason) String() string {
	switch r {
	case StubUser:
		return "NO LIVE VIDEO"
	case StubBadFormat:
		return "UNSUPPORTED CAPTURE FORMAT"
	case StubBadResolution:
		return "UNSUPPORTED RESOLUTION"
	case StubNoSignal:
		return "NO SIGNAL"
	case StubBusy:
		return "ONLINE IS ACTIVE"
	default:
		return ""
	}
}
