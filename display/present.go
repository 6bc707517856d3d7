//go:build linux

package display

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
	"kvmvideo.dev/frame"
	"kvmvideo.dev/kvmerr"
)

// PresentResult is the tagged variant returned by the presentation
// operations in spec.md §4.1.5.
type PresentResult int

const (
	PresentOK PresentResult = iota
	// PresentBadResolution is returned by PresentCentered when the source
	// frame does not fit within the negotiated mode.
	PresentBadResolution
)

// Present dispatches to PresentCentered or PresentDMA depending on the
// detected platform (or an explicit Config.CenterMode override), so a
// capture loop does not need to know which presentation strategy is in
// effect.
func (s *DisplaySink) Present(f *frame.Frame, decoder softwareJPEGDecoder) (PresentResult, error) {
	if s.usesCenteringPresentation() {
		return s.PresentCentered(f, decoder)
	}
	return s.PresentDMA(f)
}

// PresentDMA is the "RPi" path: it targets an already-imported buffer by
// index with an asynchronous page-flip.
func (s *DisplaySink) PresentDMA(f *frame.Frame) (PresentResult, error) {
	r := &s.runtime
	if f.BufferIndex < 0 || f.BufferIndex >= len(r.bufs) {
		return 0, fmt.Errorf("%w: buffer index %d out of range (%d buffers)", kvmerr.ErrInvalidParam, f.BufferIndex, len(r.bufs))
	}
	if err := s.ensurePower(true); err != nil {
		return 0, err
	}
	r.hasVsync = false

	flip := drmModeCrtcPageFlip{
		CrtcID: r.crtcID,
		FBID:   r.bufs[f.BufferIndex].FBID,
		Flags:  drmModePageFlipEvent,
	}
	if err := ioctlNamed(r.fd, "DRM_IOCTL_MODE_PAGE_FLIP", reqModePageFlip, ptrOf(&flip)); err != nil {
		if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
			s.config.Logger.Printf("debug: page-flip permission denied (another display owner active)")
			r.hasVsync = true
			return PresentOK, nil
		}
		s.stats.PresentErrors++
		s.stats.ConsecutiveErrors++
		return 0, fmt.Errorf("%w: page-flip: %v", kvmerr.ErrHardwareFailure, err)
	}
	r.exposingDMA = true
	r.exposingDMAHandle = int(r.bufs[f.BufferIndex].Handle)
	s.stats.FramesPresented++
	s.stats.ConsecutiveErrors = 0
	r.blankAt = time.Time{}
	return PresentOK, nil
}

// PresentCentered is the "Amlogic" path: it converts the source frame
// into the XRGB8888 scan-out buffer at the current stub rotation index
// (which this path does not advance) at a centered offset and sets the
// CRTC synchronously.
func (s *DisplaySink) PresentCentered(f *frame.Frame, decoder softwareJPEGDecoder) (PresentResult, error) {
	r := &s.runtime
	geo := frame.Center(f.Width, f.Height, r.mode.HDisplay, r.mode.VDisplay)
	if !geo.NeedsCenter {
		return PresentBadResolution, nil
	}
	if err := s.ensurePower(true); err != nil {
		return 0, err
	}

	buf := &r.bufs[r.stubBufIdx%len(r.bufs)]
	if r.lastCenteredW != f.Width || r.lastCenteredH != f.Height {
		if !(geo.DstW == f.Width && geo.DstH == f.Height) {
			clearXRGB(buf.Mapped)
		}
		r.lastCenteredW, r.lastCenteredH = f.Width, f.Height
	}

	if err := convertIntoXRGB(buf.Mapped, r.displayStride, geo.OffsetX, geo.OffsetY, f, decoder); err != nil {
		s.stats.PresentErrors++
		s.stats.ConsecutiveErrors++
		return 0, err
	}

	crtc := drmModeCrtc{CrtcID: r.crtcID, FBID: buf.FBID, ModeValid: 1, Mode: toDRMMode(r.mode)}
	if err := ioctlNamed(r.fd, "DRM_IOCTL_MODE_SETCRTC", reqModeSetCrtc, ptrOf(&crtc)); err != nil {
		s.stats.PresentErrors++
		s.stats.ConsecutiveErrors++
		return 0, fmt.Errorf("%w: set-crtc: %v", kvmerr.ErrHardwareFailure, err)
	}
	s.stats.FramesPresented++
	s.stats.ConsecutiveErrors = 0
	r.blankAt = time.Time{}
	return PresentOK, nil
}

func clearXRGB(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// PresentStub renders the status text for reason (and, for
// StubBadResolution, the offending capture dimensions) into the next
// rotating stub buffer and page-flips asynchronously.
func (s *DisplaySink) PresentStub(reason StubReason, cap *CaptureInfo) (PresentResult, error) {
	r := &s.runtime
	if err := s.ensurePower(true); err != nil {
		return 0, err
	}
	if r.osd == nil {
		r.osd = newOSDEngine(r.mode.HDisplay, r.mode.VDisplay)
	}

	lines := []string{reason.String()}
	if reason == StubBadResolution && cap != nil {
		lines[0] = fmt.Sprintf("UNSUPPORTED RESOLUTION %dx%dp@%.0f", cap.Width, cap.Height, cap.RefreshHz)
	}
	img := r.osd.render(lines)

	buf := &r.bufs[r.stubBufIdx%len(r.bufs)]
	blitXRGB(buf.Mapped, r.displayStride, img)
	r.stubBufIdx++

	flip := drmModeCrtcPageFlip{CrtcID: r.crtcID, FBID: buf.FBID, Flags: drmModePageFlipEvent}
	if err := ioctlNamed(r.fd, "DRM_IOCTL_MODE_PAGE_FLIP", reqModePageFlip, ptrOf(&flip)); err != nil {
		if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
			s.config.Logger.Printf("debug: stub page-flip permission denied")
			return PresentOK, nil
		}
		s.stats.PresentErrors++
		return 0, fmt.Errorf("%w: page-flip: %v", kvmerr.ErrHardwareFailure, err)
	}
	s.stats.FramesPresented++
	r.blankAt = time.Time{}
	return PresentOK, nil
}

// EnsureNoSignal implements the blank-after-timeout state machine from
// spec.md §4.1.6. WaitForVsync and PresentStub both rewrite r.blankAt to
// zero as part of their own bookkeeping, so the deadline is saved before
// calling them and restored afterward.
func (s *DisplaySink) EnsureNoSignal() error {
	r := &s.runtime
	if unplugged, err := s.checkConnectorStatus(); err != nil {
		return fmt.Errorf("%w: connector status: %v", kvmerr.ErrHardwareFailure, err)
	} else if unplugged {
		return nil
	}
	now := time.Now()
	if r.blankAt.IsZero() {
		r.blankAt = now.Add(s.config.BlankAfter)
	}
	saved := r.blankAt

	var err error
	if now.Before(r.blankAt) || now.Equal(r.blankAt) {
		if err = s.WaitForVsync(); err == nil {
			_, err = s.PresentStub(StubNoSignal, nil)
		}
	} else {
		err = s.PowerOff()
	}
	r.blankAt = saved
	return err
}
