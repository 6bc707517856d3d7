//go:build linux

package display

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
	"kvmvideo.dev/kvmerr"
)

// waitForVsyncTimeout implements spec.md §4.1.6's wait_for_vsync with an
// explicit timeout (Close calls it with config.Timeout to wait for a
// pending flip before tearing down buffers; the exported WaitForVsync
// uses the configured timeout directly).
func (s *DisplaySink) waitForVsyncTimeout(timeout time.Duration) error {
	r := &s.runtime
	r.blankAt = time.Time{}
	if unplugged, err := s.checkConnectorStatus(); err != nil {
		return fmt.Errorf("%w: connector status: %v", kvmerr.ErrHardwareFailure, err)
	} else if unplugged {
		return nil
	}
	if r.hasVsync || r.platform == PlatformAmlogic {
		r.hasVsync = true
		return nil
	}
	if err := s.ensurePower(true); err != nil {
		return err
	}

	deadlineMs := int(timeout / time.Millisecond)
	if deadlineMs <= 0 {
		deadlineMs = 1
	}
	fds := []unix.PollFd{{Fd: int32(r.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, deadlineMs)
	if err != nil {
		return fmt.Errorf("%w: poll: %v", kvmerr.ErrHardwareFailure, err)
	}
	if n == 0 {
		s.stats.VsyncTimeouts++
		return fmt.Errorf("%w: vsync", kvmerr.ErrTimeout)
	}
	return s.drainVblankEvent()
}

// WaitForVsync blocks until the most recent page-flip completes, or
// config.Timeout elapses.
func (s *DisplaySink) WaitForVsync() error {
	return s.waitForVsyncTimeout(s.config.Timeout)
}

func (s *DisplaySink) drainVblankEvent() error {
	r := &s.runtime
	buf := make([]byte, unsafe.Sizeof(drmEventVblank{})*2)
	n, err := unix.Read(r.fd, buf)
	if err != nil {
		return fmt.Errorf("%w: read event: %v", kvmerr.ErrHardwareFailure, err)
	}
	for off := 0; off+int(unsafe.Sizeof(drmEvent{})) <= n; {
		hdr := (*drmEvent)(unsafe.Pointer(&buf[off]))
		if hdr.Length == 0 || off+int(hdr.Length) > n {
			break
		}
		if hdr.Type == drmEventFlipComplete {
			r.hasVsync = true
			r.exposingDMA = false
			r.exposingDMAHandle = 0
		}
		off += int(hdr.Length)
	}
	return nil
}

// ensurePower implements the internal ensure_power(on) used at the head
// of wait_for_vsync, present_stub, and present_dma: it is a no-op unless
// the desired state differs from the cached dpmsState.
func (s *DisplaySink) ensurePower(on bool) error {
	r := &s.runtime
	if r.dpmsPropID == 0 {
		return nil
	}
	if (on && r.dpmsState == 1) || (!on && r.dpmsState == 0) {
		return nil
	}
	val := uint64(drmModeDPMSOn)
	if !on {
		val = drmModeDPMSOff
	}
	prop := drmModeConnectorSetProperty{Value: val, PropID: r.dpmsPropID, ConnectorID: r.connectorID}
	if err := ioctlNamed(r.fd, "DRM_IOCTL_MODE_SETPROPERTY", reqModeSetProperty, ptrOf(&prop)); err != nil {
		return fmt.Errorf("%w: set-dpms: %v", kvmerr.ErrHardwareFailure, err)
	}
	if on {
		r.dpmsState = 1
	} else {
		r.dpmsState = 0
	}
	return nil
}

// PowerOff forces the display into DPMS off, per spec.md §4.1.6. A
// disconnected connector is treated as already off (spec.md §4.1.7,
// §7): no-op success rather than an ioctl against a dead connector.
func (s *DisplaySink) PowerOff() error {
	if unplugged, err := s.checkConnectorStatus(); err != nil {
		return fmt.Errorf("%w: connector status: %v", kvmerr.ErrHardwareFailure, err)
	} else if unplugged {
		return nil
	}
	return s.ensurePower(false)
}
