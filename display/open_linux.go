//go:build linux

package display

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
	"kvmvideo.dev/frame"
	"kvmvideo.dev/kvmerr"
)

// Open acquires the display device, negotiates a mode, and provisions
// scan-out buffers. See spec.md §4.1.1 and §4.1.2.
func (s *DisplaySink) Open(cap *CaptureInfo) (OpenResult, StubReason, error) {
	if s.stopping {
		return 0, 0, kvmerr.ErrNotInitialized
	}
	if s.opened {
		return 0, 0, fmt.Errorf("%w: already open", kvmerr.ErrInvalidParam)
	}
	r := &s.runtime

	fd, err := unix.Open(s.config.Path, unix.O_RDWR|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: open %s: %v", kvmerr.ErrDeviceNotFound, s.config.Path, err)
	}
	r.fd = fd

	// Explicitly drop and re-acquire master: a cooperating desktop may
	// already hold it, and the re-acquire's failure mode is the one we
	// must diagnose precisely.
	_ = ioctlNamed(fd, "DRM_IOCTL_DROP_MASTER", reqDropMaster, nil)
	if err := ioctlNamed(fd, "DRM_IOCTL_SET_MASTER", reqSetMaster, nil); err != nil {
		unix.Close(fd)
		r.fd = -1
		return 0, 0, fmt.Errorf("%w: acquire display master (another client holds the console)", kvmerr.ErrDeviceBusy)
	}

	dumbCap, err := deviceCapability(fd, drmCapDumbBuffer)
	if err != nil || dumbCap != 1 {
		s.failOpen()
		return 0, 0, fmt.Errorf("%w: dumb buffer support required", kvmerr.ErrInit)
	}
	if cap != nil {
		if primeCap, _ := deviceCapability(fd, drmCapPrimeImport); primeCap&drmPrimeCapImport == 0 {
			s.failOpen()
			return 0, 0, fmt.Errorf("%w: DMA import support required for live capture", kvmerr.ErrInit)
		}
	}

	r.driverName = driverName(fd)
	r.platform = detectPlatform(r.driverName)

	if err := s.selectConnectorAndMode(cap); err != nil {
		if err == errUnplugged {
			s.failOpen()
			return ResultUnplugged, 0, nil
		}
		s.failOpen()
		return 0, 0, err
	}

	result, reason := decideOpenResult(cap, r.mode)

	if err := s.provisionBuffers(cap, result); err != nil {
		s.failOpen()
		return 0, 0, err
	}

	r.savedCrtc = getCrtc(fd, r.crtcID)

	if len(r.bufs) > 0 {
		crtc := drmModeCrtc{
			CrtcID:    r.crtcID,
			FBID:      r.bufs[0].FBID,
			ModeValid: 1,
			Mode:      toDRMMode(r.mode),
		}
		if err := ioctlNamed(fd, "DRM_IOCTL_MODE_SETCRTC", reqModeSetCrtc, ptrOf(&crtc)); err != nil {
			if !errors.Is(err, unix.EACCES) && !errors.Is(err, unix.EPERM) {
				s.failOpen()
				return 0, 0, fmt.Errorf("%w: set-crtc: %v", kvmerr.ErrHardwareFailure, err)
			}
			// Another display owner is active; non-fatal per spec.md §4.1.4.
		}
	}

	s.opened = true
	r.blankAt = time.Time{}
	return result, reason, nil
}

func (s *DisplaySink) failOpen() {
	s.opened = true // let Close tear down what was partially built
	s.Close()
}

var errUnplugged = fmt.Errorf("unplugged")

// decideOpenResult implements the choice table from spec.md §4.1.1.
func decideOpenResult(cap *CaptureInfo, mode DisplayMode) (OpenResult, StubReason) {
	if cap == nil {
		return ResultStub, StubUser
	}
	if !captureFormatSupported(cap.Format) {
		return ResultStub, StubBadFormat
	}
	if cap.Width != mode.HDisplay || cap.Height > mode.VDisplay {
		return ResultStub, StubBadResolution
	}
	return ResultLive, StubNone
}

// captureFormatSupported reports whether format can be scanned out
// directly (spec.md §4.1.4's ResultLive path), per frame.DisplayCaptureFormats.
func captureFormatSupported(format frame.PixelFormat) bool {
	return frame.DisplayCaptureFormats[format]
}

func driverName(fd int) string {
	// DRM_IOCTL_VERSION = DRM_IOWR(0x00, struct drm_version). We only
	// need the name, so request a fixed-size buffer large enough for
	// any real driver name ("vc4", "meson", "amdgpu", ...).
	type drmVersion struct {
		Major, Minor, Patch int32
		NameLen             uint64
		Name                uint64
		DateLen             uint64
		Date                uint64
		DescLen             uint64
		Desc                uint64
	}
	buf := make([]byte, 64)
	v := drmVersion{NameLen: uint64(len(buf)), Name: uint64(uintptr(unsafe.Pointer(&buf[0])))}
	reqVersion := iowr(0x00, unsafe.Sizeof(v))
	if err := ioctl(fd, reqVersion, unsafe.Pointer(&v)); err != nil {
		return ""
	}
	n := int(v.NameLen)
	if n > len(buf) {
		n = len(buf)
	}
	return string(buf[:n])
}

func getCrtc(fd int, crtcID uint32) *drmModeCrtc {
	crtc := &drmModeCrtc{CrtcID: crtcID}
	if err := ioctlNamed(fd, "DRM_IOCTL_MODE_GETCRTC", reqModeGetCrtc, ptrOf(crtc)); err != nil {
		return nil
	}
	return crtc
}

func toDRMMode(m DisplayMode) drmModeModeInfo {
	var out drmModeModeInfo
	out.HDisplay = uint16(m.HDisplay)
	out.VDisplay = uint16(m.VDisplay)
	out.HTotal = uint16(m.HTotal)
	out.VTotal = uint16(m.VTotal)
	out.Clock = uint32(m.ClockKHz)
	out.VScan = uint16(m.VScan)
	if m.Flags&FlagInterlace != 0 {
		out.Flags |= drmModeFlagInterlace
	}
	if m.Flags&FlagDoubleScan != 0 {
		out.Flags |= drmModeFlagDBLScan
	}
	copy(out.Name[:], m.Name)
	return out
}

func fromDRMMode(m drmModeModeInfo) DisplayMode {
	out := DisplayMode{
		Name:     cString(m.Name[:]),
		HDisplay: int(m.HDisplay),
		VDisplay: int(m.VDisplay),
		ClockKHz: int(m.Clock),
		HTotal:   int(m.HTotal),
		VTotal:   int(m.VTotal),
		VScan:    int(m.VScan),
	}
	if m.Flags&drmModeFlagInterlace != 0 {
		out.Flags |= FlagInterlace
	}
	if m.Flags&drmModeFlagDBLScan != 0 {
		out.Flags |= FlagDoubleScan
	}
	return out
}
