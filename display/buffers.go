//go:build linux

package display

import (
	"fmt"

	"kvmvideo.dev/frame"
	"kvmvideo.dev/kvmerr"
)

const stubBufferCount = 4

// provisionBuffers implements spec.md §4.1.4's per-platform buffer
// strategy.
func (s *DisplaySink) provisionBuffers(cap *CaptureInfo, result OpenResult) error {
	r := &s.runtime
	switch {
	case r.platform == PlatformAmlogic:
		return s.provisionAmlogicBuffers(cap, result)
	case result == ResultLive:
		return s.provisionLiveBuffers(cap)
	default:
		return s.provisionStubBuffers()
	}
}

// provisionAmlogicBuffers always allocates dumb XRGB8888 buffers and
// never attempts DMA import, registered via the legacy fixed-depth API
// (depth=24, bpp=32), per spec.md §4.1.4.
func (s *DisplaySink) provisionAmlogicBuffers(cap *CaptureInfo, result OpenResult) error {
	r := &s.runtime
	n := stubBufferCount
	if result == ResultLive && cap != nil && cap.NumBuffers > 0 {
		n = cap.NumBuffers
	}
	w, h := uint32(r.mode.HDisplay), uint32(r.mode.VDisplay)
	bufs := make([]ScanoutBuffer, 0, n)
	for i := 0; i < n; i++ {
		buf, err := createDumbBuffer(r.fd, w, h, 32)
		if err != nil {
			releaseAll(r.fd, bufs)
			return err
		}
		pitch := w * 4
		if err := addFBLegacy(r.fd, &buf, w, h, pitch, 32, 24); err != nil {
			buf.release(r.fd)
			releaseAll(r.fd, bufs)
			return fmt.Errorf("%w: add-framebuffer: %v", kvmerr.ErrHardwareFailure, err)
		}
		if err := mapDumbBuffer(r.fd, &buf); err != nil {
			buf.release(r.fd)
			releaseAll(r.fd, bufs)
			return err
		}
		bufs = append(bufs, buf)
	}
	r.bufs = bufs
	r.detectedBPP = 32
	r.displayStride = int(w) * 4
	return nil
}

// provisionLiveBuffers attempts DMA import for each capture buffer,
// falling back to a dumb buffer sized to the mode on failure.
func (s *DisplaySink) provisionLiveBuffers(cap *CaptureInfo) error {
	r := &s.runtime
	n := cap.NumBuffers
	if n <= 0 {
		n = stubBufferCount
	}
	pixFmt := fmtXRGB8888
	switch cap.Format {
	case frame.RGB24:
		pixFmt = fmtRGB888
	case frame.BGR24:
		pixFmt = fmtBGR888
	case frame.YUYV:
		pixFmt = fmtYUYV
	}
	w, h := uint32(cap.Width), uint32(cap.Height)
	bufs := make([]ScanoutBuffer, 0, n)
	for i := 0; i < n; i++ {
		var fd int = -1
		if i < len(cap.DMAFDs) {
			fd = cap.DMAFDs[i]
		}
		if fd >= 0 {
			if buf, err := importDMABuffer(r.fd, fd, w, h, pixFmt); err == nil {
				bufs = append(bufs, buf)
				continue
			}
		}
		// Fall back to a dumb buffer sized to the mode.
		buf, err := createDumbBuffer(r.fd, uint32(r.mode.HDisplay), uint32(r.mode.VDisplay), 32)
		if err != nil {
			releaseAll(r.fd, bufs)
			return err
		}
		pitch := uint32(r.mode.HDisplay) * 4
		if err := addFBPlane(r.fd, &buf, uint32(r.mode.HDisplay), uint32(r.mode.VDisplay), pitch, fmtXRGB8888); err != nil {
			buf.release(r.fd)
			releaseAll(r.fd, bufs)
			return fmt.Errorf("%w: add-framebuffer: %v", kvmerr.ErrHardwareFailure, err)
		}
		if err := mapDumbBuffer(r.fd, &buf); err != nil {
			buf.release(r.fd)
			releaseAll(r.fd, bufs)
			return err
		}
		bufs = append(bufs, buf)
	}
	r.bufs = bufs
	return nil
}

func importDMABuffer(fd int, dmaFD int, width, height uint32, pixFmt uint32) (ScanoutBuffer, error) {
	handle, err := primeFDToHandle(fd, dmaFD)
	if err != nil {
		return ScanoutBuffer{}, fmt.Errorf("%w: prime-fd-to-handle: %v", kvmerr.ErrHardwareFailure, err)
	}
	buf := ScanoutBuffer{Handle: handle, Kind: KindImported}
	pitch := width * bytesPerPixel(pixFmt)
	if err := addFBPlane(fd, &buf, width, height, pitch, pixFmt); err != nil {
		return ScanoutBuffer{}, err
	}
	return buf, nil
}

func bytesPerPixel(pixFmt uint32) uint32 {
	switch pixFmt {
	case fmtYUYV:
		return 2
	case fmtRGB888, fmtBGR888:
		return 3
	default:
		return 4
	}
}

// provisionStubBuffers allocates dumb RGB888 buffers for the OSD/stub
// path, with the bpp-fallback ladder from spec.md §4.1.4, resolving the
// Open Question in spec.md §9: each bpp gets its own freshly created
// candidate buffer, only a candidate whose registration failed is
// destroyed (before the next bpp is tried), and a buffer that registered
// successfully is never destroyed to make room for another attempt.
func (s *DisplaySink) provisionStubBuffers() error {
	r := &s.runtime
	w, h := uint32(r.mode.HDisplay), uint32(r.mode.VDisplay)

	first, bpp, err := createStubBufferWithFallback(r.fd, w, h)
	if err != nil {
		return err
	}
	if err := mapDumbBuffer(r.fd, &first); err != nil {
		first.release(r.fd)
		return err
	}
	bufs := []ScanoutBuffer{first}
	for i := 1; i < stubBufferCount; i++ {
		buf, err := createDumbBuffer(r.fd, w, h, bpp)
		if err != nil {
			releaseAll(r.fd, bufs)
			return err
		}
		if err := addFBLegacy(r.fd, &buf, w, h, w*bpp/8, bpp, depthFor(bpp)); err != nil {
			// Specific failure class: retry through the fallback ladder
			// rather than leaving the runtime short a buffer.
			buf.release(r.fd)
			fallback, newBPP, ferr := createStubBufferWithFallback(r.fd, w, h)
			if ferr != nil {
				releaseAll(r.fd, bufs)
				return ferr
			}
			bpp = newBPP
			buf = fallback
		}
		if err := mapDumbBuffer(r.fd, &buf); err != nil {
			buf.release(r.fd)
			releaseAll(r.fd, bufs)
			return err
		}
		bufs = append(bufs, buf)
	}
	r.bufs = bufs
	r.detectedBPP = int(bpp)
	r.displayStride = int(w) * int(bpp) / 8
	return nil
}

var stubBPPFallbackOrder = []uint32{24, 32, 16}

func depthFor(bpp uint32) uint32 {
	if bpp == 16 {
		return 16
	}
	return 24
}

// createStubBufferWithFallback tries each candidate bpp in order,
// creating a fresh dumb buffer for each attempt and only discarding it
// if registration fails — never destroying a working buffer before its
// replacement exists.
func createStubBufferWithFallback(fd int, w, h uint32) (ScanoutBuffer, uint32, error) {
	var lastErr error
	for _, bpp := range stubBPPFallbackOrder {
		buf, err := createDumbBuffer(fd, w, h, bpp)
		if err != nil {
			lastErr = err
			continue
		}
		pitch := w * bpp / 8
		if err := addFBLegacy(fd, &buf, w, h, pitch, bpp, depthFor(bpp)); err != nil {
			buf.release(fd)
			lastErr = err
			continue
		}
		return buf, bpp, nil
	}
	return ScanoutBuffer{}, 0, fmt.Errorf("%w: no supported stub framebuffer depth: %v", kvmerr.ErrHardwareFailure, lastErr)
}

func releaseAll(fd int, bufs []ScanoutBuffer) {
	for i := len(bufs) - 1; i >= 0; i-- {
		bufs[i].release(fd)
	}
}
