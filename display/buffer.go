//go:build linux

package display

import (
	"fmt"

	"kvmvideo.dev/kvmerr"
)

// BufferKind distinguishes a scan-out buffer backed by locally mapped
// memory from one wrapping an imported DMA descriptor.
type BufferKind int

const (
	KindDumb BufferKind = iota
	KindImported
)

// ScanoutBuffer is a framebuffer registered with the display controller.
// The original implementation's three booleans (dumb_created, fb_added,
// non-nil data) become explicit per-resource state here so each sub-resource
// is independently droppable in reverse acquisition order, per the
// spec.md §9 design note.
type ScanoutBuffer struct {
	FBID   uint32
	Handle uint32
	Mapped []byte // nil for Imported buffers
	Capacity int
	Kind   BufferKind

	dumbCreated bool
	fbAdded     bool
	mapped      bool
}

// Valid reports whether the buffer is registered and backed.
func (b *ScanoutBuffer) Valid() bool {
	return b.fbAdded && (b.dumbCreated || b.Kind == KindImported)
}

// release tears down a buffer's sub-resources in strict reverse
// acquisition order: unmap, remove framebuffer, destroy dumb handle.
// Imported buffers never own the underlying DMA memory; only the
// framebuffer wrapping it is removed.
func (b *ScanoutBuffer) release(fd int) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.mapped && b.Mapped != nil {
		record(unmapBuffer(b.Mapped))
		b.Mapped = nil
		b.mapped = false
	}
	if b.fbAdded {
		fbid := b.FBID
		record(ioctlNamed(fd, "DRM_IOCTL_MODE_RMFB", reqModeRmFB, ptrOf(&fbid)))
		b.fbAdded = false
	}
	if b.dumbCreated && b.Kind == KindDumb {
		destroy := drmModeDestroyDumb{Handle: b.Handle}
		record(ioctlNamed(fd, "DRM_IOCTL_MODE_DESTROY_DUMB", reqModeDestroyDumb, ptrOf(&destroy)))
		b.dumbCreated = false
	}
	return firstErr
}

func createDumbBuffer(fd int, width, height, bpp uint32) (ScanoutBuffer, error) {
	create := drmModeCreateDumb{Height: height, Width: width, BPP: bpp}
	if err := ioctlNamed(fd, "DRM_IOCTL_MODE_CREATE_DUMB", reqModeCreateDumb, ptrOf(&create)); err != nil {
		return ScanoutBuffer{}, fmt.Errorf("%w: %v", kvmerr.ErrMemory, err)
	}
	buf := ScanoutBuffer{Handle: create.Handle, Capacity: int(create.Size), Kind: KindDumb, dumbCreated: true}
	return buf, nil
}

func mapDumbBuffer(fd int, buf *ScanoutBuffer) error {
	m := drmModeMapDumb{Handle: buf.Handle}
	if err := ioctlNamed(fd, "DRM_IOCTL_MODE_MAP_DUMB", reqModeMapDumb, ptrOf(&m)); err != nil {
		return err
	}
	data, err := mmapBuffer(fd, int64(m.Offset), buf.Capacity)
	if err != nil {
		return fmt.Errorf("framebuffer mmap failed: %w", err)
	}
	buf.Mapped = data
	buf.mapped = true
	return nil
}

// addFBLegacy registers a fixed-depth framebuffer (used for the Amlogic
// always-dumb XRGB8888 path, spec.md §4.1.4).
func addFBLegacy(fd int, buf *ScanoutBuffer, width, height, pitch, bpp, depth uint32) error {
	cmd := drmModeFBCmd{Width: width, Height: height, Pitch: pitch, BPP: bpp, Depth: depth, Handle: buf.Handle}
	if err := ioctlNamed(fd, "DRM_IOCTL_MODE_ADDFB", reqModeAddFB, ptrOf(&cmd)); err != nil {
		return err
	}
	buf.FBID = cmd.FBID
	buf.fbAdded = true
	return nil
}

// addFBPlane registers a framebuffer via the plane-aware API, used for
// the zero-copy DMA-import path where the pixel format must be named
// explicitly rather than as a legacy depth/bpp pair.
func addFBPlane(fd int, buf *ScanoutBuffer, width, height, pitch uint32, pixFmt uint32) error {
	cmd := drmModeFBCmd2{Width: width, Height: height, PixFmt: pixFmt}
	cmd.Handles[0] = buf.Handle
	cmd.Pitches[0] = pitch
	if err := ioctlNamed(fd, "DRM_IOCTL_MODE_ADDFB2", reqModeAddFB2, ptrOf(&cmd)); err != nil {
		return err
	}
	buf.FBID = cmd.FBID
	buf.fbAdded = true
	return nil
}

func primeFDToHandle(fd int, dmaFD int) (uint32, error) {
	req := drmPrimeHandle{FD: int32(dmaFD)}
	if err := ioctlNamed(fd, "DRM_IOCTL_PRIME_FD_TO_HANDLE", reqPrimeFDToHandle, ptrOf(&req)); err != nil {
		return 0, err
	}
	return req.Handle, nil
}
