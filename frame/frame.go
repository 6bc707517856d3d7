// Package frame defines the value types shared between the display sink
// and the transcoder: the Frame itself, the pixel-format tag, and the
// centering geometry used by letterboxed presentation.
package frame

import "time"

// PixelFormat is the closed set of pixel formats the pipeline understands.
// Each value is the kernel video-capture interface (V4L2) fourcc of that
// format; Unknown is zero.
type PixelFormat int

const (
	Unknown PixelFormat = 0
	MJPEG   PixelFormat = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
	JPEG    PixelFormat = 'J' | 'P'<<8 | 'E'<<16 | 'G'<<24
	RGB24   PixelFormat = 'R' | 'G'<<8 | 'B'<<16 | '3'<<24
	BGR24   PixelFormat = 'B' | 'G'<<8 | 'R'<<16 | '3'<<24
	YUYV    PixelFormat = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
	NV12    PixelFormat = 'N' | 'V'<<8 | '1'<<16 | '2'<<24
	NV16    PixelFormat = 'N' | 'V'<<8 | '1'<<16 | '6'<<24
	YUV420  PixelFormat = 'Y' | 'U'<<8 | '1'<<16 | '2'<<24
	H264    PixelFormat = 'H' | '2'<<8 | '6'<<16 | '4'<<24
)

func (f PixelFormat) String() string {
	switch f {
	case MJPEG:
		return "MJPEG"
	case JPEG:
		return "JPEG"
	case RGB24:
		return "RGB24"
	case BGR24:
		return "BGR24"
	case YUYV:
		return "YUYV"
	case NV12:
		return "NV12"
	case NV16:
		return "NV16"
	case YUV420:
		return "YUV420"
	case H264:
		return "H264"
	default:
		return "unknown"
	}
}

// DisplayCaptureFormats are the formats DisplaySink accepts from a
// capture source.
var DisplayCaptureFormats = map[PixelFormat]bool{
	RGB24: true,
	BGR24: true,
	YUYV:  true,
	MJPEG: true,
}

// TranscoderInputFormats are the formats Transcoder.Process accepts.
var TranscoderInputFormats = map[PixelFormat]bool{
	MJPEG:  true,
	JPEG:   true,
	NV12:   true,
	NV16:   true,
	RGB24:  true,
	BGR24:  true,
	YUYV:   true,
	YUV420: true,
}

// Frame is a value object owning a contiguous byte buffer. It is never
// mutated by a consumer that did not allocate it; DisplaySink and
// Transcoder both treat an input Frame as read-only.
type Frame struct {
	Width, Height int
	// Stride is bytes per row; 0 for compressed payloads (MJPEG, JPEG,
	// H264).
	Stride int
	Format PixelFormat
	// Data is the backing buffer. Used is the number of valid bytes at
	// its head; Data may be longer than Used (reused allocation).
	Data []byte
	// Used is payload_used: bytes of valid data in Data.
	Used int
	// DMAHandle is set only for frames backed by externally imported
	// memory. Ownership remains with the capture layer; DisplaySink
	// never closes it.
	DMAHandle int
	// BufferIndex identifies which of the capture device's buffers this
	// frame's DMAHandle corresponds to, for present_dma's bounds check.
	BufferIndex int
	GrabTimestamp time.Time
}

// Capacity reports payload_capacity: bytes allocated in Data.
func (f *Frame) Capacity() int {
	return len(f.Data)
}

// HasDMA reports whether the frame carries an importable DMA descriptor.
func (f *Frame) HasDMA() bool {
	return f.DMAHandle != 0
}

// Reset clears Used and Format so a reusable Frame can be refilled
// in place without discarding its allocation.
func (f *Frame) Reset() {
	f.Used = 0
	f.Format = Unknown
	f.DMAHandle = 0
}

// Ensure sets Data's length to exactly n bytes (shrinking or growing it),
// reallocating only when the capacity is below n; content is not
// guaranteed to be preserved. It serves callers that reuse a Frame as a
// write target (e.g. decoder/encoder output slots).
func (f *Frame) Ensure(n int) {
	if cap(f.Data) < n {
		f.Data = make([]byte, n)
		return
	}
	f.Data = f.Data[:n]
}

// Align16 rounds n up to the next multiple of 16, matching the
// hardware's horizontal/vertical stride alignment (MPP_ALIGN(x, 16)).
func Align16(n int) int {
	return align(n, 16)
}

// Align64 rounds n up to the next multiple of 64, used by the encoder's
// frame-size formula on top of the 16-aligned width/height.
func Align64(n int) int {
	return align(n, 64)
}

func align(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// CenteringGeometry describes how a source rectangle is centered within a
// destination rectangle. See spec.md §3 and the Open Question in §9:
// equal dimensions count as centered with a zero offset; NeedsCenter is
// false only when the source strictly exceeds the destination in either
// axis.
type CenteringGeometry struct {
	SrcW, SrcH int
	DstW, DstH int
	OffsetX, OffsetY int
	NeedsCenter bool
}

// Center computes the CenteringGeometry for placing a srcW x srcH source
// into a dstW x dstH destination.
func Center(srcW, srcH, dstW, dstH int) CenteringGeometry {
	g := CenteringGeometry{SrcW: srcW, SrcH: srcH, DstW: dstW, DstH: dstH}
	if srcW <= dstW && srcH <= dstH {
		g.OffsetX = (dstW - srcW) / 2
		g.OffsetY = (dstH - srcH) / 2
		g.NeedsCenter = true
	}
	return g
}
