package transcode

import (
	"bytes"
	"fmt"

	"kvmvideo.dev/frame"
	"kvmvideo.dev/kvmerr"
)

// jpegMagic is the two-byte start-of-image marker every JPEG payload
// must begin with.
var jpegMagic = []byte{0xFF, 0xD8}

// jpegDecoder is the decode stage from spec.md §4.2.2: MJPEG/JPEG in,
// NV12 out, with a retryable info-change sentinel.
type jpegDecoder struct {
	hw decoderHW

	width, height       int
	horStride, verStride int
}

func newJPEGDecoder(maxWidth, maxHeight int) (*jpegDecoder, error) {
	hw, err := newDecoderHW(maxWidth, maxHeight, mppOutputTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("%w: jpeg decoder: %v", kvmerr.ErrInit, err)
	}
	return &jpegDecoder{hw: hw}, nil
}

// decode implements spec.md §4.2.2's decode(jpeg_frame) -> nv12_frame.
func (d *jpegDecoder) decode(jpeg []byte) (*frame.Frame, error) {
	if len(jpeg) < 2 || !bytes.Equal(jpeg[:2], jpegMagic) {
		return nil, fmt.Errorf("%w: missing JPEG start-of-image marker", kvmerr.ErrInvalidParam)
	}

	out, width, height, horStride, verStride, infoChange, discard, err := d.hw.Decode(jpeg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kvmerr.ErrDecode, err)
	}
	if infoChange {
		d.width, d.height = width, height
		d.horStride, d.verStride = horStride, verStride
		if err := d.hw.AckInfoChange(); err != nil {
			return nil, fmt.Errorf("%w: ack info-change: %v", kvmerr.ErrDecode, err)
		}
		return nil, kvmerr.ErrInfoChange
	}
	if discard {
		return nil, fmt.Errorf("%w: frame discarded by hardware", kvmerr.ErrDecode)
	}

	used := horStride * verStride * 3 / 2
	if len(out) < used {
		return nil, fmt.Errorf("%w: decoded frame shorter than expected (%d < %d)", kvmerr.ErrBufferOverflow, len(out), used)
	}
	return &frame.Frame{
		Width:  width,
		Height: height,
		Stride: horStride,
		Format: frame.NV12,
		Data:   out[:used],
		Used:   used,
	}, nil
}

func (d *jpegDecoder) reset() error {
	d.width, d.height, d.horStride, d.verStride = 0, 0, 0, 0
	return d.hw.Reset()
}

func (d *jpegDecoder) close() error {
	return d.hw.Close()
}
