package transcode

import (
	"errors"
	"fmt"
	"sync"

	"kvmvideo.dev/frame"
	"kvmvideo.dev/kvmerr"
)

// Transcoder is the two-stage pipeline from spec.md §4.2: JPEG decode
// (lazy) feeding an always-present H.264 encoder, with CPU-side pixel
// conversion in between for any input format that isn't already NV12.
type Transcoder struct {
	mu sync.Mutex

	cfg     Config
	encoder *h264Encoder
	decoder *jpegDecoder // created lazily on first MJPEG/JPEG input

	lastFormat      frame.PixelFormat
	needsConversion bool
	conversionBuf   []byte

	stats    Stats
	stopping bool
}

// New constructs a Transcoder and its encoder stage eagerly; the
// decoder stage is created lazily on first MJPEG/JPEG input (spec.md
// §4.2.4).
func New(cfg Config) (*Transcoder, error) {
	cfg = cfg.withDefaults()
	enc, err := newH264Encoder(cfg, DefaultEncoderProfile)
	if err != nil {
		return nil, err
	}
	return &Transcoder{cfg: cfg, encoder: enc, lastFormat: frame.Unknown}, nil
}

// Process implements process(input_frame, force_key) -> H264Frame |
// Error. ErrInfoChange is returned unchanged; the caller must resubmit
// the same input frame.
func (t *Transcoder) Process(in *frame.Frame, forceKey bool) (*frame.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopping {
		return nil, kvmerr.ErrNotInitialized
	}

	if in.Format != t.lastFormat {
		if err := t.deriveConversionInfo(in.Format); err != nil {
			t.stats.ProcessingErrors++
			return nil, err
		}
		t.lastFormat = in.Format
	}

	nv12, err := t.resolveNV12Source(in)
	if err != nil {
		if errors.Is(err, kvmerr.ErrInfoChange) {
			return nil, err
		}
		t.stats.ProcessingErrors++
		t.stats.ConsecutiveErrors++
		return nil, err
	}

	t.stats.BytesInput += uint64(in.Used)
	out, isIntra, err := t.encoder.encode(nv12, forceKey)
	if err != nil {
		t.stats.ProcessingErrors++
		t.stats.EncodeErrors++
		t.stats.ConsecutiveErrors++
		return nil, err
	}
	t.stats.FramesProcessed++
	t.stats.FramesEncoded++
	t.stats.ConsecutiveErrors = 0
	if out != nil {
		t.stats.BytesOutput += uint64(out.Used)
		if isIntra {
			t.stats.KeyframesGenerated++
		}
	}
	return out, nil
}

func (t *Transcoder) deriveConversionInfo(format frame.PixelFormat) error {
	switch format {
	case frame.MJPEG, frame.JPEG, frame.NV12:
		t.needsConversion = false
		return nil
	default:
		if !frame.TranscoderInputFormats[format] {
			return fmt.Errorf("%w: %s", kvmerr.ErrFormatUnsupported, format)
		}
		t.needsConversion = true
		return nil
	}
}

func (t *Transcoder) resolveNV12Source(in *frame.Frame) (*frame.Frame, error) {
	switch in.Format {
	case frame.MJPEG, frame.JPEG:
		if t.decoder == nil {
			dec, err := newJPEGDecoder(t.cfg.MaxWidth, t.cfg.MaxHeight)
			if err != nil {
				return nil, err
			}
			t.decoder = dec
		}
		t.stats.FramesDecoded++
		nv12, err := t.decoder.decode(in.Data[:in.Used])
		if err != nil {
			if errors.Is(err, kvmerr.ErrInfoChange) {
				return nil, err
			}
			t.stats.DecodeErrors++
			return nil, err
		}
		return nv12, nil
	case frame.NV12:
		return in, nil
	default:
		needed := NV12Size(in.Width, in.Height)
		if len(t.conversionBuf) != needed {
			t.conversionBuf = make([]byte, needed)
		}
		if err := convertToNV12(t.conversionBuf, in); err != nil {
			return nil, err
		}
		return &frame.Frame{
			Width:  in.Width,
			Height: in.Height,
			Stride: in.Width,
			Format: frame.NV12,
			Data:   t.conversionBuf,
			Used:   needed,
		}, nil
	}
}

// SetProfile, SetRCMode, SetQPRange re-apply encoder configuration to a
// running pipeline under the transcoder's mutex (spec.md §4.2.3).
func (t *Transcoder) SetProfile(p EncoderProfile) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encoder.setProfile(p)
}

func (t *Transcoder) SetRCMode(mode RCMode, bitrateKbps int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encoder.setRCMode(mode, bitrateKbps)
}

func (t *Transcoder) SetQPRange(min, max int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.encoder.setQPRange(min, max)
}

// Stats returns a snapshot of the combined decoder/encoder statistics.
func (t *Transcoder) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Reset issues a hardware context reset on both stages and zeroes
// statistics (spec.md §4.2.6).
func (t *Transcoder) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.decoder != nil {
		if err := t.decoder.reset(); err != nil {
			return err
		}
	}
	if err := t.encoder.reset(); err != nil {
		return err
	}
	t.stats.reset()
	return nil
}

// Destroy stops the transcoder, releases both stages in reverse of
// creation, and leaves the Transcoder unusable.
func (t *Transcoder) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopping = true
	var firstErr error
	if t.decoder != nil {
		if err := t.decoder.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := t.encoder.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
