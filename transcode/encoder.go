package transcode

import (
	"fmt"
	"time"

	"kvmvideo.dev/frame"
	"kvmvideo.dev/kvmerr"
)

const (
	encRetrievalMaxRetries = 30
	encRetrievalSleep      = time.Millisecond
)

// h264Encoder is the encode stage from spec.md §4.2.3.
type h264Encoder struct {
	hw encoderHW

	width, height int
	profile       EncoderProfile
	rcMode        RCMode
	bitrateKbps   int
	gopSize       int
	fpsNum, fpsDen int
}

func newH264Encoder(cfg Config, profile EncoderProfile) (*h264Encoder, error) {
	hw, err := newEncoderHW(cfg.MaxWidth, cfg.MaxHeight, mppOutputTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("%w: h264 encoder: %v", kvmerr.ErrInit, err)
	}
	e := &h264Encoder{
		hw:          hw,
		width:       cfg.MaxWidth,
		height:      cfg.MaxHeight,
		profile:     profile,
		rcMode:      RCVBR,
		bitrateKbps: cfg.BitrateKbps,
		gopSize:     cfg.GOPSize,
		fpsNum:      cfg.FPSNum,
		fpsDen:      cfg.FPSDen,
	}
	if err := hw.Configure(profile, e.rcMode, e.bitrateKbps, e.gopSize, e.fpsNum, e.fpsDen); err != nil {
		return nil, fmt.Errorf("%w: h264 encoder configure: %v", kvmerr.ErrInit, err)
	}
	return e, nil
}

// setProfile, setRCMode, setQPRange re-apply configuration to a running
// encoder (spec.md §4.2.3); all three are safe to call at any time.
func (e *h264Encoder) setProfile(p EncoderProfile) error {
	e.profile = p
	return e.hw.Configure(e.profile, e.rcMode, e.bitrateKbps, e.gopSize, e.fpsNum, e.fpsDen)
}

func (e *h264Encoder) setRCMode(mode RCMode, bitrateKbps int) error {
	e.rcMode = mode
	e.bitrateKbps = bitrateKbps
	return e.hw.Configure(e.profile, e.rcMode, e.bitrateKbps, e.gopSize, e.fpsNum, e.fpsDen)
}

func (e *h264Encoder) setQPRange(min, max int) error {
	e.profile.QPMin = min
	e.profile.QPMax = max
	return e.hw.Configure(e.profile, e.rcMode, e.bitrateKbps, e.gopSize, e.fpsNum, e.fpsDen)
}

// encode implements spec.md §4.2.3's encode(nv12_frame, force_key).
func (e *h264Encoder) encode(in *frame.Frame, forceKey bool) (*frame.Frame, bool, error) {
	if err := e.hw.PutFrame(in.Data[:in.Used], in.Width, in.Height, forceKey); err != nil {
		return nil, false, fmt.Errorf("%w: put-frame: %v", kvmerr.ErrEncode, err)
	}

	for attempt := 0; attempt < encRetrievalMaxRetries; attempt++ {
		data, isIntra, timedOut, err := e.hw.GetPacket()
		if err != nil {
			return nil, false, fmt.Errorf("%w: get-packet: %v", kvmerr.ErrEncode, err)
		}
		if timedOut {
			// Absence, not failure: no more packets for this frame.
			return nil, false, nil
		}
		if data != nil {
			out := &frame.Frame{
				Width:  in.Width,
				Height: in.Height,
				Format: frame.H264,
				Data:   data,
				Used:   len(data),
			}
			return out, isIntra, nil
		}
		time.Sleep(encRetrievalSleep)
	}
	return nil, false, fmt.Errorf("%w: encoder retrieval loop exceeded %d retries", kvmerr.ErrTimeout, encRetrievalMaxRetries)
}

func (e *h264Encoder) reset() error {
	return e.hw.Reset()
}

func (e *h264Encoder) close() error {
	return e.hw.Close()
}
