package transcode

import (
	"errors"
	"testing"

	"kvmvideo.dev/frame"
	"kvmvideo.dev/kvmerr"
)

func nv12Input(w, h int) *frame.Frame {
	data := make([]byte, NV12Size(w, h))
	return &frame.Frame{Width: w, Height: h, Format: frame.NV12, Data: data, Used: len(data)}
}

func TestEncodeReturnsPacketOnFirstTry(t *testing.T) {
	hw := &fakeEncoder{responses: []packetResponse{
		{data: []byte{1, 2, 3}, isIntra: true},
	}}
	e := &h264Encoder{hw: hw}

	out, isIntra, err := e.encode(nv12Input(64, 48), false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !isIntra {
		t.Fatal("encode() isIntra = false, want true")
	}
	if out.Format != frame.H264 || out.Used != 3 {
		t.Fatalf("encode() out = %+v, want H264 frame of length 3", out)
	}
	if len(hw.putFrames) != 1 {
		t.Fatalf("PutFrame called %d times, want 1", len(hw.putFrames))
	}
}

func TestEncodeTimeoutOnFirstTryMeansNoOutput(t *testing.T) {
	hw := &fakeEncoder{responses: []packetResponse{{timeout: true}}}
	e := &h264Encoder{hw: hw}

	out, _, err := e.encode(nv12Input(64, 48), false)
	if err != nil {
		t.Fatalf("encode() on immediate timeout = %v, want nil error", err)
	}
	if out != nil {
		t.Fatalf("encode() out = %+v, want nil", out)
	}
}

func TestEncodeRetriesThenSucceeds(t *testing.T) {
	responses := make([]packetResponse, 0, 5)
	for i := 0; i < 4; i++ {
		responses = append(responses, packetResponse{})
	}
	responses = append(responses, packetResponse{data: []byte{9}})
	hw := &fakeEncoder{responses: responses}
	e := &h264Encoder{hw: hw}

	out, _, err := e.encode(nv12Input(64, 48), false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if out == nil || out.Used != 1 {
		t.Fatalf("encode() out = %+v, want 1-byte H264 frame", out)
	}
}

func TestEncodeExhaustsRetriesReturnsTimeoutError(t *testing.T) {
	responses := make([]packetResponse, encRetrievalMaxRetries)
	hw := &fakeEncoder{responses: responses}
	e := &h264Encoder{hw: hw}

	_, _, err := e.encode(nv12Input(64, 48), false)
	if !errors.Is(err, kvmerr.ErrTimeout) {
		t.Fatalf("encode() after exhausting retries = %v, want ErrTimeout", err)
	}
}

func TestEncodePutFrameErrorIsEncodeError(t *testing.T) {
	hw := &fakeEncoder{putFrameErr: errors.New("boom")}
	e := &h264Encoder{hw: hw}

	_, _, err := e.encode(nv12Input(64, 48), false)
	if !errors.Is(err, kvmerr.ErrEncode) {
		t.Fatalf("encode() on put-frame error = %v, want ErrEncode", err)
	}
}

func TestEncodeForwardsForceKey(t *testing.T) {
	hw := &fakeEncoder{responses: []packetResponse{{data: []byte{1}}}}
	e := &h264Encoder{hw: hw}

	if _, _, err := e.encode(nv12Input(64, 48), true); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(hw.forceKeyCall) != 1 || !hw.forceKeyCall[0] {
		t.Fatalf("forceKey not forwarded to hw.PutFrame: %v", hw.forceKeyCall)
	}
}

func TestSetProfileReconfigures(t *testing.T) {
	hw := &fakeEncoder{}
	e := &h264Encoder{hw: hw, rcMode: RCVBR, bitrateKbps: 4000, gopSize: 60, fpsNum: 30, fpsDen: 1}

	p := EncoderProfile{Profile: 77, Level: 31, QPInit: 20, QPMin: 10, QPMax: 30}
	if err := e.setProfile(p); err != nil {
		t.Fatalf("setProfile: %v", err)
	}
	if !hw.configured || hw.lastProfile != p {
		t.Fatalf("setProfile did not reconfigure hw with %+v", p)
	}
}

func TestSetRCModeUpdatesBitrate(t *testing.T) {
	hw := &fakeEncoder{}
	e := &h264Encoder{hw: hw}

	if err := e.setRCMode(RCCBR, 8000); err != nil {
		t.Fatalf("setRCMode: %v", err)
	}
	if e.rcMode != RCCBR || e.bitrateKbps != 8000 || hw.lastRCMode != RCCBR {
		t.Fatalf("setRCMode left state rcMode=%v bitrate=%d hwMode=%v", e.rcMode, e.bitrateKbps, hw.lastRCMode)
	}
}

func TestSetQPRangeUpdatesProfile(t *testing.T) {
	hw := &fakeEncoder{}
	e := &h264Encoder{hw: hw, profile: DefaultEncoderProfile}

	if err := e.setQPRange(12, 36); err != nil {
		t.Fatalf("setQPRange: %v", err)
	}
	if e.profile.QPMin != 12 || e.profile.QPMax != 36 {
		t.Fatalf("setQPRange left profile %+v", e.profile)
	}
}
