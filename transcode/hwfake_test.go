package transcode

import "errors"

// fakeDecoder and fakeEncoder are hand-rolled hardware-context fakes in
// the style of driver/mjolnir's NewSimulator, substituted for
// decoderHW/encoderHW so the orchestration logic in decoder.go,
// encoder.go, and transcoder.go can be exercised without real Rockchip
// MPP hardware.

type decodeResponse struct {
	output               []byte
	width, height        int
	horStride, verStride int
	infoChange, discard  bool
	err                  error
}

type fakeDecoder struct {
	responses []decodeResponse
	calls     int

	ackCalls   int
	ackErr     error
	resetCalls int
	resetErr   error
	closed     bool
}

func (f *fakeDecoder) Decode(jpeg []byte) (output []byte, width, height, horStride, verStride int, infoChange, discard bool, err error) {
	if f.calls >= len(f.responses) {
		return nil, 0, 0, 0, 0, false, false, errors.New("fakeDecoder: no scripted response left")
	}
	r := f.responses[f.calls]
	f.calls++
	return r.output, r.width, r.height, r.horStride, r.verStride, r.infoChange, r.discard, r.err
}

func (f *fakeDecoder) AckInfoChange() error {
	f.ackCalls++
	return f.ackErr
}

func (f *fakeDecoder) Reset() error {
	f.resetCalls++
	return f.resetErr
}

func (f *fakeDecoder) Close() error {
	f.closed = true
	return nil
}

type packetResponse struct {
	data    []byte
	isIntra bool
	timeout bool
	err     error
}

// fakeEncoder replays one packetResponse per GetPacket call. Script 30
// empty responses (no data, no timeout) to exercise retrieval-loop
// exhaustion, a few empty responses followed by data to exercise the
// retry/sleep path, or timeout=true to end the loop with no output.
type fakeEncoder struct {
	responses []packetResponse
	calls     int

	putFrames    [][]byte
	forceKeyCall []bool
	putFrameErr  error

	configured   bool
	lastProfile  EncoderProfile
	lastRCMode   RCMode
	configureErr error
	resetCalls   int
	resetErr     error
	closed       bool
}

func (f *fakeEncoder) Configure(profile EncoderProfile, rc RCMode, bitrateKbps, gopSize, fpsNum, fpsDen int) error {
	f.configured = true
	f.lastProfile = profile
	f.lastRCMode = rc
	return f.configureErr
}

func (f *fakeEncoder) PutFrame(nv12 []byte, width, height int, forceKey bool) error {
	cp := make([]byte, len(nv12))
	copy(cp, nv12)
	f.putFrames = append(f.putFrames, cp)
	f.forceKeyCall = append(f.forceKeyCall, forceKey)
	return f.putFrameErr
}

func (f *fakeEncoder) GetPacket() (data []byte, isIntra bool, timeout bool, err error) {
	if f.calls >= len(f.responses) {
		return nil, false, false, errors.New("fakeEncoder: no scripted response left")
	}
	r := f.responses[f.calls]
	f.calls++
	return r.data, r.isIntra, r.timeout, r.err
}

func (f *fakeEncoder) Reset() error {
	f.resetCalls++
	return f.resetErr
}

func (f *fakeEncoder) Close() error {
	f.closed = true
	return nil
}
