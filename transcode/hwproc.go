package transcode

// decoderHW is the hardware-processor shape for the JPEG decode stage
// (spec.md §4.2.1, §4.2.2), narrowed to exactly what the orchestration
// logic in decoder.go needs. The Rockchip MPP-backed implementation
// lives in mpp_linux.go; tests substitute a hand-rolled fake.
type decoderHW interface {
	// Decode submits one JPEG payload and retrieves exactly one frame.
	// infoChange and discard are mutually exclusive with a non-nil
	// output. Width/height/horStride/verStride are only meaningful when
	// infoChange is true or output is non-nil.
	Decode(jpeg []byte) (output []byte, width, height, horStride, verStride int, infoChange, discard bool, err error)
	// AckInfoChange acknowledges a reported info-change so the hardware
	// resumes normal decoding on the next submitted packet.
	AckInfoChange() error
	Reset() error
	Close() error
}

// encoderHW is the hardware-processor shape for the H.264 encode stage
// (spec.md §4.2.1, §4.2.3).
type encoderHW interface {
	Configure(profile EncoderProfile, rc RCMode, bitrateKbps, gopSize, fpsNum, fpsDen int) error
	PutFrame(nv12 []byte, width, height int, forceKey bool) error
	// GetPacket retrieves one output packet for the most recent PutFrame.
	// timeout=true with err=nil means "no more packets for this frame",
	// a normal loop termination rather than a failure.
	GetPacket() (data []byte, isIntra bool, timeout bool, err error)
	Reset() error
	Close() error
}

// mppOutputTimeoutMS is the mandatory output-queue timeout applied to
// every hardware context on creation (spec.md §4.2.1): without it,
// hardware calls may block indefinitely.
const mppOutputTimeoutMS = 100
