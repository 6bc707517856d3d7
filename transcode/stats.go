package transcode

// Stats is the combined decoder/encoder statistics snapshot (spec.md
// §4.2.6's "combined statistics"), mirroring the original
// implementation's us_mpp_stats_s.
type Stats struct {
	FramesProcessed    uint64
	BytesInput         uint64
	BytesOutput        uint64
	ProcessingErrors   uint64
	FramesDecoded      uint64
	DecodeErrors       uint64
	FramesEncoded      uint64
	EncodeErrors       uint64
	KeyframesGenerated uint64
	ConsecutiveErrors  uint32
}

func (s *Stats) reset() {
	*s = Stats{}
}
