// Package transcode implements Transcoder, a two-stage Rockchip-MPP
// hardware pipeline: an MJPEG decoder stage and an H.264 encoder stage,
// joined by CPU-side pixel conversion when the input isn't already NV12.
// See SPEC_FULL.md §4.2.
package transcode

import (
	"log"
	"os"
)

// Config is the construction-time configuration for a Transcoder
// (spec.md §6.4).
type Config struct {
	MaxWidth, MaxHeight int
	BitrateKbps         int
	GOPSize             int
	FPSNum, FPSDen      int
	Logger              *log.Logger
}

// RCMode selects the encoder's rate-control strategy.
type RCMode int

const (
	RCVBR RCMode = iota
	RCCBR
)

func (m RCMode) String() string {
	if m == RCCBR {
		return "CBR"
	}
	return "VBR"
}

// EncoderProfile is the runtime-tunable H.264 configuration (spec.md
// §4.2.3, §6.4).
type EncoderProfile struct {
	Profile int // default 100 (High)
	Level   int // default 40
	QPInit  int
	QPMin   int
	QPMax   int
}

// DefaultEncoderProfile mirrors the original implementation's defaults:
// profile 100 (High), level 40, CABAC on, 8x8 transform on, initial QP
// 24, QP range [16, 40].
var DefaultEncoderProfile = EncoderProfile{
	Profile: 100,
	Level:   40,
	QPInit:  24,
	QPMin:   16,
	QPMax:   40,
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.GOPSize == 0 {
		out.GOPSize = 60
	}
	if out.FPSNum == 0 {
		out.FPSNum = 30
	}
	if out.FPSDen == 0 {
		out.FPSDen = 1
	}
	if out.BitrateKbps == 0 {
		out.BitrateKbps = 4000
	}
	if out.Logger == nil {
		out.Logger = log.New(os.Stderr, "mpp: ", log.LstdFlags)
	}
	return out
}
