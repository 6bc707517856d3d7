package display

// ModeFlags mirrors the subset of DRM mode-info flags the selection
// algorithm inspects.
type ModeFlags uint32

const (
	FlagInterlace ModeFlags = 1 << iota
	FlagDoubleScan
	FlagPreferred
)

// DisplayMode is a monitor-reported mode, as enumerated on a connector.
type DisplayMode struct {
	Name                 string
	HDisplay, VDisplay   int
	ClockKHz             int
	HTotal, VTotal       int
	VScan                int
	Flags                ModeFlags
}

// RefreshHz computes the derived refresh rate: clock_khz*1000 /
// (htotal*vtotal), halved on DBLSCAN, divided by vscan when vscan > 1,
// and doubled for interlaced modes (spec.md §3).
func (m DisplayMode) RefreshHz() float64 {
	if m.HTotal == 0 || m.VTotal == 0 {
		return 0
	}
	hz := float64(m.ClockKHz) * 1000.0 / float64(m.HTotal*m.VTotal)
	if m.Flags&FlagDoubleScan != 0 {
		hz /= 2
	}
	if m.VScan > 1 {
		hz /= float64(m.VScan)
	}
	if m.Flags&FlagInterlace != 0 {
		hz *= 2
	}
	return hz
}

func (m DisplayMode) interlaced() bool {
	return m.Flags&FlagInterlace != 0
}

// selectMode implements the priority order from spec.md §4.1.3. modes is
// the candidate list for a single connector; preferredIdx indexes the
// PREFERRED mode if any exists, else is -1.
func selectMode(modes []DisplayMode, preferredIdx int, width, height int, refreshHz float64) (DisplayMode, int, bool) {
	var progressive []DisplayMode
	var progressiveIdx []int
	for i, m := range modes {
		if m.interlaced() {
			continue
		}
		progressive = append(progressive, m)
		progressiveIdx = append(progressiveIdx, i)
	}
	if len(progressive) == 0 {
		return DisplayMode{}, -1, false
	}

	// Legacy special case: 640x416 requested against a 640x480 mode at
	// a lower refresh than requested selects the 480 mode with vdisplay
	// reported as 416 (spec.md §4.1.3).
	if width == 640 && height == 416 {
		for i, m := range progressive {
			if m.HDisplay == 640 && m.VDisplay == 480 && m.RefreshHz() < refreshHz {
				out := m
				out.VDisplay = 416
				return out, progressiveIdx[i], true
			}
		}
	}

	// 1. Exact match on width, height, and refresh.
	for i, m := range progressive {
		if m.HDisplay == width && m.VDisplay == height && sameRefresh(m.RefreshHz(), refreshHz) {
			return m, progressiveIdx[i], true
		}
	}
	// 2. Any mode matching both width and height.
	for i, m := range progressive {
		if m.HDisplay == width && m.VDisplay == height {
			return m, progressiveIdx[i], true
		}
	}
	// 3. Matching width, letterboxable height.
	for i, m := range progressive {
		if m.HDisplay == width && m.VDisplay < height {
			return m, progressiveIdx[i], true
		}
	}
	// 4. The connector's PREFERRED mode, if progressive.
	if preferredIdx >= 0 {
		for i, orig := range progressiveIdx {
			if orig == preferredIdx {
				return progressive[i], orig, true
			}
		}
	}
	// 5. The first mode in the connector's (progressive) list.
	return progressive[0], progressiveIdx[0], true
}

func sameRefresh(a, b float64) bool {
	const eps = 0.5
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}
