//go:build linux

package display

import (
	"fmt"
	"unsafe"

	"kvmvideo.dev/kvmerr"
)

type connectorInfo struct {
	id            uint32
	connected     bool
	name          string
	modes         []drmModeModeInfo
	preferredIdx  int
	propIDs       []uint32
	propValues    []uint64
	encoderIDs    []uint32
}

func connectorTypeName(t uint32) string {
	names := map[uint32]string{
		1: "VGA", 2: "DVI-I", 3: "DVI-D", 4: "DVI-A", 5: "Composite",
		6: "SVIDEO", 7: "LVDS", 8: "Component", 9: "DIN", 10: "DP",
		11: "HDMI-A", 12: "HDMI-B", 13: "TV", 14: "eDP", 15: "Virtual",
		16: "DSI", 17: "DPI", 18: "Writeback", 19: "SPI", 20: "USB",
	}
	if n, ok := names[t]; ok {
		return n
	}
	return "Unknown"
}

func getResources(fd int) ([]uint32, []uint32, []uint32, error) {
	var res drmModeCardRes
	if err := ioctlNamed(fd, "DRM_IOCTL_MODE_GETRESOURCES", reqModeGetResources, ptrOf(&res)); err != nil {
		return nil, nil, nil, err
	}
	conns := make([]uint32, res.CountConnectors)
	crtcs := make([]uint32, res.CountCrtcs)
	encs := make([]uint32, res.CountEncoders)
	if len(conns) > 0 {
		res.ConnectorIDPtr = uint64(uintptr(unsafe.Pointer(&conns[0])))
	}
	if len(crtcs) > 0 {
		res.CrtcIDPtr = uint64(uintptr(unsafe.Pointer(&crtcs[0])))
	}
	if len(encs) > 0 {
		res.EncoderIDPtr = uint64(uintptr(unsafe.Pointer(&encs[0])))
	}
	if err := ioctlNamed(fd, "DRM_IOCTL_MODE_GETRESOURCES", reqModeGetResources, ptrOf(&res)); err != nil {
		return nil, nil, nil, err
	}
	return conns, crtcs, encs, nil
}

func getConnector(fd int, id uint32) (*connectorInfo, error) {
	c := drmModeGetConnector{ConnectorID: id}
	if err := ioctlNamed(fd, "DRM_IOCTL_MODE_GETCONNECTOR", reqModeGetConnector, ptrOf(&c)); err != nil {
		return nil, err
	}
	modes := make([]drmModeModeInfo, c.CountModes)
	encs := make([]uint32, c.CountEncoders)
	propIDs := make([]uint32, c.CountProps)
	propVals := make([]uint64, c.CountProps)
	if len(modes) > 0 {
		c.ModesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))
	}
	if len(encs) > 0 {
		c.EncodersPtr = uint64(uintptr(unsafe.Pointer(&encs[0])))
	}
	if len(propIDs) > 0 {
		c.PropsPtr = uint64(uintptr(unsafe.Pointer(&propIDs[0])))
		c.PropValuesPtr = uint64(uintptr(unsafe.Pointer(&propVals[0])))
	}
	if err := ioctlNamed(fd, "DRM_IOCTL_MODE_GETCONNECTOR", reqModeGetConnector, ptrOf(&c)); err != nil {
		return nil, err
	}
	preferredIdx := -1
	for i, m := range modes {
		if m.Type&drmModeTypePreferred != 0 {
			preferredIdx = i
			break
		}
	}
	info := &connectorInfo{
		id:           id,
		connected:    c.Connection == drmModeConnected,
		name:         fmt.Sprintf("%s-%d", connectorTypeName(c.ConnectorType), c.ConnectorTypeID),
		modes:        modes,
		preferredIdx: preferredIdx,
		propIDs:      propIDs,
		propValues:   propVals,
		encoderIDs:   encs,
	}
	return info, nil
}

func findDPMSProperty(fd int, c *connectorInfo) uint32 {
	for _, propID := range c.propIDs {
		p := drmModeGetProperty{PropID: propID}
		if err := ioctlNamed(fd, "DRM_IOCTL_MODE_GETPROPERTY", reqModeGetProperty, ptrOf(&p)); err != nil {
			continue
		}
		if cString(p.Name[:]) == "DPMS" {
			return propID
		}
	}
	return 0
}

func findCRTC(fd int, crtcIDs []uint32, encoderIDs []uint32) uint32 {
	for _, encID := range encoderIDs {
		enc := drmModeGetEncoder{EncoderID: encID}
		if err := ioctlNamed(fd, "DRM_IOCTL_MODE_GETENCODER", reqModeGetEncoder, ptrOf(&enc)); err != nil {
			continue
		}
		for i, crtcID := range crtcIDs {
			if enc.PossibleCrtcs&(1<<uint(i)) != 0 {
				return crtcID
			}
		}
	}
	return 0
}

// selectConnectorAndMode implements spec.md §4.1.3: connector choice,
// mode-selection priority, DPMS property lookup, and CRTC assignment.
// When cap is non-nil its dimensions/refresh drive mode selection;
// otherwise the connector's preferred (or first) mode is used, since
// there is no requested resolution to select against.
func (s *DisplaySink) selectConnectorAndMode(cap *CaptureInfo) error {
	r := &s.runtime
	connIDs, crtcIDs, encIDs, err := getResources(r.fd)
	if err != nil {
		return fmt.Errorf("%w: get-resources: %v", kvmerr.ErrHardwareFailure, err)
	}
	_ = encIDs

	var chosen *connectorInfo
	for _, id := range connIDs {
		info, err := getConnector(r.fd, id)
		if err != nil {
			continue
		}
		if s.config.Port != "" {
			if info.name == s.config.Port {
				chosen = info
				break
			}
			continue
		}
		if info.connected {
			chosen = info
			break
		}
	}
	if chosen == nil {
		if s.config.Port != "" {
			return fmt.Errorf("%w: connector %s not found", kvmerr.ErrDeviceNotFound, s.config.Port)
		}
		return fmt.Errorf("%w: no connected connector", kvmerr.ErrDeviceNotFound)
	}
	r.portName = chosen.name
	if !chosen.connected {
		return errUnplugged
	}

	modes := make([]DisplayMode, len(chosen.modes))
	for i, m := range chosen.modes {
		modes[i] = fromDRMMode(m)
	}
	// With a capture attached, its dimensions and refresh are the
	// request. Without one, the request is the preferred (or first)
	// mode's own dimensions, so DPMS/CRTC wiring can proceed even with no
	// capture attached.
	wantW, wantH, wantHz := 0, 0, 0.0
	if cap != nil {
		wantW, wantH, wantHz = cap.Width, cap.Height, cap.RefreshHz
	} else if chosen.preferredIdx >= 0 {
		pm := modes[chosen.preferredIdx]
		wantW, wantH, wantHz = pm.HDisplay, pm.VDisplay, pm.RefreshHz()
	} else if len(modes) > 0 {
		wantW, wantH, wantHz = modes[0].HDisplay, modes[0].VDisplay, modes[0].RefreshHz()
	}
	selected, _, ok := selectMode(modes, chosen.preferredIdx, wantW, wantH, wantHz)
	if !ok {
		return fmt.Errorf("%w: no usable (non-interlaced) mode", kvmerr.ErrInit)
	}
	r.mode = selected
	r.connectorID = chosen.id
	r.dpmsPropID = findDPMSProperty(r.fd, chosen)
	r.crtcID = findCRTC(r.fd, crtcIDs, chosen.encoderIDs)
	if r.crtcID == 0 {
		return fmt.Errorf("%w: no usable CRTC", kvmerr.ErrInit)
	}
	return nil
}
