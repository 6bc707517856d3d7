//go:build linux

package display

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// connectorStatusPath builds the sysfs status file path for the given
// device path and connector/port name, e.g. "/dev/dri/card0" +
// "HDMI-A-1" -> "/sys/class/drm/card0-HDMI-A-1/status".
func connectorStatusPath(devicePath, port string) string {
	base := filepath.Base(devicePath)
	return fmt.Sprintf("/sys/class/drm/%s-%s/status", base, port)
}

// checkConnectorStatus implements spec.md §4.1.7: the status file is
// opened once and re-read/rewound on every check; a read error closes it
// for a later retry.
func (s *DisplaySink) checkConnectorStatus() (unplugged bool, err error) {
	r := &s.runtime
	if s.config.Port == "" {
		return false, nil
	}
	if r.statusFD == nil {
		f, openErr := os.Open(connectorStatusPath(s.config.Path, s.config.Port))
		if openErr != nil {
			return false, nil // status unavailable; treat as connected
		}
		r.statusFD = f
	}
	buf := make([]byte, 16)
	if _, err := r.statusFD.Seek(0, 0); err != nil {
		r.statusFD.Close()
		r.statusFD = nil
		return false, err
	}
	n, err := r.statusFD.Read(buf)
	if err != nil {
		r.statusFD.Close()
		r.statusFD = nil
		return false, err
	}
	status := strings.TrimSpace(string(buf[:n]))
	return strings.HasPrefix(status, "d"), nil
}
