package utils

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ErrNoDeviceID is returned when the platform exposes no hardware identifier
// to Go. Mobile shells pass their own identifier to the bridge instead.
var ErrNoDeviceID = errors.New("no device identifier available")

// DeviceFingerprint returns a stable identifier for this machine, used to bind
// the credential store key to the device. It falls back to the hostname and
// finally to an empty string.
func DeviceFingerprint() string {
	if ids, err := GetDeviceFingerprints(); err == nil && len(ids) > 0 {
		return ids[0]
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return ""
}

// idProbe is one place a hardware identifier may be found. read returns raw
// text and pick extracts the identifier from it.
type idProbe struct {
	read func() ([]byte, error)
	pick func(string) string
}

var probes = map[string][]idProbe{
	"linux": {
		{fileReader("/etc/machine-id"), strings.TrimSpace},
		{fileReader("/var/lib/dbus/machine-id"), strings.TrimSpace},
		{fileReader("/sys/class/dmi/id/product_uuid"), strings.TrimSpace},
		{fileReader("/proc/cpuinfo"), fieldAfter("Serial", ":")},
	},
	"darwin": {
		{commandReader("ioreg", "-rd1", "-c", "IOPlatformExpertDevice"), fieldAfter(`"IOPlatformUUID"`, "=")},
	},
	"windows": {
		{commandReader("wmic", "csproduct", "get", "UUID"), firstValueBelow("UUID")},
		{commandReader("wmic", "cpu", "get", "ProcessorId"), firstValueBelow("ProcessorId")},
	},
}

// GetDeviceFingerprints returns the hardware identifiers found for the
// current platform, most stable first.
func GetDeviceFingerprints() ([]string, error) {
	list, ok := probes[runtime.GOOS]
	if !ok {
		return nil, fmt.Errorf("%w on %s", ErrNoDeviceID, runtime.GOOS)
	}
	var ids []string
	for _, p := range list {
		out, err := p.read()
		if err != nil {
			continue
		}
		if id := p.pick(string(out)); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w on %s", ErrNoDeviceID, runtime.GOOS)
	}
	return ids, nil
}

func fileReader(path string) func() ([]byte, error) {
	return func() ([]byte, error) { return os.ReadFile(path) }
}

func commandReader(name string, args ...string) func() ([]byte, error) {
	return func() ([]byte, error) { return exec.Command(name, args...).Output() }
}

// fieldAfter finds the first line containing key and returns the unquoted
// text after sep.
func fieldAfter(key, sep string) func(string) string {
	return func(text string) string {
		for _, line := range strings.Split(text, "\n") {
			if !strings.Contains(line, key) {
				continue
			}
			if _, v, ok := strings.Cut(line, sep); ok {
				return strings.Trim(strings.TrimSpace(v), `"`)
			}
		}
		return ""
	}
}

// firstValueBelow returns the first non-blank line of a wmic table that is
// not the header.
func firstValueBelow(header string) func(string) string {
	return func(text string) string {
		for _, line := range strings.Split(text, "\n") {
			if v := strings.TrimSpace(line); v != "" && !strings.EqualFold(v, header) {
				return v
			}
		}
		return ""
	}
}
