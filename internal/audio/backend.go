package audio

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// BackendType selects the ffmpeg capture input used for the microphone
type BackendType string

const (
	BackendTypeAuto         BackendType = "auto"
	BackendTypePulse        BackendType = "pulse"
	BackendTypeALSA         BackendType = "alsa"
	BackendTypeAVFoundation BackendType = "avfoundation"
)

// DetermineBackend resolves the configured backend name, mapping "auto" to
// the usual capture system of the host OS.
func DetermineBackend(name string) BackendType {
	switch strings.ToLower(name) {
	case "pulse":
		return BackendTypePulse
	case "alsa":
		return BackendTypeALSA
	case "avfoundation":
		return BackendTypeAVFoundation
	}

	if runtime.GOOS == "darwin" {
		return BackendTypeAVFoundation
	}
	return BackendTypePulse
}

// InputArgs returns the ffmpeg input arguments capturing from device.
func (b BackendType) InputArgs(device string) []string {
	if device == "" {
		device = "default"
	}

	switch b {
	case BackendTypeALSA:
		return []string{"-f", "alsa", "-i", device}
	case BackendTypeAVFoundation:
		// avfoundation takes "video:audio"; audio only
		if device == "default" {
			device = "0"
		}
		return []string{"-f", "avfoundation", "-i", ":" + device}
	default:
		return []string{"-f", "pulse", "-i", device}
	}
}

// ListSources returns the capture devices the backend can record from.
func ListSources(ctx context.Context, b BackendType) ([]string, error) {
	switch b {
	case BackendTypeALSA:
		out, err := exec.CommandContext(ctx, "arecord", "-L").Output()
		if err != nil {
			return nil, fmt.Errorf("failed to list ALSA sources: %w", err)
		}
		return parseArecordList(string(out)), nil

	case BackendTypeAVFoundation:
		// ffmpeg prints the device list on stderr and exits non-zero
		out, _ := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-f", "avfoundation",
			"-list_devices", "true", "-i", "").CombinedOutput()
		return parseAVFoundationList(string(out)), nil

	default:
		out, err := exec.CommandContext(ctx, "pactl", "list", "short", "sources").Output()
		if err != nil {
			return nil, fmt.Errorf("failed to list PulseAudio sources: %w", err)
		}
		return parsePactlSources(string(out)), nil
	}
}

// parsePactlSources extracts source names from `pactl list short sources`,
// skipping monitors of output sinks.
func parsePactlSources(output string) []string {
	var sources []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if strings.HasSuffix(fields[1], ".monitor") {
			continue
		}
		sources = append(sources, fields[1])
	}
	return sources
}

// parseArecordList extracts PCM names from `arecord -L`; descriptions are
// the indented lines and are skipped.
func parseArecordList(output string) []string {
	var sources []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == ' ' || line[0] == '\t' || line == "null" {
			continue
		}
		sources = append(sources, strings.TrimSpace(line))
	}
	return sources
}

// parseAVFoundationList extracts the audio devices from ffmpeg's
// avfoundation device listing.
func parseAVFoundationList(output string) []string {
	var sources []string
	inAudio := false
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "AVFoundation audio devices"):
			inAudio = true
			continue
		case strings.Contains(line, "AVFoundation video devices"):
			inAudio = false
			continue
		}
		if !inAudio {
			continue
		}
		// "[AVFoundation indev @ 0x...] [0] MacBook Pro Microphone"
		if idx := strings.LastIndex(line, "] ["); idx >= 0 {
			sources = append(sources, strings.TrimSpace(line[idx+2:]))
		}
	}
	return sources
}
