package play

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Info describes an audio file as reported by ffprobe.
type Info struct {
	Path       string        `json:"path"`
	Duration   time.Duration `json:"duration"`
	Format     string        `json:"format"`
	Codec      string        `json:"codec"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitRate    int64         `json:"bit_rate"`
}

// Prober extracts Info using ffprobe.
type Prober struct {
	binary string
}

func NewProber(binary string) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary}
}

type probeResult struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

// Probe runs ffprobe on path.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	info, err := parseProbeOutput(output)
	if err != nil {
		return Info{}, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}
	info.Path = path
	return info, nil
}

// Duration implements library.Prober.
func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

func parseProbeOutput(output []byte) (Info, error) {
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return Info{}, err
	}

	info := Info{Format: result.Format.FormatName}
	if result.Format.Duration != "" {
		// decimal seconds; ParseDuration keeps them exact
		d, err := time.ParseDuration(result.Format.Duration + "s")
		if err != nil {
			return Info{}, fmt.Errorf("invalid duration %q", result.Format.Duration)
		}
		info.Duration = d
	}
	if result.Format.BitRate != "" {
		info.BitRate, _ = strconv.ParseInt(result.Format.BitRate, 10, 64)
	}

	for _, stream := range result.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		info.Codec = stream.CodecName
		info.Channels = stream.Channels
		info.SampleRate, _ = strconv.Atoi(stream.SampleRate)
		break
	}
	return info, nil
}
