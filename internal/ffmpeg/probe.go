package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ProbeResult is the first video stream of a file, which is what the
// decoder needs to size its raw frames.
type ProbeResult struct {
	Path       string
	Size       int64
	Duration   time.Duration
	VideoCodec string
	Width      int
	Height     int
	FrameRate  float64
}

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// Prober wraps ffprobe functionality
type Prober struct {
	ffprobePath string
}

// NewProber creates a new Prober with the given ffprobe path
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

// Probe returns metadata about a video file
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(path, output)
}

func parseProbeOutput(path string, output []byte) (*ProbeResult, error) {
	var probeOutput ffprobeOutput
	if err := json.Unmarshal(output, &probeOutput); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{Path: path}

	if probeOutput.Format.Size != "" {
		result.Size, _ = strconv.ParseInt(probeOutput.Format.Size, 10, 64)
	}
	if probeOutput.Format.Duration != "" {
		durationSec, _ := strconv.ParseFloat(probeOutput.Format.Duration, 64)
		result.Duration = time.Duration(durationSec * float64(time.Second))
	}

	for i := range probeOutput.Streams {
		stream := &probeOutput.Streams[i]
		if stream.CodecType != "video" {
			continue
		}
		// Take first video stream
		result.VideoCodec = stream.CodecName
		result.Width = stream.Width
		result.Height = stream.Height
		result.FrameRate = parseFrameRate(stream.RFrameRate)
		if result.FrameRate == 0 {
			result.FrameRate = parseFrameRate(stream.AvgFrameRate)
		}
		break
	}

	if result.VideoCodec == "" {
		return nil, fmt.Errorf("no video stream in %s", filepath.Base(path))
	}

	return result, nil
}

// Duration returns the container duration in seconds as reported by
// ffprobe's format section.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, fmt.Errorf("ffprobe exited %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseDuration(string(output))
}

func parseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("no duration found in ffprobe output")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable duration %q: %w", s, err)
	}
	return d, nil
}

// parseFrameRate parses a frame rate string like "30000/1001" or "30/1"
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}

// HasExtension reports whether path ends with ext, ignoring case.
func HasExtension(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}
