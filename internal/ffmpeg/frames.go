package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rafeyhusain/ai-pose-detection/internal/logger"
)

const (
	// DefaultFPS is assumed when neither the container nor the camera reports a rate.
	DefaultFPS = 30.0

	// CameraWidth and CameraHeight are the capture size requested from cameras.
	CameraWidth  = 640
	CameraHeight = 480

	ptsTimeout = 2 * time.Second

	// maxStderrLine bounds one ffmpeg log line; the input dump can carry
	// long metadata tags.
	maxStderrLine = 1 << 20
)

// Frame is one decoded video frame.
type Frame struct {
	Index int
	// PTS is the presentation time in seconds from the container clock.
	PTS   float64
	Image *image.RGBA
}

// Decoder opens frame streams from files and cameras through ffmpeg.
type Decoder struct {
	ffmpegPath string
	prober     *Prober
	log        *slog.Logger
}

// NewDecoder creates a Decoder using the given ffmpeg binary and prober.
func NewDecoder(ffmpegPath string, prober *Prober, log *slog.Logger) *Decoder {
	return &Decoder{
		ffmpegPath: ffmpegPath,
		prober:     prober,
		log:        logger.WithComponent(logger.OrDiscard(log), "decoder"),
	}
}

// OpenFile starts decoding the first video stream of path.
func (d *Decoder) OpenFile(ctx context.Context, path string) (*Stream, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, videoOpenError(path, err)
	}

	probe, err := d.prober.Probe(ctx, path)
	if err != nil {
		return nil, videoOpenError(path, err)
	}
	if probe.Width <= 0 || probe.Height <= 0 {
		return nil, videoOpenError(path, fmt.Errorf("invalid frame size %dx%d", probe.Width, probe.Height))
	}

	fps := probe.FrameRate
	if fps <= 0 {
		fps = DefaultFPS
	}

	// -noautorotate keeps the decoded size equal to the probed coded size
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "info",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-an", "-sn",
		"-vsync", "passthrough",
		"-vf", "showinfo",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}

	d.log.Debug("Opening video", "path", path, "width", probe.Width, "height", probe.Height, "fps", fps)
	return d.start(ctx, path, args, probe.Width, probe.Height, fps)
}

// OpenCamera starts capturing from a camera. device is either a numeric
// index, mapped to the platform's capture device, or a device name passed
// to ffmpeg unchanged.
func (d *Decoder) OpenCamera(ctx context.Context, device string) (*Stream, error) {
	format, input, err := CameraInput(runtime.GOOS, device)
	if err != nil {
		return nil, videoOpenError("camera "+device, err)
	}

	size := fmt.Sprintf("%dx%d", CameraWidth, CameraHeight)
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "info",
		"-f", format,
		"-framerate", strconv.Itoa(int(DefaultFPS)),
		"-video_size", size,
		"-i", input,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d,showinfo", CameraWidth, CameraHeight),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}

	d.log.Debug("Opening camera", "format", format, "input", input)
	return d.start(ctx, input, args, CameraWidth, CameraHeight, DefaultFPS)
}

// CameraInput maps a camera device to an ffmpeg input format and name for goos.
func CameraInput(goos, device string) (format, input string, err error) {
	if device == "" {
		device = "0"
	}
	_, numErr := strconv.Atoi(device)
	numeric := numErr == nil

	switch goos {
	case "linux":
		if numeric {
			return "v4l2", "/dev/video" + device, nil
		}
		return "v4l2", device, nil
	case "darwin":
		if numeric {
			return "avfoundation", device + ":none", nil
		}
		return "avfoundation", device, nil
	case "windows":
		if numeric {
			return "", "", fmt.Errorf("dshow needs a device name, not index %s", device)
		}
		if !strings.HasPrefix(device, "video=") {
			device = "video=" + device
		}
		return "dshow", device, nil
	default:
		return "", "", fmt.Errorf("camera capture not supported on %s", goos)
	}
}

func (d *Decoder) start(ctx context.Context, name string, args []string, width, height int, fps float64) (*Stream, error) {
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, videoOpenError(name, err)
	}
	stderrR, stderrW := io.Pipe()
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stderrW.Close()
		return nil, videoOpenError(name, err)
	}

	s := &Stream{
		name:      name,
		cmd:       cmd,
		stdout:    bufio.NewReaderSize(stdout, 1<<20),
		stderrW:   stderrW,
		width:     width,
		height:    height,
		fps:       fps,
		pts:       make(chan float64, 1024),
		stderrEnd: make(chan struct{}),
		log:       d.log,
		waitPTS:   true,
		tailLines: 5,
	}
	go s.readStderr(stderrR)
	return s, nil
}

// Stream is an open frame source backed by an ffmpeg process.
type Stream struct {
	name    string
	cmd     *exec.Cmd
	stdout  *bufio.Reader
	stderrW *io.PipeWriter
	width   int
	height  int
	fps     float64
	index   int
	pts     chan float64
	log     *slog.Logger
	waitPTS bool

	stderrEnd chan struct{}
	tailMu    sync.Mutex
	tail      []string
	tailLines int

	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
}

// FPS returns the frame rate reported for the source.
func (s *Stream) FPS() float64 {
	return s.fps
}

// Next returns the next decoded frame, or io.EOF when the stream ends
// cleanly. A decoder that exits with an error mid-stream yields ErrDecode.
func (s *Stream) Next() (Frame, error) {
	buf := make([]byte, s.width*s.height*4)
	if _, err := io.ReadFull(s.stdout, buf); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("read frame %d from %s: %w", s.index, s.name, err)
		}
		werr := s.wait()
		switch {
		case werr == nil:
			return Frame{}, io.EOF
		case s.index == 0:
			return Frame{}, videoOpenError(s.name, fmt.Errorf("%v (%s)", werr, s.stderrTail()))
		default:
			return Frame{}, fmt.Errorf("%w: %s after frame %d: %v (%s)", ErrDecode, s.name, s.index-1, werr, s.stderrTail())
		}
	}

	frame := Frame{
		Index: s.index,
		PTS:   s.nextPTS(),
		Image: &image.RGBA{
			Pix:    buf,
			Stride: s.width * 4,
			Rect:   image.Rect(0, 0, s.width, s.height),
		},
	}
	s.index++
	return frame, nil
}

// nextPTS returns the presentation time of the frame just read. When the
// showinfo log is unavailable it falls back to index/fps for the rest of
// the stream.
func (s *Stream) nextPTS() float64 {
	fallback := float64(s.index) / s.fps
	if !s.waitPTS {
		return fallback
	}
	select {
	case pts, ok := <-s.pts:
		if ok {
			return pts
		}
	case <-time.After(ptsTimeout):
		s.log.Warn("No presentation time from decoder, using frame rate", "path", s.name)
	}
	s.waitPTS = false
	return fallback
}

// Close stops the decoder process and releases its resources. It is safe
// to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.ProcessState == nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.wait()
	})
	return nil
}

func (s *Stream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		s.stderrW.Close()
		<-s.stderrEnd
	})
	return s.waitErr
}

// readStderr forwards showinfo presentation times and keeps a tail of the
// remaining log lines. It drains stderr until the process exits so ffmpeg
// never blocks on a full stderr pipe.
func (s *Stream) readStderr(r io.Reader) {
	defer close(s.stderrEnd)
	defer close(s.pts)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxStderrLine)
	for scanner.Scan() {
		line := scanner.Text()
		if pts, ok := ParseShowinfoPTS(line); ok {
			// Dropped when the reader gave up waiting and the buffer is full
			select {
			case s.pts <- pts:
			default:
			}
			continue
		}
		s.addTail(line)
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn("Decoder log unreadable", "path", s.name, "error", err)
	}
	_, _ = io.Copy(io.Discard, r)
}

func (s *Stream) addTail(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	s.tailMu.Lock()
	defer s.tailMu.Unlock()
	s.tail = append(s.tail, line)
	if len(s.tail) > s.tailLines {
		s.tail = s.tail[len(s.tail)-s.tailLines:]
	}
}

func (s *Stream) stderrTail() string {
	s.tailMu.Lock()
	defer s.tailMu.Unlock()
	return strings.Join(s.tail, " | ")
}

// ParseShowinfoPTS extracts pts_time from an ffmpeg showinfo log line.
func ParseShowinfoPTS(line string) (float64, bool) {
	if !strings.Contains(line, "showinfo") {
		return 0, false
	}
	_, rest, found := strings.Cut(line, "pts_time:")
	if !found {
		return 0, false
	}
	rest = strings.TrimSpace(rest)
	if i := strings.IndexAny(rest, " \t"); i >= 0 {
		rest = rest[:i]
	}
	pts, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, false
	}
	return pts, true
}
