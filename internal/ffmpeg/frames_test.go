package ffmpeg

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestParseShowinfoPTS(t *testing.T) {
	tests := []struct {
		line   string
		want   float64
		wantOK bool
	}{
		{"[Parsed_showinfo_0 @ 0x55d1] n:   0 pts:      0 pts_time:0       duration:512 fmt:yuv420p", 0, true},
		{"[Parsed_showinfo_0 @ 0x55d1] n:  12 pts:   6144 pts_time:1.2     duration:512", 1.2, true},
		{"[Parsed_showinfo_1 @ 0x7f] n:3 pts:3 pts_time:0.1001 pos:1234", 0.1001, true},
		{"[Parsed_showinfo_0 @ 0x55d1] config in time_base: 1/5120, frame_rate: 10/1", 0, false},
		{"frame=   10 fps=0.0 q=-0.0 size=N/A time=00:00:01.00", 0, false},
		{"[Parsed_showinfo_0 @ 0x1] n:0 pts:0 pts_time:NOPE", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseShowinfoPTS(tt.line)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseShowinfoPTS(%q) = %f, %v; want %f, %v", tt.line, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCameraInput(t *testing.T) {
	tests := []struct {
		goos, device         string
		wantFormat, wantName string
		wantErr              bool
	}{
		{"linux", "0", "v4l2", "/dev/video0", false},
		{"linux", "", "v4l2", "/dev/video0", false},
		{"linux", "/dev/video4", "v4l2", "/dev/video4", false},
		{"darwin", "1", "avfoundation", "1:none", false},
		{"windows", "Integrated Camera", "dshow", "video=Integrated Camera", false},
		{"windows", "0", "", "", true},
		{"plan9", "0", "", "", true},
	}
	for _, tt := range tests {
		format, name, err := CameraInput(tt.goos, tt.device)
		if (err != nil) != tt.wantErr {
			t.Errorf("CameraInput(%s, %q) error = %v, wantErr %v", tt.goos, tt.device, err, tt.wantErr)
			continue
		}
		if format != tt.wantFormat || name != tt.wantName {
			t.Errorf("CameraInput(%s, %q) = %s, %s; want %s, %s", tt.goos, tt.device, format, name, tt.wantFormat, tt.wantName)
		}
	}
}

func TestOpenFileMissing(t *testing.T) {
	d := NewDecoder("ffmpeg", NewProber("ffprobe"), nil)
	_, err := d.OpenFile(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))
	if !errors.Is(err, ErrVideoOpen) {
		t.Errorf("expected ErrVideoOpen, got %v", err)
	}
}

func TestOpenFileCorrupt(t *testing.T) {
	requireTools(t)
	path := filepath.Join(t.TempDir(), "corrupt.mp4")
	if err := os.WriteFile(path, []byte("garbage bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	d := NewDecoder("ffmpeg", NewProber("ffprobe"), nil)
	_, err := d.OpenFile(context.Background(), path)
	if !errors.Is(err, ErrVideoOpen) {
		t.Errorf("expected ErrVideoOpen, got %v", err)
	}
}

func TestDecodeClip(t *testing.T) {
	requireTools(t)
	clip := makeClip(t, t.TempDir(), 1, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d := NewDecoder("ffmpeg", NewProber("ffprobe"), nil)
	stream, err := d.OpenFile(ctx, clip)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer stream.Close()

	if stream.FPS() != 10 {
		t.Errorf("expected 10 fps, got %f", stream.FPS())
	}

	var frames []Frame
	for {
		f, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		frames = append(frames, f)
	}

	if len(frames) != 10 {
		t.Fatalf("expected 10 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.Index != i {
			t.Errorf("frame %d has index %d", i, f.Index)
		}
		if b := f.Image.Bounds(); b.Dx() != 160 || b.Dy() != 120 {
			t.Errorf("frame %d size %v", i, b)
		}
	}
	if frames[5].PTS < 0.45 || frames[5].PTS > 0.55 {
		t.Errorf("frame 5 pts = %f, want ~0.5", frames[5].PTS)
	}

	// Next after EOF stays at EOF and Close is idempotent
	if _, err := stream.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after end, got %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestCloseBeforeEnd(t *testing.T) {
	requireTools(t)
	clip := makeClip(t, t.TempDir(), 3, 10)

	d := NewDecoder("ffmpeg", NewProber("ffprobe"), nil)
	stream, err := d.OpenFile(context.Background(), clip)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if _, err := stream.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		stream.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not return")
	}
}

// fakeFFmpeg writes a shell script standing in for ffmpeg. The script
// ignores its arguments.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

// emitFrames prints n 2x2 RGBA frames on stdout, each preceded by its
// showinfo line on stderr.
const emitFrames = `emit() {
	i=0
	while [ $i -lt $1 ]; do
		echo "[Parsed_showinfo_0 @ 0x1] n:$i pts:$i pts_time:0.$i" >&2
		head -c 16 /dev/zero
		i=$((i+1))
	done
}
`

func readAll(t *testing.T, s *Stream) ([]Frame, error) {
	t.Helper()
	type result struct {
		frames []Frame
		err    error
	}
	done := make(chan result, 1)
	go func() {
		var frames []Frame
		for {
			f, err := s.Next()
			if err != nil {
				done <- result{frames, err}
				return
			}
			frames = append(frames, f)
		}
	}()
	select {
	case r := <-done:
		return r.frames, r.err
	case <-time.After(10 * time.Second):
		s.Close()
		t.Fatal("decoder did not finish")
		return nil, nil
	}
}

func TestStreamSurvivesLongStderrLine(t *testing.T) {
	script := fakeFFmpeg(t, emitFrames+`head -c 102400 /dev/zero | tr '\000' x >&2
echo >&2
emit 10
`)

	d := NewDecoder(script, nil, nil)
	stream, err := d.start(context.Background(), "long.mp4", nil, 2, 2, 10)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer stream.Close()

	frames, err := readAll(t, stream)
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if len(frames) != 10 {
		t.Fatalf("expected 10 frames, got %d", len(frames))
	}
	if frames[3].PTS != 0.3 {
		t.Errorf("frame 3 pts = %f, want 0.3", frames[3].PTS)
	}
}

func TestStreamDecoderFailureMidStream(t *testing.T) {
	script := fakeFFmpeg(t, emitFrames+`emit 2
echo "Invalid data found when processing input" >&2
exit 1
`)

	d := NewDecoder(script, nil, nil)
	stream, err := d.start(context.Background(), "truncated.mp4", nil, 2, 2, 10)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer stream.Close()

	frames, err := readAll(t, stream)
	if len(frames) != 2 {
		t.Errorf("expected 2 frames, got %d", len(frames))
	}
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("error lacks the decoder log tail: %v", err)
	}
}

func TestStreamDecoderFailureBeforeFirstFrame(t *testing.T) {
	script := fakeFFmpeg(t, `echo "moov atom not found" >&2
exit 1
`)

	d := NewDecoder(script, nil, nil)
	stream, err := d.start(context.Background(), "broken.mp4", nil, 2, 2, 10)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer stream.Close()

	if _, err := readAll(t, stream); !errors.Is(err, ErrVideoOpen) {
		t.Errorf("expected ErrVideoOpen, got %v", err)
	}
}
