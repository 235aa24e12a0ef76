package perception

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rafeyhusain/ai-pose-detection/internal/logger"
)

const (
	jpegQuality  = 90
	maxReplySize = 16 * 1024 * 1024
	stopTimeout  = 2 * time.Second
)

// frameRequest is one line written to the adapter's stdin.
type frameRequest struct {
	Seq    uint64 `json:"seq"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Image  string `json:"image"`
}

// replyHeader holds the fields every adapter reply carries.
type replyHeader struct {
	Seq   uint64 `json:"seq"`
	Error string `json:"error"`
}

// Process is a long-lived adapter subprocess speaking JSON lines: one
// request per frame on stdin, one reply per request on stdout. Calls are
// serialized; replies with a stale sequence number are discarded.
type Process struct {
	name    string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	replies chan []byte
	timeout time.Duration
	log     *slog.Logger

	mu  sync.Mutex
	seq uint64

	done      chan struct{}
	closeOnce sync.Once
}

// StartProcess launches the adapter command argv.
func StartProcess(ctx context.Context, name string, argv []string, timeout time.Duration, log *slog.Logger) (*Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: %s: empty command", ErrAdapter, name)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAdapter, name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAdapter, name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAdapter, name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrAdapter, name, err)
	}

	p := &Process{
		name:    name,
		cmd:     cmd,
		stdin:   stdin,
		replies: make(chan []byte, 4),
		done:    make(chan struct{}),
		timeout: timeout,
		log:     logger.WithComponent(logger.OrDiscard(log), name),
	}
	go p.readReplies(stdout)
	go p.logStderr(stderr)

	p.log.Debug("Adapter started", "command", strings.Join(argv, " "), "pid", cmd.Process.Pid)
	return p, nil
}

// Call sends img to the adapter and decodes the matching reply into out.
func (p *Process) Call(ctx context.Context, img image.Image, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	seq := p.seq

	line, err := encodeRequest(seq, img)
	if err != nil {
		return fmt.Errorf("%w: %s: encode frame: %v", ErrAdapter, p.name, err)
	}
	if _, err := p.stdin.Write(line); err != nil {
		return fmt.Errorf("%w: %s: write request: %v", ErrAdapter, p.name, err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		select {
		case reply, ok := <-p.replies:
			if !ok {
				return fmt.Errorf("%w: %s exited", ErrAdapter, p.name)
			}
			var hdr replyHeader
			if err := json.Unmarshal(reply, &hdr); err != nil {
				p.log.Warn("Discarding malformed reply", "error", err, "reply", truncate(reply, 120))
				continue
			}
			if hdr.Seq != seq {
				p.log.Debug("Discarding stale reply", "seq", hdr.Seq, "want", seq)
				continue
			}
			if hdr.Error != "" {
				return fmt.Errorf("%w: %s: %s", ErrAdapter, p.name, hdr.Error)
			}
			if err := json.Unmarshal(reply, out); err != nil {
				return fmt.Errorf("%w: %s: decode reply: %v", ErrAdapter, p.name, err)
			}
			return nil
		case <-timer.C:
			return fmt.Errorf("%w: %s: no reply within %s", ErrAdapter, p.name, p.timeout)
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrAdapter, p.name, ctx.Err())
		}
	}
}

// Close closes stdin so the adapter can exit, then kills it if it has not
// exited within a short grace period.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.stdin.Close()

		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()

		select {
		case err := <-done:
			if err != nil {
				p.log.Debug("Adapter exited", "error", err)
			}
		case <-time.After(stopTimeout):
			p.log.Warn("Adapter did not stop, killing it")
			_ = p.cmd.Process.Kill()
			<-done
		}
	})
	return nil
}

func (p *Process) readReplies(r io.Reader) {
	defer close(p.replies)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxReplySize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		select {
		case p.replies <- bytes.Clone(line):
		case <-p.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn("Adapter output ended", "error", err)
	}
}

// logStderr maps the adapter's log prefixes onto slog levels.
func (p *Process) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxReplySize)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"), strings.Contains(line, "Traceback"):
			p.log.Error(line)
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			p.log.Warn(line)
		default:
			p.log.Debug(line)
		}
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn("Adapter log unreadable", "error", err)
	}
	// Keep draining so the adapter never blocks on a full stderr pipe
	_, _ = io.Copy(io.Discard, r)
}

func encodeRequest(seq uint64, img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	b := img.Bounds()
	line, err := json.Marshal(frameRequest{
		Seq:    seq,
		Width:  b.Dx(),
		Height: b.Dy(),
		Image:  base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
