package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rafeyhusain/ai-pose-detection/internal/analyzer"
	"github.com/rafeyhusain/ai-pose-detection/internal/ffmpeg"
	"github.com/rafeyhusain/ai-pose-detection/internal/metrics"
	"github.com/rafeyhusain/ai-pose-detection/internal/report"
)

// fakeSource yields n blank frames at 10 fps, then fails with err if set.
type fakeSource struct {
	n      int
	err    error
	next   int
	closed bool
}

func (s *fakeSource) Next() (ffmpeg.Frame, error) {
	if s.next >= s.n {
		if s.err != nil {
			return ffmpeg.Frame{}, s.err
		}
		return ffmpeg.Frame{}, io.EOF
	}
	f := ffmpeg.Frame{
		Index: s.next,
		PTS:   float64(s.next) / 10,
		Image: image.NewRGBA(image.Rect(0, 0, 8, 6)),
	}
	s.next++
	return f, nil
}

func (s *fakeSource) FPS() float64 { return 10 }

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// fakeAnalyzer succeeds on the frames listed in hits and panics on panicAt.
type fakeAnalyzer struct {
	typ     string
	hits    map[int]bool
	panicAt int
	saveErr error
	dir     string

	mu      sync.Mutex
	bound   []string
	seen    []int
	saved   []string
	closed  bool
	tracked int
}

func newFake(t *testing.T, typ string, hits ...int) *fakeAnalyzer {
	f := &fakeAnalyzer{typ: typ, hits: map[int]bool{}, panicAt: -1, dir: t.TempDir()}
	for _, h := range hits {
		f.hits[h] = true
	}
	return f
}

func (f *fakeAnalyzer) Type() string { return f.typ }

func (f *fakeAnalyzer) Bind(input string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound = append(f.bound, input)
	return nil
}

func (f *fakeAnalyzer) AnalyzeFrame(_ context.Context, index int, _ image.Image) analyzer.Result {
	f.mu.Lock()
	f.seen = append(f.seen, index)
	f.mu.Unlock()
	if index == f.panicAt {
		panic("boom")
	}
	if f.hits[index] {
		return analyzer.Result{Status: analyzer.StatusSuccess, Confidence: 0.9}
	}
	return analyzer.Result{Status: analyzer.StatusUnknown}
}

func (f *fakeAnalyzer) SaveFrame(_ image.Image, timestamp string) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	path := filepath.Join(f.dir, fmt.Sprintf("%s-%d.png", timestamp, len(f.saved)))
	f.saved = append(f.saved, path)
	return path, nil
}

func (f *fakeAnalyzer) Close() error {
	f.closed = true
	return nil
}

func (f *fakeAnalyzer) NewTracker(float64) analyzer.Tracker {
	return &countTracker{owner: f}
}

type countSummary struct {
	Hits int `json:"hits"`
}

func (s countSummary) Merge(other report.Summary) report.Summary {
	o, _ := other.(countSummary)
	return countSummary{Hits: s.Hits + o.Hits}
}

type countTracker struct {
	owner *fakeAnalyzer
	hits  int
}

func (c *countTracker) Observe(_ int, r analyzer.Result) {
	c.owner.tracked++
	if r.Status == analyzer.StatusSuccess {
		c.hits++
	}
}

func (c *countTracker) Summary() report.Summary { return countSummary{Hits: c.hits} }

func sourceOpener(src *fakeSource) Opener {
	return func(context.Context, string) (Source, error) { return src, nil }
}

func TestFileAnalyzerOrdersItems(t *testing.T) {
	a := newFake(t, "a", 0, 2)
	b := newFake(t, "b", 2)
	src := &fakeSource{n: 4}

	fa := NewFileAnalyzer(sourceOpener(src), []analyzer.Analyzer{a, b}, nil, nil)
	rep, err := fa.Analyze(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	want := []struct {
		analyzer string
		frame    int
	}{{"a", 0}, {"a", 2}, {"b", 2}}
	if len(rep.Items) != len(want) {
		t.Fatalf("got %d items, want %d", len(rep.Items), len(want))
	}
	for i, w := range want {
		it := rep.Items[i]
		if it.Analyzer != w.analyzer || it.Frame != w.frame {
			t.Errorf("item %d = %s/%d, want %s/%d", i, it.Analyzer, it.Frame, w.analyzer, w.frame)
		}
	}
	if rep.Items[1].Seconds != 0.2 || rep.Items[1].Timestamp != "00:00" {
		t.Errorf("item 1 time = %v %q", rep.Items[1].Seconds, rep.Items[1].Timestamp)
	}
	if !src.closed {
		t.Error("source not closed")
	}
	if len(a.bound) != 1 || a.bound[0] != "in.mp4" {
		t.Errorf("a bound to %v", a.bound)
	}
	if got := rep.Summary["a"].(countSummary).Hits; got != 2 {
		t.Errorf("summary a hits = %d, want 2", got)
	}
	if a.tracked != 4 {
		t.Errorf("tracker observed %d frames, want 4", a.tracked)
	}
}

func TestFileAnalyzerRecoversPanic(t *testing.T) {
	a := newFake(t, "a", 2)
	a.panicAt = 1
	b := newFake(t, "b", 1)
	src := &fakeSource{n: 3}

	fa := NewFileAnalyzer(sourceOpener(src), []analyzer.Analyzer{a, b}, nil, nil)
	rep, err := fa.Analyze(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if len(a.seen) != 3 || len(b.seen) != 3 {
		t.Errorf("seen a=%v b=%v, want every frame", a.seen, b.seen)
	}
	if rep.Count("a") != 1 || rep.Count("b") != 1 {
		t.Errorf("counts a=%d b=%d, want 1 each", rep.Count("a"), rep.Count("b"))
	}
}

func TestFileAnalyzerDecodeError(t *testing.T) {
	decodeErr := errors.New("broken stream")
	a := newFake(t, "a", 0)
	src := &fakeSource{n: 2, err: decodeErr}

	fa := NewFileAnalyzer(sourceOpener(src), []analyzer.Analyzer{a}, nil, nil)
	rep, err := fa.Analyze(context.Background(), "in.mp4")
	if !errors.Is(err, decodeErr) {
		t.Fatalf("Analyze() error = %v, want %v", err, decodeErr)
	}
	if !src.closed {
		t.Error("source not closed after decode error")
	}
	if rep.Count("a") != 1 {
		t.Errorf("items collected before the error = %d, want 1", rep.Count("a"))
	}
	if rep.Error == "" || !errors.Is(rep.Err, decodeErr) {
		t.Errorf("report error = %q", rep.Error)
	}
}

func TestFileAnalyzerEvidenceFailureIsFatal(t *testing.T) {
	a := newFake(t, "a", 1)
	a.saveErr = fmt.Errorf("%w: disk full", analyzer.ErrOutput)
	src := &fakeSource{n: 5}

	fa := NewFileAnalyzer(sourceOpener(src), []analyzer.Analyzer{a}, nil, nil)
	_, err := fa.Analyze(context.Background(), "in.mp4")
	if !errors.Is(err, analyzer.ErrOutput) {
		t.Fatalf("Analyze() error = %v, want ErrOutput", err)
	}
	if len(a.seen) != 2 {
		t.Errorf("frames seen = %v, want processing to stop at frame 1", a.seen)
	}
	if !src.closed {
		t.Error("source not closed")
	}
}

func TestFileAnalyzerOpenFailure(t *testing.T) {
	a := newFake(t, "a")
	open := func(context.Context, string) (Source, error) {
		return nil, fmt.Errorf("%w: no such file", ffmpeg.ErrVideoOpen)
	}
	m := metrics.New()

	fa := NewFileAnalyzer(open, []analyzer.Analyzer{a}, m, nil)
	rep, err := fa.Analyze(context.Background(), "missing.mp4")
	if !errors.Is(err, ffmpeg.ErrVideoOpen) {
		t.Fatalf("Analyze() error = %v, want ErrVideoOpen", err)
	}
	if len(rep.Items) != 0 || rep.Error == "" {
		t.Errorf("report = %+v", rep)
	}
}

func TestFileAnalyzerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{n: 5}

	fa := NewFileAnalyzer(sourceOpener(src), []analyzer.Analyzer{newFake(t, "a", 0)}, nil, nil)
	_, err := fa.Analyze(ctx, "in.mp4")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Analyze() error = %v, want context.Canceled", err)
	}
	if !src.closed {
		t.Error("source not closed")
	}
}

func TestFileAnalyzerClose(t *testing.T) {
	a, b := newFake(t, "a"), newFake(t, "b")
	fa := NewFileAnalyzer(nil, []analyzer.Analyzer{a, b}, nil, nil)
	if err := fa.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("analyzers not closed")
	}
}

// writeVideo creates a placeholder video file of size bytes.
func writeVideo(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
