package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/rafeyhusain/ai-pose-detection/internal/analyzer"
	"github.com/rafeyhusain/ai-pose-detection/internal/browse"
	"github.com/rafeyhusain/ai-pose-detection/internal/ffmpeg"
	"github.com/rafeyhusain/ai-pose-detection/internal/logger"
	"github.com/rafeyhusain/ai-pose-detection/internal/metrics"
	"github.com/rafeyhusain/ai-pose-detection/internal/report"
	"github.com/rafeyhusain/ai-pose-detection/internal/request"
)

// Splitter segments a large video into chunks.
type Splitter interface {
	Split(ctx context.Context, input string) ([]ffmpeg.Chunk, error)
}

// Settings tune the manager.
type Settings struct {
	// ChunkSize is the size above which a file is split, in bytes.
	ChunkSize int64
	// Extension is the video extension picked up in folders.
	Extension string
	// Workers is the number of folder files analyzed concurrently.
	Workers int
	// RebaseChunkTimestamps shifts chunk evidence times by the chunk's
	// offset in the source video. Off, chunk times stay chunk-local.
	RebaseChunkTimestamps bool
}

// Outcome is the result of one manager run.
type Outcome struct {
	// Batch is set when the input was a folder.
	Batch   bool
	Reports []*report.Report
}

// Failed returns the number of reports that recorded an error.
func (o *Outcome) Failed() int {
	n := 0
	for _, r := range o.Reports {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Manager decides how an input is analyzed: directly, split into chunks,
// or file by file for a folder.
type Manager struct {
	settings Settings
	splitter Splitter
	factory  Factory
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewManager creates a Manager. m may be nil.
func NewManager(settings Settings, splitter Splitter, factory Factory, m *metrics.Metrics, log *slog.Logger) *Manager {
	if settings.Workers < 1 {
		settings.Workers = 1
	}
	if settings.Extension == "" {
		settings.Extension = ".mp4"
	}
	return &Manager{
		settings: settings,
		splitter: splitter,
		factory:  factory,
		metrics:  m,
		log:      logger.WithComponent(logger.OrDiscard(log), "manager"),
	}
}

// Analyze validates req and analyzes its input. Per-file failures are
// recorded in the reports; the returned error covers invalid requests,
// invalid input paths and adapters that cannot start.
func (m *Manager) Analyze(ctx context.Context, req request.Video) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return &Outcome{}, err
	}

	switch browse.Classify(req.Input) {
	case browse.KindFile:
		return m.analyzeSingle(ctx, req)
	case browse.KindFolder:
		return m.analyzeFolder(ctx, req)
	default:
		m.log.Error("Input is neither a file nor a folder", "path", req.Input)
		return &Outcome{}, fmt.Errorf("%w: %s", ErrInvalidInput, req.Input)
	}
}

func (m *Manager) analyzeSingle(ctx context.Context, req request.Video) (*Outcome, error) {
	fa, err := m.factory(ctx, req.WithInput(req.Input))
	if err != nil {
		return &Outcome{}, err
	}
	defer fa.Close()

	rep := m.analyzeFile(ctx, fa, req.Input)
	return &Outcome{Reports: []*report.Report{rep}}, nil
}

func (m *Manager) analyzeFolder(ctx context.Context, req request.Video) (*Outcome, error) {
	videos, err := browse.ListVideos(req.Input, m.settings.Extension)
	if err != nil {
		return &Outcome{Batch: true}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	out := &Outcome{Batch: true, Reports: make([]*report.Report, len(videos))}
	if len(videos) == 0 {
		m.log.Info("No videos found", "folder", req.Input, "extension", m.settings.Extension)
		return out, nil
	}

	workers := min(m.settings.Workers, len(videos))
	m.log.Info("Analyzing folder",
		"folder", req.Input,
		"files", len(videos),
		"size", humanize.IBytes(uint64(browse.TotalSize(videos))),
		"workers", workers)

	// Each worker owns a FileAnalyzer with its own adapters and output folders
	pool := make(chan *FileAnalyzer, workers)
	defer func() {
		close(pool)
		for fa := range pool {
			fa.Close()
		}
	}()
	for i := 0; i < workers; i++ {
		fa, err := m.factory(ctx, req.WithInput(req.Input))
		if err != nil {
			return &Outcome{Batch: true}, err
		}
		pool <- fa
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, v := range videos {
		g.Go(func() error {
			fa := <-pool
			defer func() { pool <- fa }()

			if err := ctx.Err(); err != nil {
				out.Reports[i] = report.Failed(v.Path, err)
				return nil
			}
			m.log.Info("Analyzing file", "path", v.Path, "index", i+1, "of", len(videos))
			out.Reports[i] = m.analyzeFile(ctx, fa, v.Path)
			return nil
		})
	}
	_ = g.Wait()

	if n := out.Failed(); n > 0 {
		m.log.Warn("Folder finished with failures", "folder", req.Input, "failed", n, "files", len(videos))
	}
	return out, nil
}

// analyzeFile analyzes one file, splitting it first when it exceeds the
// chunk size. The returned report is never nil.
func (m *Manager) analyzeFile(ctx context.Context, fa *FileAnalyzer, path string) *report.Report {
	info, err := os.Stat(path)
	if err != nil {
		m.log.Error("Cannot stat video", "path", path, "error", err)
		return report.Failed(path, fmt.Errorf("%w: %v", ffmpeg.ErrVideoOpen, err))
	}

	if !ffmpeg.ShouldSplit(info.Size(), m.settings.ChunkSize) {
		rep, _ := fa.Analyze(ctx, path)
		return rep
	}

	m.log.Info("Video exceeds chunk size",
		"path", path,
		"size", humanize.IBytes(uint64(info.Size())),
		"chunk_size", humanize.IBytes(uint64(m.settings.ChunkSize)))

	chunks, err := m.splitter.Split(ctx, path)
	if err != nil {
		m.log.Error("Split failed", "path", path, "error", err)
		return report.Failed(path, err)
	}
	m.metrics.ObserveChunks(len(chunks))

	parts := make([]*report.Report, 0, len(chunks))
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			parts = append(parts, report.Failed(c.Path, err))
			break
		}
		m.log.Debug("Analyzing chunk", "path", c.Path, "chunk", i, "offset", c.Offset)
		part, _ := fa.Analyze(ctx, c.Path)
		if m.settings.RebaseChunkTimestamps {
			rebase(part, c.Offset)
		}
		parts = append(parts, part)
	}

	return report.Concat(path, parts)
}

// rebase shifts the evidence times of a chunk report by offset seconds.
// Evidence file names keep their chunk-local times.
func rebase(rep *report.Report, offset float64) {
	if offset == 0 {
		return
	}
	for i := range rep.Items {
		it := &rep.Items[i]
		it.Seconds += offset
		it.Timestamp = analyzer.ToTimestamp(it.Seconds)
	}
}
