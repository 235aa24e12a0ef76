package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rafeyhusain/ai-pose-detection/internal/logger"
)

// ChunkPattern is the file name pattern of produced chunks.
const ChunkPattern = "chunk_%03d.mp4"

// Chunk is one stream-copied segment of a larger video.
type Chunk struct {
	Path string
	// Offset is the chunk's start time in seconds within the source video.
	Offset float64
}

// Segmenter splits large videos into duration-equal chunks using stream copy.
type Segmenter struct {
	ffmpegPath string
	prober     *Prober
	chunkSize  int64
	log        *slog.Logger
}

// NewSegmenter creates a Segmenter producing chunks of roughly chunkSize bytes.
func NewSegmenter(ffmpegPath string, prober *Prober, chunkSize int64, log *slog.Logger) *Segmenter {
	return &Segmenter{
		ffmpegPath: ffmpegPath,
		prober:     prober,
		chunkSize:  chunkSize,
		log:        logger.WithComponent(logger.OrDiscard(log), "segmenter"),
	}
}

// ShouldSplit reports whether a file of size bytes exceeds threshold.
func ShouldSplit(size, threshold int64) bool {
	return threshold > 0 && size > threshold
}

// ChunkCount returns ceil(size/chunkSize), or 0 when either value is not positive.
func ChunkCount(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// ChunkDir returns the folder chunks of input are written to: <dir>/<stem>/chunks.
func ChunkDir(input string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), stem, "chunks")
}

// Split segments input into ceil(size/chunkSize) chunks of equal duration and
// returns them in playback order. A file that needs no chunks is returned as
// a single chunk at offset 0. The chunks folder is cleared before writing.
func (s *Segmenter) Split(ctx context.Context, input string) ([]Chunk, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, &SegmentError{Path: input, Err: err}
	}

	count := ChunkCount(info.Size(), s.chunkSize)
	if count == 0 {
		return []Chunk{{Path: input}}, nil
	}

	duration, err := s.prober.Duration(ctx, input)
	if err != nil {
		return nil, &SegmentError{Path: input, Err: err}
	}
	if duration <= 0 {
		return nil, &SegmentError{Path: input, Err: fmt.Errorf("non-positive duration %.3f", duration)}
	}

	segmentTime := duration / float64(count)
	outDir := ChunkDir(input)
	if err := os.RemoveAll(outDir); err != nil {
		return nil, &SegmentError{Path: input, Err: err}
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, &SegmentError{Path: input, Err: err}
	}

	s.log.Info("Splitting video",
		"path", input,
		"size", humanize.IBytes(uint64(info.Size())),
		"chunks", count,
		"segment_time", fmt.Sprintf("%.3fs", segmentTime))

	args := []string{
		"-hide_banner",
		"-y",
		"-i", input,
		"-c", "copy",
		"-map", "0",
		"-segment_time", fmt.Sprintf("%.3f", segmentTime),
		"-f", "segment",
		"-reset_timestamps", "1",
		filepath.Join(outDir, ChunkPattern),
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		s.log.Error("Segmentation failed", "path", input, "error", err, "stderr", lastLines(string(output), 5))
		return nil, &SegmentError{Path: input, Err: err, Stderr: lastLines(string(output), 3)}
	}

	paths, err := listChunks(outDir)
	if err != nil {
		return nil, &SegmentError{Path: input, Err: err}
	}
	if len(paths) == 0 {
		return nil, &SegmentError{Path: input, Err: fmt.Errorf("no chunks produced in %s", outDir)}
	}

	return s.withOffsets(ctx, paths, segmentTime), nil
}

// withOffsets assigns each chunk the cumulative duration of its predecessors.
// Keyframe alignment makes real chunk lengths differ from segmentTime, so
// each chunk is probed and the nominal length is used only when probing fails.
func (s *Segmenter) withOffsets(ctx context.Context, paths []string, segmentTime float64) []Chunk {
	chunks := make([]Chunk, 0, len(paths))
	var offset float64
	for _, p := range paths {
		chunks = append(chunks, Chunk{Path: p, Offset: offset})
		d, err := s.prober.Duration(ctx, p)
		if err != nil || d <= 0 {
			s.log.Debug("Using nominal chunk length", "chunk", filepath.Base(p), "error", err)
			d = segmentTime
		}
		offset += d
	}
	return chunks
}

func listChunks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "chunk_") || !HasExtension(name, ".mp4") {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}
