package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rafeyhusain/ai-pose-detection/internal/analyzer"
	"github.com/rafeyhusain/ai-pose-detection/internal/ffmpeg"
	"github.com/rafeyhusain/ai-pose-detection/internal/metrics"
	"github.com/rafeyhusain/ai-pose-detection/internal/perception"
	"github.com/rafeyhusain/ai-pose-detection/internal/request"
)

// Factory builds an independent FileAnalyzer, with its own analyzers and
// adapter processes, for req.
type Factory func(ctx context.Context, req request.Video) (*FileAnalyzer, error)

// Components are the collaborators the default factory wires together.
type Components struct {
	Decoder        *ffmpeg.Decoder
	LandmarkerCmd  []string
	DetectorCmd    []string
	AdapterTimeout time.Duration
	OutputRoot     string
	Metrics        *metrics.Metrics
	Log            *slog.Logger
}

// FileOpener returns an Opener decoding files with the decoder.
func (c Components) FileOpener() Opener {
	return func(ctx context.Context, path string) (Source, error) {
		s, err := c.Decoder.OpenFile(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Factory returns a Factory starting one adapter process per enabled
// analyzer. Analyzers are registered in the order req lists them.
func (c Components) Factory() Factory {
	return func(ctx context.Context, req request.Video) (*FileAnalyzer, error) {
		opts := analyzer.Options{OutputRoot: c.OutputRoot, Log: c.Log}

		var analyzers []analyzer.Analyzer
		fail := func(err error) (*FileAnalyzer, error) {
			closeAll(analyzers)
			return nil, err
		}

		for _, name := range req.Analyzers {
			switch name {
			case request.AnalyzerHead:
				lm, err := perception.StartLandmarker(ctx, c.LandmarkerCmd, c.AdapterTimeout, c.Log)
				if err != nil {
					return fail(err)
				}
				analyzers = append(analyzers, analyzer.NewHeadPose(req.Head(), lm, opts))
			case request.AnalyzerPerson:
				det, err := perception.StartDetector(ctx, c.DetectorCmd, req.ModelName, c.AdapterTimeout, c.Log)
				if err != nil {
					return fail(err)
				}
				analyzers = append(analyzers, analyzer.NewPersonCount(req.Person(), det, opts))
			default:
				return fail(fmt.Errorf("%w: unknown analyzer %q", request.ErrConfig, name))
			}
		}

		return NewFileAnalyzer(c.FileOpener(), analyzers, c.Metrics, c.Log), nil
	}
}

func closeAll(analyzers []analyzer.Analyzer) error {
	return NewFileAnalyzer(nil, analyzers, nil, nil).Close()
}
