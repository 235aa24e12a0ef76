package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/rafeyhusain/ai-pose-detection/internal/analysis"
	"github.com/rafeyhusain/ai-pose-detection/internal/browse"
	"github.com/rafeyhusain/ai-pose-detection/internal/ffmpeg"
	"github.com/rafeyhusain/ai-pose-detection/internal/metrics"
	"github.com/rafeyhusain/ai-pose-detection/internal/report"
	"github.com/rafeyhusain/ai-pose-detection/internal/request"
	"github.com/rafeyhusain/ai-pose-detection/internal/store"
)

func runFile(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("file", flag.ContinueOnError)
	cfgPath := configFlag(fs)

	var (
		input, output, reqPath, lookMode, model, analyzers string
		frameSkip, workers                                 int
		threshold, duration, confidence                    float64
	)
	fs.StringVar(&input, "i", "", "Input video file or folder")
	fs.StringVar(&input, "input", "", "Input video file or folder")
	fs.StringVar(&output, "o", "", "Output JSON path (default: next to the input)")
	fs.StringVar(&output, "output", "", "Output JSON path (default: next to the input)")
	fs.StringVar(&reqPath, "request", "", "JSON request file; flags given explicitly override it")
	fs.StringVar(&lookMode, "look-mode", string(request.LookYaw), "Look-away mode: yaw, yaw_pitch or gaze")
	fs.IntVar(&frameSkip, "frame-skip", 1, "Evaluate every Nth frame")
	fs.Float64Var(&threshold, "look-away-threshold", 0.1, "Normalized deviation above which the head counts as away")
	fs.Float64Var(&duration, "look-away-duration", 5, "Seconds a look-away must last to count as sustained")
	fs.Float64Var(&confidence, "confidence", 0.5, "Minimum person detection confidence")
	fs.StringVar(&model, "model", "yolov8n.pt", "Object detector weights")
	fs.StringVar(&analyzers, "analyzers", "person,head", "Comma separated analyzers to run, in order")
	fs.IntVar(&workers, "workers", 0, "Files analyzed concurrently in folder mode (default from config)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	e := setup(*cfgPath)
	log := e.log.Logger

	req := request.DefaultVideo()
	if reqPath != "" {
		// Validated below, once the explicit flags are applied
		loaded, err := request.DecodeJSON(reqPath, req)
		if err != nil {
			log.Error("Invalid request file", "path", reqPath, "error", err)
			return fail(err)
		}
		req = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i", "input":
			req.Input = input
		case "o", "output":
			req.Output = output
		case "look-mode":
			req.LookMode = request.LookMode(lookMode)
		case "frame-skip":
			req.FrameSkip = frameSkip
		case "look-away-threshold":
			req.LookAwayThreshold = threshold
		case "look-away-duration":
			req.LookAwayDuration = duration
		case "confidence":
			req.Confidence = confidence
		case "model":
			req.ModelName = model
		case "analyzers":
			req.Analyzers = splitList(analyzers)
		case "workers":
			e.cfg.Workers = max(workers, 1)
		}
	})
	if err := req.Validate(); err != nil {
		log.Error("Invalid request", "error", err)
		return fail(err)
	}

	kind := browse.Classify(req.Input)
	if req.Output == "" {
		req.Output = defaultOutput(req.Input, kind == browse.KindFolder)
	}

	prober := ffmpeg.NewProber(e.cfg.FFprobePath)
	m := metrics.New()
	components := analysis.Components{
		Decoder:        ffmpeg.NewDecoder(e.cfg.FFmpegPath, prober, log),
		LandmarkerCmd:  e.cfg.Landmarker,
		DetectorCmd:    e.cfg.Detector,
		AdapterTimeout: time.Duration(e.cfg.AdapterTimeoutSec) * time.Second,
		OutputRoot:     e.cfg.OutputRoot,
		Metrics:        m,
		Log:            log,
	}
	settings := analysis.Settings{
		ChunkSize:             e.cfg.ChunkSizeBytes(),
		Extension:             e.cfg.VideoExtension,
		Workers:               e.cfg.Workers,
		RebaseChunkTimestamps: e.cfg.RebaseChunkTimestamps,
	}
	segmenter := ffmpeg.NewSegmenter(e.cfg.FFmpegPath, prober, e.cfg.ChunkSizeBytes(), log)
	manager := analysis.NewManager(settings, segmenter, components.Factory(), m, log)

	run := store.NewRun(req.Input, req.Output, kind == browse.KindFolder)
	log.Info("Analysis started", "version", Version, "input", req.Input, "analyzers", req.Analyzers, "run_id", run.ID)

	outcome, err := manager.Analyze(ctx, req)
	if err != nil {
		return fail(err)
	}
	run.Finish()

	if outcome.Batch {
		err = report.WriteBatch(req.Output, req, outcome.Reports)
	} else {
		err = report.WriteFile(req.Output, req, outcome.Reports[0])
	}
	if err != nil {
		log.Error("Failed to write report", "path", req.Output, "error", err)
		return fail(err)
	}
	fmt.Println(req.Output)

	if e.cfg.MetricsFile != "" {
		if err := m.WriteTextfile(e.cfg.MetricsFile); err != nil {
			log.Warn("Failed to write metrics textfile", "path", e.cfg.MetricsFile, "error", err)
		}
	}
	if e.cfg.HistoryDB != "" {
		if err := recordHistory(e.cfg.HistoryDB, run, outcome, log); err != nil {
			log.Warn("Failed to record run history", "db", e.cfg.HistoryDB, "error", err)
		}
	}

	failed := outcome.Failed()
	log.Info("Analysis finished",
		"run_id", run.ID,
		"files", len(outcome.Reports),
		"failed", failed,
		"elapsed", run.Elapsed.Round(time.Millisecond))

	// A single file that could not be analyzed still gets its document
	if !outcome.Batch && failed > 0 {
		return 1
	}
	return 0
}

func recordHistory(dbPath string, run *store.Run, outcome *analysis.Outcome, log *slog.Logger) error {
	s, err := store.NewSQLiteStore(dbPath, log)
	if err != nil {
		return err
	}
	defer s.Close()

	files := make([]*store.File, 0, len(outcome.Reports))
	for _, rep := range outcome.Reports {
		f, err := store.FileFromReport(rep)
		if err != nil {
			return err
		}
		files = append(files, f)
		run.Items += len(rep.Items)
	}
	run.Files = len(outcome.Reports)
	run.Failed = outcome.Failed()
	return s.RecordRun(run, files)
}

// defaultOutput places the document next to the input: <dir>/<stem>.json
// for a file, <folder>/report.json for a folder.
func defaultOutput(input string, folder bool) string {
	if folder {
		return filepath.Join(input, "report.json")
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), stem+".json")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
