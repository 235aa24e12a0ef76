package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/rafeyhusain/ai-pose-detection/internal/analysis"
	"github.com/rafeyhusain/ai-pose-detection/internal/analyzer"
	"github.com/rafeyhusain/ai-pose-detection/internal/ffmpeg"
	"github.com/rafeyhusain/ai-pose-detection/internal/live"
	"github.com/rafeyhusain/ai-pose-detection/internal/perception"
	"github.com/rafeyhusain/ai-pose-detection/internal/report"
	"github.com/rafeyhusain/ai-pose-detection/internal/request"
)

func runLive(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("live", flag.ContinueOnError)
	cfgPath := configFlag(fs)

	req := request.DefaultHead("")
	req.Mode = request.ModeLive
	req.LookMode = request.LookYaw
	req.LookAwayThreshold = 0.1
	req.FrameSkip = 1

	camera := fs.String("camera", "0", "Camera index or platform device name")
	output := fs.String("o", "", "Write the session summary to this JSON file")
	lookMode := fs.String("look-mode", string(req.LookMode), "Look-away mode: yaw, yaw_pitch or gaze")
	fs.Float64Var(&req.LookAwayThreshold, "look-away-threshold", req.LookAwayThreshold, "Normalized deviation above which the head counts as away")
	fs.Float64Var(&req.LookAwayDuration, "look-away-duration", req.LookAwayDuration, "Seconds a look-away must last to count as sustained")
	fs.IntVar(&req.FrameSkip, "frame-skip", req.FrameSkip, "Evaluate every Nth frame")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	req.LookMode = request.LookMode(*lookMode)

	e := setup(*cfgPath)
	log := e.log.Logger

	if err := req.Validate(); err != nil {
		log.Error("Invalid request", "error", err)
		return fail(err)
	}

	timeout := time.Duration(e.cfg.AdapterTimeoutSec) * time.Second
	lm, err := perception.StartLandmarker(ctx, e.cfg.Landmarker, timeout, log)
	if err != nil {
		log.Error("Cannot start landmark adapter", "error", err)
		return fail(err)
	}
	head := analyzer.NewHeadPose(req, lm, analyzer.Options{Log: log})
	defer head.Close()

	decoder := ffmpeg.NewDecoder(e.cfg.FFmpegPath, ffmpeg.NewProber(e.cfg.FFprobePath), log)
	open := func(ctx context.Context) (analysis.Source, error) {
		s, err := decoder.OpenCamera(ctx, *camera)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	fmt.Fprintf(fs.Output(), "Monitoring camera %s, press Ctrl+C to stop\n", *camera)
	summary, err := live.NewMonitor(open, head, nil, log).Run(ctx)
	if err != nil {
		return fail(err)
	}
	log.Info("Session summary", "summary", summary)

	if *output != "" {
		rep := report.New("camera:" + *camera)
		rep.SetSummary(head.Type(), summary)
		if err := report.WriteFile(*output, req, rep); err != nil {
			log.Error("Failed to write session summary", "path", *output, "error", err)
			return fail(err)
		}
		fmt.Println(*output)
	}
	return 0
}
