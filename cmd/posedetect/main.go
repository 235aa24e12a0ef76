package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafeyhusain/ai-pose-detection/internal/config"
	"github.com/rafeyhusain/ai-pose-detection/internal/logger"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	// Handle shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "file":
		return runFile(ctx, args[1:])
	case "live":
		return runLive(ctx, args[1:])
	case "history":
		return runHistory(args[1:])
	case "version", "--version", "-v":
		fmt.Println("posedetect", Version)
		return 0
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `posedetect %s - analyze meeting videos for look-away and multiple people

Usage:
  posedetect file -i <video|folder> [-o report.json] [flags]
  posedetect live [--camera 0] [flags]
  posedetect history [--limit 20] [--run <id>]

Run "posedetect <command> -h" for the flags of a command.
`, Version)
}

// env is what every command needs: the loaded config and a logger.
type env struct {
	cfg     *config.Config
	cfgPath string
	log     *logger.Logger
}

// configFlag registers the --config flag shared by all commands.
func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "Path to config file (default: $CONFIG_PATH or ./config/posedetect.yaml)")
}

// setup loads the config, applies environment overrides and builds the logger.
func setup(configPath string) *env {
	cfgPath := configPath
	if cfgPath == "" {
		// Check environment variable
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/posedetect.yaml"
		}
	}

	cfg, loadErr := config.Load(cfgPath)
	if loadErr != nil {
		cfg = config.DefaultConfig()
	}
	cfg.ApplyEnv()

	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if loadErr != nil {
		log.Warn("Could not load config, using defaults", "path", cfgPath, "error", loadErr)
	}
	log.Debug("Config loaded", "path", cfgPath, "ffmpeg", cfg.FFmpegPath, "ffprobe", cfg.FFprobePath, "workers", cfg.Workers)

	return &env{cfg: cfg, cfgPath: cfgPath, log: log}
}

// fail prints err for the user and returns the exit code 1.
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}
