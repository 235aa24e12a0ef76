package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// FFmpegPath is the path to ffmpeg binary (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path"`

	// FFprobePath is the path to ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// LogFormat is "text" or "json"
	LogFormat string `yaml:"log_format"`

	// ChunkSizeMB is the size above which an input is split before analysis,
	// and the target size of each chunk (default 50)
	ChunkSizeMB int `yaml:"chunk_size_mb"`

	// VideoExtension is the container extension picked up in folder mode (default ".mp4")
	VideoExtension string `yaml:"video_extension"`

	// OutputRoot relocates evidence folders. Empty keeps them next to the input
	// as <dir>/<stem>/<analyzer>; otherwise <root>/<stem>-<hash>/<analyzer>.
	OutputRoot string `yaml:"output_root"`

	// RebaseChunkTimestamps adds each chunk's start offset to its evidence
	// timestamps when chunk reports are concatenated (default false: chunk-local)
	RebaseChunkTimestamps bool `yaml:"rebase_chunk_timestamps"`

	// Workers is the number of files analyzed concurrently in folder mode (default 1)
	Workers int `yaml:"workers"`

	// Landmarker is the command line of the facial-landmark adapter process
	Landmarker []string `yaml:"landmarker"`

	// Detector is the command line of the object detector adapter process.
	// The configured model name is appended as --model <name>.
	Detector []string `yaml:"detector"`

	// AdapterTimeoutSec bounds a single adapter round trip (default 10)
	AdapterTimeoutSec int `yaml:"adapter_timeout_sec"`

	// HistoryDB is the SQLite run history path. Empty disables history.
	HistoryDB string `yaml:"history_db"`

	// MetricsFile is a Prometheus textfile written after each run. Empty disables it.
	MetricsFile string `yaml:"metrics_file"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		FFmpegPath:        "ffmpeg",
		FFprobePath:       "ffprobe",
		LogLevel:          "info",
		LogFormat:         "text",
		ChunkSizeMB:       50,
		VideoExtension:    ".mp4",
		Workers:           1,
		Landmarker:        []string{"python3", "-m", "posedetect_adapters", "landmarks"},
		Detector:          []string{"python3", "-m", "posedetect_adapters", "detect"},
		AdapterTimeoutSec: 10,
		HistoryDB:         "",
		MetricsFile:       "",
	}
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.FFmpegPath == "" {
		c.FFmpegPath = def.FFmpegPath
	}
	if c.FFprobePath == "" {
		c.FFprobePath = def.FFprobePath
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	if c.ChunkSizeMB < 1 {
		c.ChunkSizeMB = def.ChunkSizeMB
	}
	if c.VideoExtension == "" {
		c.VideoExtension = def.VideoExtension
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if len(c.Landmarker) == 0 {
		c.Landmarker = def.Landmarker
	}
	if len(c.Detector) == 0 {
		c.Detector = def.Detector
	}
	if c.AdapterTimeoutSec < 1 {
		c.AdapterTimeoutSec = def.AdapterTimeoutSec
	}
}

// ApplyEnv overrides config values from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		c.FFmpegPath = v
	}
	if v := os.Getenv("FFPROBE_PATH"); v != "" {
		c.FFprobePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("HISTORY_DB"); v != "" {
		c.HistoryDB = v
	}
	if v := os.Getenv("WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers = n
		}
	}
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ChunkSizeBytes returns the split threshold in bytes.
func (c *Config) ChunkSizeBytes() int64 {
	return int64(c.ChunkSizeMB) * 1024 * 1024
}
