package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("expected default ffmpeg path, got %s", cfg.FFmpegPath)
	}
	if cfg.ChunkSizeMB != 50 {
		t.Errorf("expected chunk size 50, got %d", cfg.ChunkSizeMB)
	}
	if cfg.VideoExtension != ".mp4" {
		t.Errorf("expected .mp4 extension, got %s", cfg.VideoExtension)
	}
	if cfg.Workers != 1 {
		t.Errorf("expected 1 worker, got %d", cfg.Workers)
	}
}

func TestLoadAppliesDefaultsForEmptyValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := []byte("ffmpeg_path: /opt/ffmpeg/bin/ffmpeg\nchunk_size_mb: 0\nworkers: -3\nrebase_chunk_timestamps: true\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("expected configured ffmpeg path, got %s", cfg.FFmpegPath)
	}
	if cfg.FFprobePath != "ffprobe" {
		t.Errorf("expected default ffprobe path, got %s", cfg.FFprobePath)
	}
	if cfg.ChunkSizeMB != 50 {
		t.Errorf("expected chunk size default 50, got %d", cfg.ChunkSizeMB)
	}
	if cfg.Workers != 1 {
		t.Errorf("expected workers clamped to 1, got %d", cfg.Workers)
	}
	if !cfg.RebaseChunkTimestamps {
		t.Error("expected rebase_chunk_timestamps to be true")
	}
	if len(cfg.Landmarker) == 0 || len(cfg.Detector) == 0 {
		t.Error("expected default adapter commands")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("workers: [not, a, number"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")

	cfg := DefaultConfig()
	cfg.OutputRoot = "/evidence"
	cfg.Detector = []string{"./detect.sh"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.OutputRoot != "/evidence" {
		t.Errorf("expected output root /evidence, got %s", loaded.OutputRoot)
	}
	if len(loaded.Detector) != 1 || loaded.Detector[0] != "./detect.sh" {
		t.Errorf("unexpected detector command %v", loaded.Detector)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FFPROBE_PATH", "/usr/local/bin/ffprobe")
	t.Setenv("WORKERS", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.FFprobePath != "/usr/local/bin/ffprobe" {
		t.Errorf("expected env ffprobe path, got %s", cfg.FFprobePath)
	}
	if cfg.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Workers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.LogLevel)
	}
}

func TestChunkSizeBytes(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ChunkSizeBytes(); got != 50*1024*1024 {
		t.Errorf("ChunkSizeBytes() = %d, want %d", got, 50*1024*1024)
	}
}
