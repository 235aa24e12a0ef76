package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/rafeyhusain/ai-pose-detection/internal/store"
)

func TestDefaultOutput(t *testing.T) {
	tests := []struct {
		input  string
		folder bool
		want   string
	}{
		{"/videos/meeting.mp4", false, "/videos/meeting.json"},
		{"/videos/a.b.mp4", false, "/videos/a.b.json"},
		{"/videos/batch", true, "/videos/batch/report.json"},
	}
	for _, tt := range tests {
		if got := defaultOutput(tt.input, tt.folder); got != tt.want {
			t.Errorf("defaultOutput(%q, %v) = %q, want %q", tt.input, tt.folder, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" head, ,person ")
	if strings.Join(got, "|") != "head|person" {
		t.Errorf("splitList() = %v", got)
	}
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	printRuns(&buf, nil)
	if !strings.Contains(buf.String(), "No runs recorded") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	printRuns(&buf, []*store.Run{{
		ID: "abc", Input: "/videos/batch", Batch: true, Files: 3, Failed: 1, Items: 7,
		StartedAt: time.Now().Add(-2 * time.Hour),
	}})
	out := buf.String()
	for _, want := range []string{"abc", "folder", "files=3", "failed=1", "items=7", "/videos/batch", "hours ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q lacks %q", out, want)
		}
	}
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("HISTORY_DB", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestRunCommands(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no command", nil, 2},
		{"unknown command", []string{"transcode"}, 2},
		{"version", []string{"version"}, 0},
		{"file help", []string{"file", "-h"}, 0},
		{"bad flag", []string{"file", "--nope"}, 2},
		{"missing input flag", []string{"file"}, 1},
		{"bad look mode", []string{"file", "-i", "x.mp4", "--look-mode", "sideways"}, 1},
		{"history disabled", []string{"history"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.args); got != tt.want {
				t.Errorf("run(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestRunFileInvalidInputWritesNothing(t *testing.T) {
	dir := isolate(t)
	out := filepath.Join(dir, "out.json")

	if got := run([]string{"file", "-i", filepath.Join(dir, "nope.mp4"), "-o", out}); got != 1 {
		t.Fatalf("exit code = %d, want 1", got)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output written for an invalid input: %v", err)
	}
}

func TestRunFileFlagsOverrideRequestFile(t *testing.T) {
	dir := isolate(t)
	videos := filepath.Join(dir, "videos")
	if err := os.Mkdir(videos, 0755); err != nil {
		t.Fatal(err)
	}
	reqPath := filepath.Join(dir, "req.json")
	if err := os.WriteFile(reqPath, []byte(`{"look_mode": "gaze", "frame_skip": 3}`), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.json")

	// The request file lacks an input; the flag supplies it
	if got := run([]string{"file", "--request", reqPath, "-i", videos, "-o", out}); got != 0 {
		t.Fatalf("exit code = %d, want 0", got)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("batch document not written: %v", err)
	}
	var doc struct {
		Args struct {
			Input     string `json:"input"`
			LookMode  string `json:"look_mode"`
			FrameSkip int    `json:"frame_skip"`
		} `json:"args"`
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Args.Input != videos || doc.Args.LookMode != "gaze" || doc.Args.FrameSkip != 3 {
		t.Errorf("args = %+v", doc.Args)
	}
	if doc.Results == nil || len(doc.Results) != 0 {
		t.Errorf("results = %v, want empty list", doc.Results)
	}

	// A flag also corrects an invalid value from the file
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"input": "nope", "look_mode": "sideways"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if got := run([]string{"file", "--request", bad, "-i", videos, "--look-mode", "yaw", "-o", out}); got != 0 {
		t.Errorf("corrected request exit code = %d, want 0", got)
	}
}

func TestRunHistoryEmpty(t *testing.T) {
	dir := isolate(t)
	t.Setenv("HISTORY_DB", filepath.Join(dir, "history.db"))

	if got := run([]string{"history", "--limit", "5"}); got != 0 {
		t.Errorf("exit code = %d, want 0", got)
	}
	if got := run([]string{"history", "--run", "missing"}); got != 1 {
		t.Errorf("unknown run exit code = %d, want 1", got)
	}
}
