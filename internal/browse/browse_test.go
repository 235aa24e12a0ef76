package browse

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListVideos(t *testing.T) {
	tmpDir := t.TempDir()

	// Create some fake video files
	files := []string{"standup.mp4", "Interview.MP4", "call.mp4", "clip.mkv", "notes.txt", ".hidden.mp4"}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, f), []byte("fake video content"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
	}

	// Subfolders are not descended into
	sub := filepath.Join(tmpDir, "archive.mp4")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(sub, "old.mp4"), []byte("x"), 0644)

	videos, err := ListVideos(tmpDir, ".mp4")
	if err != nil {
		t.Fatalf("ListVideos failed: %v", err)
	}

	// Extensions match case-sensitively
	want := []string{"call.mp4", "standup.mp4"}
	if len(videos) != len(want) {
		t.Fatalf("expected %d videos, got %d", len(want), len(videos))
	}
	for i, name := range want {
		if videos[i].Name != name {
			t.Errorf("video %d = %s, want %s", i, videos[i].Name, name)
		}
		if videos[i].Path != filepath.Join(tmpDir, name) {
			t.Errorf("video %d path = %s", i, videos[i].Path)
		}
	}

	if got := TotalSize(videos); got != int64(2*len("fake video content")) {
		t.Errorf("TotalSize = %d", got)
	}
}

func TestListVideosEmptyFolder(t *testing.T) {
	videos, err := ListVideos(t.TempDir(), ".mp4")
	if err != nil {
		t.Fatalf("ListVideos failed: %v", err)
	}
	if videos == nil || len(videos) != 0 {
		t.Errorf("expected empty non-nil list, got %v", videos)
	}
}

func TestListVideosMissingFolder(t *testing.T) {
	if _, err := ListVideos(filepath.Join(t.TempDir(), "missing"), ".mp4"); err == nil {
		t.Error("expected error for missing folder")
	}
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.mp4")
	os.WriteFile(file, nil, 0644)

	tests := []struct {
		path string
		want Kind
	}{
		{file, KindFile},
		{dir, KindFolder},
		{filepath.Join(dir, "nope.mp4"), KindInvalid},
	}
	for _, tt := range tests {
		if got := Classify(tt.path); got != tt.want {
			t.Errorf("Classify(%s) = %d, want %d", tt.path, got, tt.want)
		}
	}
}
