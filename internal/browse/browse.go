// Package browse enumerates the videos of a folder for batch analysis.
package browse

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one video file found in a folder.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Kind classifies an input path.
type Kind int

const (
	KindInvalid Kind = iota
	KindFile
	KindFolder
)

// Classify reports whether path is a regular file, a folder, or neither.
func Classify(path string) Kind {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return KindInvalid
	case info.IsDir():
		return KindFolder
	case info.Mode().IsRegular():
		return KindFile
	default:
		return KindInvalid
	}
}

// ListVideos returns the files of dir with extension ext, sorted by name.
// The extension matches case-sensitively, so a.mp4 and a.MP4 never both
// claim the <dir>/a evidence folder. Subfolders and hidden files are
// ignored. An empty folder yields an empty list and no error.
func ListVideos(dir, ext string) ([]*Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	videos := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		// Skip hidden files
		if strings.HasPrefix(e.Name(), ".") || e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) != ext {
			continue
		}

		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		videos = append(videos, &Entry{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(videos, func(i, j int) bool {
		return videos[i].Name < videos[j].Name
	})

	return videos, nil
}

// TotalSize returns the combined size of entries.
func TotalSize(entries []*Entry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total
}
