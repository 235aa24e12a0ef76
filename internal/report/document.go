package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

type fileDocument struct {
	Args   any     `json:"args"`
	Result *Report `json:"result"`
}

type batchDocument struct {
	Args    any       `json:"args"`
	Results []*Report `json:"results"`
}

// WriteFile writes the document of a single-file analysis: {"args", "result"}.
func WriteFile(path string, args any, result *Report) error {
	return writeJSON(path, fileDocument{Args: args, Result: result})
}

// WriteBatch writes the document of a folder analysis: {"args", "results"}.
func WriteBatch(path string, args any, results []*Report) error {
	if results == nil {
		results = []*Report{}
	}
	return writeJSON(path, batchDocument{Args: args, Results: results})
}

// writeJSON writes v through a temp file in the target directory and
// renames it into place.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
