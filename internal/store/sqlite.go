package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rafeyhusain/ai-pose-detection/internal/logger"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex // Protects concurrent access
	path string
	log  *slog.Logger
}

// NewSQLiteStore opens the history database at dbPath, creating and
// migrating it as needed.
func NewSQLiteStore(dbPath string, log *slog.Logger) (*SQLiteStore, error) {
	log = logger.WithComponent(logger.OrDiscard(log), "store")

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL for concurrent readers; foreign keys set per pooled connection
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	from, err := migrate(db, migrations, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	if from > schemaVersion {
		db.Close()
		return nil, fmt.Errorf("database schema v%d is newer than supported v%d", from, schemaVersion)
	}

	return &SQLiteStore{db: db, path: dbPath, log: log}, nil
}

// RecordRun persists run and its files in one transaction.
func (s *SQLiteStore) RecordRun(run *Run, files []*File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO runs (
			id, input, output, batch, files, failed, items, started_at, finished_at, elapsed_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			input = excluded.input, output = excluded.output, batch = excluded.batch,
			files = excluded.files, failed = excluded.failed, items = excluded.items,
			started_at = excluded.started_at, finished_at = excluded.finished_at,
			elapsed_ms = excluded.elapsed_ms
	`,
		run.ID, run.Input, nullString(run.Output), boolToInt(run.Batch),
		run.Files, run.Failed, run.Items,
		formatTime(run.StartedAt), formatTimePtr(run.FinishedAt), run.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	// A re-recorded run keeps no stale files
	if _, err := tx.Exec("DELETE FROM items WHERE file_id IN (SELECT id FROM files WHERE run_id = ?)", run.ID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM files WHERE run_id = ?", run.ID); err != nil {
		return err
	}

	itemStmt, err := tx.Prepare(`
		INSERT INTO items (file_id, analyzer, frame, chunk, confidence, timestamp, image)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer itemStmt.Close()

	for pos, f := range files {
		res, err := tx.Exec(`
			INSERT INTO files (run_id, position, video_path, chunks, error, summary)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.ID, pos, f.VideoPath, f.Chunks, nullString(f.Error), nullString(f.Summary))
		if err != nil {
			return fmt.Errorf("save file %s: %w", f.VideoPath, err)
		}
		fileID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for _, it := range f.Items {
			if _, err := itemStmt.Exec(fileID, it.Analyzer, it.Frame, it.Chunk, it.Confidence, it.Timestamp, it.Image); err != nil {
				return fmt.Errorf("save item of %s: %w", f.VideoPath, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("Run recorded", "run_id", run.ID, "files", len(files))
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.Query(`
		SELECT id, input, output, batch, files, failed, items, started_at, finished_at, elapsed_ms
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun retrieves a run by ID with its files in analysis order.
func (s *SQLiteStore) GetRun(id string) (*RunDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, input, output, batch, files, failed, items, started_at, finished_at, elapsed_ms
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	files, err := s.filesLocked(id)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: run, Files: files}, nil
}

func (s *SQLiteStore) filesLocked(runID string) ([]*File, error) {
	rows, err := s.db.Query(`
		SELECT id, video_path, chunks, error, summary
		FROM files WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, err
	}

	var ids []int64
	files := []*File{}
	for rows.Next() {
		var id int64
		var errStr, summary sql.NullString
		f := &File{Items: []Item{}}
		if err := rows.Scan(&id, &f.VideoPath, &f.Chunks, &errStr, &summary); err != nil {
			rows.Close()
			return nil, err
		}
		f.Error = errStr.String
		f.Summary = summary.String
		ids = append(ids, id)
		files = append(files, f)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		items, err := s.itemsLocked(id)
		if err != nil {
			return nil, err
		}
		files[i].Items = items
	}
	return files, nil
}

func (s *SQLiteStore) itemsLocked(fileID int64) ([]Item, error) {
	rows, err := s.db.Query(`
		SELECT analyzer, frame, chunk, confidence, timestamp, image
		FROM items WHERE file_id = ?
		ORDER BY id ASC
	`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Analyzer, &it.Frame, &it.Chunk, &it.Confidence, &it.Timestamp, &it.Image); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Helper functions for scanning rows

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var output, finishedAt sql.NullString
	var startedAt string
	var batch int
	var elapsedMS int64

	err := row.Scan(
		&run.ID, &run.Input, &output, &batch,
		&run.Files, &run.Failed, &run.Items,
		&startedAt, &finishedAt, &elapsedMS,
	)
	if err != nil {
		return nil, err
	}

	run.Output = output.String
	run.Batch = batch != 0
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt.String)
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &run, nil
}

// Helper functions for SQL values

// timeLayout has fixed-width fractions so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}
