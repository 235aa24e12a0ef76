package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/rafeyhusain/ai-pose-detection/internal/store"
)

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	cfgPath := configFlag(fs)
	limit := fs.Int("limit", 20, "Number of recent runs to list (0 lists all)")
	runID := fs.String("run", "", "Show one run with its files and items as JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	e := setup(*cfgPath)
	if e.cfg.HistoryDB == "" {
		return fail(errors.New("run history is disabled: set history_db in the config or HISTORY_DB"))
	}

	s, err := store.NewSQLiteStore(e.cfg.HistoryDB, e.log.Logger)
	if err != nil {
		e.log.Error("Cannot open run history", "db", e.cfg.HistoryDB, "error", err)
		return fail(err)
	}
	defer s.Close()

	if *runID != "" {
		detail, err := s.GetRun(*runID)
		if err != nil {
			return fail(err)
		}
		if detail == nil {
			return fail(fmt.Errorf("run %s not found", *runID))
		}
		data, err := json.MarshalIndent(detail, "", "  ")
		if err != nil {
			return fail(err)
		}
		fmt.Println(string(data))
		return 0
	}

	runs, err := s.ListRuns(*limit)
	if err != nil {
		return fail(err)
	}
	printRuns(os.Stdout, runs)
	return 0
}

func printRuns(w io.Writer, runs []*store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	for _, r := range runs {
		kind := "file"
		if r.Batch {
			kind = "folder"
		}
		fmt.Fprintf(w, "%s  %-14s  %-6s  files=%d failed=%d items=%d  %s\n",
			r.ID, humanize.Time(r.StartedAt), kind, r.Files, r.Failed, r.Items, r.Input)
	}
}
