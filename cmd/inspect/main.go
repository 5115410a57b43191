package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/danielpatrickdp/eventseq/internal/registry"
	"github.com/danielpatrickdp/eventseq/internal/report"
	"github.com/danielpatrickdp/eventseq/internal/runlog"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to eventseq.db")
	last := flag.Int("last", 20, "show N most recent versions")
	version := flag.String("version", "", "show single version detail")
	runs := flag.Bool("runs", false, "list training runs instead of versions")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/eventseq.db [--last N] [--version id] [--runs] [--json]")
		os.Exit(2)
	}

	store, err := registry.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *version != "":
		err = runDetailMode(os.Stdout, store, *version, *jsonOut)
	case *runs:
		err = runRunsMode(os.Stdout, store, *last, *jsonOut)
	default:
		err = runListMode(os.Stdout, store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

func runListMode(w io.Writer, store *registry.Store, last int, jsonOut bool) error {
	versions, err := store.ListVersions(last)
	if err != nil {
		return err
	}
	rows := report.Rows(versions)
	if jsonOut {
		return report.WriteJSON(w, rows)
	}
	if err := report.WriteTable(w, rows); err != nil {
		return err
	}

	for _, r := range rows {
		if r.Active {
			fmt.Fprintf(w, "\nActive: %s (validation accuracy %.4f)\n", r.VersionID, r.ValidationAccuracy)
		}
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(w io.Writer, store *registry.Store, versionID string, jsonOut bool) error {
	v, err := store.GetVersion(versionID)
	if err != nil {
		return err
	}
	entries, err := runlog.ForVersion(store.DB(), versionID)
	if err != nil {
		return err
	}
	active, err := store.ActiveID()
	if err != nil && !errors.Is(err, registry.ErrNoActiveVersion) {
		return err
	}

	d := report.NewDetail(v, active == v.VersionID, entries)
	if jsonOut {
		return report.WriteJSON(w, d)
	}
	return report.WriteDetail(w, d)
}

// #endregion detail-mode

// #region runs-mode

type runRow struct {
	VersionID string  `json:"version_id"`
	Trigger   string  `json:"trigger"`
	Decision  string  `json:"decision"`
	Reason    string  `json:"reason,omitempty"`
	Accuracy  float64 `json:"validation_accuracy"`
	Baseline  float64 `json:"baseline_accuracy"`
	Forced    bool    `json:"forced"`
	CreatedAt string  `json:"created_at"`
}

func runRunsMode(w io.Writer, store *registry.Store, last int, jsonOut bool) error {
	entries, err := runlog.ListRuns(store.DB(), last)
	if err != nil {
		return err
	}

	// newest first from the store, reverse for chronological
	rows := make([]runRow, len(entries))
	for i, e := range entries {
		d, err := e.Details()
		if err != nil {
			return err
		}
		rows[len(entries)-1-i] = runRow{
			VersionID: e.VersionID,
			Trigger:   e.TriggerType,
			Decision:  e.Decision,
			Reason:    e.Reason,
			Accuracy:  d.ValidationAccuracy,
			Baseline:  d.BaselineAccuracy,
			Forced:    d.Decision.Forced,
			CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return report.WriteJSON(w, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no runs found")
		return nil
	}
	fmt.Fprintf(w, "%-10s  %-12s  %-8s  %8s  %8s  %-6s  %s\n",
		"Version", "Trigger", "Decision", "Val Acc", "Baseline", "Forced", "Time")
	for _, r := range rows {
		fmt.Fprintf(w, "%-10s  %-12s  %-8s  %8.4f  %8.4f  %-6v  %s\n",
			report.ShortID(r.VersionID), r.Trigger, r.Decision, r.Accuracy, r.Baseline, r.Forced, r.CreatedAt)
	}
	return nil
}

// #endregion runs-mode
