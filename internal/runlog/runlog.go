package runlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-run

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// LogRun writes a training run to the training_runs table.
func LogRun(db Execer, entry RunEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO training_runs (version_id, trigger_type, details_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.VersionID,
		entry.TriggerType,
		nullIfEmpty(entry.DetailsJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log run: %w", err)
	}
	return nil
}

// NewEntry builds a RunEntry whose details and decision come from d.
func NewEntry(versionID, trigger string, d RunDetails) (RunEntry, error) {
	details, err := json.Marshal(d)
	if err != nil {
		return RunEntry{}, fmt.Errorf("marshal run details: %w", err)
	}
	return RunEntry{
		VersionID:   versionID,
		TriggerType: trigger,
		DetailsJSON: string(details),
		Decision:    string(d.Decision.Action),
		Reason:      d.Decision.Reason,
	}, nil
}

// #endregion log-run

// #region list-runs
const runColumns = `version_id, trigger_type, details_json, decision, reason, created_at`

// ListRuns returns the most recent runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]RunEntry, error) {
	rows, err := db.Query(
		`SELECT `+runColumns+` FROM training_runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return scanRuns(rows)
}

// ForVersion returns the runs that produced versionID, newest first.
func ForVersion(db *sql.DB, versionID string) ([]RunEntry, error) {
	rows, err := db.Query(
		`SELECT `+runColumns+` FROM training_runs WHERE version_id = ? ORDER BY id DESC`, versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("runs for %s: %w", versionID, err)
	}
	return scanRuns(rows)
}

// Details decodes the run's gate inputs. Entries without details decode
// to the zero value.
func (e RunEntry) Details() (RunDetails, error) {
	var d RunDetails
	if e.DetailsJSON == "" {
		return d, nil
	}
	if err := json.Unmarshal([]byte(e.DetailsJSON), &d); err != nil {
		return RunDetails{}, fmt.Errorf("unmarshal run details: %w", err)
	}
	return d, nil
}

func scanRuns(rows *sql.Rows) ([]RunEntry, error) {
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var details, reason sql.NullString
		var created string
		if err := rows.Scan(&e.VersionID, &e.TriggerType, &details, &e.Decision, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.DetailsJSON = details.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list-runs

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
