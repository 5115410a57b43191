package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/danielpatrickdp/eventseq/internal/registry"
	"github.com/danielpatrickdp/eventseq/internal/replay"
	"github.com/danielpatrickdp/eventseq/internal/runlog"
)

const timeLayout = "2006-01-02T15:04:05Z"

// #region list

// Row is one version in a listing.
type Row struct {
	VersionID          string  `json:"version_id"`
	ParentID           string  `json:"parent_id,omitempty"`
	Backend            string  `json:"backend"`
	Active             bool    `json:"active"`
	Trigger            string  `json:"trigger,omitempty"`
	Decision           string  `json:"decision"`
	Reason             string  `json:"reason,omitempty"`
	ValidationAccuracy float64 `json:"validation_accuracy"`
	ValidationLoss     float64 `json:"validation_loss"`
	TrainLoss          float64 `json:"train_loss"`
	Epochs             int     `json:"epochs"`
	TrainExamples      int     `json:"train_examples"`
	CreatedAt          string  `json:"created_at"`
}

// Rows converts registry versions (newest first) to chronological rows.
func Rows(versions []registry.VersionWithRun) []Row {
	rows := make([]Row, len(versions))
	for i, v := range versions {
		rows[len(versions)-1-i] = Row{
			VersionID:          v.VersionID,
			ParentID:           v.ParentID,
			Backend:            string(v.Snapshot.Backend),
			Active:             v.Active,
			Trigger:            v.Trigger,
			Decision:           v.Decision,
			Reason:             v.Reason,
			ValidationAccuracy: v.Metrics.ValidationAccuracy,
			ValidationLoss:     v.Metrics.ValidationLoss,
			TrainLoss:          v.Metrics.TrainLoss,
			Epochs:             v.Metrics.Epochs,
			TrainExamples:      v.Metrics.TrainExamples,
			CreatedAt:          v.CreatedAt.Format(timeLayout),
		}
	}
	return rows
}

// WriteTable prints rows as an aligned table. The active version is marked
// with an asterisk.
func WriteTable(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no versions found")
		return err
	}
	fmt.Fprintf(w, "  %-10s  %-8s  %-12s  %-8s  %8s  %8s  %6s  %s\n",
		"Version", "Parent", "Trigger", "Decision", "Val Acc", "Val Loss", "Epochs", "Time")
	fmt.Fprintf(w, "  %-10s+-%-8s+-%-12s+-%-8s+-%8s+-%8s+-%6s+-%s\n",
		"----------", "--------", "------------", "--------", "--------", "--------", "------", "--------------------")
	for _, r := range rows {
		mark := " "
		if r.Active {
			mark = "*"
		}
		parent := "-"
		if r.ParentID != "" {
			parent = ShortID(r.ParentID)
		}
		fmt.Fprintf(w, "%s %-10s  %-8s  %-12s  %-8s  %8.4f  %8.4f  %6d  %s\n",
			mark, ShortID(r.VersionID), parent, orDash(r.Trigger), orDash(r.Decision),
			r.ValidationAccuracy, r.ValidationLoss, r.Epochs, r.CreatedAt)
	}
	return nil
}

// #endregion list

// #region detail

// Detail is the full view of one version.
type Detail struct {
	Row
	Encoding   registry.EncodingInfo `json:"encoding"`
	Checkpoint string                `json:"checkpoint,omitempty"`
	Weights    int                   `json:"weights"`
	Runs       []RunView             `json:"runs"`
}

// RunView is one training run behind a version.
type RunView struct {
	Trigger   string             `json:"trigger"`
	Decision  string             `json:"decision"`
	Reason    string             `json:"reason,omitempty"`
	CreatedAt string             `json:"created_at"`
	Details   *runlog.RunDetails `json:"details,omitempty"`
}

// NewDetail assembles a detail view from a version and its runs.
func NewDetail(v registry.ModelVersion, active bool, runs []runlog.RunEntry) Detail {
	d := Detail{
		Row: Row{
			VersionID:          v.VersionID,
			ParentID:           v.ParentID,
			Backend:            string(v.Snapshot.Backend),
			Active:             active,
			ValidationAccuracy: v.Metrics.ValidationAccuracy,
			ValidationLoss:     v.Metrics.ValidationLoss,
			TrainLoss:          v.Metrics.TrainLoss,
			Epochs:             v.Metrics.Epochs,
			TrainExamples:      v.Metrics.TrainExamples,
			CreatedAt:          v.CreatedAt.Format(timeLayout),
		},
		Encoding:   v.Encoding,
		Checkpoint: v.Snapshot.Checkpoint,
		Weights:    len(v.Snapshot.Weights),
	}
	for i, r := range runs {
		view := RunView{
			Trigger:   r.TriggerType,
			Decision:  r.Decision,
			Reason:    r.Reason,
			CreatedAt: r.CreatedAt.Format(timeLayout),
		}
		if details, err := r.Details(); err == nil && r.DetailsJSON != "" {
			view.Details = &details
		}
		if i == 0 {
			d.Trigger, d.Decision, d.Reason = r.TriggerType, r.Decision, r.Reason
		}
		d.Runs = append(d.Runs, view)
	}
	return d
}

// WriteDetail prints a detail view.
func WriteDetail(w io.Writer, d Detail) error {
	fmt.Fprintf(w, "Version:    %s\n", d.VersionID)
	fmt.Fprintf(w, "Parent:     %s\n", orDash(d.ParentID))
	fmt.Fprintf(w, "Active:     %v\n", d.Active)
	fmt.Fprintf(w, "Created:    %s\n", d.CreatedAt)
	fmt.Fprintf(w, "Backend:    %s\n", d.Backend)
	if d.Checkpoint != "" {
		fmt.Fprintf(w, "Checkpoint: %s\n", d.Checkpoint)
	} else {
		fmt.Fprintf(w, "Weights:    %d\n", d.Weights)
	}

	fmt.Fprintf(w, "\nEncoding:\n")
	fmt.Fprintf(w, "  Vocabulary: %s\n", d.Encoding.Fingerprint)
	fmt.Fprintf(w, "  Max steps:  %d\n", d.Encoding.MaxSteps)
	fmt.Fprintf(w, "  Layout:     %s\n", d.Encoding.Layout)
	fmt.Fprintf(w, "  Label mode: %s\n", d.Encoding.LabelMode)

	fmt.Fprintf(w, "\nMetrics:\n")
	fmt.Fprintf(w, "  Epochs:         %d\n", d.Epochs)
	fmt.Fprintf(w, "  Train examples: %d\n", d.TrainExamples)
	fmt.Fprintf(w, "  Train loss:     %.4f\n", d.TrainLoss)
	fmt.Fprintf(w, "  Val loss:       %.4f\n", d.ValidationLoss)
	fmt.Fprintf(w, "  Val accuracy:   %.4f\n", d.ValidationAccuracy)

	for _, r := range d.Runs {
		fmt.Fprintf(w, "\nRun (%s, %s):\n", r.Trigger, r.CreatedAt)
		fmt.Fprintf(w, "  Decision: %s\n", r.Decision)
		fmt.Fprintf(w, "  Reason:   %s\n", orDash(r.Reason))
		if r.Details != nil {
			fmt.Fprintf(w, "  Vetoed:   %v (forced: %v)\n", r.Details.Decision.Vetoed, r.Details.Decision.Forced)
			fmt.Fprintf(w, "  Delta:    %+.4f\n", r.Details.Decision.Delta)
			fmt.Fprintf(w, "  Skipped:  %d\n", r.Details.SkippedExamples)
		}
	}
	return nil
}

// #endregion detail

// #region output

// WriteJSON prints v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// ShortID truncates a uuid for table display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// #endregion output

// #region replay

// WriteReplay prints recorded against replayed decisions, then a summary.
func WriteReplay(w io.Writer, results []replay.ReplayResult) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "no runs found")
		return err
	}
	fmt.Fprintf(w, "%-10s| %-12s| %-9s| %-9s| %-10s| %s\n", "Version", "Trigger", "Recorded", "Replayed", "Active", "Match")
	fmt.Fprintf(w, "%-10s+%-13s+%-10s+%-10s+%-11s+%s\n",
		"----------", "-------------", "----------", "----------", "-----------", "------")
	for _, r := range results {
		match := "OK"
		if r.Changed {
			match = "DIFF"
		}
		active := "-"
		if r.ActiveVersion != "" {
			active = ShortID(r.ActiveVersion)
		}
		fmt.Fprintf(w, "%-10s| %-12s| %-9s| %-9s| %-10s| %s\n",
			ShortID(r.VersionID), orDash(r.Trigger), orDash(string(r.Recorded)), r.Replayed.Action, active, match)
	}
	s := replay.Summarize(results)
	_, err := fmt.Fprintf(w, "\nSummary: %d total, %d commit, %d reject, %d diverge, final active %s\n",
		s.Total, s.Commits, s.Rejects, s.Changed, orDash(ShortID(s.FinalActiveID)))
	return err
}

// #endregion replay
