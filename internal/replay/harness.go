package replay

import (
	"fmt"

	"github.com/danielpatrickdp/eventseq/internal/eval"
	"github.com/danielpatrickdp/eventseq/internal/gate"
	"github.com/danielpatrickdp/eventseq/internal/runlog"
)

// #region replay-types

// Run is one recorded training run, reduced to what the gate consumed.
type Run struct {
	VersionID string
	Trigger   string
	Details   runlog.RunDetails
}

// ReplayResult pairs the recorded decision with the replayed one.
type ReplayResult struct {
	VersionID      string
	Trigger        string
	Recorded       gate.Action
	Replayed       gate.GateDecision
	Changed        bool
	ActiveVersion  string // active version after this run, under replay
	BaselineUsedID string
}

// ReplaySummary aggregates a replay.
type ReplaySummary struct {
	Total         int
	Commits       int
	Rejects       int
	Changed       int
	FinalActiveID string
}

// #endregion replay-types

// #region load

// RunsFromEntries decodes log entries into runs in chronological order.
// ListRuns returns newest first, so the input is walked backwards.
func RunsFromEntries(entries []runlog.RunEntry) ([]Run, error) {
	runs := make([]Run, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		d, err := e.Details()
		if err != nil {
			return nil, fmt.Errorf("run for %s: %w", e.VersionID, err)
		}
		runs = append(runs, Run{VersionID: e.VersionID, Trigger: e.TriggerType, Details: d})
	}
	return runs, nil
}

// #endregion load

// #region replay

// Replay re-gates recorded runs in order under config. The baseline for each
// run is whichever version the replay itself left active, so one flipped
// decision can change every later comparison. Forced runs stay forced.
// Manual rollbacks are not in the run log and are not replayed.
func Replay(runs []Run, config gate.GateConfig) []ReplayResult {
	g := gate.NewGate(config)
	var active *gate.Baseline

	results := make([]ReplayResult, 0, len(runs))
	for _, r := range runs {
		candidate := candidateFrom(r.Details)
		forced := r.Details.ForceRequested || r.Details.Decision.Forced
		decision := g.Evaluate(candidate, active, forced)

		res := ReplayResult{
			VersionID: r.VersionID,
			Trigger:   r.Trigger,
			Recorded:  r.Details.Decision.Action,
			Replayed:  decision,
			Changed:   decision.Action != r.Details.Decision.Action,
		}
		if active != nil {
			res.BaselineUsedID = active.VersionID
		}
		if decision.Action == gate.ActionCommit {
			active = &gate.Baseline{VersionID: r.VersionID, Accuracy: candidate.Accuracy}
		}
		if active != nil {
			res.ActiveVersion = active.VersionID
		}
		results = append(results, res)
	}
	return results
}

// candidateFrom rebuilds the validation result the gate saw. An eval veto in
// the recorded decision means validation itself failed.
func candidateFrom(d runlog.RunDetails) eval.EvalResult {
	c := eval.EvalResult{
		Passed:   d.ValidationExamples > 0,
		Count:    d.ValidationExamples,
		Accuracy: d.ValidationAccuracy,
		Loss:     d.ValidationLoss,
		Reason:   "all checks passed",
	}
	if d.ValidationExamples == 0 {
		c.Reason = "eval failed: no examples"
	}
	for _, v := range d.Decision.VetoSignals {
		if v.Type == gate.VetoEvalFailed {
			c.Passed = false
			c.Reason = v.Reason
		}
	}
	return c
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{Total: len(results)}
	for _, r := range results {
		switch r.Replayed.Action {
		case gate.ActionCommit:
			s.Commits++
		case gate.ActionReject:
			s.Rejects++
		}
		if r.Changed {
			s.Changed++
		}
	}
	if n := len(results); n > 0 {
		s.FinalActiveID = results[n-1].ActiveVersion
	}
	return s
}

// #endregion replay
