package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/eventseq/internal/gate"
	"github.com/danielpatrickdp/eventseq/internal/runlog"
)

// #region fixture-types

// Fixture is a portable, JSON-encoded slice of run history, so gate
// thresholds can be tuned away from the registry that produced it.
type Fixture struct {
	Description     string                  `json:"description"`
	GateConfig      FixtureGateConfig       `json:"gate_config"`
	Runs            []FixtureRun            `json:"runs"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results,omitempty"`
}

// FixtureGateConfig mirrors gate.GateConfig with JSON tags.
type FixtureGateConfig struct {
	MinAccuracy   float64 `json:"min_accuracy"`
	MaxRegression float64 `json:"max_regression"`
}

// FixtureRun mirrors Run with JSON tags.
type FixtureRun struct {
	VersionID string            `json:"version_id"`
	Trigger   string            `json:"trigger"`
	Details   runlog.RunDetails `json:"details"`
}

// FixtureExpectedResult captures the expected action per version.
type FixtureExpectedResult struct {
	VersionID string `json:"version_id"`
	Action    string `json:"action"`
}

// #endregion fixture-types

// #region fixture-io

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// NewFixture captures runs and the decisions they were given.
func NewFixture(description string, config gate.GateConfig, runs []Run) *Fixture {
	f := &Fixture{
		Description: description,
		GateConfig: FixtureGateConfig{
			MinAccuracy:   config.MinAccuracy,
			MaxRegression: config.MaxRegression,
		},
	}
	for _, r := range runs {
		f.Runs = append(f.Runs, FixtureRun{VersionID: r.VersionID, Trigger: r.Trigger, Details: r.Details})
		f.ExpectedResults = append(f.ExpectedResults, FixtureExpectedResult{
			VersionID: r.VersionID,
			Action:    string(r.Details.Decision.Action),
		})
	}
	return f
}

// Save writes the fixture as indented JSON.
func (f *Fixture) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToRuns converts fixture runs to domain runs.
func (f *Fixture) ToRuns() []Run {
	runs := make([]Run, 0, len(f.Runs))
	for _, r := range f.Runs {
		runs = append(runs, Run{VersionID: r.VersionID, Trigger: r.Trigger, Details: r.Details})
	}
	return runs
}

// ToGateConfig converts a FixtureGateConfig to a domain GateConfig.
func (fc FixtureGateConfig) ToGateConfig() gate.GateConfig {
	return gate.GateConfig{
		MinAccuracy:   fc.MinAccuracy,
		MaxRegression: fc.MaxRegression,
	}
}

// Mismatches lists the expected results the replay disagrees with.
func (f *Fixture) Mismatches(results []ReplayResult) []string {
	got := make(map[string]string, len(results))
	for _, r := range results {
		got[r.VersionID] = string(r.Replayed.Action)
	}
	var out []string
	for _, want := range f.ExpectedResults {
		if got[want.VersionID] != want.Action {
			out = append(out, fmt.Sprintf("%s: expected %s, got %q", want.VersionID, want.Action, got[want.VersionID]))
		}
	}
	return out
}

// #endregion fixture-io
