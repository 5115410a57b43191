package runlog

import (
	"time"

	"github.com/danielpatrickdp/eventseq/internal/gate"
)

// #region run-entry
// RunEntry is a single row in the training_runs table.
type RunEntry struct {
	VersionID   string
	TriggerType string // "train" | "train_new" | "add_example"
	DetailsJSON string
	Decision    string // "commit" | "reject"
	Reason      string
	CreatedAt   time.Time
}

// #endregion run-entry

// #region run-details
// RunDetails captures everything that fed the gate for one training run.
// Serialized as JSON into training_runs.details_json.
type RunDetails struct {
	ParentID string `json:"parent_id,omitempty"`
	Backend  string `json:"backend"`

	TrainExamples      int `json:"train_examples"`
	ValidationExamples int `json:"validation_examples"`
	SkippedExamples    int `json:"skipped_examples"`

	Epochs         int     `json:"epochs"`
	LearningRate   float64 `json:"learning_rate"`
	BatchSize      int     `json:"batch_size"`
	Seed           uint64  `json:"seed"`
	TrainLoss      float64 `json:"train_loss"`
	ValidationLoss float64 `json:"validation_loss"`

	ValidationAccuracy float64 `json:"validation_accuracy"`
	BaselineAccuracy   float64 `json:"baseline_accuracy,omitempty"`

	// Gate thresholds active at decision time
	Thresholds Thresholds `json:"thresholds"`

	// ForceRequested is set when the run was started with --force, whether
	// or not any veto fired.
	ForceRequested bool `json:"force_requested,omitempty"`

	// Gate output
	Decision gate.GateDecision `json:"decision"`
}

// Thresholds captures the gate config active at decision time.
type Thresholds struct {
	MinAccuracy   float64 `json:"min_accuracy"`
	MaxRegression float64 `json:"max_regression"`
}

// #endregion run-details
