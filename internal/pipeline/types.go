package pipeline

import (
	"github.com/danielpatrickdp/eventseq/internal/dataset"
	"github.com/danielpatrickdp/eventseq/internal/encoding"
	"github.com/danielpatrickdp/eventseq/internal/eval"
	"github.com/danielpatrickdp/eventseq/internal/gate"
	"github.com/danielpatrickdp/eventseq/internal/model"
	"github.com/danielpatrickdp/eventseq/internal/registry"
)

// #region trigger
// Trigger records why a training run happened.
type Trigger string

const (
	TriggerTrain      Trigger = "train"
	TriggerTrainNew   Trigger = "train_new"
	TriggerAddExample Trigger = "add_example"
)

// #endregion trigger

// #region train-options
// TrainOptions controls one training run.
type TrainOptions struct {
	New     bool // start from fresh weights instead of the active version
	Force   bool // commit even if the gate vetoes
	Trigger Trigger
}

// #endregion train-options

// #region train-result
// TrainResult describes a finished training run. Version is saved whether
// or not it was committed.
type TrainResult struct {
	Version  registry.ModelVersion
	Fit      model.FitResult
	Eval     eval.EvalResult
	Decision gate.GateDecision
	Skipped  []*dataset.RecordError
}

// Committed reports whether the run's version became active.
func (r TrainResult) Committed() bool {
	return r.Decision.Action == gate.ActionCommit
}

// #endregion train-result

// #region prediction
// Prediction is the model's answer for one sequence.
type Prediction struct {
	VersionID     string            `json:"version_id"`
	Mode          dataset.LabelMode `json:"label_mode"`
	Label         string            `json:"label"`       // "entity:event" or "hire" / "not hire"
	Probability   float64           `json:"probability"` // of Label for next_event, of hire for binary
	Token         *encoding.Token   `json:"token,omitempty"`
	Probabilities []float32         `json:"probabilities"`
}

// #endregion prediction
