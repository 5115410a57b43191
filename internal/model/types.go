package model

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/eventseq/internal/dataset"
	"github.com/danielpatrickdp/eventseq/internal/encoding"
)

// #region backend
// Backend names a Model implementation.
type Backend string

const (
	BackendDense  Backend = "dense"
	BackendRemote Backend = "remote"
)

// #endregion backend

// #region spec

// Spec fixes a model's input and output geometry. A model only accepts
// batches whose per-row shapes match its spec.
type Spec struct {
	InputShape  []int             `json:"input_shape"`
	OutputWidth int               `json:"output_width"`
	Mode        dataset.LabelMode `json:"label_mode"`
}

// SpecFor derives the spec implied by a preprocessor.
func SpecFor(p *dataset.Preprocessor) Spec {
	return Spec{
		InputShape:  p.InputShape(),
		OutputWidth: p.OutputWidth(),
		Mode:        p.Mode,
	}
}

// InputSize is the number of scalars in one input row.
func (s Spec) InputSize() int {
	n := 1
	for _, d := range s.InputShape {
		n *= d
	}
	return n
}

// CheckBatch verifies inputs (and outputs, when non-empty) match the spec.
func (s Spec) CheckBatch(inputs, outputs encoding.Tensor) error {
	if inputs.RowSize() != s.InputSize() {
		return fmt.Errorf("%w: input rows have %d values, model expects %d", encoding.ErrShapeMismatch, inputs.RowSize(), s.InputSize())
	}
	if len(outputs.Shape) > 0 {
		if outputs.Rows() != inputs.Rows() {
			return fmt.Errorf("%w: %d input rows but %d output rows", encoding.ErrShapeMismatch, inputs.Rows(), outputs.Rows())
		}
		if outputs.RowSize() != s.OutputWidth {
			return fmt.Errorf("%w: output rows have %d values, model expects %d", encoding.ErrShapeMismatch, outputs.RowSize(), s.OutputWidth)
		}
	}
	return nil
}

// #endregion spec

// #region fit

// EpochLog is reported after every epoch.
type EpochLog struct {
	Epoch   int
	Loss    float64
	ValLoss float64
	HasVal  bool
}

// FitOptions controls one training call.
type FitOptions struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         uint64
	OnEpochEnd   func(EpochLog)
}

// FitResult summarizes a finished training call.
type FitResult struct {
	Epochs     int
	Loss       float64
	ValLoss    float64
	HasVal     bool
	Checkpoint string
}

// #endregion fit

// #region model

// Snapshot is everything needed to rebuild a trained model. Dense models
// carry their weights; remote models carry the service's checkpoint id.
type Snapshot struct {
	Backend    Backend
	Spec       Spec
	Weights    []float32
	Checkpoint string
}

// Model is a trainable classifier over encoded event sequences.
type Model interface {
	Spec() Spec
	Fit(ctx context.Context, train, validation dataset.Batch, opts FitOptions) (FitResult, error)
	// Predict returns one probability row per input row: [n, OutputWidth].
	Predict(ctx context.Context, inputs encoding.Tensor) (encoding.Tensor, error)
	Snapshot() Snapshot
}

// #endregion model
