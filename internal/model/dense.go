package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/danielpatrickdp/eventseq/internal/dataset"
	"github.com/danielpatrickdp/eventseq/internal/encoding"
	"github.com/danielpatrickdp/eventseq/internal/eval"
)

// #region dense
// Dense is a single fully connected layer over the flattened input row,
// with a sigmoid output for binary labels and softmax for next_event.
// Weights start at zero, so training is fully determined by the seed.
type Dense struct {
	spec Spec
	in   int
	out  int
	w    []float32 // out rows of in weights
	b    []float32
}

// NewDense creates an untrained dense model.
func NewDense(spec Spec) (*Dense, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	in, out := spec.InputSize(), spec.OutputWidth
	return &Dense{
		spec: cloneSpec(spec),
		in:   in,
		out:  out,
		w:    make([]float32, in*out),
		b:    make([]float32, out),
	}, nil
}

// RestoreDense rebuilds a dense model from a snapshot.
func RestoreDense(s Snapshot) (*Dense, error) {
	if s.Backend != BackendDense {
		return nil, fmt.Errorf("snapshot backend %q is not %q", s.Backend, BackendDense)
	}
	d, err := NewDense(s.Spec)
	if err != nil {
		return nil, err
	}
	if want := d.in*d.out + d.out; len(s.Weights) != want {
		return nil, fmt.Errorf("%w: snapshot has %d weights, want %d", encoding.ErrShapeMismatch, len(s.Weights), want)
	}
	copy(d.w, s.Weights[:d.in*d.out])
	copy(d.b, s.Weights[d.in*d.out:])
	return d, nil
}

func (d *Dense) Spec() Spec { return cloneSpec(d.spec) }

// Snapshot returns the weight matrix followed by the bias vector.
func (d *Dense) Snapshot() Snapshot {
	weights := make([]float32, 0, len(d.w)+len(d.b))
	weights = append(weights, d.w...)
	weights = append(weights, d.b...)
	return Snapshot{Backend: BackendDense, Spec: d.Spec(), Weights: weights}
}

// #endregion dense

// #region fit
// Fit runs mini-batch gradient descent. Cancellation is checked between
// epochs; on cancel the weights reflect the epochs already completed.
func (d *Dense) Fit(ctx context.Context, train, validation dataset.Batch, opts FitOptions) (FitResult, error) {
	if err := validateOptions(opts); err != nil {
		return FitResult{}, err
	}
	if train.Len() == 0 {
		return FitResult{}, errors.New("fit: empty training batch")
	}
	if err := d.spec.CheckBatch(train.Inputs, train.Outputs); err != nil {
		return FitResult{}, fmt.Errorf("fit: training batch: %w", err)
	}
	hasVal := validation.Len() > 0
	if hasVal {
		if err := d.spec.CheckBatch(validation.Inputs, validation.Outputs); err != nil {
			return FitResult{}, fmt.Errorf("fit: validation batch: %w", err)
		}
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	n := train.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	gw := make([]float64, len(d.w))
	gb := make([]float64, len(d.b))
	probs := make([]float64, d.out)

	var res FitResult
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		for start := 0; start < n; start += opts.BatchSize {
			end := min(start+opts.BatchSize, n)
			clear(gw)
			clear(gb)
			for _, idx := range order[start:end] {
				x := train.Inputs.Row(idx)
				y := train.Outputs.Row(idx)
				d.forward(x, probs)
				// sigmoid+BCE and softmax+CE share the gradient p - y
				for k := 0; k < d.out; k++ {
					g := probs[k] - float64(y[k])
					gb[k] += g
					row := gw[k*d.in : (k+1)*d.in]
					for j, xv := range x {
						if xv != 0 {
							row[j] += g * float64(xv)
						}
					}
				}
			}
			scale := opts.LearningRate / float64(end-start)
			for i := range d.w {
				d.w[i] -= float32(scale * gw[i])
			}
			for k := range d.b {
				d.b[k] -= float32(scale * gb[k])
			}
		}

		entry := EpochLog{Epoch: epoch, HasVal: hasVal}
		var err error
		if entry.Loss, err = d.loss(train); err != nil {
			return res, err
		}
		if hasVal {
			if entry.ValLoss, err = d.loss(validation); err != nil {
				return res, err
			}
		}
		res = FitResult{Epochs: epoch, Loss: entry.Loss, ValLoss: entry.ValLoss, HasVal: hasVal}
		if opts.OnEpochEnd != nil {
			opts.OnEpochEnd(entry)
		}
	}
	return res, nil
}

func (d *Dense) loss(b dataset.Batch) (float64, error) {
	pred := d.predict(b.Inputs)
	return eval.CrossEntropy(pred, b.Outputs, d.spec.Mode)
}

// #endregion fit

// #region predict
// Predict returns output probabilities of shape [n, OutputWidth].
func (d *Dense) Predict(ctx context.Context, inputs encoding.Tensor) (encoding.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return encoding.Tensor{}, err
	}
	if err := d.spec.CheckBatch(inputs, encoding.Tensor{}); err != nil {
		return encoding.Tensor{}, fmt.Errorf("predict: %w", err)
	}
	return d.predict(inputs), nil
}

func (d *Dense) predict(inputs encoding.Tensor) encoding.Tensor {
	n := inputs.Rows()
	out := encoding.Zeros(n, d.out)
	probs := make([]float64, d.out)
	for i := 0; i < n; i++ {
		d.forward(inputs.Row(i), probs)
		row := out.Row(i)
		for k, p := range probs {
			row[k] = float32(p)
		}
	}
	return out
}

// forward writes activations for one row into probs.
func (d *Dense) forward(x []float32, probs []float64) {
	for k := 0; k < d.out; k++ {
		z := float64(d.b[k])
		row := d.w[k*d.in : (k+1)*d.in]
		for j, xv := range x {
			if xv != 0 {
				z += float64(row[j]) * float64(xv)
			}
		}
		probs[k] = z
	}
	if d.spec.Mode == dataset.LabelBinary {
		probs[0] = sigmoid(probs[0])
		return
	}
	softmax(probs)
}

// #endregion predict

// #region helpers
func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func softmax(z []float64) {
	maxZ := math.Inf(-1)
	for _, v := range z {
		maxZ = math.Max(maxZ, v)
	}
	var sum float64
	for i, v := range z {
		z[i] = math.Exp(v - maxZ)
		sum += z[i]
	}
	for i := range z {
		z[i] /= sum
	}
}

func validateSpec(s Spec) error {
	if len(s.InputShape) == 0 || s.InputSize() <= 0 {
		return fmt.Errorf("model spec: input shape %v must be non-empty", s.InputShape)
	}
	switch s.Mode {
	case dataset.LabelBinary:
		if s.OutputWidth != 1 {
			return fmt.Errorf("model spec: binary output width must be 1, got %d", s.OutputWidth)
		}
	case dataset.LabelNextEvent:
		if s.OutputWidth < 1 {
			return fmt.Errorf("model spec: output width must be positive, got %d", s.OutputWidth)
		}
	default:
		return fmt.Errorf("model spec: unsupported label mode %q", s.Mode)
	}
	return nil
}

func validateOptions(o FitOptions) error {
	if o.Epochs < 1 {
		return fmt.Errorf("fit: epochs must be at least 1, got %d", o.Epochs)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("fit: batch size must be at least 1, got %d", o.BatchSize)
	}
	if o.LearningRate <= 0 {
		return fmt.Errorf("fit: learning rate must be positive, got %g", o.LearningRate)
	}
	return nil
}

func cloneSpec(s Spec) Spec {
	s.InputShape = append([]int(nil), s.InputShape...)
	return s
}

// #endregion helpers
