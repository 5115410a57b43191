package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/eventseq/internal/dataset"
	"github.com/danielpatrickdp/eventseq/internal/encoding"
)

// probability floor for log loss
const epsilon = 1e-7

// #region eval-harness
// EvalHarness scores model predictions against encoded labels.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run computes accuracy and mean cross-entropy for predictions of shape
// [n, width] against targets of the same shape. The result fails when the
// batch is empty or the loss is not finite.
func (h *EvalHarness) Run(pred, target encoding.Tensor, mode dataset.LabelMode) (EvalResult, error) {
	if err := checkPair(pred, target); err != nil {
		return EvalResult{}, err
	}
	n := pred.Rows()
	if n == 0 {
		return EvalResult{
			Passed: false,
			Reason: "eval failed: no examples",
		}, nil
	}

	acc, err := h.Accuracy(pred, target, mode)
	if err != nil {
		return EvalResult{}, err
	}
	loss, err := CrossEntropy(pred, target, mode)
	if err != nil {
		return EvalResult{}, err
	}

	finite := !math.IsNaN(loss) && !math.IsInf(loss, 0)
	metrics := []EvalMetric{
		{Name: "accuracy", Value: acc, Pass: true},
		{Name: "loss", Value: loss, Pass: finite},
		{Name: "count", Value: float64(n), Pass: true},
	}

	reason := "all checks passed"
	if !finite {
		reason = fmt.Sprintf("eval failed: loss is %v", loss)
	}
	return EvalResult{
		Passed:   finite,
		Count:    n,
		Accuracy: acc,
		Loss:     loss,
		Metrics:  metrics,
		Reason:   reason,
	}, nil
}

// Accuracy is the fraction of rows whose predicted class matches the label.
// next_event compares argmax positions; binary thresholds the single output.
func (h *EvalHarness) Accuracy(pred, target encoding.Tensor, mode dataset.LabelMode) (float64, error) {
	if err := checkPair(pred, target); err != nil {
		return 0, err
	}
	n := pred.Rows()
	if n == 0 {
		return 0, nil
	}
	correct := 0
	switch mode {
	case dataset.LabelBinary:
		for i := 0; i < n; i++ {
			p := float64(pred.Row(i)[0]) >= h.config.Threshold
			y := target.Row(i)[0] >= 0.5
			if p == y {
				correct++
			}
		}
	case dataset.LabelNextEvent:
		pa, ta := pred.ArgMax(), target.ArgMax()
		for i := range pa {
			if pa[i] == ta[i] {
				correct++
			}
		}
	default:
		return 0, fmt.Errorf("unsupported label mode %q", mode)
	}
	return float64(correct) / float64(n), nil
}

// #endregion eval-harness

// #region loss
// CrossEntropy is the mean per-row log loss: binary cross-entropy for
// binary mode, categorical cross-entropy for next_event. Probabilities are
// clipped to [epsilon, 1-epsilon].
func CrossEntropy(pred, target encoding.Tensor, mode dataset.LabelMode) (float64, error) {
	if err := checkPair(pred, target); err != nil {
		return 0, err
	}
	n := pred.Rows()
	if n == 0 {
		return 0, nil
	}
	var sum float64
	for i := 0; i < n; i++ {
		p, y := pred.Row(i), target.Row(i)
		switch mode {
		case dataset.LabelBinary:
			q := clip(float64(p[0]))
			t := float64(y[0])
			sum -= t*math.Log(q) + (1-t)*math.Log(1-q)
		case dataset.LabelNextEvent:
			for j := range p {
				if y[j] != 0 {
					sum -= float64(y[j]) * math.Log(clip(float64(p[j])))
				}
			}
		default:
			return 0, fmt.Errorf("unsupported label mode %q", mode)
		}
	}
	return sum / float64(n), nil
}

func clip(p float64) float64 {
	return math.Min(math.Max(p, epsilon), 1-epsilon)
}

// #endregion loss

// #region helpers
func checkPair(pred, target encoding.Tensor) error {
	if pred.Rows() != target.Rows() || pred.RowSize() != target.RowSize() {
		return fmt.Errorf("%w: predictions %v vs targets %v", encoding.ErrShapeMismatch, pred.Shape, target.Shape)
	}
	return nil
}

// #endregion helpers
