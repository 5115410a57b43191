package eval

// #region eval-config
// EvalConfig holds the decision rule used when scoring predictions.
type EvalConfig struct {
	Threshold float64 // binary: probability at or above this counts as positive
}

// DefaultEvalConfig returns the 0.5 decision threshold.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{Threshold: 0.5}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single scored quantity.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of scoring one batch of predictions.
type EvalResult struct {
	Passed   bool         `json:"passed"`
	Count    int          `json:"count"`
	Accuracy float64      `json:"accuracy"`
	Loss     float64      `json:"loss"`
	Metrics  []EvalMetric `json:"metrics"`
	Reason   string       `json:"reason"`
}

// #endregion eval-result
