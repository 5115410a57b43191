package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoEvalFailed  VetoType = "eval_failed"
	VetoMinAccuracy VetoType = "min_accuracy"
	VetoRegression  VetoType = "regression"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType `json:"type"`
	Reason string   `json:"reason"`
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for gate decisions.
type GateConfig struct {
	MinAccuracy   float64 // reject candidates below this validation accuracy
	MaxRegression float64 // reject candidates this far below the active version
}

// DefaultGateConfig accepts any finite candidate that does not lose more
// than five points of accuracy against the active version.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinAccuracy:   0,
		MaxRegression: 0.05,
	}
}

// #endregion gate-config

// #region baseline
// Baseline is the active version a candidate is compared against.
type Baseline struct {
	VersionID string
	Accuracy  float64
}

// #endregion baseline

// #region gate-decision
// Action is the gate outcome.
type Action string

const (
	ActionCommit Action = "commit"
	ActionReject Action = "reject"
)

// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      Action       `json:"action"`
	Reason      string       `json:"reason"`
	Vetoed      bool         `json:"vetoed"`
	Forced      bool         `json:"forced"`
	VetoSignals []VetoSignal `json:"veto_signals,omitempty"`
	Delta       float64      `json:"delta"` // candidate minus baseline accuracy
}

// #endregion gate-decision
