package gate

import (
	"fmt"

	"github.com/danielpatrickdp/eventseq/internal/eval"
)

// #region gate
// Gate decides whether a freshly trained version becomes active.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate checks the candidate's validation result against the configured
// floor and against the active version, if any. With force set, vetoes are
// still reported but the decision is commit.
func (g *Gate) Evaluate(candidate eval.EvalResult, baseline *Baseline, force bool) GateDecision {
	var vetoes []VetoSignal

	// 1. Validation itself must have produced a usable score
	if !candidate.Passed {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoEvalFailed,
			Reason: candidate.Reason,
		})
	}

	// 2. Absolute floor
	if candidate.Accuracy < g.config.MinAccuracy {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoMinAccuracy,
			Reason: fmt.Sprintf("accuracy %.4f below minimum %.4f", candidate.Accuracy, g.config.MinAccuracy),
		})
	}

	// 3. Regression against the active version
	var delta float64
	if baseline != nil {
		delta = candidate.Accuracy - baseline.Accuracy
		if -delta > g.config.MaxRegression {
			vetoes = append(vetoes, VetoSignal{
				Type: VetoRegression,
				Reason: fmt.Sprintf("accuracy %.4f regresses %.4f from active %s (%.4f), limit %.4f",
					candidate.Accuracy, -delta, baseline.VersionID, baseline.Accuracy, g.config.MaxRegression),
			})
		}
	}

	if len(vetoes) > 0 && !force {
		return GateDecision{
			Action:      ActionReject,
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			Delta:       delta,
		}
	}

	reason := fmt.Sprintf("passed gate: accuracy=%.4f delta=%+.4f", candidate.Accuracy, delta)
	if len(vetoes) > 0 {
		reason = fmt.Sprintf("forced past %d veto(es): %s", len(vetoes), vetoes[0].Reason)
	}
	return GateDecision{
		Action:      ActionCommit,
		Reason:      reason,
		Vetoed:      len(vetoes) > 0,
		Forced:      force && len(vetoes) > 0,
		VetoSignals: vetoes,
		Delta:       delta,
	}
}

// #endregion gate
