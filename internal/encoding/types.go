package encoding

import "fmt"

// #region delimiters
const (
	// StepDelimiter separates tokens in a serialized event sequence.
	StepDelimiter = "|"
	// FieldDelimiter separates entity from event inside a token.
	FieldDelimiter = ":"
)

// #endregion delimiters

// #region token

// Token is a single entity:event occurrence.
type Token struct {
	Entity string
	Event  string
}

func (t Token) String() string {
	return t.Entity + FieldDelimiter + t.Event
}

// #endregion token

// #region layout

// Layout selects the tensor shape produced for one sequence.
type Layout string

const (
	// LayoutFlattened concatenates all steps: [maxSteps*featureLength].
	LayoutFlattened Layout = "flattened"
	// LayoutStepwise keeps per-step vectors: [maxSteps, featureLength].
	LayoutStepwise Layout = "stepwise"
)

// ParseLayout accepts "flattened" or "stepwise".
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutFlattened, LayoutStepwise:
		return Layout(s), nil
	default:
		return "", fmt.Errorf("unknown layout %q (want %q or %q)", s, LayoutFlattened, LayoutStepwise)
	}
}

// Shape returns the per-sequence tensor shape for this layout.
func (l Layout) Shape(maxSteps, featureLength int) []int {
	if l == LayoutStepwise {
		return []int{maxSteps, featureLength}
	}
	return []int{maxSteps * featureLength}
}

// #endregion layout
