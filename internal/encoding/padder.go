package encoding

import "fmt"

// #region normalize

// Normalize fixes a step sequence to exactly maxSteps steps. Longer inputs
// keep their first maxSteps steps (trailing events are dropped); shorter
// inputs are padded with zero steps. Truncation happens on whole steps
// before flattening, so no step vector is ever cut in half.
//
// The result has shape [maxSteps, featureLength] for LayoutStepwise and
// [maxSteps*featureLength] for LayoutFlattened. steps is not modified.
func Normalize(steps [][]float32, featureLength, maxSteps int, layout Layout) (Tensor, error) {
	if maxSteps < 0 {
		return Tensor{}, fmt.Errorf("max steps must be non-negative, got %d", maxSteps)
	}
	if featureLength <= 0 {
		return Tensor{}, fmt.Errorf("feature length must be positive, got %d", featureLength)
	}
	if _, err := ParseLayout(string(layout)); err != nil {
		return Tensor{}, err
	}
	for i, s := range steps {
		if len(s) != featureLength {
			return Tensor{}, &ShapeError{Step: i, Got: len(s), Want: featureLength}
		}
	}

	kept := steps
	if len(kept) > maxSteps {
		kept = kept[:maxSteps]
	}

	out := Zeros(layout.Shape(maxSteps, featureLength)...)
	for i, s := range kept {
		copy(out.Data[i*featureLength:], s)
	}
	return out, nil
}

// #endregion normalize
