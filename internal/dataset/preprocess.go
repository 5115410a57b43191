package dataset

import (
	"fmt"

	"github.com/danielpatrickdp/eventseq/internal/encoding"
)

// #region preprocessor

// Preprocessor turns records into a Batch using one encoder, step count,
// layout and label mode. It holds no mutable state and is safe for
// concurrent use.
type Preprocessor struct {
	Encoder  *encoding.Encoder
	MaxSteps int
	Layout   encoding.Layout
	Mode     LabelMode

	// SkipInvalid drops records that fail to encode and reports them in
	// Batch.Skipped instead of aborting on the first one.
	SkipInvalid bool
}

// InputShape is the per-record input tensor shape.
func (p *Preprocessor) InputShape() []int {
	return p.Layout.Shape(p.MaxSteps, p.Encoder.Vocab.FeatureLength())
}

// OutputWidth is the per-record output vector length.
func (p *Preprocessor) OutputWidth() int {
	return p.Mode.OutputWidth(p.Encoder.Vocab.FeatureLength())
}

// EncodeInput encodes and normalizes one input sequence.
func (p *Preprocessor) EncodeInput(seq string) (encoding.Tensor, error) {
	return p.Encoder.EncodeSequence(seq, p.MaxSteps, p.Layout)
}

// EncodeLabel returns the output vector for a record.
func (p *Preprocessor) EncodeLabel(r Record) ([]float32, error) {
	label, err := r.Label(p.Mode)
	if err != nil {
		return nil, err
	}
	switch l := label.(type) {
	case BinaryLabel:
		if l {
			return []float32{1}, nil
		}
		return []float32{0}, nil
	case NextEventLabel:
		return p.Encoder.EncodeToken(l.Token.String())
	default:
		return nil, fmt.Errorf("unsupported label %T", label)
	}
}

// Preprocess encodes every record. Inputs have shape [n, InputShape...] and
// outputs [n, OutputWidth]. records is not modified.
func (p *Preprocessor) Preprocess(records []Record) (Batch, error) {
	inShape := p.InputShape()
	outWidth := p.OutputWidth()

	inputs := make([]encoding.Tensor, 0, len(records))
	outputs := make([]encoding.Tensor, 0, len(records))
	var batch Batch

	for i, r := range records {
		in, out, err := p.encodeRecord(r)
		if err != nil {
			rerr := &RecordError{Index: i, Input: r.Input, Err: err}
			if !p.SkipInvalid {
				return Batch{}, rerr
			}
			batch.Skipped = append(batch.Skipped, rerr)
			continue
		}
		inputs = append(inputs, in)
		outputs = append(outputs, encoding.Tensor{Shape: []int{outWidth}, Data: out})
		batch.Source = append(batch.Source, i)
	}

	var err error
	if batch.Inputs, err = encoding.Stack(inputs, inShape); err != nil {
		return Batch{}, fmt.Errorf("stack inputs: %w", err)
	}
	if batch.Outputs, err = encoding.Stack(outputs, []int{outWidth}); err != nil {
		return Batch{}, fmt.Errorf("stack outputs: %w", err)
	}
	return batch, nil
}

func (p *Preprocessor) encodeRecord(r Record) (encoding.Tensor, []float32, error) {
	in, err := p.EncodeInput(r.Input)
	if err != nil {
		return encoding.Tensor{}, nil, err
	}
	out, err := p.EncodeLabel(r)
	if err != nil {
		return encoding.Tensor{}, nil, err
	}
	return in, out, nil
}

// #endregion preprocessor
