package dataset

import (
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/eventseq/internal/encoding"
)

// #region label-mode

// LabelMode selects how a record's output is interpreted. It is part of the
// model configuration and never inferred from the data.
type LabelMode string

const (
	LabelBinary    LabelMode = "binary"     // 0/1 hire outcome, output shape [n, 1]
	LabelNextEvent LabelMode = "next_event" // one-hot next token, output shape [n, F]
)

// ParseLabelMode accepts "binary" or "next_event".
func ParseLabelMode(s string) (LabelMode, error) {
	switch LabelMode(s) {
	case LabelBinary, LabelNextEvent:
		return LabelMode(s), nil
	default:
		return "", fmt.Errorf("unknown label mode %q (want %q or %q)", s, LabelBinary, LabelNextEvent)
	}
}

// OutputWidth is the per-record output vector length for this mode.
func (m LabelMode) OutputWidth(featureLength int) int {
	if m == LabelBinary {
		return 1
	}
	return featureLength
}

// #endregion label-mode

// #region label

// Label is either a BinaryLabel or a NextEventLabel.
type Label interface {
	Mode() LabelMode
}

// BinaryLabel reports whether the case ended in a hire.
type BinaryLabel bool

func (BinaryLabel) Mode() LabelMode { return LabelBinary }

// NextEventLabel is the event that followed the input sequence.
type NextEventLabel struct {
	Token encoding.Token
}

func (NextEventLabel) Mode() LabelMode { return LabelNextEvent }

// #endregion label

// #region record

// Record is one persisted example: {"input": "a:e|a:e", "output": 0|1|"a:e"}.
// Output is kept raw so a collection round-trips byte-for-byte regardless of
// the label mode it is later read with.
type Record struct {
	Input  string          `json:"input"`
	Output json.RawMessage `json:"output"`
}

// NewBinaryRecord builds a record with a 0/1 output.
func NewBinaryRecord(input string, hired bool) Record {
	out := json.RawMessage("0")
	if hired {
		out = json.RawMessage("1")
	}
	return Record{Input: input, Output: out}
}

// NewNextEventRecord builds a record whose output is a single token.
func NewNextEventRecord(input string, next encoding.Token) Record {
	out, _ := json.Marshal(next.String())
	return Record{Input: input, Output: out}
}

// Label decodes Output according to mode.
func (r Record) Label(mode LabelMode) (Label, error) {
	switch mode {
	case LabelBinary:
		var n float64
		if err := json.Unmarshal(r.Output, &n); err != nil {
			return nil, fmt.Errorf("binary output %s: want 0 or 1", string(r.Output))
		}
		switch n {
		case 0:
			return BinaryLabel(false), nil
		case 1:
			return BinaryLabel(true), nil
		}
		return nil, fmt.Errorf("binary output %s: want 0 or 1", string(r.Output))
	case LabelNextEvent:
		var s string
		if err := json.Unmarshal(r.Output, &s); err != nil {
			return nil, fmt.Errorf("next_event output %s: want an entity:event string", string(r.Output))
		}
		tok, err := encoding.ParseToken(s)
		if err != nil {
			return nil, err
		}
		return NextEventLabel{Token: tok}, nil
	default:
		return nil, fmt.Errorf("unknown label mode %q", mode)
	}
}

// #endregion record

// #region batch

// RecordError ties an encoding failure to the record that caused it.
type RecordError struct {
	Index int
	Input string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%q): %v", e.Index, e.Input, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Batch is a model-ready pair of tensors. Row i of Inputs corresponds to
// row i of Outputs. Skipped lists records left out by a lenient
// preprocessor; Source maps each row back to its record index.
type Batch struct {
	Inputs  encoding.Tensor
	Outputs encoding.Tensor
	Source  []int
	Skipped []*RecordError
}

// Len is the number of rows.
func (b Batch) Len() int { return b.Inputs.Rows() }

// #endregion batch
