package dataset

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// #region schemas

const binarySchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["input", "output"],
		"properties": {
			"input":  {"type": "string"},
			"output": {"type": "number", "enum": [0, 1]}
		}
	}
}`

const nextEventSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["input", "output"],
		"properties": {
			"input":  {"type": "string"},
			"output": {"type": "string", "pattern": "^[^|:]+:[^|]+$"}
		}
	}
}`

func schemaFor(mode LabelMode) (gojsonschema.JSONLoader, error) {
	switch mode {
	case LabelBinary:
		return gojsonschema.NewStringLoader(binarySchema), nil
	case LabelNextEvent:
		return gojsonschema.NewStringLoader(nextEventSchema), nil
	default:
		return nil, fmt.Errorf("unknown label mode %q", mode)
	}
}

// #endregion schemas

// #region validate

// ValidationError lists every schema violation found in a collection.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid dataset: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid dataset: %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks raw collection JSON against the record schema for mode.
// It checks structure only; token names are checked by the encoder.
func Validate(data []byte, mode LabelMode) error {
	schema, err := schemaFor(mode)
	if err != nil {
		return err
	}
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate dataset: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		problems[i] = desc.String()
	}
	return &ValidationError{Problems: problems}
}

// #endregion validate
