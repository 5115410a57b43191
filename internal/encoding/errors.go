package encoding

import (
	"errors"
	"fmt"
)

// #region kinds
var (
	ErrInvalidVocabulary = errors.New("invalid vocabulary")
	ErrUnknownToken      = errors.New("unknown event token")
	ErrMalformedToken    = errors.New("malformed event token")
	ErrIndexOutOfRange   = errors.New("class index out of range")
	ErrShapeMismatch     = errors.New("shape mismatch")
)

// #endregion kinds

// #region token-error

// TokenError reports a token that could not be encoded. Position is the
// zero-based offset of the token in its sequence, or -1 for a lone token.
type TokenError struct {
	Kind     error
	Token    string
	Position int
}

func (e *TokenError) Error() string {
	if e == nil {
		return ""
	}
	if e.Position < 0 {
		return fmt.Sprintf("%s: %q", e.Kind.Error(), e.Token)
	}
	return fmt.Sprintf("%s: %q at position %d", e.Kind.Error(), e.Token, e.Position)
}

func (e *TokenError) Unwrap() error { return e.Kind }

// #endregion token-error

// #region index-error

// IndexError reports a class index outside [0, Limit).
type IndexError struct {
	Index int
	Limit int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: %d not in [0, %d)", ErrIndexOutOfRange.Error(), e.Index, e.Limit)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// #endregion index-error

// #region shape-error

// ShapeError reports a vector whose length disagrees with the configured
// feature length. Reaching it means a caller built step vectors by hand or
// the encoder itself is broken.
type ShapeError struct {
	Step int
	Got  int
	Want int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: step %d has length %d, want %d", ErrShapeMismatch.Error(), e.Step, e.Got, e.Want)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// #endregion shape-error
