package encoding

import "strings"

// #region parse

// ParseToken splits "entity:event" on the first colon. It does not check
// the names against a vocabulary.
func ParseToken(s string) (Token, error) {
	entity, event, ok := strings.Cut(s, FieldDelimiter)
	if !ok {
		return Token{}, &TokenError{Kind: ErrMalformedToken, Token: s, Position: -1}
	}
	return Token{Entity: entity, Event: event}, nil
}

// SplitSequence splits a serialized sequence into raw tokens. The empty
// string has no tokens.
func SplitSequence(seq string) []string {
	if seq == "" {
		return nil
	}
	return strings.Split(seq, StepDelimiter)
}

// JoinSequence is the inverse of SplitSequence for parsed tokens.
func JoinSequence(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, StepDelimiter)
}

// #endregion parse

// #region encoder

// Encoder one-hot encodes event sequences against a vocabulary.
//
// With Strict set, a token naming an entity or event outside the vocabulary
// fails with ErrUnknownToken. Without it such a token encodes as an all-zero
// vector. Malformed tokens (no colon) fail in both modes.
type Encoder struct {
	Vocab  *Vocabulary
	Strict bool
}

// NewEncoder returns an encoder over vocab.
func NewEncoder(vocab *Vocabulary, strict bool) *Encoder {
	return &Encoder{Vocab: vocab, Strict: strict}
}

// Encode returns one one-hot vector per token, in input order.
func (e *Encoder) Encode(seq string) ([][]float32, error) {
	raw := SplitSequence(seq)
	steps := make([][]float32, len(raw))
	for pos, tok := range raw {
		vec, err := e.encodeAt(tok, pos)
		if err != nil {
			return nil, err
		}
		steps[pos] = vec
	}
	return steps, nil
}

// EncodeToken one-hot encodes a single token, e.g. a next-event label.
func (e *Encoder) EncodeToken(tok string) ([]float32, error) {
	return e.encodeAt(tok, -1)
}

func (e *Encoder) encodeAt(raw string, pos int) ([]float32, error) {
	t, err := ParseToken(raw)
	if err != nil {
		return nil, &TokenError{Kind: ErrMalformedToken, Token: raw, Position: pos}
	}
	vec := make([]float32, e.Vocab.FeatureLength())
	idx, err := e.Vocab.TokenIndex(t)
	if err != nil {
		if e.Strict {
			return nil, &TokenError{Kind: ErrUnknownToken, Token: raw, Position: pos}
		}
		return vec, nil
	}
	vec[idx] = 1
	return vec, nil
}

// EncodeSequence encodes seq and normalizes it to the layout's shape.
func (e *Encoder) EncodeSequence(seq string, maxSteps int, layout Layout) (Tensor, error) {
	steps, err := e.Encode(seq)
	if err != nil {
		return Tensor{}, err
	}
	return Normalize(steps, e.Vocab.FeatureLength(), maxSteps, layout)
}

// #endregion encoder
