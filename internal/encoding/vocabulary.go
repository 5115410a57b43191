package encoding

import (
	"fmt"
	"strings"
)

// #region vocabulary

// Vocabulary is the ordered entity and event alphabet that defines the
// encoding space. Reordering either list changes every index and therefore
// invalidates models and tensors built with the previous order.
type Vocabulary struct {
	entities []string
	events   []string

	entityIndex map[string]int
	eventIndex  map[string]int
}

// DefaultVocabulary returns the hiring-funnel alphabet: entities driver/us
// and events apply, wait, sms, email, hire.
func DefaultVocabulary() *Vocabulary {
	v, err := NewVocabulary(
		[]string{"driver", "us"},
		[]string{"apply", "wait", "sms", "email", "hire"},
	)
	if err != nil {
		panic(err)
	}
	return v
}

// NewVocabulary validates and copies the given lists.
func NewVocabulary(entities, events []string) (*Vocabulary, error) {
	entityIndex, err := indexNames("entity", entities)
	if err != nil {
		return nil, err
	}
	eventIndex, err := indexNames("event", events)
	if err != nil {
		return nil, err
	}
	return &Vocabulary{
		entities:    append([]string(nil), entities...),
		events:      append([]string(nil), events...),
		entityIndex: entityIndex,
		eventIndex:  eventIndex,
	}, nil
}

func indexNames(kind string, names []string) (map[string]int, error) {
	if len(names) == 0 {
		return nil, invalidVocabf("no %s names", kind)
	}
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, invalidVocabf("empty %s name at position %d", kind, i)
		}
		if strings.ContainsAny(n, StepDelimiter+FieldDelimiter) {
			return nil, invalidVocabf("%s name %q contains a delimiter", kind, n)
		}
		if _, dup := idx[n]; dup {
			return nil, invalidVocabf("duplicate %s name %q", kind, n)
		}
		idx[n] = i
	}
	return idx, nil
}

func invalidVocabf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidVocabulary, fmt.Sprintf(format, args...))
}

// Entities returns a copy of the ordered entity list.
func (v *Vocabulary) Entities() []string { return append([]string(nil), v.entities...) }

// Events returns a copy of the ordered event list.
func (v *Vocabulary) Events() []string { return append([]string(nil), v.events...) }

// FeatureLength is the one-hot width: |entities| * |events|.
func (v *Vocabulary) FeatureLength() int { return len(v.entities) * len(v.events) }

// Fingerprint identifies the vocabulary order. Two vocabularies with equal
// fingerprints produce identical encodings.
func (v *Vocabulary) Fingerprint() string {
	return strings.Join(v.entities, ",") + StepDelimiter + strings.Join(v.events, ",")
}

// #endregion vocabulary

// #region index

// Index returns entityIndex*|events| + eventIndex.
func (v *Vocabulary) Index(entity, event string) (int, error) {
	ei, ok := v.entityIndex[entity]
	if !ok {
		return 0, &TokenError{Kind: ErrUnknownToken, Token: Token{entity, event}.String(), Position: -1}
	}
	vi, ok := v.eventIndex[event]
	if !ok {
		return 0, &TokenError{Kind: ErrUnknownToken, Token: Token{entity, event}.String(), Position: -1}
	}
	return ei*len(v.events) + vi, nil
}

// TokenIndex is Index for a parsed token.
func (v *Vocabulary) TokenIndex(t Token) (int, error) {
	return v.Index(t.Entity, t.Event)
}

// #endregion index

// #region decode

// Decode maps a class index back to its token. It is the exact inverse of
// Index over [0, FeatureLength).
func (v *Vocabulary) Decode(classIndex int) (Token, error) {
	if classIndex < 0 || classIndex >= v.FeatureLength() {
		return Token{}, &IndexError{Index: classIndex, Limit: v.FeatureLength()}
	}
	return Token{
		Entity: v.entities[classIndex/len(v.events)],
		Event:  v.events[classIndex%len(v.events)],
	}, nil
}

// Tokens lists every token in index order.
func (v *Vocabulary) Tokens() []Token {
	out := make([]Token, 0, v.FeatureLength())
	for _, e := range v.entities {
		for _, ev := range v.events {
			out = append(out, Token{Entity: e, Event: ev})
		}
	}
	return out
}

// #endregion decode
