package dataset

import (
	"fmt"
	"math/rand/v2"

	"github.com/danielpatrickdp/eventseq/internal/encoding"
)

// #region rules

// Rules constrain generated sequences. A nil Allow permits every token; a
// nil Stop never ends a sequence early.
type Rules struct {
	Allow func(step int, tok encoding.Token) bool
	Stop  func(tok encoding.Token) bool
}

// HiringFunnel reproduces the synthetic driver funnel: a driver never
// starts with hire and only waits as a first event, "us" never applies or
// hires, and a sequence ends at driver:hire.
func HiringFunnel() Rules {
	return Rules{
		Allow: func(step int, tok encoding.Token) bool {
			switch tok.Entity {
			case "driver":
				if step == 0 {
					return tok.Event != "hire"
				}
				return tok.Event != "wait"
			case "us":
				return tok.Event != "apply" && tok.Event != "hire"
			}
			return true
		},
		Stop: func(tok encoding.Token) bool {
			return tok.Entity == "driver" && tok.Event == "hire"
		},
	}
}

// #endregion rules

// #region generator

// Generator produces random labeled records over a vocabulary.
type Generator struct {
	Vocab     *encoding.Vocabulary
	Rules     Rules
	Mode      LabelMode
	MaxLength int

	rng *rand.Rand
}

// NewGenerator seeds a generator; the same seed yields the same records.
func NewGenerator(vocab *encoding.Vocabulary, rules Rules, mode LabelMode, maxLength int, seed uint64) (*Generator, error) {
	if maxLength < 1 {
		return nil, fmt.Errorf("max length must be at least 1, got %d", maxLength)
	}
	if _, err := ParseLabelMode(string(mode)); err != nil {
		return nil, err
	}
	return &Generator{
		Vocab:     vocab,
		Rules:     rules,
		Mode:      mode,
		MaxLength: maxLength,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Rand exposes the generator's source so callers can shuffle reproducibly.
func (g *Generator) Rand() *rand.Rand { return g.rng }

// Generate returns n records. For next_event the output is an independent
// single-token sequence; for binary it is 1 when the input ends on a stop
// token.
func (g *Generator) Generate(n int) ([]Record, error) {
	if n < 0 {
		return nil, fmt.Errorf("record count must be non-negative, got %d", n)
	}
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		input, err := g.sequence(g.MaxLength)
		if err != nil {
			return nil, err
		}
		switch g.Mode {
		case LabelBinary:
			last := input[len(input)-1]
			hired := g.Rules.Stop != nil && g.Rules.Stop(last)
			records = append(records, NewBinaryRecord(encoding.JoinSequence(input), hired))
		default:
			next, err := g.sequence(1)
			if err != nil {
				return nil, err
			}
			records = append(records, NewNextEventRecord(encoding.JoinSequence(input), next[0]))
		}
	}
	return records, nil
}

// sequence draws 1..maxLength tokens.
func (g *Generator) sequence(maxLength int) ([]encoding.Token, error) {
	length := g.rng.IntN(maxLength) + 1
	seq := make([]encoding.Token, 0, length)
	for step := 0; step < length; step++ {
		tok, err := g.token(step)
		if err != nil {
			return nil, err
		}
		seq = append(seq, tok)
		if g.Rules.Stop != nil && g.Rules.Stop(tok) {
			break
		}
	}
	return seq, nil
}

// token picks a uniform entity, then a uniform allowed event for it.
// Entities with no allowed event at this step are not drawn.
func (g *Generator) token(step int) (encoding.Token, error) {
	var entities []string
	allowed := make(map[string][]string)
	for _, tok := range g.Vocab.Tokens() {
		if g.Rules.Allow != nil && !g.Rules.Allow(step, tok) {
			continue
		}
		if _, seen := allowed[tok.Entity]; !seen {
			entities = append(entities, tok.Entity)
		}
		allowed[tok.Entity] = append(allowed[tok.Entity], tok.Event)
	}
	if len(entities) == 0 {
		return encoding.Token{}, fmt.Errorf("rules allow no token at step %d", step)
	}
	ent := entities[g.rng.IntN(len(entities))]
	events := allowed[ent]
	return encoding.Token{Entity: ent, Event: events[g.rng.IntN(len(events))]}, nil
}

// #endregion generator
