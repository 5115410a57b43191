package encoding

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region helpers

func oneHot(n, idx int) []float32 {
	v := make([]float32, n)
	v[idx] = 1
	return v
}

// #endregion helpers

// #region vocabulary-tests

func TestDefaultVocabulary(t *testing.T) {
	v := DefaultVocabulary()
	assert.Equal(t, 10, v.FeatureLength())
	assert.Equal(t, []string{"driver", "us"}, v.Entities())
	assert.Equal(t, []string{"apply", "wait", "sms", "email", "hire"}, v.Events())
}

func TestNewVocabulary_Rejects(t *testing.T) {
	cases := []struct {
		name     string
		entities []string
		events   []string
	}{
		{"no entities", nil, []string{"apply"}},
		{"no events", []string{"driver"}, nil},
		{"duplicate entity", []string{"driver", "driver"}, []string{"apply"}},
		{"duplicate event", []string{"driver"}, []string{"apply", "apply"}},
		{"empty name", []string{""}, []string{"apply"}},
		{"colon in name", []string{"dri:ver"}, []string{"apply"}},
		{"pipe in name", []string{"driver"}, []string{"ap|ply"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewVocabulary(tc.entities, tc.events)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidVocabulary)
		})
	}
}

func TestVocabulary_IsolatedFromCallerSlices(t *testing.T) {
	entities := []string{"driver", "us"}
	v, err := NewVocabulary(entities, []string{"apply"})
	require.NoError(t, err)

	entities[0] = "changed"
	v.Entities()[1] = "changed"

	assert.Equal(t, []string{"driver", "us"}, v.Entities())
}

func TestIndex(t *testing.T) {
	v := DefaultVocabulary()

	idx, err := v.Index("driver", "apply")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = v.Index("us", "sms")
	require.NoError(t, err)
	assert.Equal(t, 7, idx)

	idx, err = v.Index("us", "hire")
	require.NoError(t, err)
	assert.Equal(t, 9, idx)

	_, err = v.Index("recruiter", "apply")
	assert.ErrorIs(t, err, ErrUnknownToken)
	_, err = v.Index("driver", "call")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestDecode_RoundTrip(t *testing.T) {
	v, err := NewVocabulary([]string{"a", "b", "c"}, []string{"x", "y"})
	require.NoError(t, err)

	for _, e := range v.Entities() {
		for _, ev := range v.Events() {
			idx, err := v.Index(e, ev)
			require.NoError(t, err)
			tok, err := v.Decode(idx)
			require.NoError(t, err)
			assert.Equal(t, Token{Entity: e, Event: ev}, tok)
		}
	}
}

func TestDecode_RangeCheck(t *testing.T) {
	v := DefaultVocabulary()

	for _, idx := range []int{-1, v.FeatureLength()} {
		_, err := v.Decode(idx)
		require.Error(t, err, "index %d", idx)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)

		var ie *IndexError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, idx, ie.Index)
		assert.Equal(t, 10, ie.Limit)
	}

	tok, err := v.Decode(v.FeatureLength() - 1)
	require.NoError(t, err)
	assert.Equal(t, "us:hire", tok.String())
}

func TestTokens_IndexOrder(t *testing.T) {
	v := DefaultVocabulary()
	toks := v.Tokens()
	require.Len(t, toks, v.FeatureLength())
	for i, tok := range toks {
		idx, err := v.TokenIndex(tok)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}
}

func TestFingerprint_OrderSensitive(t *testing.T) {
	a, _ := NewVocabulary([]string{"driver", "us"}, []string{"apply", "hire"})
	b, _ := NewVocabulary([]string{"us", "driver"}, []string{"apply", "hire"})
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	rebuilt, err := NewVocabulary(a.Entities(), a.Events())
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), rebuilt.Fingerprint())
}

// #endregion vocabulary-tests

// #region encoder-tests

func TestEncode_OneHotPerStep(t *testing.T) {
	enc := NewEncoder(DefaultVocabulary(), true)

	steps, err := enc.Encode("driver:apply|us:wait|us:sms")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, oneHot(10, 0), steps[0])
	assert.Equal(t, oneHot(10, 6), steps[1])
	assert.Equal(t, oneHot(10, 7), steps[2])
}

func TestEncode_EmptySequence(t *testing.T) {
	enc := NewEncoder(DefaultVocabulary(), true)

	steps, err := enc.Encode("")
	require.NoError(t, err)
	assert.Empty(t, steps)

	tensor, err := enc.EncodeSequence("", 5, LayoutStepwise)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 10}, tensor.Shape)
	assert.Equal(t, make([]float32, 50), tensor.Data)
}

func TestEncode_Deterministic(t *testing.T) {
	enc := NewEncoder(DefaultVocabulary(), false)
	seq := "driver:apply|us:sms|us:email|driver:hire"

	a, err := enc.Encode(seq)
	require.NoError(t, err)
	b, err := enc.Encode(seq)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncode_UnknownTokenStrict(t *testing.T) {
	enc := NewEncoder(DefaultVocabulary(), true)

	_, err := enc.Encode("driver:apply|us:call|driver:hire")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownToken)

	var te *TokenError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "us:call", te.Token)
	assert.Equal(t, 1, te.Position)
	assert.Contains(t, err.Error(), "position 1")
}

func TestEncode_UnknownTokenLenient(t *testing.T) {
	enc := NewEncoder(DefaultVocabulary(), false)

	steps, err := enc.Encode("driver:apply|recruiter:sms")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, make([]float32, 10), steps[1])
}

func TestEncode_MalformedAlwaysFails(t *testing.T) {
	for _, strict := range []bool{true, false} {
		enc := NewEncoder(DefaultVocabulary(), strict)

		_, err := enc.Encode("driver:apply|driverapply")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedToken)

		var te *TokenError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "driverapply", te.Token)
		assert.Equal(t, 1, te.Position)

		// an empty token between two pipes has no colon either
		_, err = enc.Encode("driver:apply||us:sms")
		assert.ErrorIs(t, err, ErrMalformedToken)
	}
}

func TestEncodeToken(t *testing.T) {
	enc := NewEncoder(DefaultVocabulary(), true)

	vec, err := enc.EncodeToken("driver:hire")
	require.NoError(t, err)
	assert.Equal(t, oneHot(10, 4), vec)

	_, err = enc.EncodeToken("hire")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestParseToken_SplitsOnFirstColon(t *testing.T) {
	tok, err := ParseToken("driver:a:b")
	require.NoError(t, err)
	assert.Equal(t, Token{Entity: "driver", Event: "a:b"}, tok)
}

func TestJoinSequence_InverseOfSplit(t *testing.T) {
	seq := "driver:apply|us:sms|driver:hire"
	var toks []Token
	for _, raw := range SplitSequence(seq) {
		tok, err := ParseToken(raw)
		require.NoError(t, err)
		toks = append(toks, tok)
	}
	assert.Equal(t, seq, JoinSequence(toks))
}

// #endregion encoder-tests

// #region normalize-tests

func TestNormalize_ZeroPaddingStepwise(t *testing.T) {
	enc := NewEncoder(DefaultVocabulary(), true)

	tensor, err := enc.EncodeSequence("driver:apply", 5, LayoutStepwise)
	require.NoError(t, err)
	require.Equal(t, []int{5, 10}, tensor.Shape)

	assert.Equal(t, []float32{1, 0, 0, 0, 0, 0, 0, 0, 0, 0}, tensor.Row(0))
	for i := 1; i < 5; i++ {
		assert.Equal(t, make([]float32, 10), tensor.Row(i), "step %d", i)
	}
}

func TestNormalize_TruncatesWholeSteps(t *testing.T) {
	enc := NewEncoder(DefaultVocabulary(), true)
	seq := "driver:apply|us:wait|us:sms|us:email|driver:sms|driver:email|driver:hire"
	require.Len(t, SplitSequence(seq), 7)

	for _, layout := range []Layout{LayoutStepwise, LayoutFlattened} {
		tensor, err := enc.EncodeSequence(seq, 5, layout)
		require.NoError(t, err)
		require.Len(t, tensor.Data, 50)

		want := []int{0, 6, 7, 8, 2}
		for i, idx := range want {
			assert.Equal(t, oneHot(10, idx), tensor.Data[i*10:(i+1)*10], "layout %s step %d", layout, i)
		}
	}
}

func TestNormalize_ShapeInvariant(t *testing.T) {
	enc := NewEncoder(DefaultVocabulary(), true)
	tokens := []string{"driver:apply", "us:wait", "us:sms", "driver:email", "driver:hire"}

	for maxSteps := 0; maxSteps <= 7; maxSteps++ {
		for n := 0; n <= 9; n++ {
			parts := make([]string, n)
			for i := range parts {
				parts[i] = tokens[i%len(tokens)]
			}
			seq := strings.Join(parts, "|")

			step, err := enc.EncodeSequence(seq, maxSteps, LayoutStepwise)
			require.NoError(t, err)
			assert.Equal(t, []int{maxSteps, 10}, step.Shape)
			assert.Len(t, step.Data, maxSteps*10)

			flat, err := enc.EncodeSequence(seq, maxSteps, LayoutFlattened)
			require.NoError(t, err)
			assert.Equal(t, []int{maxSteps * 10}, flat.Shape)
			assert.Equal(t, step.Data, flat.Data)
		}
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	steps := [][]float32{oneHot(3, 0), oneHot(3, 1), oneHot(3, 2)}
	_, err := Normalize(steps, 3, 2, LayoutFlattened)
	require.NoError(t, err)
	assert.Len(t, steps, 3)
	assert.Equal(t, oneHot(3, 2), steps[2])
}

func TestNormalize_Errors(t *testing.T) {
	_, err := Normalize(nil, 10, -1, LayoutStepwise)
	assert.Error(t, err)

	_, err = Normalize(nil, 10, 5, Layout("cube"))
	assert.Error(t, err)

	_, err = Normalize([][]float32{make([]float32, 10), make([]float32, 9)}, 10, 5, LayoutStepwise)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	var se *ShapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Step)
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("stepwise")
	require.NoError(t, err)
	assert.Equal(t, LayoutStepwise, l)

	_, err = ParseLayout("3d")
	assert.Error(t, err)
}

// #endregion normalize-tests

// #region tensor-tests

func TestStackAndArgMax(t *testing.T) {
	a := Tensor{Shape: []int{3}, Data: []float32{0.1, 0.7, 0.2}}
	b := Tensor{Shape: []int{3}, Data: []float32{0.5, 0.5, 0.0}}

	batch, err := Stack([]Tensor{a, b}, []int{3})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, batch.Shape)
	assert.Equal(t, 2, batch.Rows())
	assert.Equal(t, 3, batch.RowSize())
	assert.Equal(t, []int{1, 0}, batch.ArgMax())

	_, err = Stack([]Tensor{a, {Shape: []int{2}, Data: []float32{1, 2}}}, []int{3})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestStack_Empty(t *testing.T) {
	batch, err := Stack(nil, []int{5, 10})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 5, 10}, batch.Shape)
	assert.Equal(t, 0, batch.Rows())
	assert.Empty(t, batch.Data)
}

// #endregion tensor-tests
