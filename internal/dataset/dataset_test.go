package dataset

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/eventseq/internal/encoding"
)

// #region helpers

func testPreprocessor(mode LabelMode, layout encoding.Layout) *Preprocessor {
	return &Preprocessor{
		Encoder:  encoding.NewEncoder(encoding.DefaultVocabulary(), true),
		MaxSteps: 5,
		Layout:   layout,
		Mode:     mode,
	}
}

func rec(input, output string) Record {
	return Record{Input: input, Output: json.RawMessage(output)}
}

func oneHot(n, idx int) []float32 {
	v := make([]float32, n)
	v[idx] = 1
	return v
}

// #endregion helpers

// #region label-tests

func TestRecordLabel_Binary(t *testing.T) {
	l, err := rec("driver:apply", "1").Label(LabelBinary)
	require.NoError(t, err)
	assert.Equal(t, BinaryLabel(true), l)

	l, err = rec("driver:apply", "0").Label(LabelBinary)
	require.NoError(t, err)
	assert.Equal(t, BinaryLabel(false), l)

	for _, bad := range []string{"2", `"1"`, "0.5", "true"} {
		_, err := rec("driver:apply", bad).Label(LabelBinary)
		assert.Error(t, err, bad)
	}
}

func TestRecordLabel_NextEvent(t *testing.T) {
	l, err := rec("driver:apply", `"us:sms"`).Label(LabelNextEvent)
	require.NoError(t, err)
	assert.Equal(t, NextEventLabel{Token: encoding.Token{Entity: "us", Event: "sms"}}, l)
	assert.Equal(t, LabelNextEvent, l.Mode())

	_, err = rec("driver:apply", "1").Label(LabelNextEvent)
	assert.Error(t, err)
	_, err = rec("driver:apply", `"sms"`).Label(LabelNextEvent)
	assert.ErrorIs(t, err, encoding.ErrMalformedToken)
}

func TestNewRecords_RoundTripJSON(t *testing.T) {
	b := NewBinaryRecord("driver:apply|driver:hire", true)
	n := NewNextEventRecord("driver:apply", encoding.Token{Entity: "us", Event: "wait"})

	data, err := json.Marshal([]Record{b, n})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"input":"driver:apply|driver:hire","output":1},{"input":"driver:apply","output":"us:wait"}]`, string(data))
}

func TestParseLabelMode(t *testing.T) {
	m, err := ParseLabelMode("next_event")
	require.NoError(t, err)
	assert.Equal(t, LabelNextEvent, m)
	assert.Equal(t, 10, m.OutputWidth(10))
	assert.Equal(t, 1, LabelBinary.OutputWidth(10))

	_, err = ParseLabelMode("nextEvent")
	assert.Error(t, err)
}

// #endregion label-tests

// #region preprocess-tests

func TestPreprocess_BatchAlignmentNextEvent(t *testing.T) {
	p := testPreprocessor(LabelNextEvent, encoding.LayoutFlattened)
	records := []Record{
		rec("driver:apply", `"driver:hire"`),
		rec("us:sms", `"us:email"`),
	}

	batch, err := p.Preprocess(records)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 50}, batch.Inputs.Shape)
	assert.Equal(t, []int{2, 10}, batch.Outputs.Shape)
	assert.Equal(t, oneHot(10, 4), batch.Outputs.Row(0))
	assert.Equal(t, oneHot(10, 8), batch.Outputs.Row(1))
	assert.Equal(t, oneHot(10, 0), batch.Inputs.Row(0)[:10])
	assert.Equal(t, oneHot(10, 7), batch.Inputs.Row(1)[:10])
	assert.Equal(t, []int{0, 1}, batch.Source)
	assert.Equal(t, 2, batch.Len())
}

func TestPreprocess_BinaryStepwise(t *testing.T) {
	p := testPreprocessor(LabelBinary, encoding.LayoutStepwise)
	records := []Record{
		rec("driver:apply|us:sms|driver:hire", "1"),
		rec("driver:apply", "0"),
		rec("", "0"),
	}

	batch, err := p.Preprocess(records)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 5, 10}, batch.Inputs.Shape)
	assert.Equal(t, []int{3, 1}, batch.Outputs.Shape)
	assert.Equal(t, []float32{1, 0, 0}, batch.Outputs.Data)
	assert.Equal(t, make([]float32, 50), batch.Inputs.Row(2))
}

func TestPreprocess_DoesNotMutateRecords(t *testing.T) {
	p := testPreprocessor(LabelBinary, encoding.LayoutFlattened)
	records := []Record{rec("driver:apply", "1")}
	before := records[0]

	_, err := p.Preprocess(records)
	require.NoError(t, err)
	assert.Equal(t, before, records[0])
}

func TestPreprocess_AbortsOnBadRecord(t *testing.T) {
	p := testPreprocessor(LabelNextEvent, encoding.LayoutFlattened)
	records := []Record{
		rec("driver:apply", `"driver:hire"`),
		rec("driver:apply|us:call", `"driver:hire"`),
	}

	_, err := p.Preprocess(records)
	require.Error(t, err)
	assert.ErrorIs(t, err, encoding.ErrUnknownToken)

	var re *RecordError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 1, re.Index)
}

func TestPreprocess_SkipInvalid(t *testing.T) {
	p := testPreprocessor(LabelNextEvent, encoding.LayoutFlattened)
	p.SkipInvalid = true
	records := []Record{
		rec("driverapply", `"driver:hire"`),
		rec("driver:apply", `"us:wait"`),
		rec("us:sms", `"nobody:wait"`),
	}

	batch, err := p.Preprocess(records)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())
	assert.Equal(t, []int{1}, batch.Source)
	require.Len(t, batch.Skipped, 2)
	assert.Equal(t, 0, batch.Skipped[0].Index)
	assert.ErrorIs(t, batch.Skipped[0], encoding.ErrMalformedToken)
	assert.Equal(t, 2, batch.Skipped[1].Index)
	assert.ErrorIs(t, batch.Skipped[1], encoding.ErrUnknownToken)
	assert.Equal(t, oneHot(10, 6), batch.Outputs.Row(0))
}

func TestPreprocess_Empty(t *testing.T) {
	p := testPreprocessor(LabelBinary, encoding.LayoutStepwise)
	batch, err := p.Preprocess(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Len())
	assert.Equal(t, []int{0, 5, 10}, batch.Inputs.Shape)
	assert.Equal(t, []int{0, 1}, batch.Outputs.Shape)
}

// #endregion preprocess-tests

// #region store-tests

func TestStore_SaveLoadAppend(t *testing.T) {
	s := NewStore(t.TempDir(), LabelBinary)

	require.NoError(t, s.Save(Train, []Record{rec("driver:apply", "0")}))
	n, err := s.Append(Train, NewBinaryRecord("driver:apply|driver:hire", true))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Load(Train)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "driver:apply|driver:hire", got[1].Input)

	raw, err := os.ReadFile(s.Path(Train))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "[\n  {\n    \"input\""), "expected two-space indented JSON, got %s", raw)
}

func TestStore_AppendCreatesMissingCollection(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "data"), LabelNextEvent)

	n, err := s.Append(Train, NewNextEventRecord("driver:apply", encoding.Token{Entity: "us", Event: "sms"}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_LoadRejectsSchemaViolations(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, LabelBinary)
	require.NoError(t, os.WriteFile(s.Path(Test), []byte(`[{"input":"driver:apply","output":3},{"output":1}]`), 0o644))

	_, err := s.Load(Test)
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.GreaterOrEqual(t, len(ve.Problems), 2)
}

func TestValidate_ModeSpecific(t *testing.T) {
	binary := []byte(`[{"input":"driver:apply","output":1}]`)
	next := []byte(`[{"input":"driver:apply","output":"driver:hire"}]`)

	assert.NoError(t, Validate(binary, LabelBinary))
	assert.Error(t, Validate(binary, LabelNextEvent))
	assert.NoError(t, Validate(next, LabelNextEvent))
	assert.Error(t, Validate(next, LabelBinary))
	assert.Error(t, Validate([]byte(`{"input":"x"}`), LabelBinary))
}

// #endregion store-tests

// #region split-tests

func TestSplit_FloorSizes(t *testing.T) {
	records := make([]Record, 10)
	for i := range records {
		records[i] = NewBinaryRecord("driver:apply", i%2 == 0)
	}

	sp, err := Split(records, 0.7, 0.15)
	require.NoError(t, err)
	assert.Len(t, sp.Train, 7)
	assert.Len(t, sp.Validation, 1)
	assert.Len(t, sp.Test, 2)

	_, err = Split(records, 0.9, 0.2)
	assert.Error(t, err)
}

func TestSaveSplits(t *testing.T) {
	s := NewStore(t.TempDir(), LabelBinary)
	sp := Splits{Train: []Record{rec("driver:apply", "1")}}
	require.NoError(t, s.SaveSplits(sp))

	for _, c := range []Collection{Train, Validation, Test} {
		_, err := s.Load(c)
		assert.NoError(t, err, c)
	}
}

// #endregion split-tests

// #region generator-tests

func TestGenerator_FunnelRules(t *testing.T) {
	vocab := encoding.DefaultVocabulary()
	g, err := NewGenerator(vocab, HiringFunnel(), LabelNextEvent, 10, 42)
	require.NoError(t, err)

	records, err := g.Generate(300)
	require.NoError(t, err)
	require.Len(t, records, 300)

	p := testPreprocessor(LabelNextEvent, encoding.LayoutFlattened)
	_, err = p.Preprocess(records)
	require.NoError(t, err, "generated records must encode under the default vocabulary")

	for _, r := range records {
		raw := encoding.SplitSequence(r.Input)
		require.NotEmpty(t, raw)
		require.LessOrEqual(t, len(raw), 10)
		for i, s := range raw {
			tok, err := encoding.ParseToken(s)
			require.NoError(t, err)
			if tok.Entity == "us" {
				assert.NotContains(t, []string{"apply", "hire"}, tok.Event, r.Input)
			}
			if tok.Entity == "driver" && i == 0 {
				assert.NotEqual(t, "hire", tok.Event, r.Input)
			}
			if tok.Entity == "driver" && i > 0 {
				assert.NotEqual(t, "wait", tok.Event, r.Input)
			}
			if tok.String() == "driver:hire" {
				assert.Equal(t, len(raw)-1, i, "sequence must stop at driver:hire: %s", r.Input)
			}
		}
	}
}

func TestGenerator_NegativeCount(t *testing.T) {
	g, err := NewGenerator(encoding.DefaultVocabulary(), HiringFunnel(), LabelNextEvent, 5, 1)
	require.NoError(t, err)

	_, err = g.Generate(-1)
	assert.Error(t, err)

	records, err := g.Generate(0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGenerator_Deterministic(t *testing.T) {
	vocab := encoding.DefaultVocabulary()
	a, _ := NewGenerator(vocab, HiringFunnel(), LabelBinary, 6, 7)
	b, _ := NewGenerator(vocab, HiringFunnel(), LabelBinary, 6, 7)

	ra, err := a.Generate(50)
	require.NoError(t, err)
	rb, err := b.Generate(50)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestGenerator_BinaryLabelsFollowStop(t *testing.T) {
	g, err := NewGenerator(encoding.DefaultVocabulary(), HiringFunnel(), LabelBinary, 10, 3)
	require.NoError(t, err)

	records, err := g.Generate(200)
	require.NoError(t, err)
	for _, r := range records {
		l, err := r.Label(LabelBinary)
		require.NoError(t, err)
		assert.Equal(t, strings.HasSuffix(r.Input, "driver:hire"), bool(l.(BinaryLabel)), r.Input)
	}
}

func TestGenerator_RulesAllowNothing(t *testing.T) {
	g, err := NewGenerator(encoding.DefaultVocabulary(), Rules{
		Allow: func(int, encoding.Token) bool { return false },
	}, LabelBinary, 3, 1)
	require.NoError(t, err)

	_, err = g.Generate(1)
	assert.Error(t, err)
}

func TestNewGenerator_Validates(t *testing.T) {
	_, err := NewGenerator(encoding.DefaultVocabulary(), Rules{}, LabelBinary, 0, 1)
	assert.Error(t, err)
	_, err = NewGenerator(encoding.DefaultVocabulary(), Rules{}, LabelMode("x"), 3, 1)
	assert.Error(t, err)
}

// #endregion generator-tests
