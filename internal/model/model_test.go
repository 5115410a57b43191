package model

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/eventseq/internal/dataset"
	"github.com/danielpatrickdp/eventseq/internal/encoding"
	"github.com/danielpatrickdp/eventseq/internal/eval"
)

func preprocessor(mode dataset.LabelMode, layout encoding.Layout) *dataset.Preprocessor {
	return &dataset.Preprocessor{
		Encoder:  encoding.NewEncoder(encoding.DefaultVocabulary(), true),
		MaxSteps: 5,
		Layout:   layout,
		Mode:     mode,
	}
}

func nextEventBatch(t *testing.T, p *dataset.Preprocessor) dataset.Batch {
	t.Helper()
	records := []dataset.Record{
		dataset.NewNextEventRecord("driver:apply", encoding.Token{Entity: "us", Event: "sms"}),
		dataset.NewNextEventRecord("driver:apply|us:sms", encoding.Token{Entity: "driver", Event: "wait"}),
		dataset.NewNextEventRecord("us:email", encoding.Token{Entity: "driver", Event: "hire"}),
		dataset.NewNextEventRecord("driver:wait|us:wait", encoding.Token{Entity: "us", Event: "email"}),
	}
	b, err := p.Preprocess(records)
	require.NoError(t, err)
	return b
}

func binaryBatch(t *testing.T, p *dataset.Preprocessor) dataset.Batch {
	t.Helper()
	records := []dataset.Record{
		dataset.NewBinaryRecord("driver:apply|driver:hire", true),
		dataset.NewBinaryRecord("driver:wait|us:sms|driver:hire", true),
		dataset.NewBinaryRecord("driver:apply", false),
		dataset.NewBinaryRecord("driver:apply|us:email", false),
	}
	b, err := p.Preprocess(records)
	require.NoError(t, err)
	return b
}

func fitOptions() FitOptions {
	return FitOptions{Epochs: 300, BatchSize: 2, LearningRate: 0.5, Seed: 7}
}

func TestDense_LearnsNextEvent(t *testing.T) {
	p := preprocessor(dataset.LabelNextEvent, encoding.LayoutFlattened)
	batch := nextEventBatch(t, p)
	m, err := NewDense(SpecFor(p))
	require.NoError(t, err)

	res, err := m.Fit(context.Background(), batch, dataset.Batch{}, fitOptions())
	require.NoError(t, err)
	assert.Equal(t, 300, res.Epochs)
	assert.False(t, res.HasVal)

	pred, err := m.Predict(context.Background(), batch.Inputs)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 10}, pred.Shape)

	acc, err := eval.NewEvalHarness(eval.DefaultEvalConfig()).Accuracy(pred, batch.Outputs, dataset.LabelNextEvent)
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)

	for i := 0; i < pred.Rows(); i++ {
		var sum float64
		for _, v := range pred.Row(i) {
			sum += float64(v)
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
}

func TestDense_LearnsBinaryStepwise(t *testing.T) {
	p := preprocessor(dataset.LabelBinary, encoding.LayoutStepwise)
	batch := binaryBatch(t, p)
	m, err := NewDense(SpecFor(p))
	require.NoError(t, err)

	_, err = m.Fit(context.Background(), batch, batch, fitOptions())
	require.NoError(t, err)

	pred, err := m.Predict(context.Background(), batch.Inputs)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 1}, pred.Shape)
	assert.Greater(t, pred.Row(0)[0], float32(0.5))
	assert.Less(t, pred.Row(2)[0], float32(0.5))
}

func TestDense_UntrainedNextEventIsUniform(t *testing.T) {
	p := preprocessor(dataset.LabelNextEvent, encoding.LayoutFlattened)
	m, err := NewDense(SpecFor(p))
	require.NoError(t, err)

	in, err := p.EncodeInput("driver:apply")
	require.NoError(t, err)
	batch, err := encoding.Stack([]encoding.Tensor{in}, p.InputShape())
	require.NoError(t, err)

	pred, err := m.Predict(context.Background(), batch)
	require.NoError(t, err)
	for _, v := range pred.Data {
		assert.InDelta(t, 0.1, v, 1e-6)
	}
}

func TestDense_EpochCallbackAndLossDecreases(t *testing.T) {
	p := preprocessor(dataset.LabelNextEvent, encoding.LayoutFlattened)
	batch := nextEventBatch(t, p)
	m, err := NewDense(SpecFor(p))
	require.NoError(t, err)

	var logs []EpochLog
	opts := fitOptions()
	opts.Epochs = 20
	opts.OnEpochEnd = func(l EpochLog) { logs = append(logs, l) }

	res, err := m.Fit(context.Background(), batch, batch, opts)
	require.NoError(t, err)

	require.Len(t, logs, 20)
	assert.Equal(t, 1, logs[0].Epoch)
	assert.True(t, logs[0].HasVal)
	assert.Less(t, logs[19].Loss, logs[0].Loss)
	assert.Equal(t, logs[19].Loss, res.Loss)
	assert.InDelta(t, res.Loss, res.ValLoss, 1e-12)
}

func TestDense_SameSeedSameWeights(t *testing.T) {
	p := preprocessor(dataset.LabelNextEvent, encoding.LayoutFlattened)
	batch := nextEventBatch(t, p)

	train := func(seed uint64) []float32 {
		m, err := NewDense(SpecFor(p))
		require.NoError(t, err)
		opts := fitOptions()
		opts.Epochs = 10
		opts.BatchSize = 1
		opts.Seed = seed
		_, err = m.Fit(context.Background(), batch, dataset.Batch{}, opts)
		require.NoError(t, err)
		return m.Snapshot().Weights
	}

	assert.Equal(t, train(3), train(3))
	assert.NotEqual(t, train(3), train(4))
}

func TestDense_SnapshotRestore(t *testing.T) {
	p := preprocessor(dataset.LabelNextEvent, encoding.LayoutFlattened)
	batch := nextEventBatch(t, p)
	m, err := NewDense(SpecFor(p))
	require.NoError(t, err)
	opts := fitOptions()
	opts.Epochs = 5
	_, err = m.Fit(context.Background(), batch, dataset.Batch{}, opts)
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, BackendDense, snap.Backend)
	assert.Len(t, snap.Weights, 50*10+10)

	restored, err := Restore(snap, Options{})
	require.NoError(t, err)

	want, err := m.Predict(context.Background(), batch.Inputs)
	require.NoError(t, err)
	got, err := restored.Predict(context.Background(), batch.Inputs)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	snap.Weights = snap.Weights[:10]
	_, err = RestoreDense(snap)
	assert.ErrorIs(t, err, encoding.ErrShapeMismatch)
}

func TestDense_ShapeMismatch(t *testing.T) {
	p := preprocessor(dataset.LabelNextEvent, encoding.LayoutFlattened)
	m, err := NewDense(SpecFor(p))
	require.NoError(t, err)

	_, err = m.Predict(context.Background(), encoding.Zeros(2, 7))
	assert.ErrorIs(t, err, encoding.ErrShapeMismatch)

	other := preprocessor(dataset.LabelBinary, encoding.LayoutFlattened)
	_, err = m.Fit(context.Background(), binaryBatch(t, other), dataset.Batch{}, fitOptions())
	assert.ErrorIs(t, err, encoding.ErrShapeMismatch)
}

func TestDense_FitRejectsBadInput(t *testing.T) {
	p := preprocessor(dataset.LabelNextEvent, encoding.LayoutFlattened)
	m, err := NewDense(SpecFor(p))
	require.NoError(t, err)

	_, err = m.Fit(context.Background(), dataset.Batch{}, dataset.Batch{}, fitOptions())
	assert.Error(t, err)

	bad := fitOptions()
	bad.LearningRate = 0
	_, err = m.Fit(context.Background(), nextEventBatch(t, p), dataset.Batch{}, bad)
	assert.Error(t, err)
}

func TestDense_CancelledContext(t *testing.T) {
	p := preprocessor(dataset.LabelNextEvent, encoding.LayoutFlattened)
	m, err := NewDense(SpecFor(p))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Fit(ctx, nextEventBatch(t, p), dataset.Batch{}, fitOptions())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewDense_InvalidSpec(t *testing.T) {
	cases := []Spec{
		{InputShape: nil, OutputWidth: 10, Mode: dataset.LabelNextEvent},
		{InputShape: []int{50}, OutputWidth: 10, Mode: dataset.LabelBinary},
		{InputShape: []int{50}, OutputWidth: 0, Mode: dataset.LabelNextEvent},
		{InputShape: []int{50}, OutputWidth: 1, Mode: "regression"},
	}
	for _, s := range cases {
		_, err := NewDense(s)
		assert.Error(t, err, "%+v", s)
	}
}

func TestSoftmaxStable(t *testing.T) {
	z := []float64{1000, 1000}
	softmax(z)
	assert.InDelta(t, 0.5, z[0], 1e-12)
	assert.False(t, math.IsNaN(z[1]))
}
