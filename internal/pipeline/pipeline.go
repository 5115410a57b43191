package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc"

	"github.com/danielpatrickdp/eventseq/internal/config"
	"github.com/danielpatrickdp/eventseq/internal/dataset"
	"github.com/danielpatrickdp/eventseq/internal/encoding"
	"github.com/danielpatrickdp/eventseq/internal/eval"
	"github.com/danielpatrickdp/eventseq/internal/gate"
	"github.com/danielpatrickdp/eventseq/internal/logger"
	"github.com/danielpatrickdp/eventseq/internal/metrics"
	"github.com/danielpatrickdp/eventseq/internal/model"
	"github.com/danielpatrickdp/eventseq/internal/registry"
	"github.com/danielpatrickdp/eventseq/internal/runlog"
)

// #region pipeline-struct

// Deps are the collaborators a Pipeline is built from.
type Deps struct {
	Config   *config.Config
	Registry *registry.Store
	Logger   logger.Logger
	Metrics  *metrics.Metrics
	// Conn overrides dialing model.remote_addr for the remote backend.
	Conn grpc.ClientConnInterface
}

// Pipeline runs dataset, training and inference operations against one
// configuration, dataset directory and model registry.
type Pipeline struct {
	cfg      *config.Config
	prep     *dataset.Preprocessor
	data     *dataset.Store
	registry *registry.Store
	backend  model.Backend
	models   model.Options
	harness  *eval.EvalHarness
	gate     *gate.Gate
	log      logger.Logger
	metrics  *metrics.Metrics
}

// #endregion pipeline-struct

// #region constructor

// New wires a pipeline. Logger and Metrics default to no-op instances.
func New(d Deps) (*Pipeline, error) {
	if d.Config == nil || d.Registry == nil {
		return nil, errors.New("pipeline: config and registry are required")
	}
	prep, err := d.Config.Preprocessor()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	log := d.Logger
	if log == nil {
		log = logger.NewNop()
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Pipeline{
		cfg:      d.Config,
		prep:     prep,
		data:     dataset.NewStore(d.Config.Dataset.Dir, prep.Mode),
		registry: d.Registry,
		backend:  model.Backend(d.Config.Model.Backend),
		models: model.Options{
			RemoteAddr:    d.Config.Model.RemoteAddr,
			RemoteTimeout: d.Config.Model.RemoteTimeout,
			Conn:          d.Conn,
		},
		harness: eval.NewEvalHarness(eval.DefaultEvalConfig()),
		gate: gate.NewGate(gate.GateConfig{
			MinAccuracy:   d.Config.Gate.MinAccuracy,
			MaxRegression: d.Config.Gate.MaxRegression,
		}),
		log:     log.With(map[string]interface{}{"label_mode": string(prep.Mode)}),
		metrics: m,
	}, nil
}

// Preprocessor exposes the configured preprocessor.
func (p *Pipeline) Preprocessor() *dataset.Preprocessor { return p.prep }

// Data exposes the dataset store.
func (p *Pipeline) Data() *dataset.Store { return p.data }

// #endregion constructor

// #region train

// Train fits a model on the train collection, scores it on validation,
// gates it against the active version and records the run. The version is
// saved either way; only a commit moves the active pointer.
func (p *Pipeline) Train(ctx context.Context, opts TrainOptions) (TrainResult, error) {
	if opts.Trigger == "" {
		opts.Trigger = TriggerTrain
		if opts.New {
			opts.Trigger = TriggerTrainNew
		}
	}
	log := p.log.With(map[string]interface{}{"trigger": string(opts.Trigger)})

	train, err := p.loadBatch(dataset.Train, true)
	if err != nil {
		return TrainResult{}, err
	}
	validation, err := p.loadBatch(dataset.Validation, false)
	if err != nil {
		return TrainResult{}, err
	}
	skipped := append(append([]*dataset.RecordError(nil), train.Skipped...), validation.Skipped...)

	m, parent, baseline, err := p.startingModel(opts.New)
	if err != nil {
		return TrainResult{}, err
	}
	defer closeModel(m)

	fitOpts := model.FitOptions{
		Epochs:       p.cfg.Training.Epochs,
		BatchSize:    p.cfg.Training.BatchSize,
		LearningRate: p.cfg.Training.LearningRate,
		Seed:         p.cfg.Training.Seed,
		OnEpochEnd: func(e model.EpochLog) {
			fields := map[string]interface{}{"epoch": e.Epoch, "loss": e.Loss}
			if e.HasVal {
				fields["val_loss"] = e.ValLoss
			}
			log.Debug("epoch finished", fields)
		},
	}

	log.Info("training started", map[string]interface{}{
		"backend":             string(p.backend),
		"parent_id":           parent,
		"train_examples":      train.Len(),
		"validation_examples": validation.Len(),
		"epochs":              fitOpts.Epochs,
	})
	start := time.Now()
	fit, err := m.Fit(ctx, train, validation, fitOpts)
	if err != nil {
		log.WithError(err).Error("fit failed", map[string]interface{}{"backend": string(p.backend)})
		return TrainResult{}, fmt.Errorf("fit: %w", err)
	}
	p.metrics.TrainingDuration.Observe(time.Since(start).Seconds())

	result, err := p.score(ctx, m, validation)
	if err != nil {
		return TrainResult{}, fmt.Errorf("validate: %w", err)
	}
	decision := p.gate.Evaluate(result, baseline, opts.Force)

	rec := registry.ModelVersion{
		ParentID: parent,
		Encoding: p.encodingInfo(),
		Snapshot: m.Snapshot(),
		Metrics: registry.VersionMetrics{
			Epochs:             fit.Epochs,
			TrainExamples:      train.Len(),
			ValidationExamples: validation.Len(),
			TrainLoss:          fit.Loss,
			ValidationLoss:     result.Loss,
			ValidationAccuracy: result.Accuracy,
		},
	}
	details := runlog.RunDetails{
		ParentID:           parent,
		Backend:            string(p.backend),
		TrainExamples:      train.Len(),
		ValidationExamples: validation.Len(),
		SkippedExamples:    len(skipped),
		Epochs:             fit.Epochs,
		LearningRate:       fitOpts.LearningRate,
		BatchSize:          fitOpts.BatchSize,
		Seed:               fitOpts.Seed,
		TrainLoss:          fit.Loss,
		ValidationLoss:     result.Loss,
		ValidationAccuracy: result.Accuracy,
		Thresholds: runlog.Thresholds{
			MinAccuracy:   p.cfg.Gate.MinAccuracy,
			MaxRegression: p.cfg.Gate.MaxRegression,
		},
		ForceRequested: opts.Force,
		Decision:       decision,
	}
	if baseline != nil {
		details.BaselineAccuracy = baseline.Accuracy
	}
	rec, err = p.registry.SaveVersionWithRun(rec, decision.Action == gate.ActionCommit,
		func(tx *sql.Tx, saved registry.ModelVersion) error {
			entry, err := runlog.NewEntry(saved.VersionID, string(opts.Trigger), details)
			if err != nil {
				return err
			}
			return runlog.LogRun(tx, entry)
		})
	if err != nil {
		return TrainResult{}, fmt.Errorf("save version: %w", err)
	}

	p.metrics.TrainingRuns.WithLabelValues(string(decision.Action)).Inc()
	p.metrics.ValidationAccuracy.Set(result.Accuracy)

	fields := map[string]interface{}{
		"version_id":          rec.VersionID,
		"decision":            string(decision.Action),
		"reason":              decision.Reason,
		"validation_accuracy": result.Accuracy,
		"validation_loss":     result.Loss,
	}
	if decision.Action == gate.ActionCommit {
		log.Info("version committed", fields)
	} else {
		log.Warn("version rejected", fields)
	}

	return TrainResult{
		Version:  rec,
		Fit:      fit,
		Eval:     result,
		Decision: decision,
		Skipped:  skipped,
	}, nil
}

// startingModel resumes the active version unless fresh is set. The active
// version is the gate baseline in both cases.
func (p *Pipeline) startingModel(fresh bool) (model.Model, string, *gate.Baseline, error) {
	spec := model.SpecFor(p.prep)
	active, err := p.registry.GetCurrent()
	switch {
	case errors.Is(err, registry.ErrNoActiveVersion):
		m, err := model.New(p.backend, spec, p.models)
		return m, "", nil, err
	case err != nil:
		return nil, "", nil, fmt.Errorf("load active version: %w", err)
	}

	baseline := &gate.Baseline{VersionID: active.VersionID, Accuracy: active.Metrics.ValidationAccuracy}
	if fresh {
		m, err := model.New(p.backend, spec, p.models)
		return m, "", baseline, err
	}
	if err := registry.CheckCompatible(active, p.encodingInfo()); err != nil {
		return nil, "", nil, fmt.Errorf("%w (train with --new to start over)", err)
	}
	if active.Snapshot.Backend != p.backend {
		return nil, "", nil, fmt.Errorf("%w: version %s uses backend %s, configured %s (train with --new to start over)",
			registry.ErrIncompatible, active.VersionID, active.Snapshot.Backend, p.backend)
	}
	m, err := model.Restore(active.Snapshot, p.models)
	if err != nil {
		return nil, "", nil, fmt.Errorf("restore version %s: %w", active.VersionID, err)
	}
	return m, active.VersionID, baseline, nil
}

// #endregion train

// #region add-example

// AddExample validates one labelled sequence, appends it to the train
// collection and retrains from the active version. The collection is left
// untouched when the example does not encode.
func (p *Pipeline) AddExample(ctx context.Context, seq, output string) (TrainResult, error) {
	rec, err := p.newRecord(seq, output)
	if err != nil {
		return TrainResult{}, err
	}
	if _, err := p.prep.EncodeInput(rec.Input); err != nil {
		return TrainResult{}, fmt.Errorf("input: %w", err)
	}
	if _, err := p.prep.EncodeLabel(rec); err != nil {
		return TrainResult{}, fmt.Errorf("output: %w", err)
	}

	n, err := p.data.Append(dataset.Train, rec)
	if err != nil {
		return TrainResult{}, err
	}
	p.log.Info("example added", map[string]interface{}{"input": seq, "output": output, "train_examples": n})

	return p.Train(ctx, TrainOptions{Trigger: TriggerAddExample})
}

func (p *Pipeline) newRecord(seq, output string) (dataset.Record, error) {
	switch p.prep.Mode {
	case dataset.LabelBinary:
		switch output {
		case "0":
			return dataset.NewBinaryRecord(seq, false), nil
		case "1":
			return dataset.NewBinaryRecord(seq, true), nil
		}
		return dataset.Record{}, fmt.Errorf("output %q: binary labels are 0 or 1", output)
	default:
		tok, err := encoding.ParseToken(output)
		if err != nil {
			return dataset.Record{}, fmt.Errorf("output: %w", err)
		}
		return dataset.NewNextEventRecord(seq, tok), nil
	}
}

// #endregion add-example

// #region predict

// Predict runs the active version on one sequence.
func (p *Pipeline) Predict(ctx context.Context, seq string) (Prediction, error) {
	in, err := p.prep.EncodeInput(seq)
	if err != nil {
		return Prediction{}, err
	}
	batch, err := encoding.Stack([]encoding.Tensor{in}, p.prep.InputShape())
	if err != nil {
		return Prediction{}, err
	}

	version, m, err := p.activeModel()
	if err != nil {
		return Prediction{}, err
	}
	defer closeModel(m)

	out, err := m.Predict(ctx, batch)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	probs := append([]float32(nil), out.Row(0)...)

	pred := Prediction{
		VersionID:     version.VersionID,
		Mode:          p.prep.Mode,
		Probabilities: probs,
	}
	switch p.prep.Mode {
	case dataset.LabelBinary:
		pred.Probability = float64(probs[0])
		pred.Label = "not hire"
		if pred.Probability >= eval.DefaultEvalConfig().Threshold {
			pred.Label = "hire"
		}
	default:
		best := out.ArgMax()[0]
		tok, err := p.prep.Encoder.Vocab.Decode(best)
		if err != nil {
			return Prediction{}, err
		}
		pred.Token = &tok
		pred.Label = tok.String()
		pred.Probability = float64(probs[best])
	}

	p.metrics.Predictions.WithLabelValues(string(p.prep.Mode)).Inc()
	p.log.Debug("prediction", map[string]interface{}{
		"version_id":  version.VersionID,
		"input":       seq,
		"label":       pred.Label,
		"probability": pred.Probability,
	})
	return pred, nil
}

// #endregion predict

// #region evaluate

// Evaluate scores the active version on the test collection.
func (p *Pipeline) Evaluate(ctx context.Context) (eval.EvalResult, error) {
	test, err := p.loadBatch(dataset.Test, true)
	if err != nil {
		return eval.EvalResult{}, err
	}
	version, m, err := p.activeModel()
	if err != nil {
		return eval.EvalResult{}, err
	}
	defer closeModel(m)

	result, err := p.score(ctx, m, test)
	if err != nil {
		return eval.EvalResult{}, err
	}
	p.metrics.TestAccuracy.Set(result.Accuracy)
	p.log.Info("test evaluation", map[string]interface{}{
		"version_id": version.VersionID,
		"accuracy":   result.Accuracy,
		"loss":       result.Loss,
		"examples":   result.Count,
	})
	return result, nil
}

// #endregion evaluate

// #region data-tools

// GenerateEvents writes n synthetic hiring-funnel records to the events
// collection.
func (p *Pipeline) GenerateEvents(n, maxLength int, seed uint64) ([]dataset.Record, error) {
	gen, err := dataset.NewGenerator(p.prep.Encoder.Vocab, dataset.HiringFunnel(), p.prep.Mode, maxLength, seed)
	if err != nil {
		return nil, err
	}
	records, err := gen.Generate(n)
	if err != nil {
		return nil, err
	}
	if err := p.data.Save(dataset.Events, records); err != nil {
		return nil, err
	}
	p.log.Info("events generated", map[string]interface{}{"records": len(records), "path": p.data.Path(dataset.Events)})
	return records, nil
}

// SplitEvents partitions the events collection into train, validation and
// test using the configured ratios, shuffling first when shuffle is set.
func (p *Pipeline) SplitEvents(shuffle bool, seed uint64) (dataset.Splits, error) {
	records, err := p.data.Load(dataset.Events)
	if err != nil {
		return dataset.Splits{}, err
	}
	if shuffle {
		records = dataset.Shuffle(records, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	}
	sp, err := dataset.Split(records, p.cfg.Dataset.TrainRatio, p.cfg.Dataset.ValidationRatio)
	if err != nil {
		return dataset.Splits{}, err
	}
	if err := p.data.SaveSplits(sp); err != nil {
		return dataset.Splits{}, err
	}
	p.log.Info("events split", map[string]interface{}{
		"train":      len(sp.Train),
		"validation": len(sp.Validation),
		"test":       len(sp.Test),
	})
	return sp, nil
}

// #endregion data-tools

// #region helpers

// loadBatch reads and preprocesses a collection. A missing optional
// collection yields an empty batch.
func (p *Pipeline) loadBatch(c dataset.Collection, required bool) (dataset.Batch, error) {
	records, err := p.data.Load(c)
	if err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return dataset.Batch{}, err
		}
		p.log.Warn("collection missing", map[string]interface{}{"collection": string(c), "path": p.data.Path(c)})
		records = nil
	}
	batch, err := p.prep.Preprocess(records)
	if err != nil {
		return dataset.Batch{}, fmt.Errorf("preprocess %s: %w", c, err)
	}
	p.metrics.RecordsEncoded.WithLabelValues(string(c)).Add(float64(batch.Len()))
	if n := len(batch.Skipped); n > 0 {
		p.metrics.RecordsSkipped.WithLabelValues(string(c)).Add(float64(n))
		for _, rerr := range batch.Skipped {
			p.log.Warn("record skipped", map[string]interface{}{
				"collection": string(c),
				"index":      rerr.Index,
				"error":      rerr.Err.Error(),
			})
		}
	}
	return batch, nil
}

func (p *Pipeline) score(ctx context.Context, m model.Model, b dataset.Batch) (eval.EvalResult, error) {
	if b.Len() == 0 {
		return eval.EvalResult{Reason: "eval failed: no examples"}, nil
	}
	pred, err := m.Predict(ctx, b.Inputs)
	if err != nil {
		return eval.EvalResult{}, err
	}
	return p.harness.Run(pred, b.Outputs, p.prep.Mode)
}

func (p *Pipeline) activeModel() (registry.ModelVersion, model.Model, error) {
	version, err := p.registry.GetCurrent()
	if err != nil {
		return registry.ModelVersion{}, nil, err
	}
	if err := registry.CheckCompatible(version, p.encodingInfo()); err != nil {
		return registry.ModelVersion{}, nil, err
	}
	m, err := model.Restore(version.Snapshot, p.models)
	if err != nil {
		return registry.ModelVersion{}, nil, fmt.Errorf("restore version %s: %w", version.VersionID, err)
	}
	return version, m, nil
}

func (p *Pipeline) encodingInfo() registry.EncodingInfo {
	vocab := p.prep.Encoder.Vocab
	return registry.EncodingInfo{
		Fingerprint: vocab.Fingerprint(),
		Entities:    vocab.Entities(),
		Events:      vocab.Events(),
		MaxSteps:    p.prep.MaxSteps,
		Layout:      string(p.prep.Layout),
		LabelMode:   string(p.prep.Mode),
	}
}

func closeModel(m model.Model) {
	if c, ok := m.(io.Closer); ok {
		c.Close()
	}
}

// #endregion helpers
