package config

import (
	"time"

	"github.com/danielpatrickdp/eventseq/internal/dataset"
	"github.com/danielpatrickdp/eventseq/internal/encoding"
)

// #region config

// Config is the full runtime configuration.
type Config struct {
	Vocabulary VocabularyConfig `mapstructure:"vocabulary"`
	Encoding   EncodingConfig   `mapstructure:"encoding"`
	Dataset    DatasetConfig    `mapstructure:"dataset"`
	Model      ModelConfig      `mapstructure:"model"`
	Training   TrainingConfig   `mapstructure:"training"`
	Gate       GateConfig       `mapstructure:"gate"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type VocabularyConfig struct {
	Entities []string `mapstructure:"entities"`
	Events   []string `mapstructure:"events"`
}

// EncodingConfig controls sequence encoding. MaxSteps 0 is read as unset and
// resolves to the number of event types; a zero-step input carries no
// features, so there is no way to request it.
type EncodingConfig struct {
	MaxSteps int    `mapstructure:"max_steps"`
	Layout   string `mapstructure:"layout"`
	Strict   bool   `mapstructure:"strict"`
}

type DatasetConfig struct {
	Dir             string  `mapstructure:"dir"`
	LabelMode       string  `mapstructure:"label_mode"`
	TrainRatio      float64 `mapstructure:"train_ratio"`
	ValidationRatio float64 `mapstructure:"validation_ratio"`
	SkipInvalid     bool    `mapstructure:"skip_invalid"`
}

type ModelConfig struct {
	Backend       string        `mapstructure:"backend"` // "dense" | "remote"
	RemoteAddr    string        `mapstructure:"remote_addr"`
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`
}

type TrainingConfig struct {
	Epochs       int     `mapstructure:"epochs"`
	LearningRate float64 `mapstructure:"learning_rate"`
	BatchSize    int     `mapstructure:"batch_size"`
	Seed         uint64  `mapstructure:"seed"`
}

type GateConfig struct {
	MinAccuracy   float64 `mapstructure:"min_accuracy"`
	MaxRegression float64 `mapstructure:"max_regression"`
}

type RegistryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // prometheus textfile written after each command
}

// #endregion config

// #region derived

// Vocab builds the configured vocabulary.
func (c *Config) Vocab() (*encoding.Vocabulary, error) {
	return encoding.NewVocabulary(c.Vocabulary.Entities, c.Vocabulary.Events)
}

// Layout parses the configured tensor layout.
func (c *Config) Layout() (encoding.Layout, error) {
	return encoding.ParseLayout(c.Encoding.Layout)
}

// LabelMode parses the configured label mode.
func (c *Config) LabelMode() (dataset.LabelMode, error) {
	return dataset.ParseLabelMode(c.Dataset.LabelMode)
}

// MaxSteps resolves the step budget. An unset (zero) max_steps resolves to
// the number of event types.
func (c *Config) MaxSteps() int {
	if c.Encoding.MaxSteps > 0 {
		return c.Encoding.MaxSteps
	}
	return len(c.Vocabulary.Events)
}

// Preprocessor assembles the encoder and preprocessor described by c.
func (c *Config) Preprocessor() (*dataset.Preprocessor, error) {
	vocab, err := c.Vocab()
	if err != nil {
		return nil, err
	}
	layout, err := c.Layout()
	if err != nil {
		return nil, err
	}
	mode, err := c.LabelMode()
	if err != nil {
		return nil, err
	}
	return &dataset.Preprocessor{
		Encoder:     encoding.NewEncoder(vocab, c.Encoding.Strict),
		MaxSteps:    c.MaxSteps(),
		Layout:      layout,
		Mode:        mode,
		SkipInvalid: c.Dataset.SkipInvalid,
	}, nil
}

// #endregion derived
