package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/eventseq/internal/dataset"
	"github.com/danielpatrickdp/eventseq/internal/encoding"
)

// EnvPrefix prefixes every environment override, e.g. EVENTSEQ_ENCODING_MAX_STEPS.
const EnvPrefix = "EVENTSEQ"

// #region load

// Load resolves configuration from defaults, an optional YAML file, an
// optional .env file and EVENTSEQ_* environment variables, in increasing
// precedence. An empty path searches for eventseq.yaml in . and ./configs;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	loadEnvFile(".env")

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("eventseq")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads KEY=VALUE pairs without overriding variables that are
// already set.
func loadEnvFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// #endregion load

// #region defaults

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	vocab := encoding.DefaultVocabulary()
	return &Config{
		Vocabulary: VocabularyConfig{
			Entities: vocab.Entities(),
			Events:   vocab.Events(),
		},
		Encoding: EncodingConfig{
			MaxSteps: 0,
			Layout:   string(encoding.LayoutFlattened),
			Strict:   true,
		},
		Dataset: DatasetConfig{
			Dir:             "data",
			LabelMode:       string(dataset.LabelNextEvent),
			TrainRatio:      0.7,
			ValidationRatio: 0.15,
		},
		Model: ModelConfig{
			Backend:       "dense",
			RemoteAddr:    "localhost:50051",
			RemoteTimeout: 2 * time.Minute,
		},
		Training: TrainingConfig{
			Epochs:       100,
			LearningRate: 0.05,
			BatchSize:    32,
			Seed:         1,
		},
		Gate: GateConfig{
			MinAccuracy:   0,
			MaxRegression: 0.05,
		},
		Registry: RegistryConfig{DBPath: "eventseq.db"},
		Log:      LogConfig{Level: "info", Format: "console"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("vocabulary.entities", d.Vocabulary.Entities)
	v.SetDefault("vocabulary.events", d.Vocabulary.Events)
	v.SetDefault("encoding.max_steps", d.Encoding.MaxSteps)
	v.SetDefault("encoding.layout", d.Encoding.Layout)
	v.SetDefault("encoding.strict", d.Encoding.Strict)
	v.SetDefault("dataset.dir", d.Dataset.Dir)
	v.SetDefault("dataset.label_mode", d.Dataset.LabelMode)
	v.SetDefault("dataset.train_ratio", d.Dataset.TrainRatio)
	v.SetDefault("dataset.validation_ratio", d.Dataset.ValidationRatio)
	v.SetDefault("dataset.skip_invalid", d.Dataset.SkipInvalid)
	v.SetDefault("model.backend", d.Model.Backend)
	v.SetDefault("model.remote_addr", d.Model.RemoteAddr)
	v.SetDefault("model.remote_timeout", d.Model.RemoteTimeout)
	v.SetDefault("training.epochs", d.Training.Epochs)
	v.SetDefault("training.learning_rate", d.Training.LearningRate)
	v.SetDefault("training.batch_size", d.Training.BatchSize)
	v.SetDefault("training.seed", d.Training.Seed)
	v.SetDefault("gate.min_accuracy", d.Gate.MinAccuracy)
	v.SetDefault("gate.max_regression", d.Gate.MaxRegression)
	v.SetDefault("registry.db_path", d.Registry.DBPath)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}

// #endregion defaults

// #region validate

// Validate checks cross-field constraints.
func Validate(cfg *Config) error {
	if _, err := cfg.Vocab(); err != nil {
		return err
	}
	if _, err := cfg.Layout(); err != nil {
		return err
	}
	if _, err := cfg.LabelMode(); err != nil {
		return err
	}
	if cfg.Encoding.MaxSteps < 0 {
		return fmt.Errorf("encoding.max_steps must be non-negative, got %d", cfg.Encoding.MaxSteps)
	}
	switch cfg.Model.Backend {
	case "dense":
	case "remote":
		if cfg.Model.RemoteAddr == "" {
			return errors.New("model.remote_addr is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown model.backend %q (want dense or remote)", cfg.Model.Backend)
	}
	if cfg.Training.Epochs < 1 {
		return fmt.Errorf("training.epochs must be at least 1, got %d", cfg.Training.Epochs)
	}
	if cfg.Training.LearningRate <= 0 {
		return fmt.Errorf("training.learning_rate must be positive, got %g", cfg.Training.LearningRate)
	}
	if cfg.Training.BatchSize < 1 {
		return fmt.Errorf("training.batch_size must be at least 1, got %d", cfg.Training.BatchSize)
	}
	r := cfg.Dataset
	if r.TrainRatio < 0 || r.ValidationRatio < 0 || r.TrainRatio+r.ValidationRatio > 1 {
		return fmt.Errorf("dataset ratios train=%g validation=%g must be non-negative and sum to at most 1", r.TrainRatio, r.ValidationRatio)
	}
	if cfg.Gate.MinAccuracy < 0 || cfg.Gate.MinAccuracy > 1 {
		return fmt.Errorf("gate.min_accuracy must be in [0, 1], got %g", cfg.Gate.MinAccuracy)
	}
	return nil
}

// #endregion validate
