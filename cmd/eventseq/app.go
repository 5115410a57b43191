package main

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/eventseq/internal/config"
	"github.com/danielpatrickdp/eventseq/internal/logger"
	"github.com/danielpatrickdp/eventseq/internal/metrics"
	"github.com/danielpatrickdp/eventseq/internal/pipeline"
	"github.com/danielpatrickdp/eventseq/internal/registry"
)

// app holds the per-invocation wiring shared by every command.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	metrics  *metrics.Metrics
	registry *registry.Store
	pipeline *pipeline.Pipeline
}

func openApp(flags *rootFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	reg, err := registry.NewStore(cfg.Registry.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open registry %s: %w", cfg.Registry.DBPath, err)
	}
	m := metrics.New()
	p, err := pipeline.New(pipeline.Deps{
		Config:   cfg,
		Registry: reg,
		Logger:   log,
		Metrics:  m,
	})
	if err != nil {
		reg.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: log, metrics: m, registry: reg, pipeline: p}, nil
}

// Close exports metrics and releases the registry.
func (a *app) Close() error {
	var errs []error
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		errs = append(errs, fmt.Errorf("write metrics: %w", err))
	}
	if err := a.registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close registry: %w", err))
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}

// withApp runs fn against a freshly opened app and always closes it.
func withApp(flags *rootFlags, fn func(a *app) error) (err error) {
	a, err := openApp(flags)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
