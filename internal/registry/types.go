package registry

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/eventseq/internal/model"
)

var (
	// ErrNoActiveVersion is returned by GetCurrent before the first commit.
	ErrNoActiveVersion = errors.New("no active model version")
	// ErrVersionNotFound is returned for unknown version ids.
	ErrVersionNotFound = errors.New("model version not found")
	// ErrIncompatible is returned when a stored version was trained with
	// different encoding settings than the caller's.
	ErrIncompatible = errors.New("model version incompatible with encoding")
)

// #region encoding-info
// EncodingInfo records the encoding a version was trained under. A model
// is only meaningful for inputs encoded the same way.
type EncodingInfo struct {
	Fingerprint string   `json:"fingerprint"`
	Entities    []string `json:"entities"`
	Events      []string `json:"events"`
	MaxSteps    int      `json:"max_steps"`
	Layout      string   `json:"layout"`
	LabelMode   string   `json:"label_mode"`
}

// #endregion encoding-info

// #region version-metrics
// VersionMetrics summarizes the training call that produced a version.
type VersionMetrics struct {
	Epochs             int     `json:"epochs"`
	TrainExamples      int     `json:"train_examples"`
	ValidationExamples int     `json:"validation_examples"`
	TrainLoss          float64 `json:"train_loss"`
	ValidationLoss     float64 `json:"validation_loss"`
	ValidationAccuracy float64 `json:"validation_accuracy"`
}

// #endregion version-metrics

// #region model-version
// ModelVersion is one trained model in the registry.
type ModelVersion struct {
	VersionID string
	ParentID  string
	Encoding  EncodingInfo
	Snapshot  model.Snapshot
	Metrics   VersionMetrics
	CreatedAt time.Time
}

// #endregion model-version

// #region version-with-run
// VersionWithRun pairs a version with the training run that produced it.
type VersionWithRun struct {
	ModelVersion
	Active   bool
	Trigger  string
	Decision string
	Reason   string
}

// #endregion version-with-run
