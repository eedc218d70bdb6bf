// Package db keeps an optional history of scoring outcomes.
package db

import (
	"context"
	"time"

	"churnguard/scoring"
)

// PredictionRecord is one stored outcome. Raw customer inputs are never stored.
type PredictionRecord struct {
	ID            string    `json:"id"`
	Probability   float64   `json:"probability"`
	HighRisk      bool      `json:"high_risk"`
	Threshold     float64   `json:"threshold"`
	ExpectedCost  *float64  `json:"expected_cost,omitempty"`
	BundleName    string    `json:"bundle_name"`
	BundleVersion string    `json:"bundle_version"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

// History persists scoring outcomes.
type History interface {
	RecordPrediction(ctx context.Context, result *scoring.Result) error
	Recent(ctx context.Context, limit int) ([]PredictionRecord, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// NoopHistory is used when history is disabled.
type NoopHistory struct{}

func NewNoopHistory() *NoopHistory { return &NoopHistory{} }

func (n *NoopHistory) RecordPrediction(_ context.Context, _ *scoring.Result) error { return nil }
func (n *NoopHistory) Recent(_ context.Context, _ int) ([]PredictionRecord, error) {
	return []PredictionRecord{}, nil
}
func (n *NoopHistory) Purge(_ context.Context, _ time.Time) (int64, error) { return 0, nil }
func (n *NoopHistory) Close() error                                         { return nil }
