// Package scoring turns an input record into a churn probability and a decision.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"churnguard/ml"
)

// Score is a pure function of the record and bundle. Every failure is a *ml.ScoringError.
func Score(record ml.InputRecord, bundle *ml.Bundle) (float64, error) {
	vector, err := bundle.Vectorize(record)
	if err != nil {
		return 0, inputError(err)
	}
	p, err := bundle.Classifier().PredictProba(vector)
	if err != nil {
		return 0, &ml.ScoringError{Err: err}
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, &ml.ScoringError{Err: fmt.Errorf("classifier returned probability %g outside [0,1]", p)}
	}
	return p, nil
}

// inputError attributes a record failure to the feature that caused it.
func inputError(err error) error {
	var parseErr *ml.ParseError
	if errors.As(err, &parseErr) {
		return &ml.ScoringError{Feature: parseErr.Feature, Err: err}
	}
	var mismatch *ml.SchemaMismatchError
	if errors.As(err, &mismatch) && len(mismatch.Missing) > 0 {
		return &ml.ScoringError{Feature: mismatch.Missing[0], Err: err}
	}
	return &ml.ScoringError{Err: err}
}

// BundleSource supplies the current bundle.
type BundleSource interface {
	Bundle() (*ml.Bundle, error)
}

// Recorder receives every successful evaluation.
type Recorder interface {
	RecordPrediction(ctx context.Context, result *Result) error
}

// Publisher pushes evaluations to live listeners.
type Publisher interface {
	PublishPrediction(result *Result)
}

// Result is one evaluation outcome.
type Result struct {
	ID                  string          `json:"id"`
	Probability         float64         `json:"probability"`
	HighRisk            bool            `json:"high_risk"`
	Threshold           float64         `json:"threshold"`
	ThresholdFromBundle bool            `json:"threshold_from_bundle"`
	ExpectedCost        *float64        `json:"expected_cost,omitempty"`
	Costs               *CostParameters `json:"costs,omitempty"`
	BundleName          string          `json:"bundle_name"`
	BundleVersion       string          `json:"bundle_version"`
	Cached              bool            `json:"cached"`
	EvaluatedAt         time.Time       `json:"evaluated_at"`
}

// Stats are cumulative counters since start.
type Stats struct {
	Evaluations int64 `json:"evaluations"`
	HighRisk    int64 `json:"high_risk"`
	Failures    int64 `json:"failures"`
	CacheHits   int64 `json:"cache_hits"`
}

type Service struct {
	source     BundleSource
	logger     *zap.Logger
	cache      *lru.Cache[string, float64]
	recorder   Recorder
	publishers []Publisher
	now        func() time.Time

	evaluations atomic.Int64
	highRisk    atomic.Int64
	failures    atomic.Int64
	cacheHits   atomic.Int64
}

type Option func(*Service)

// WithCache memoises probabilities for up to size records; size <= 0 disables it.
func WithCache(size int) Option {
	return func(s *Service) {
		if size <= 0 {
			return
		}
		cache, err := lru.New[string, float64](size)
		if err == nil {
			s.cache = cache
		}
	}
}

func WithRecorder(r Recorder) Option  { return func(s *Service) { s.recorder = r } }
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithPublisher adds a live listener; it may be given more than once.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publishers = append(s.publishers, p) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(source BundleSource, opts ...Option) *Service {
	s := &Service{source: source, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scoring")
	return s
}

// Bundle exposes the bundle the service currently scores against.
func (s *Service) Bundle() (*ml.Bundle, error) {
	return s.source.Bundle()
}

// Probability scores the record against the current bundle, consulting the cache.
func (s *Service) Probability(record ml.InputRecord) (float64, bool, error) {
	bundle, err := s.source.Bundle()
	if err != nil {
		return 0, false, err
	}
	return s.probability(record, bundle)
}

func (s *Service) probability(record ml.InputRecord, bundle *ml.Bundle) (float64, bool, error) {
	var key string
	if s.cache != nil {
		// The key only covers declared features, so the record must match the schema first.
		if err := bundle.Schema().Check(record); err != nil {
			return 0, false, inputError(err)
		}
		key = bundle.CacheKey(record)
		if p, ok := s.cache.Get(key); ok {
			s.cacheHits.Add(1)
			return p, true, nil
		}
	}
	p, err := Score(record, bundle)
	if err != nil {
		return 0, false, err
	}
	if s.cache != nil {
		s.cache.Add(key, p)
	}
	return p, false, nil
}

// Evaluate runs score, decide and the optional expected-cost step. History and live
// publication are best-effort; their failures never fail the evaluation.
func (s *Service) Evaluate(ctx context.Context, record ml.InputRecord, costs *CostParameters) (*Result, error) {
	result, err := s.evaluate(record, costs)
	if err != nil {
		s.failures.Add(1)
		s.logger.Info("evaluation failed", zap.Error(err))
		return nil, err
	}

	s.evaluations.Add(1)
	if result.HighRisk {
		s.highRisk.Add(1)
	}
	s.logger.Debug("evaluation",
		zap.String("id", result.ID),
		zap.Float64("probability", result.Probability),
		zap.Bool("high_risk", result.HighRisk),
		zap.Bool("cached", result.Cached))

	if s.recorder != nil {
		if err := s.recorder.RecordPrediction(ctx, result); err != nil {
			s.logger.Warn("record prediction failed", zap.String("id", result.ID), zap.Error(err))
		}
	}
	for _, p := range s.publishers {
		p.PublishPrediction(result)
	}
	return result, nil
}

func (s *Service) evaluate(record ml.InputRecord, costs *CostParameters) (*Result, error) {
	if costs != nil {
		if err := costs.Validate(); err != nil {
			return nil, err
		}
	}
	bundle, err := s.source.Bundle()
	if err != nil {
		return nil, err
	}
	p, cached, err := s.probability(record, bundle)
	if err != nil {
		return nil, err
	}

	threshold := bundle.Threshold()
	result := &Result{
		ID:                  uuid.NewString(),
		Probability:         p,
		HighRisk:            Decide(p, threshold),
		Threshold:           threshold,
		ThresholdFromBundle: bundle.HasThreshold(),
		BundleName:          bundle.Name,
		BundleVersion:       bundle.Version,
		Cached:              cached,
		EvaluatedAt:         s.now(),
	}
	if costs != nil {
		cost := ExpectedCost(p, costs.FalsePositive, costs.FalseNegative)
		c := *costs
		result.ExpectedCost = &cost
		result.Costs = &c
	}
	return result, nil
}

// PurgeCache drops memoised probabilities, typically after a bundle reload.
func (s *Service) PurgeCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func (s *Service) Stats() Stats {
	return Stats{
		Evaluations: s.evaluations.Load(),
		HighRisk:    s.highRisk.Load(),
		Failures:    s.failures.Load(),
		CacheHits:   s.cacheHits.Load(),
	}
}
