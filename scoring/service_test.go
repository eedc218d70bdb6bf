package scoring

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"churnguard/artifact"
	"churnguard/ml"
)

type stubRecorder struct {
	results []*Result
	err     error
}

func (r *stubRecorder) RecordPrediction(_ context.Context, result *Result) error {
	r.results = append(r.results, result)
	return r.err
}

type stubPublisher struct {
	results []*Result
}

func (p *stubPublisher) PublishPrediction(result *Result) {
	p.results = append(p.results, result)
}

func stubBundle(t *testing.T, p float64, calls *int, opts ...ml.BundleOption) *ml.Bundle {
	t.Helper()
	classifier := ml.ClassifierFunc{Columns: 2, Fn: func([]float64) (float64, error) {
		if calls != nil {
			*calls++
		}
		return p, nil
	}}
	bundle, err := ml.NewBundle(ml.NumericSchema("tenure", "MonthlyCharges"), classifier, opts...)
	if err != nil {
		t.Fatalf("new bundle: %v", err)
	}
	return bundle
}

func TestScoreScenarioHighRisk(t *testing.T) {
	bundle := stubBundle(t, 0.73, nil, ml.WithThreshold(0.5))
	p, err := Score(ml.InputRecord{"tenure": "1", "MonthlyCharges": "90"}, bundle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 0.73 {
		t.Fatalf("expected 0.73, got %v", p)
	}
	if !Decide(p, bundle.Threshold()) {
		t.Fatal("expected high risk")
	}
	if cost := ExpectedCost(p, 150, 1000); math.Abs(cost-770.5) > 1e-9 {
		t.Fatalf("expected 770.5, got %v", cost)
	}
}

func TestEvaluateProbabilityAtThreshold(t *testing.T) {
	service := NewService(artifact.NewStaticStore(stubBundle(t, 0.5, nil, ml.WithThreshold(0.5))))
	result, err := service.Evaluate(context.Background(), ml.InputRecord{"tenure": "1", "MonthlyCharges": "90"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.HighRisk {
		t.Fatal("expected probability equal to threshold to be high risk")
	}
	if result.ExpectedCost != nil {
		t.Fatal("expected no expected cost without cost parameters")
	}
}

func TestScoreMissingFeature(t *testing.T) {
	calls := 0
	bundle := stubBundle(t, 0.9, &calls)
	_, err := Score(ml.InputRecord{"tenure": "1"}, bundle)
	var scoringErr *ml.ScoringError
	if !errors.As(err, &scoringErr) {
		t.Fatalf("expected ScoringError, got %v", err)
	}
	var mismatch *ml.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected wrapped SchemaMismatchError, got %v", err)
	}
	if scoringErr.Feature != "MonthlyCharges" {
		t.Fatalf("expected feature MonthlyCharges, got %q", scoringErr.Feature)
	}
	if calls != 0 {
		t.Fatal("classifier must not run with a missing feature")
	}
}

func TestScoreUnparsableFeature(t *testing.T) {
	bundle := stubBundle(t, 0.9, nil)
	_, err := Score(ml.InputRecord{"tenure": "one", "MonthlyCharges": "90"}, bundle)
	var scoringErr *ml.ScoringError
	if !errors.As(err, &scoringErr) || scoringErr.Feature != "tenure" {
		t.Fatalf("expected ScoringError on tenure, got %v", err)
	}
	var parseErr *ml.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected wrapped ParseError, got %v", err)
	}
}

func TestScoreClassifierFailures(t *testing.T) {
	tests := []struct {
		name string
		fn   func([]float64) (float64, error)
	}{
		{"error", func([]float64) (float64, error) { return 0, errors.New("shape mismatch") }},
		{"above one", func([]float64) (float64, error) { return 1.2, nil }},
		{"nan", func([]float64) (float64, error) { return math.NaN(), nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle, err := ml.NewBundle(ml.NumericSchema("tenure"), ml.ClassifierFunc{Columns: 1, Fn: tt.fn})
			if err != nil {
				t.Fatalf("new bundle: %v", err)
			}
			_, err = Score(ml.InputRecord{"tenure": "3"}, bundle)
			var scoringErr *ml.ScoringError
			if !errors.As(err, &scoringErr) {
				t.Fatalf("expected ScoringError, got %v", err)
			}
		})
	}
}

func TestScoreRangeOnRealBundle(t *testing.T) {
	bundle, err := ml.LoadBundle("../ml/testdata/churn_bundle.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, tenure := range []string{"0", "1", "24", "72", "500"} {
		for _, charges := range []string{"0", "18.25", "90", "10000"} {
			for _, contract := range []string{"Month-to-month", "One year", "Two year"} {
				p, err := Score(ml.InputRecord{"tenure": tenure, "MonthlyCharges": charges, "Contract": contract}, bundle)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p < 0 || p > 1 {
					t.Fatalf("probability %v out of range", p)
				}
			}
		}
	}
}

func TestEvaluateWithCostsRecordsAndPublishes(t *testing.T) {
	recorder := &stubRecorder{err: errors.New("disk full")}
	publisher := &stubPublisher{}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	bundle := stubBundle(t, 0.73, nil, ml.WithThreshold(0.5), ml.WithMetadata("churn", "7", "abc"))
	service := NewService(artifact.NewStaticStore(bundle),
		WithRecorder(recorder),
		WithPublisher(publisher),
		WithClock(func() time.Time { return fixed }))

	result, err := service.Evaluate(context.Background(),
		ml.InputRecord{"tenure": "1", "MonthlyCharges": "90"},
		&CostParameters{FalsePositive: 150, FalseNegative: 1000})
	if err != nil {
		t.Fatalf("recorder failure must not fail evaluation: %v", err)
	}
	if result.ExpectedCost == nil || math.Abs(*result.ExpectedCost-770.5) > 1e-9 {
		t.Fatalf("unexpected expected cost: %v", result.ExpectedCost)
	}
	if !result.HighRisk || !result.ThresholdFromBundle || result.BundleVersion != "7" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !result.EvaluatedAt.Equal(fixed) || result.ID == "" {
		t.Fatalf("unexpected id/time: %+v", result)
	}
	if len(recorder.results) != 1 || len(publisher.results) != 1 {
		t.Fatalf("expected one record and one publish, got %d and %d", len(recorder.results), len(publisher.results))
	}

	stats := service.Stats()
	if stats.Evaluations != 1 || stats.HighRisk != 1 || stats.Failures != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestEvaluateRejectsNegativeCost(t *testing.T) {
	service := NewService(artifact.NewStaticStore(stubBundle(t, 0.2, nil)))
	_, err := service.Evaluate(context.Background(),
		ml.InputRecord{"tenure": "1", "MonthlyCharges": "90"},
		&CostParameters{FalsePositive: -1})
	if !errors.Is(err, ErrInvalidCost) {
		t.Fatalf("expected ErrInvalidCost, got %v", err)
	}
	if service.Stats().Failures != 1 {
		t.Fatal("expected failure to be counted")
	}
}

func TestEvaluateUsesCache(t *testing.T) {
	calls := 0
	service := NewService(artifact.NewStaticStore(stubBundle(t, 0.3, &calls)), WithCache(16))
	record := ml.InputRecord{"tenure": "1", "MonthlyCharges": "90"}

	first, err := service.Evaluate(context.Background(), record, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := service.Evaluate(context.Background(), ml.InputRecord{"MonthlyCharges": "90", "tenure": "1"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one classifier call, got %d", calls)
	}
	if first.Cached || !second.Cached || first.Probability != second.Probability {
		t.Fatalf("unexpected cache behaviour: %+v %+v", first, second)
	}
	if service.Stats().CacheHits != 1 {
		t.Fatal("expected one cache hit")
	}

	service.PurgeCache()
	if _, err := service.Evaluate(context.Background(), record, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected purge to force rescoring, got %d calls", calls)
	}
}

func TestEvaluateCacheStillRejectsSchemaMismatch(t *testing.T) {
	calls := 0
	schema := ml.FeatureSchema{
		{Name: "tenure", Kind: ml.KindNumeric},
		{Name: "Contract", Kind: ml.KindCategorical, Categories: []string{"Month-to-month", "One year"}, IgnoreUnknown: true},
	}
	classifier := ml.ClassifierFunc{Columns: 3, Fn: func([]float64) (float64, error) {
		calls++
		return 0.9, nil
	}}
	bundle, err := ml.NewBundle(schema, classifier)
	if err != nil {
		t.Fatalf("new bundle: %v", err)
	}
	service := NewService(artifact.NewStaticStore(bundle), WithCache(16))

	if _, err := service.Evaluate(context.Background(), ml.InputRecord{"tenure": "1", "Contract": ""}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		record  ml.InputRecord
		feature string
	}{
		{name: "missing feature", record: ml.InputRecord{"tenure": "1"}, feature: "Contract"},
		{name: "extra feature", record: ml.InputRecord{"tenure": "1", "Contract": "", "bogus": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.Evaluate(context.Background(), tt.record, nil)
			if err == nil {
				t.Fatalf("expected schema mismatch, got %+v", result)
			}
			var scoringErr *ml.ScoringError
			if !errors.As(err, &scoringErr) || scoringErr.Feature != tt.feature {
				t.Fatalf("expected ScoringError for %q, got %v", tt.feature, err)
			}
			var mismatch *ml.SchemaMismatchError
			if !errors.As(err, &mismatch) {
				t.Fatalf("expected SchemaMismatchError, got %v", err)
			}
		})
	}

	if hits := service.Stats().CacheHits; hits != 0 {
		t.Fatalf("expected no cache hits, got %d", hits)
	}
	if calls != 1 {
		t.Fatalf("expected one classifier call, got %d", calls)
	}
}

func TestEvaluateCacheDisabledByNegativeSize(t *testing.T) {
	calls := 0
	service := NewService(artifact.NewStaticStore(stubBundle(t, 0.3, &calls)), WithCache(-1))
	record := ml.InputRecord{"tenure": "1", "MonthlyCharges": "90"}
	for i := 0; i < 2; i++ {
		result, err := service.Evaluate(context.Background(), record, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Cached {
			t.Fatal("expected no cached result")
		}
	}
	if calls != 2 {
		t.Fatalf("expected two classifier calls, got %d", calls)
	}
}

func TestEvaluateDefaultThreshold(t *testing.T) {
	service := NewService(artifact.NewStaticStore(stubBundle(t, 0.49, nil)))
	result, err := service.Evaluate(context.Background(), ml.InputRecord{"tenure": "1", "MonthlyCharges": "90"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Threshold != ml.DefaultThreshold || result.ThresholdFromBundle || result.HighRisk {
		t.Fatalf("unexpected result: %+v", result)
	}
}
