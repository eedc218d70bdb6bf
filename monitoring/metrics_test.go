package monitoring

import (
	"strings"
	"testing"
	"time"

	"churnguard/scoring"
)

func TestCounterAccumulates(t *testing.T) {
	mc := NewMetricsCollector(10)
	labels := map[string]string{"risk": "high"}
	mc.IncrCounter("churn_predictions_total", "", 1, labels)
	mc.IncrCounter("churn_predictions_total", "", 2, labels)

	summary, err := mc.GetMetricSummary("churn_predictions_total", labels)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Latest != 3 || summary.Count != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if _, err := mc.GetMetric("churn_predictions_total", nil); err == nil {
		t.Fatal("expected unlabeled series to be missing")
	}
}

func TestSamplesAreBounded(t *testing.T) {
	mc := NewMetricsCollector(3)
	for i := 1; i <= 5; i++ {
		mc.Observe("latency", "", float64(i), nil)
	}
	samples, err := mc.GetMetric("latency", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 3 || samples[0].Value != 3 {
		t.Fatalf("unexpected samples: %d first=%v", len(samples), samples[0].Value)
	}
	summary, _ := mc.GetMetricSummary("latency", nil)
	if summary.Count != 5 || summary.Sum != 15 || summary.Min != 3 || summary.Max != 5 || summary.Mean != 4 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestPublishPredictionAndExport(t *testing.T) {
	mc := NewMetricsCollector(0)
	cost := 770.5
	mc.PublishPrediction(&scoring.Result{Probability: 0.73, HighRisk: true, ExpectedCost: &cost})
	mc.PublishPrediction(&scoring.Result{Probability: 0.2})
	mc.ObserveRequest("POST", 200, 150*time.Millisecond)

	out := mc.ExportPrometheus()
	for _, want := range []string{
		"# TYPE churn_predictions_total counter",
		`churn_predictions_total{risk="high"} 1`,
		`churn_predictions_total{risk="low"} 1`,
		"churn_probability_count 2",
		"churn_expected_cost_sum 770.5",
		`http_request_duration_seconds_count{code="2xx",method="POST"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "# TYPE churn_predictions_total") != 1 {
		t.Errorf("expected a single TYPE line per metric:\n%s", out)
	}
	if len(mc.Summaries()) != 5 {
		t.Errorf("expected 5 series, got %d", len(mc.Summaries()))
	}
}
