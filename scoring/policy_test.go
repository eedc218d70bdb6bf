package scoring

import (
	"errors"
	"math"
	"testing"
)

func TestDecideBoundaryInclusive(t *testing.T) {
	thresholds := []float64{0, 0.25, 0.42, 0.5, 1}
	for _, th := range thresholds {
		if !Decide(th, th) {
			t.Fatalf("Decide(%v, %v) should be high risk", th, th)
		}
		if th > 0 && Decide(math.Nextafter(th, 0), th) {
			t.Fatalf("Decide just below %v should be low risk", th)
		}
		if th > 0 && Decide(th-0.01, th) {
			t.Fatalf("Decide(%v, %v) should be low risk", th-0.01, th)
		}
	}
}

func TestDecideMonotonic(t *testing.T) {
	const threshold = 0.5
	prev := false
	for i := 0; i <= 100; i++ {
		got := Decide(float64(i)/100, threshold)
		if prev && !got {
			t.Fatalf("decision flipped back to low risk at %d%%", i)
		}
		prev = got
	}
}

func TestExpectedCostEndpointsAndLinearity(t *testing.T) {
	const fp, fn = 150.0, 1000.0
	if got := ExpectedCost(0, fp, fn); got != fp {
		t.Fatalf("ExpectedCost(0) = %v, want %v", got, fp)
	}
	if got := ExpectedCost(1, fp, fn); got != fn {
		t.Fatalf("ExpectedCost(1) = %v, want %v", got, fn)
	}
	for _, p := range []float64{0.1, 0.33, 0.5, 0.9} {
		want := fp + p*(fn-fp)
		if got := ExpectedCost(p, fp, fn); math.Abs(got-want) > 1e-9 {
			t.Fatalf("ExpectedCost(%v) = %v, want %v", p, got, want)
		}
	}
}

func TestExpectedCostScenario(t *testing.T) {
	got := ExpectedCost(0.73, 150, 1000)
	if math.Abs(got-770.5) > 1e-9 {
		t.Fatalf("expected 770.5, got %v", got)
	}
}

func TestCostParametersValidate(t *testing.T) {
	tests := []struct {
		name    string
		costs   CostParameters
		wantErr bool
	}{
		{"zero", CostParameters{}, false},
		{"positive", CostParameters{FalsePositive: 150, FalseNegative: 1000}, false},
		{"negative fp", CostParameters{FalsePositive: -1, FalseNegative: 1000}, true},
		{"negative fn", CostParameters{FalsePositive: 1, FalseNegative: -5}, true},
		{"infinite", CostParameters{FalsePositive: math.Inf(1)}, true},
		{"nan", CostParameters{FalseNegative: math.NaN()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.costs.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCost) {
				t.Fatalf("expected ErrInvalidCost, got %v", err)
			}
		})
	}
}
