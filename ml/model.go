package ml

import (
	"errors"
	"fmt"
	"math"
)

// Classifier scores an encoded vector and returns the positive-class probability.
type Classifier interface {
	PredictProba(features []float64) (float64, error)
	Width() int
}

// ClassifierFunc adapts a plain function, mostly for stubs.
type ClassifierFunc struct {
	Columns int
	Fn      func(features []float64) (float64, error)
}

func (c ClassifierFunc) PredictProba(features []float64) (float64, error) { return c.Fn(features) }
func (c ClassifierFunc) Width() int                                       { return c.Columns }

// LogisticRegression is sigmoid(intercept + coefficients·x).
type LogisticRegression struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func (m *LogisticRegression) Width() int { return len(m.Coefficients) }

func (m *LogisticRegression) PredictProba(features []float64) (float64, error) {
	if len(features) != len(m.Coefficients) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.Coefficients), len(features))
	}
	z := m.Intercept
	for i, w := range m.Coefficients {
		z += w * features[i]
	}
	return sigmoid(z), nil
}

func (m *LogisticRegression) validate() error {
	if len(m.Coefficients) == 0 {
		return errors.New("logistic regression has no coefficients")
	}
	return nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
