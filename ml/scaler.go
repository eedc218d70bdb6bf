package ml

import (
	"errors"
	"fmt"
)

// Scaler transforms an encoded vector before it reaches the classifier.
type Scaler interface {
	Transform(values []float64) ([]float64, error)
	Width() int
}

// StandardScaler centres each column on its training mean and divides by its scale.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) Width() int { return len(s.Mean) }

func (s *StandardScaler) Transform(values []float64) ([]float64, error) {
	if len(values) != len(s.Mean) || len(values) != len(s.Scale) {
		return nil, errors.New("values/mean/scale length mismatch")
	}
	result := make([]float64, len(values))
	for i := range values {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		result[i] = (values[i] - s.Mean[i]) / scale
	}
	return result, nil
}

func (s *StandardScaler) validate() error {
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("standard scaler: %d means but %d scales", len(s.Mean), len(s.Scale))
	}
	return nil
}

// MinMaxScaler maps each column onto [0,1] using its training range.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

func (s *MinMaxScaler) Width() int { return len(s.Min) }

func (s *MinMaxScaler) Transform(values []float64) ([]float64, error) {
	if len(values) != len(s.Min) || len(values) != len(s.Max) {
		return nil, errors.New("values/mins/maxs length mismatch")
	}
	result := make([]float64, len(values))
	for i := range values {
		result[i] = normalizeFeature(values[i], s.Min[i], s.Max[i])
	}
	return result, nil
}

func (s *MinMaxScaler) validate() error {
	if len(s.Min) != len(s.Max) {
		return fmt.Errorf("minmax scaler: %d mins but %d maxs", len(s.Min), len(s.Max))
	}
	return nil
}

func normalizeFeature(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	return (value - min) / (max - min)
}
