package ml

import (
	"errors"
	"fmt"
	"math"
)

// DefaultThreshold applies when a bundle carries no decision threshold.
const DefaultThreshold = 0.5

// Bundle is a loaded artifact. It is never mutated after NewBundle returns.
type Bundle struct {
	Name     string
	Version  string
	Checksum string

	schema     FeatureSchema
	classifier Classifier
	scaler     Scaler
	threshold  *float64
}

// BundleOption sets optional bundle fields.
type BundleOption func(*Bundle)

func WithScaler(s Scaler) BundleOption {
	return func(b *Bundle) { b.scaler = s }
}

func WithThreshold(t float64) BundleOption {
	return func(b *Bundle) { b.threshold = &t }
}

func WithMetadata(name, version, checksum string) BundleOption {
	return func(b *Bundle) {
		b.Name = name
		b.Version = version
		b.Checksum = checksum
	}
}

// NewBundle validates the parts and assembles an immutable bundle.
func NewBundle(schema FeatureSchema, classifier Classifier, opts ...BundleOption) (*Bundle, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		return nil, errors.New("bundle has no classifier")
	}
	b := &Bundle{
		schema:     append(FeatureSchema(nil), schema...),
		classifier: classifier,
	}
	for _, opt := range opts {
		opt(b)
	}

	width := schema.Width()
	if w := classifier.Width(); w != width {
		return nil, fmt.Errorf("classifier expects %d columns, schema encodes %d", w, width)
	}
	if b.scaler != nil {
		if w := b.scaler.Width(); w != width {
			return nil, fmt.Errorf("scaler expects %d columns, schema encodes %d", w, width)
		}
	}
	if b.threshold != nil {
		t := *b.threshold
		if math.IsNaN(t) || t < 0 || t > 1 {
			return nil, fmt.Errorf("threshold %g outside [0,1]", t)
		}
	}
	return b, nil
}

// Schema returns a copy of the feature schema.
func (b *Bundle) Schema() FeatureSchema {
	return append(FeatureSchema(nil), b.schema...)
}

func (b *Bundle) Classifier() Classifier { return b.classifier }

// Scaler is nil when the bundle has none.
func (b *Bundle) Scaler() Scaler { return b.scaler }

// Threshold returns the bundle threshold or DefaultThreshold.
func (b *Bundle) Threshold() float64 {
	if b.threshold == nil {
		return DefaultThreshold
	}
	return *b.threshold
}

// HasThreshold reports whether the threshold came from the artifact.
func (b *Bundle) HasThreshold() bool { return b.threshold != nil }

// Vectorize parses the record and applies the scaler, yielding classifier input.
func (b *Bundle) Vectorize(record InputRecord) ([]float64, error) {
	vector, err := b.schema.Encode(record)
	if err != nil {
		return nil, err
	}
	if b.scaler == nil {
		return vector, nil
	}
	scaled, err := b.scaler.Transform(vector)
	if err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	return scaled, nil
}

// CacheKey identifies the record under this bundle.
func (b *Bundle) CacheKey(record InputRecord) string {
	return b.Checksum + "|" + b.schema.CanonicalKey(record)
}
