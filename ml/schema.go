package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type FeatureKind string

const (
	KindNumeric     FeatureKind = "numeric"
	KindCategorical FeatureKind = "categorical"
)

// Feature is one declared model input.
type Feature struct {
	Name          string      `json:"name"`
	Kind          FeatureKind `json:"kind"`
	Categories    []string    `json:"categories,omitempty"`
	IgnoreUnknown bool        `json:"ignore_unknown,omitempty"`
}

// UnmarshalJSON accepts either a bare feature name (numeric) or a full object.
func (f *Feature) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*f = Feature{Name: name, Kind: KindNumeric}
		return nil
	}
	type plain Feature
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Kind == "" {
		p.Kind = KindNumeric
	}
	*f = Feature(p)
	return nil
}

// Width is the number of encoded columns the feature occupies.
func (f Feature) Width() int {
	if f.Kind == KindCategorical {
		return len(f.Categories)
	}
	return 1
}

func (f Feature) validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return errors.New("feature name is empty")
	}
	switch f.Kind {
	case KindNumeric:
		if len(f.Categories) > 0 {
			return fmt.Errorf("numeric feature %s declares categories", f.Name)
		}
	case KindCategorical:
		if len(f.Categories) == 0 {
			return fmt.Errorf("categorical feature %s has no categories", f.Name)
		}
		seen := make(map[string]bool, len(f.Categories))
		for _, c := range f.Categories {
			if seen[c] {
				return fmt.Errorf("categorical feature %s repeats category %q", f.Name, c)
			}
			seen[c] = true
		}
	default:
		return fmt.Errorf("feature %s has unknown kind %q", f.Name, f.Kind)
	}
	return nil
}

// FeatureSchema is the ordered list of inputs the model was trained on.
type FeatureSchema []Feature

// NumericSchema builds a schema of numeric features in the given order.
func NumericSchema(names ...string) FeatureSchema {
	schema := make(FeatureSchema, len(names))
	for i, name := range names {
		schema[i] = Feature{Name: name, Kind: KindNumeric}
	}
	return schema
}

func (s FeatureSchema) Validate() error {
	if len(s) == 0 {
		return errors.New("feature schema is empty")
	}
	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if err := f.validate(); err != nil {
			return err
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate feature %s", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

func (s FeatureSchema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Width is the length of an encoded record.
func (s FeatureSchema) Width() int {
	width := 0
	for _, f := range s {
		width += f.Width()
	}
	return width
}

// InputRecord maps feature names to raw, unparsed values.
type InputRecord map[string]string

// Check reports keys that are missing from or foreign to the schema.
func (s FeatureSchema) Check(record InputRecord) error {
	declared := make(map[string]bool, len(s))
	var missing, unexpected []string
	for _, f := range s {
		declared[f.Name] = true
		if _, ok := record[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	for key := range record {
		if !declared[key] {
			unexpected = append(unexpected, key)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	sort.Strings(unexpected)
	return &SchemaMismatchError{Missing: missing, Unexpected: unexpected}
}

// ParseFeature coerces one raw value into its encoded columns.
func ParseFeature(f Feature, raw string) ([]float64, error) {
	switch f.Kind {
	case KindCategorical:
		columns := make([]float64, len(f.Categories))
		value := strings.TrimSpace(raw)
		for i, c := range f.Categories {
			if c == value {
				columns[i] = 1
				return columns, nil
			}
		}
		if f.IgnoreUnknown {
			return columns, nil
		}
		return nil, &ParseError{Feature: f.Name, Value: raw, Err: errors.New("unknown category")}
	default:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			var numErr *strconv.NumError
			if errors.As(err, &numErr) {
				err = numErr.Err
			}
			return nil, &ParseError{Feature: f.Name, Value: raw, Err: err}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ParseError{Feature: f.Name, Value: raw, Err: errors.New("not a finite number")}
		}
		return []float64{v}, nil
	}
}

// Encode aligns the record to schema order and returns the encoded vector.
func (s FeatureSchema) Encode(record InputRecord) ([]float64, error) {
	if err := s.Check(record); err != nil {
		return nil, err
	}
	vector := make([]float64, 0, s.Width())
	for _, f := range s {
		columns, err := ParseFeature(f, record[f.Name])
		if err != nil {
			return nil, err
		}
		vector = append(vector, columns...)
	}
	return vector, nil
}

// CanonicalKey renders the record in schema order for use as a cache key.
func (s FeatureSchema) CanonicalKey(record InputRecord) string {
	var b strings.Builder
	for _, f := range s {
		b.WriteString(strconv.Quote(record[f.Name]))
		b.WriteByte(',')
	}
	return b.String()
}
