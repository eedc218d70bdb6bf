// Package form collects one raw value per declared feature from a submitted form.
package form

import (
	"fmt"
	"net/url"
	"strings"

	"churnguard/ml"
)

// WidgetPolicy decides how feature inputs are rendered and defaulted.
type WidgetPolicy string

const (
	// WidgetText renders a free-text box per feature and forwards values verbatim.
	WidgetText WidgetPolicy = "text"
	// WidgetNumeric renders number boxes that default to zero.
	WidgetNumeric WidgetPolicy = "numeric"
)

func ParseWidgetPolicy(s string) (WidgetPolicy, error) {
	switch p := WidgetPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case WidgetText, WidgetNumeric:
		return p, nil
	case "":
		return WidgetText, nil
	default:
		return "", fmt.Errorf("unknown widget policy %q", s)
	}
}

// Field describes one rendered control.
type Field struct {
	Name    string
	Input   string // text, number or select
	Options []string
	Value   string
}

// Collector turns form values into an InputRecord. It never validates; malformed
// values surface later as scoring errors.
type Collector struct {
	Policy WidgetPolicy
}

func NewCollector(policy WidgetPolicy) *Collector {
	return &Collector{Policy: policy}
}

// Collect reads one value per schema feature. Values for undeclared names are ignored.
func (c *Collector) Collect(schema ml.FeatureSchema, values url.Values) ml.InputRecord {
	record := make(ml.InputRecord, len(schema))
	for _, f := range schema {
		raw := values.Get(f.Name)
		if c.Policy == WidgetNumeric && f.Kind == ml.KindNumeric && strings.TrimSpace(raw) == "" {
			raw = "0"
		}
		record[f.Name] = raw
	}
	return record
}

// Fields describes the controls for the schema, prefilled from a previous submission.
func (c *Collector) Fields(schema ml.FeatureSchema, previous ml.InputRecord) []Field {
	fields := make([]Field, 0, len(schema))
	for _, f := range schema {
		field := Field{Name: f.Name, Input: "text", Value: previous[f.Name]}
		switch {
		case c.Policy == WidgetNumeric && f.Kind == ml.KindCategorical:
			field.Input = "select"
			field.Options = append([]string(nil), f.Categories...)
		case c.Policy == WidgetNumeric:
			field.Input = "number"
			if field.Value == "" {
				field.Value = "0"
			}
		}
		fields = append(fields, field)
	}
	return fields
}
