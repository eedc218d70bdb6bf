package http

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders numbers for the result panel.
type Formatter struct {
	printer  *message.Printer
	currency string
}

func NewFormatter(tag language.Tag, currency string) *Formatter {
	return &Formatter{printer: message.NewPrinter(tag), currency: currency}
}

// Percent renders a probability as a percentage with two decimals.
func (f *Formatter) Percent(p float64) string {
	return f.printer.Sprintf("%.2f%%", p*100)
}

// Money renders an amount with the configured currency code and digit grouping.
func (f *Formatter) Money(v float64) string {
	return f.printer.Sprintf("%s %.2f", f.currency, v)
}

func (f *Formatter) Threshold(t float64) string {
	return f.printer.Sprintf("%.2f", t)
}
