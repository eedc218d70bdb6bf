package http

import (
	"html/template"
	"net/http"

	"churnguard/form"
)

var pageTemplate = template.Must(template.New("page").Parse(
	`<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>{{.Title}} – Customer Churn Prediction</title>
	<style>
	.title { color: #0B5E2E; font-size: 40px; font-weight: 700; }
	.subtitle { color: #1F8F4A; font-size: 18px; }
	.risk-high { color: #C62828; font-weight: bold; font-size: 22px; }
	.risk-low { color: #0B5E2E; font-weight: bold; font-size: 22px; }
	.prediction-fault { color: #C62828; }
	</style>
</head>
<body>
<header class="brand">
	{{if .ShowLogo}}<img class="brand-logo" src="/assets/logo" width="120" alt="{{.Title}}">{{end}}
	<div class="title">{{.Title}}</div>
	<div class="subtitle">{{.Subtitle}}</div>
</header>
<hr>
{{if .ModelErr}}<div class="model-fault">Model unavailable: {{.ModelErr}}</div>{{else}}
<form id="prediction-form" method="post" action="/predict">
	<fieldset class="customer-information">
	<legend>Customer Information</legend>
	{{range .Fields}}
	<label class="feature-label">{{.Name}}
	{{if eq .Input "select"}}<select class="feature-input" name="{{.Name}}">{{$v := .Value}}{{range .Options}}<option value="{{.}}"{{if eq . $v}} selected{{end}}>{{.}}</option>{{end}}</select>
	{{else if eq .Input "number"}}<input class="feature-input" type="number" step="any" name="{{.Name}}" value="{{.Value}}">
	{{else}}<input class="feature-input" type="text" name="{{.Name}}" value="{{.Value}}">{{end}}
	</label>
	{{end}}
	</fieldset>
	{{if .ShowCosts}}<fieldset class="cost-calculator">
	<legend>Expected Cost Calculator</legend>
	<label>Cost of a false positive <input class="cost-input" type="number" step="any" min="0" name="cost_fp" value="{{.CostFP}}"></label>
	<label>Cost of a false negative <input class="cost-input" type="number" step="any" min="0" name="cost_fn" value="{{.CostFN}}"></label>
	</fieldset>{{end}}
	<button type="submit">Predict Churn Risk</button>
</form>
{{end}}
{{with .Result}}<section class="prediction-result">
	<div class="metric">Churn Probability <span class="churn-probability">{{.Probability}}</span></div>
	{{if .HighRisk}}<div class="risk-high">⚠ HIGH RISK — Retention Required</div>{{else}}<div class="risk-low">✅ LOW RISK — Likely to Stay</div>{{end}}
	{{if .ExpectedCost}}<div class="metric">Expected Cost <span class="expected-cost">{{.ExpectedCost}}</span></div>{{end}}
	<div class="threshold-caption">Decision threshold: {{.Threshold}}</div>
</section>{{end}}
{{if .PredictionErr}}<div class="prediction-fault">Prediction failed: {{.PredictionErr}}</div>{{end}}
<hr>
{{if .Footer}}<footer class="footer">{{.Footer}}</footer>{{end}}
</body>
</html>`))

// pageData is the view model for the form page.
type pageData struct {
	Title         string
	Subtitle      string
	Footer        string
	ShowLogo      bool
	ModelErr      string
	Fields        []form.Field
	ShowCosts     bool
	CostFP        string
	CostFN        string
	Result        *resultView
	PredictionErr string
}

type resultView struct {
	Probability  string
	HighRisk     bool
	ExpectedCost string
	Threshold    string
}

func renderPage(w http.ResponseWriter, status int, data *pageData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return pageTemplate.Execute(w, data)
}
