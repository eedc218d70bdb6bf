package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"churnguard/db"
	"churnguard/form"
	"churnguard/ml"
	"churnguard/monitoring"
	"churnguard/scoring"
)

// Branding 页面品牌信息
type Branding struct {
	Title    string
	Subtitle string
	Footer   string
	LogoPath string
}

// DecisionSettings 期望成本计算器设置
type DecisionSettings struct {
	ShowExpectedCost bool
	DefaultCostFP    float64
	DefaultCostFN    float64
}

// HistoryReader 读取最近的预测记录
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]db.PredictionRecord, error)
}

// LiveFeed 实时推送
type LiveFeed interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	Stats() monitoring.HubStats
}

// API 聚合所有处理器依赖
type API struct {
	Scorer    *scoring.Service
	Collector *form.Collector
	History   HistoryReader
	Feed      LiveFeed
	Metrics   *monitoring.MetricsCollector
	Format    *Formatter
	Branding  Branding
	Decision  DecisionSettings
	Logger    *zap.Logger
}

// Register 注册路由
func (a *API) Register(mux *http.ServeMux) {
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
	if a.Format == nil {
		a.Format = NewFormatter(language.English, "USD")
	}
	if a.Collector == nil {
		a.Collector = form.NewCollector(form.WidgetText)
	}

	mux.HandleFunc("GET /{$}", a.handleIndex)
	mux.HandleFunc("POST /predict", a.handlePredictForm)
	mux.HandleFunc("GET /assets/logo", a.handleLogo)

	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/schema", a.handleSchema)
	mux.HandleFunc("POST /api/predict", a.handlePredictJSON)
	mux.HandleFunc("GET /api/history", a.handleHistory)
	mux.HandleFunc("GET /api/stats", a.handleStats)
	if a.Feed != nil {
		mux.HandleFunc("GET /api/ws/predictions", a.Feed.HandleWebSocket)
	}
	if a.Metrics != nil {
		mux.HandleFunc("GET /metrics", a.handleMetrics)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) basePage() *pageData {
	return &pageData{
		Title:     a.Branding.Title,
		Subtitle:  a.Branding.Subtitle,
		Footer:    a.Branding.Footer,
		ShowLogo:  a.logoAvailable(),
		ShowCosts: a.Decision.ShowExpectedCost,
		CostFP:    strconv.FormatFloat(a.Decision.DefaultCostFP, 'f', -1, 64),
		CostFN:    strconv.FormatFloat(a.Decision.DefaultCostFN, 'f', -1, 64),
	}
}

func (a *API) logoAvailable() bool {
	if a.Branding.LogoPath == "" {
		return false
	}
	info, err := os.Stat(a.Branding.LogoPath)
	return err == nil && !info.IsDir()
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := a.basePage()
	bundle, err := a.Scorer.Bundle()
	if err != nil {
		data.ModelErr = err.Error()
		a.render(w, r, http.StatusServiceUnavailable, data)
		return
	}
	data.Fields = a.Collector.Fields(bundle.Schema(), nil)
	a.render(w, r, http.StatusOK, data)
}

func (a *API) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	data := a.basePage()
	if err := r.ParseForm(); err != nil {
		data.PredictionErr = err.Error()
		a.render(w, r, http.StatusBadRequest, data)
		return
	}
	bundle, err := a.Scorer.Bundle()
	if err != nil {
		data.ModelErr = err.Error()
		a.render(w, r, http.StatusServiceUnavailable, data)
		return
	}

	schema := bundle.Schema()
	record := a.Collector.Collect(schema, r.PostForm)
	data.Fields = a.Collector.Fields(schema, record)

	costs, err := a.formCosts(r.PostForm, data)
	if err == nil {
		var result *scoring.Result
		result, err = a.Scorer.Evaluate(r.Context(), record, costs)
		if err == nil {
			data.Result = a.resultView(result)
			a.render(w, r, http.StatusOK, data)
			return
		}
	}

	a.Logger.Info("form prediction failed",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.Error(err))
	data.PredictionErr = err.Error()
	a.render(w, r, errorStatus(err), data)
}

// formCosts 读取成本输入，空值使用默认成本
func (a *API) formCosts(values url.Values, data *pageData) (*scoring.CostParameters, error) {
	if !a.Decision.ShowExpectedCost {
		return nil, nil
	}
	fp, err := costValue(values, "cost_fp", a.Decision.DefaultCostFP)
	if err != nil {
		return nil, err
	}
	fn, err := costValue(values, "cost_fn", a.Decision.DefaultCostFN)
	if err != nil {
		return nil, err
	}
	data.CostFP = strconv.FormatFloat(fp, 'f', -1, 64)
	data.CostFN = strconv.FormatFloat(fn, 'f', -1, 64)
	return &scoring.CostParameters{FalsePositive: fp, FalseNegative: fn}, nil
}

func costValue(values url.Values, name string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", scoring.ErrInvalidCost, name, raw)
	}
	return v, nil
}

func (a *API) resultView(result *scoring.Result) *resultView {
	view := &resultView{
		Probability: a.Format.Percent(result.Probability),
		HighRisk:    result.HighRisk,
		Threshold:   a.Format.Threshold(result.Threshold),
	}
	if result.ExpectedCost != nil {
		view.ExpectedCost = a.Format.Money(*result.ExpectedCost)
	}
	return view
}

func (a *API) render(w http.ResponseWriter, r *http.Request, status int, data *pageData) {
	if err := renderPage(w, status, data); err != nil {
		a.Logger.Error("render page failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
	}
}

func (a *API) handleLogo(w http.ResponseWriter, r *http.Request) {
	if !a.logoAvailable() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, a.Branding.LogoPath)
}

// schemaFeature 特征描述
type schemaFeature struct {
	Name       string         `json:"name"`
	Kind       ml.FeatureKind `json:"kind"`
	Categories []string       `json:"categories,omitempty"`
	Input      string         `json:"input"`
}

// schemaResponse 模型输入描述
type schemaResponse struct {
	Features            []schemaFeature   `json:"features"`
	Widget              form.WidgetPolicy `json:"widget"`
	Threshold           float64           `json:"threshold"`
	ThresholdFromBundle bool              `json:"threshold_from_bundle"`
	Bundle              bundleInfo        `json:"bundle"`
}

type bundleInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
}

func (a *API) handleSchema(w http.ResponseWriter, r *http.Request) {
	bundle, err := a.Scorer.Bundle()
	if err != nil {
		writeError(w, err)
		return
	}
	schema := bundle.Schema()
	fields := a.Collector.Fields(schema, nil)
	resp := schemaResponse{
		Features:            make([]schemaFeature, len(schema)),
		Widget:              a.Collector.Policy,
		Threshold:           bundle.Threshold(),
		ThresholdFromBundle: bundle.HasThreshold(),
		Bundle:              bundleInfo{Name: bundle.Name, Version: bundle.Version, Checksum: bundle.Checksum},
	}
	for i, f := range schema {
		resp.Features[i] = schemaFeature{Name: f.Name, Kind: f.Kind, Categories: f.Categories, Input: fields[i].Input}
	}
	writeJSON(w, http.StatusOK, resp)
}

// predictRequest JSON预测请求
type predictRequest struct {
	Features map[string]interface{} `json:"features"`
	CostFP   *float64               `json:"cost_fp"`
	CostFN   *float64               `json:"cost_fn"`
}

func (a *API) handlePredictJSON(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Kind: "bad_request"})
		return
	}
	record, err := ml.RecordFromJSON(req.Features)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}

	var costs *scoring.CostParameters
	if req.CostFP != nil || req.CostFN != nil {
		costs = &scoring.CostParameters{FalsePositive: a.Decision.DefaultCostFP, FalseNegative: a.Decision.DefaultCostFN}
		if req.CostFP != nil {
			costs.FalsePositive = *req.CostFP
		}
		if req.CostFN != nil {
			costs.FalseNegative = *req.CostFN
		}
	}

	result, err := a.Scorer.Evaluate(r.Context(), record, costs)
	if err != nil {
		a.Logger.Info("api prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer", Kind: "bad_request"})
			return
		}
		limit = l
	}

	records := []db.PredictionRecord{}
	if a.History != nil {
		recent, err := a.History.Recent(r.Context(), limit)
		if err != nil {
			a.Logger.Warn("history query failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "history"})
			return
		}
		records = recent
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"predictions": records, "count": len(records)})
}

// statsResponse 统计信息
type statsResponse struct {
	Scoring scoring.Stats                       `json:"scoring"`
	Feed    *monitoring.HubStats                `json:"feed,omitempty"`
	Bundle  *bundleInfo                         `json:"bundle,omitempty"`
	Metrics map[string]monitoring.MetricSummary `json:"metrics,omitempty"`
	Uptime  string                              `json:"uptime,omitempty"`
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Scoring: a.Scorer.Stats()}
	if a.Feed != nil {
		s := a.Feed.Stats()
		resp.Feed = &s
	}
	if bundle, err := a.Scorer.Bundle(); err == nil {
		resp.Bundle = &bundleInfo{Name: bundle.Name, Version: bundle.Version, Checksum: bundle.Checksum}
	}
	if a.Metrics != nil {
		resp.Metrics = a.Metrics.Summaries()
		resp.Uptime = a.Metrics.GetUptime().Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(a.Metrics.ExportPrometheus()))
}

// errorResponse 错误响应
type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Feature string `json:"feature,omitempty"`
}

// classify 将错误映射为类别与出错的特征
func classify(err error) errorResponse {
	resp := errorResponse{Error: err.Error(), Kind: "internal"}

	var loadErr *ml.ArtifactLoadError
	var mismatch *ml.SchemaMismatchError
	var parseErr *ml.ParseError
	var scoringErr *ml.ScoringError
	switch {
	case errors.As(err, &loadErr):
		resp.Kind = "artifact_load"
	case errors.Is(err, scoring.ErrInvalidCost):
		resp.Kind = "invalid_cost"
	case errors.As(err, &mismatch):
		resp.Kind = "schema_mismatch"
	case errors.As(err, &parseErr):
		resp.Kind = "parse"
	case errors.As(err, &scoringErr):
		resp.Kind = "scoring"
	}
	if errors.As(err, &scoringErr) {
		resp.Feature = scoringErr.Feature
	}
	return resp
}

func errorStatus(err error) int {
	switch classify(err).Kind {
	case "artifact_load":
		return http.StatusServiceUnavailable
	case "internal":
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), classify(err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
