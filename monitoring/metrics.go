package monitoring

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"churnguard/scoring"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeSummary MetricType = "summary"
)

// Metric 指标样本
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

// MetricSummary 指标摘要
type MetricSummary struct {
	Count  int64   `json:"count"`
	Sum    float64 `json:"sum"`
	Latest float64 `json:"latest"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

// series 同名同标签的一组样本
type series struct {
	name    string
	help    string
	typ     MetricType
	labels  map[string]string
	samples []*Metric
	count   int64
	sum     float64
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	mu         sync.RWMutex
	series     map[string]*series
	maxSamples int
	startTime  time.Time
	now        func() time.Time
}

// NewMetricsCollector 创建指标收集器，每个序列最多保留maxSamples个样本
func NewMetricsCollector(maxSamples int) *MetricsCollector {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &MetricsCollector{
		series:     make(map[string]*series),
		maxSamples: maxSamples,
		startTime:  time.Now(),
		now:        time.Now,
	}
}

// RecordMetric 记录指标
func (mc *MetricsCollector) RecordMetric(metric *Metric) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	metric.Timestamp = mc.now()
	key := seriesKey(metric.Name, metric.Labels)
	s, ok := mc.series[key]
	if !ok {
		s = &series{name: metric.Name, help: metric.Help, typ: metric.Type, labels: metric.Labels}
		mc.series[key] = s
	}

	if s.typ == MetricTypeCounter {
		s.sum += metric.Value
		metric.Value = s.sum
	} else {
		s.sum += metric.Value
	}
	s.count++
	s.samples = append(s.samples, metric)

	// 限制历史大小
	if len(s.samples) > mc.maxSamples {
		s.samples = s.samples[len(s.samples)-mc.maxSamples:]
	}
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name, help string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeCounter, Value: value, Labels: labels, Help: help})
}

// SetGauge 设置仪表值
func (mc *MetricsCollector) SetGauge(name, help string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeGauge, Value: value, Labels: labels, Help: help})
}

// Observe 记录一次观测值
func (mc *MetricsCollector) Observe(name, help string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeSummary, Value: value, Labels: labels, Help: help})
}

// PublishPrediction 记录一次评分结果
func (mc *MetricsCollector) PublishPrediction(result *scoring.Result) {
	risk := "low"
	if result.HighRisk {
		risk = "high"
	}
	mc.IncrCounter("churn_predictions_total", "Evaluations by decision.", 1, map[string]string{"risk": risk})
	mc.Observe("churn_probability", "Predicted churn probability.", result.Probability, nil)
	if result.ExpectedCost != nil {
		mc.Observe("churn_expected_cost", "Expected cost of the decision.", *result.ExpectedCost, nil)
	}
}

// ObserveRequest 记录一次HTTP请求耗时
func (mc *MetricsCollector) ObserveRequest(method string, status int, d time.Duration) {
	labels := map[string]string{"method": method, "code": fmt.Sprintf("%dxx", status/100)}
	mc.Observe("http_request_duration_seconds", "HTTP request latency.", d.Seconds(), labels)
}

// GetMetric 获取指标样本副本
func (mc *MetricsCollector) GetMetric(name string, labels map[string]string) ([]*Metric, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	s, ok := mc.series[seriesKey(name, labels)]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", name)
	}
	result := make([]*Metric, len(s.samples))
	for i, m := range s.samples {
		metricCopy := *m
		result[i] = &metricCopy
	}
	return result, nil
}

// GetMetricSummary 获取指标摘要
func (mc *MetricsCollector) GetMetricSummary(name string, labels map[string]string) (MetricSummary, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	s, ok := mc.series[seriesKey(name, labels)]
	if !ok {
		return MetricSummary{}, fmt.Errorf("metric %s not found", name)
	}
	return s.summary(), nil
}

// Summaries 所有序列的摘要
func (mc *MetricsCollector) Summaries() map[string]MetricSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make(map[string]MetricSummary, len(mc.series))
	for key, s := range mc.series {
		out[key] = s.summary()
	}
	return out
}

func (s *series) summary() MetricSummary {
	sum := MetricSummary{Count: s.count, Sum: s.sum}
	if len(s.samples) == 0 {
		return sum
	}
	sum.Latest = s.samples[len(s.samples)-1].Value
	sum.Min, sum.Max = sum.Latest, sum.Latest
	total := 0.0
	for _, m := range s.samples {
		total += m.Value
		if m.Value < sum.Min {
			sum.Min = m.Value
		}
		if m.Value > sum.Max {
			sum.Max = m.Value
		}
	}
	sum.Mean = total / float64(len(s.samples))
	return sum
}

// ExportPrometheus 导出Prometheus文本格式
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	keys := make([]string, 0, len(mc.series))
	for key := range mc.series {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	described := make(map[string]bool)
	for _, key := range keys {
		s := mc.series[key]
		if !described[s.name] {
			help := s.help
			if help == "" {
				help = "Metric " + s.name
			}
			fmt.Fprintf(&b, "# HELP %s %s\n", s.name, help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", s.name, s.typ)
			described[s.name] = true
		}
		labels := formatLabels(s.labels)
		switch s.typ {
		case MetricTypeSummary:
			fmt.Fprintf(&b, "%s_sum%s %g\n", s.name, labels, s.sum)
			fmt.Fprintf(&b, "%s_count%s %d\n", s.name, labels, s.count)
		default:
			fmt.Fprintf(&b, "%s%s %g\n", s.name, labels, s.summary().Latest)
		}
	}
	return b.String()
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return mc.now().Sub(mc.startTime)
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
