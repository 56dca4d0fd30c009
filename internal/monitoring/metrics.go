package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ecphub"

// 流水线运行结果标签
const (
	OutcomeSaved        = "saved"
	OutcomeNoCandidates = "no_candidates"
	OutcomeNoAttachment = "no_attachment"
	OutcomeParseError   = "parse_error"
	OutcomeError        = "error"
)

// Metrics 监控指标
type Metrics struct {
	registry *prometheus.Registry
	started  time.Time

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec
	PanicsTotal         prometheus.Counter

	// 流水线指标
	PipelineRuns    *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	EventsExtracted prometheus.Counter
	EventsSaved     prometheus.Counter
	ParseStages     *prometheus.CounterVec
	AttachmentSize  *prometheus.HistogramVec
	CandidatesFound prometheus.Gauge
	PollCycles      *prometheus.CounterVec
	SystemUptime    prometheus.GaugeFunc
}

// NewMetrics 在独立注册表上创建监控指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		started:  time.Now(),

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		HTTPResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),
		PanicsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panics_total",
				Help:      "Total number of recovered panics",
			},
		),

		PipelineRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Parse-latest pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_duration_seconds",
				Help:      "Duration of each pipeline stage",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		EventsExtracted: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_extracted_total",
				Help:      "Event items returned by the model",
			},
		),
		EventsSaved: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_saved_total",
				Help:      "Event records persisted",
			},
		),
		ParseStages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_response_parse_total",
				Help:      "Model responses parsed, by the stage that succeeded",
			},
			[]string{"stage"},
		),
		AttachmentSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attachment_size_bytes",
				Help:      "Size of fetched attachments",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
			},
			[]string{"format"},
		),
		CandidatesFound: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mailbox_candidates",
				Help:      "Unread attachment-bearing messages seen by the last scan",
			},
		),
		PollCycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_cycles_total",
				Help:      "Poller cycles by result",
			},
			[]string{"result"},
		),
	}

	m.SystemUptime = f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started",
		},
		func() float64 { return time.Since(m.started).Seconds() },
	)

	return m
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordPipelineRun 记录一次流水线运行结果
func (m *Metrics) RecordPipelineRun(outcome string) {
	m.PipelineRuns.WithLabelValues(outcome).Inc()
}

// ObserveStage 记录阶段耗时
func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordExtraction 记录模型返回条目数与成功的解析阶段
func (m *Metrics) RecordExtraction(stage string, items int) {
	m.ParseStages.WithLabelValues(stage).Inc()
	m.EventsExtracted.Add(float64(items))
}

// RecordEventsSaved 记录入库条数
func (m *Metrics) RecordEventsSaved(n int) {
	m.EventsSaved.Add(float64(n))
}

// RecordAttachment 记录附件大小
func (m *Metrics) RecordAttachment(format string, size int) {
	m.AttachmentSize.WithLabelValues(format).Observe(float64(size))
}

// SetCandidates 更新最近一次扫描到的候选邮件数
func (m *Metrics) SetCandidates(n int) {
	m.CandidatesFound.Set(float64(n))
}

// RecordPollCycle 记录轮询结果
func (m *Metrics) RecordPollCycle(result string) {
	m.PollCycles.WithLabelValues(result).Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
