// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 生成結果のラベル値
const (
	OutcomeSuccess       = "success"
	OutcomeNotConfigured = "not_configured"
	OutcomeProviderError = "provider_error"
	OutcomeEmpty         = "empty"
	OutcomeMalformed     = "malformed"
	OutcomeFailure       = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ワーカー、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordGeneration(operation, provider, outcome string)
	RecordGenerationLatency(operation string, duration time.Duration)
	RecordEmail(kind, outcome string)
	RecordDelivered(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	generations       *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
	emails            *prometheus.CounterVec
	delivered         prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriptgo_generations_total",
			Help: "操作・プロバイダ・結果別の生成リクエスト数",
		}, []string{"operation", "provider", "outcome"}),
		generationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scriptgo_generation_latency_seconds",
			Help:    "生成リクエストのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}, []string{"operation"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriptgo_emails_total",
			Help: "種別・結果別のメール送信数",
		}, []string{"kind", "outcome"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scriptgo_scripts_delivered_total",
			Help: "予約配信したスクリプトの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriptgo_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.generations,
		c.generationLatency,
		c.emails,
		c.delivered,
		c.httpStatus,
	)

	return c
}

// RecordGeneration は生成リクエストの結果を記録する。
func (c *Collector) RecordGeneration(operation, provider, outcome string) {
	if provider == "" {
		provider = "none"
	}
	c.generations.WithLabelValues(operation, provider, outcome).Inc()
}

// RecordGenerationLatency は生成のレイテンシを記録する。
func (c *Collector) RecordGenerationLatency(operation string, duration time.Duration) {
	c.generationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEmail はメール送信の結果を記録する。
func (c *Collector) RecordEmail(kind, outcome string) {
	c.emails.WithLabelValues(kind, outcome).Inc()
}

// RecordDelivered は予約配信したスクリプト数を記録する。
func (c *Collector) RecordDelivered(count int) {
	c.delivered.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordGeneration(string, string, string)       {}
func (Nop) RecordGenerationLatency(string, time.Duration) {}
func (Nop) RecordEmail(string, string)                    {}
func (Nop) RecordDelivered(int)                           {}
func (Nop) RecordHTTPStatus(int)                          {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
