// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/hcadmin/internal/hcloud"
)

// Collector はPrometheusメトリクスを収集する実装。
// hcloudクライアントのCallObserverとして上流API呼び出しを計測する。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamErrors   *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
}

var _ hcloud.CallObserver = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hcadmin_upstream_requests_total",
			Help: "Hetzner API呼び出しの合計数（操作・ステータスコード別）",
		}, []string{"operation", "status_code"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hcadmin_upstream_errors_total",
			Help: "Hetzner API呼び出し失敗の合計数（操作別）",
		}, []string{"operation"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hcadmin_upstream_request_duration_seconds",
			Help:    "Hetzner API呼び出しのレイテンシ（秒、操作別）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamErrors,
		c.upstreamLatency,
	)

	return c
}

// ObserveUpstreamCall は上流API呼び出し1回分を記録する。
// statusCode 0はネットワーク到達不能（レスポンスなし）を表す。
func (c *Collector) ObserveUpstreamCall(operation string, statusCode int, duration time.Duration) {
	c.upstreamRequests.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.WithLabelValues(operation).Observe(duration.Seconds())

	if statusCode == 0 || statusCode >= 400 {
		c.upstreamErrors.WithLabelValues(operation).Inc()
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// ルーターの/metricsにそのままマウントする。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
