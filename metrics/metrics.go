// Package metrics provides Prometheus metrics for the tick ingestor and regression pipeline
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pairregress"

var (
	// 接入指标
	TicksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_received_total",
		Help:      "收到的 feed 消息数",
	}, []string{"symbol"})
	TradesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_stored_total",
		Help:      "成功落库的成交数",
	}, []string{"symbol"})
	PipelineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_errors_total",
		Help:      "按类型统计的处理失败（parse/store/transport）",
	}, []string{"symbol", "kind"})
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_reconnects_total",
		Help:      "feed 重连次数",
	}, []string{"symbol"})
	WSConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connected",
		Help:      "feed 连接状态（1=已连接）",
	}, []string{"symbol"})
	LastPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_price",
		Help:      "最近一笔成交价",
	}, []string{"symbol"})

	// 清理指标
	EvictionPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eviction_passes_total",
		Help:      "执行的过期清理次数",
	}, []string{"symbol"})
	EvictedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evicted_records_total",
		Help:      "删除的过期成交记录数",
	}, []string{"symbol"})

	// 告警
	PriceAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "price_alerts_total",
		Help:      "价格异动告警数",
	}, []string{"symbol", "sign"})
	AlertsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_delivered_total",
		Help:      "至少一个通道投递成功的告警数",
	}, []string{"level"})

	// 回归
	RegressionSlope = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "regression_slope",
		Help:      "最近一次回归斜率",
	})
	RegressionJoinedRows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "regression_joined_rows",
		Help:      "按秒对齐后参与拟合的行数",
	})
	RegressionDroppedRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "regression_dropped_rows",
		Help:      "对齐时丢弃的行数",
	}, []string{"side"})
	RegressionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "regression_runs_total",
		Help:      "回归执行次数（按结果）",
	}, []string{"result"})
)

// RecordJoin 更新对齐覆盖率指标
func RecordJoin(joined, droppedDependent, droppedIndependent int) {
	RegressionJoinedRows.Set(float64(joined))
	RegressionDroppedRows.WithLabelValues("dependent").Set(float64(droppedDependent))
	RegressionDroppedRows.WithLabelValues("independent").Set(float64(droppedIndependent))
}

// Handler 返回 /metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer 返回只挂载 /metrics 的 HTTP 服务器（未启动）；addr 为空时返回 nil
func NewServer(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
