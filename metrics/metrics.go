// Package metrics 汇总 SDK 的 Prometheus 指标
//
// 每个 Metrics 持有独立的 Registry，不注册到全局默认 Registry，
// 因此同一进程内可以创建多个互不干扰的实例（测试中尤其常见）。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 结果标签
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics SDK 指标集合
type Metrics struct {
	registry         *prometheus.Registry
	workflowsTotal   *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	eventsIndexed    *prometheus.CounterVec
	transactions     *prometheus.CounterVec
}

// New 创建指标集合
func New() *Metrics {
	workflows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collection_workflows_total",
		Help: "Total number of create/mint workflow runs",
	}, []string{"workflow", "result"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collection_workflow_duration_seconds",
		Help:    "Duration of create/mint workflow runs, confirmation wait included",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"workflow"})

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collection_events_indexed_total",
		Help: "Contract events stored by the event indexer",
	}, []string{"event"})

	txs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collection_transactions_total",
		Help: "Transactions reaching a terminal status",
	}, []string{"method", "status"})

	r := prometheus.NewRegistry()
	r.MustRegister(workflows, duration, events, txs)

	return &Metrics{
		registry:         r,
		workflowsTotal:   workflows,
		workflowDuration: duration,
		eventsIndexed:    events,
		transactions:     txs,
	}
}

// Registry 底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveWorkflow 记录一次工作流运行
func (m *Metrics) ObserveWorkflow(workflow, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.workflowsTotal.WithLabelValues(workflow, result).Inc()
	m.workflowDuration.WithLabelValues(workflow).Observe(elapsed.Seconds())
}

// IncEvent 记录一条已入库的合约事件
func (m *Metrics) IncEvent(event string) {
	if m == nil {
		return
	}
	m.eventsIndexed.WithLabelValues(event).Inc()
}

// IncTransaction 记录交易终态
func (m *Metrics) IncTransaction(method, status string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(method, status).Inc()
}
