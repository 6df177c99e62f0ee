// Package metrics 提供进程级、显式注入的指标收集器。
// 收集器在 main 中创建，经 /metrics 由外部监控系统抓取，不使用全局默认注册表。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 是检索流水线依赖的指标接口。
type Collector interface {
	ObserveStrategy(strategy string, hits int, d time.Duration, err error)
	ObserveExpansion(result string)
	ObserveRequest(mode string, d time.Duration, err error)
	ObserveAnswer(style string, confidence, freshness, hitRate float64)
	ObserveQualityRecord(result string)
}

// 扩展结果标签
const (
	ExpansionRuleOnly = "rule_only"
	ExpansionAI       = "ai"
	ExpansionCached   = "cached"
	ExpansionDegraded = "degraded"
)

// 质量记录结果标签
const (
	QualityStored  = "stored"
	QualityFailed  = "failed"
	QualityDropped = "dropped"
)

// Prometheus 是基于独立 Registry 的 Collector 实现。
type Prometheus struct {
	registry         *prometheus.Registry
	strategyTotal    *prometheus.CounterVec
	strategyDuration *prometheus.HistogramVec
	strategyHits     *prometheus.CounterVec
	expansionTotal   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	answerScores     *prometheus.HistogramVec
	freshnessDays    *prometheus.HistogramVec
	qualityTotal     *prometheus.CounterVec
}

// NewPrometheus 创建收集器并把所有指标注册到一个新的 Registry。
func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		strategyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_requests_total",
			Help:      "Retrieval strategy invocations by outcome",
		}, []string{"strategy", "status"}),
		strategyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "strategy_duration_seconds",
			Help:      "Retrieval strategy latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"strategy"}),
		strategyHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_hits_total",
			Help:      "Hits contributed by each retrieval strategy",
		}, []string{"strategy"}),
		expansionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expansion_total",
			Help:      "Concept expansion outcomes",
		}, []string{"result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end pipeline latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode", "status"}),
		answerScores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_score",
			Help:      "Grounded answer quality scores",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"style", "score"}),
		freshnessDays: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_source_freshness_days",
			Help:      "Mean age in days of the legal sources grounding an answer",
			Buckets:   []float64{1, 7, 30, 90, 180, 365, 730, 1825},
		}, []string{"style"}),
		qualityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_records_total",
			Help:      "Quality record persistence outcomes",
		}, []string{"result"}),
	}
	p.registry.MustRegister(
		p.strategyTotal,
		p.strategyDuration,
		p.strategyHits,
		p.expansionTotal,
		p.requestDuration,
		p.answerScores,
		p.freshnessDays,
		p.qualityTotal,
	)
	return p
}

// Registry 返回收集器私有的注册表。
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler 返回暴露该注册表的 HTTP handler。
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) ObserveStrategy(strategy string, hits int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.strategyTotal.WithLabelValues(strategy, status).Inc()
	p.strategyDuration.WithLabelValues(strategy).Observe(d.Seconds())
	p.strategyHits.WithLabelValues(strategy).Add(float64(hits))
}

func (p *Prometheus) ObserveExpansion(result string) {
	p.expansionTotal.WithLabelValues(result).Inc()
}

func (p *Prometheus) ObserveRequest(mode string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.requestDuration.WithLabelValues(mode, status).Observe(d.Seconds())
}

func (p *Prometheus) ObserveAnswer(style string, confidence, freshness, hitRate float64) {
	p.answerScores.WithLabelValues(style, "confidence").Observe(confidence)
	p.answerScores.WithLabelValues(style, "citation_hit_rate").Observe(hitRate)
	p.freshnessDays.WithLabelValues(style).Observe(freshness)
}

func (p *Prometheus) ObserveQualityRecord(result string) {
	p.qualityTotal.WithLabelValues(result).Inc()
}

// Noop 丢弃所有指标，用于测试或未启用监控的场景。
type Noop struct{}

func (Noop) ObserveStrategy(string, int, time.Duration, error) {}
func (Noop) ObserveExpansion(string)                           {}
func (Noop) ObserveRequest(string, time.Duration, error)       {}
func (Noop) ObserveAnswer(string, float64, float64, float64)   {}
func (Noop) ObserveQualityRecord(string)                       {}
