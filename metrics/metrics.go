// Package metrics 定义推荐核心的 Prometheus 指标。
//
// 指标在包初始化时通过 promauto 注册到默认 Registry，serve 命令通过 /metrics 暴露。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rushteam/shoprec/core"
)

var (
	// MiningRunsTotal 按结果统计挖掘任务次数（success / failure / canceled）
	MiningRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_mining_runs_total",
			Help: "Total number of association rule mining runs",
		},
		[]string{"status"},
	)

	// MiningDuration 挖掘耗时（抽取 + Apriori + 规则入库）
	MiningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shoprec_mining_duration_seconds",
			Help:    "Duration of association rule mining runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)

	// RulesSaved 最近一次挖掘保存的规则数
	RulesSaved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shoprec_rules_saved",
			Help: "Number of association rules saved by the last mining run",
		},
	)

	// CacheRequestsTotal 推荐缓存请求（hit / miss / refresh）
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_cache_requests_total",
			Help: "Total number of recommendation cache lookups by result",
		},
		[]string{"result"},
	)

	// RecommendDuration 单用户混合推荐耗时
	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shoprec_recommend_duration_seconds",
			Help:    "Duration of hybrid recommendation computations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RecommendFailuresTotal 按错误码统计推荐失败
	RecommendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprec_recommend_failures_total",
			Help: "Total number of failed hybrid recommendation computations",
		},
		[]string{"reason"},
	)
)

// RecordMining 记录一次挖掘
func RecordMining(status string, d time.Duration, saved int) {
	MiningRunsTotal.WithLabelValues(status).Inc()
	MiningDuration.Observe(d.Seconds())
	if status == "success" {
		RulesSaved.Set(float64(saved))
	}
}

// RecordCache 记录一次缓存查询结果
func RecordCache(result string) {
	CacheRequestsTotal.WithLabelValues(result).Inc()
}

// RecordRecommend 记录一次推荐计算，err 不为空时按 DomainError 错误码计数
func RecordRecommend(d time.Duration, err error) {
	RecommendDuration.Observe(d.Seconds())
	if err == nil {
		return
	}
	reason := core.ErrorCodeInternalError
	if de := core.GetDomainError(err); de != nil {
		reason = de.Code
	}
	RecommendFailuresTotal.WithLabelValues(reason).Inc()
}
