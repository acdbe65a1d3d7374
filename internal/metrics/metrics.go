package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "course_assistant_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "course_assistant_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RAG 指标
var (
	// RAGRetrievalsTotal 检索总数
	RAGRetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "course_assistant_rag_retrievals_total",
			Help: "向量检索总数",
		},
		[]string{"status"},
	)

	// RAGRetrievalDuration 检索延迟（秒）
	RAGRetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "course_assistant_rag_retrieval_duration_seconds",
			Help:    "向量检索延迟分布",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RAGAnswersTotal 问答总数
	RAGAnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "course_assistant_rag_answers_total",
			Help: "问答请求总数",
		},
		[]string{"mode", "status"}, // mode: sync / stream
	)

	// IndexBuildsTotal 索引构建总数
	IndexBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "course_assistant_index_builds_total",
			Help: "向量索引构建总数",
		},
		[]string{"status"},
	)

	// IndexChunks 当前索引中的分块数量
	IndexChunks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "course_assistant_index_chunks",
			Help: "当前向量索引中的分块数量",
		},
	)
)
