package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tenant_rag"

// Metrics はアプリケーション固有のPrometheusメトリクスを保持します
type Metrics struct {
	registry *prometheus.Registry

	askTotal          *prometheus.CounterVec
	promptSnippets    prometheus.Histogram
	promptChars       prometheus.Histogram
	chatLogFailures   prometheus.Counter
	ingestedChunks    prometheus.Counter
	embeddingCacheHit *prometheus.CounterVec
}

// New は専用レジストリにメトリクスを登録して返します
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.askTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ask_total",
			Help:      "Total number of answer requests by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	m.promptSnippets = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prompt_snippets",
			Help:      "Number of context snippets emitted into a prompt",
			Buckets:   prometheus.LinearBuckets(0, 1, 9),
		},
	)

	m.promptChars = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prompt_context_chars",
			Help:      "Characters of context consumed by a prompt",
			Buckets:   prometheus.LinearBuckets(0, 500, 9),
		},
	)

	m.chatLogFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_log_failures_total",
			Help:      "Chat log writes that failed and were dropped",
		},
	)

	m.ingestedChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Chunks upserted into tenant indexes",
		},
	)

	m.embeddingCacheHit = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_lookups_total",
			Help:      "Embedding cache lookups by result",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(
		m.askTotal,
		m.promptSnippets,
		m.promptChars,
		m.chatLogFailures,
		m.ingestedChunks,
		m.embeddingCacheHit,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler は /metrics 用のHTTPハンドラーを返します
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry はテストや追加登録用にレジストリを返します
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAsk は回答1件の結果を記録します
func (m *Metrics) ObserveAsk(mode, outcome string) {
	m.askTotal.WithLabelValues(mode, outcome).Inc()
}

// ObservePrompt は組み立てたプロンプトの規模を記録します
func (m *Metrics) ObservePrompt(snippets, chars int) {
	m.promptSnippets.Observe(float64(snippets))
	m.promptChars.Observe(float64(chars))
}

// ChatLogFailed はチャットログ保存の失敗を記録します
func (m *Metrics) ChatLogFailed() {
	m.chatLogFailures.Inc()
}

// ChunksIngested は取り込んだチャンク数を加算します
func (m *Metrics) ChunksIngested(n int) {
	m.ingestedChunks.Add(float64(n))
}

// EmbeddingCacheLookup はキャッシュのヒット/ミスを記録します
func (m *Metrics) EmbeddingCacheLookup(hits, misses int) {
	m.embeddingCacheHit.WithLabelValues("hit").Add(float64(hits))
	m.embeddingCacheHit.WithLabelValues("miss").Add(float64(misses))
}
