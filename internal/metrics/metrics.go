// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やミドルウェアから利用する。
type MetricsCollector interface {
	RecordChatTurn()
	RecordLLMRequest(duration time.Duration, err error)
	RecordRetrievalFailure()
	RecordFeedbackLog(err error)
	RecordAuthDenied()
	RecordTokenInvalid()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	chatTurns     prometheus.Counter
	llmLatency    prometheus.Histogram
	llmFailures   prometheus.Counter
	retrievalFail prometheus.Counter
	feedbackLog   *prometheus.CounterVec
	authDenied    prometheus.Counter
	tokenInvalid  prometheus.Counter
}

// コンパイル時のインターフェース実装チェック
var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		chatTurns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jeeves_chat_turns_total",
			Help: "完了したチャットターンの合計数",
		}),
		llmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jeeves_llm_request_latency_seconds",
			Help:    "LLMリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		llmFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jeeves_llm_failures_total",
			Help: "LLMリクエスト失敗の合計数",
		}),
		retrievalFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jeeves_retrieval_failures_total",
			Help: "文書検索失敗の合計数",
		}),
		feedbackLog: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jeeves_feedback_log_total",
			Help: "スプレッドシート記録の結果別合計数",
		}, []string{"outcome"}),
		authDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jeeves_auth_denied_total",
			Help: "許可リストによるアクセス拒否の合計数",
		}),
		tokenInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jeeves_token_invalid_total",
			Help: "無効または期限切れトークンの合計数",
		}),
	}

	reg.MustRegister(
		c.chatTurns,
		c.llmLatency,
		c.llmFailures,
		c.retrievalFail,
		c.feedbackLog,
		c.authDenied,
		c.tokenInvalid,
	)

	return c
}

// RecordChatTurn はチャットターンの完了を記録する。
func (c *Collector) RecordChatTurn() {
	c.chatTurns.Inc()
}

// RecordLLMRequest はLLMリクエストのレイテンシと結果を記録する。
func (c *Collector) RecordLLMRequest(duration time.Duration, err error) {
	c.llmLatency.Observe(duration.Seconds())
	if err != nil {
		c.llmFailures.Inc()
	}
}

// RecordRetrievalFailure は文書検索の失敗を記録する。
func (c *Collector) RecordRetrievalFailure() {
	c.retrievalFail.Inc()
}

// RecordFeedbackLog はスプレッドシート記録の結果を記録する。
func (c *Collector) RecordFeedbackLog(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.feedbackLog.WithLabelValues(outcome).Inc()
}

// RecordAuthDenied は許可リストによるアクセス拒否を記録する。
func (c *Collector) RecordAuthDenied() {
	c.authDenied.Inc()
}

// RecordTokenInvalid は無効または期限切れトークンの検出を記録する。
func (c *Collector) RecordTokenInvalid() {
	c.tokenInvalid.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
