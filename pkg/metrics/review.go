package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReviewMetrics counts review-domain activity and HTTP latency for the API.
type ReviewMetrics struct {
	versions      prometheus.Counter
	versionRetry  prometheus.Counter
	comments      *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	shareViews    prometheus.Counter
	notifications *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewReviewMetrics registers the review metrics. A nil registerer yields a
// no-op recorder.
func NewReviewMetrics(reg prometheus.Registerer) *ReviewMetrics {
	if reg == nil {
		return &ReviewMetrics{}
	}
	m := &ReviewMetrics{
		versions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewhub_versions_created_total",
			Help: "Asset versions appended.",
		}),
		versionRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewhub_version_number_retries_total",
			Help: "Version inserts retried after losing a numbering race.",
		}),
		comments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewhub_comments_created_total",
			Help: "Comments created by principal kind.",
		}, []string{"principal"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewhub_approval_decisions_total",
			Help: "Approval step decisions by outcome.",
		}, []string{"status"}),
		shareViews: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewhub_share_views_total",
			Help: "Guest review link views recorded.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewhub_notifications_total",
			Help: "Notification deliveries by channel and result.",
		}, []string{"channel", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reviewhub_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.versions, m.versionRetry, m.comments, m.decisions, m.shareViews, m.notifications, m.httpDuration)
	return m
}

func (m *ReviewMetrics) VersionCreated() {
	if m == nil || m.versions == nil {
		return
	}
	m.versions.Inc()
}

func (m *ReviewMetrics) VersionRetried() {
	if m == nil || m.versionRetry == nil {
		return
	}
	m.versionRetry.Inc()
}

func (m *ReviewMetrics) CommentCreated(principal string) {
	if m == nil || m.comments == nil {
		return
	}
	m.comments.WithLabelValues(labelOrUnknown(principal)).Inc()
}

func (m *ReviewMetrics) ApprovalDecided(status string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(labelOrUnknown(status)).Inc()
}

func (m *ReviewMetrics) ShareViewed() {
	if m == nil || m.shareViews == nil {
		return
	}
	m.shareViews.Inc()
}

// Notification records one delivery attempt; result is "ok" or "error".
func (m *ReviewMetrics) Notification(channel, result string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(labelOrUnknown(channel), labelOrUnknown(result)).Inc()
}

func (m *ReviewMetrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, labelOrUnknown(route), status).Observe(d.Seconds())
}
