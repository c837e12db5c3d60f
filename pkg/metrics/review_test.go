package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestReviewMetricsRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReviewMetrics(reg)

	m.VersionCreated()
	m.VersionCreated()
	m.CommentCreated("guest")
	m.ApprovalDecided("approved")
	m.Notification("email", "error")
	m.ObserveHTTP("GET", "/api/assets/{assetId}", "2xx", 30*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	versions := findFamily(mfs, "reviewhub_versions_created_total")
	require.NotNil(t, versions)
	require.Equal(t, float64(2), versions.GetMetric()[0].GetCounter().GetValue())

	comments := findFamily(mfs, "reviewhub_comments_created_total")
	require.Equal(t, float64(1), metricWith(comments, map[string]string{"principal": "guest"}).GetCounter().GetValue())

	notifications := findFamily(mfs, "reviewhub_notifications_total")
	require.Equal(t, float64(1), metricWith(notifications, map[string]string{"channel": "email", "result": "error"}).GetCounter().GetValue())

	latency := findFamily(mfs, "reviewhub_http_request_duration_seconds")
	require.Greater(t, metricWith(latency, map[string]string{"route": "/api/assets/{assetId}"}).GetHistogram().GetSampleSum(), 0.0)
}

func TestNilReviewMetricsAreNoops(t *testing.T) {
	var m *ReviewMetrics
	m.VersionCreated()
	m.ShareViewed()
	NewReviewMetrics(nil).ApprovalDecided("rejected")
}
