package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsSplitsRunsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)

	m.JobFinished("notification-digest", 250*time.Millisecond, finished, nil)
	m.JobFinished("notification-digest", time.Second, finished.Add(time.Hour), errors.New("smtp down"))
	m.CycleSkipped()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	runs := findFamily(mfs, "reviewhub_cron_job_runs_total")
	require.NotNil(t, runs)
	require.Equal(t, 1.0, metricWith(runs, map[string]string{"job": "notification-digest", "result": "ok"}).GetCounter().GetValue())
	require.Equal(t, 1.0, metricWith(runs, map[string]string{"job": "notification-digest", "result": "error"}).GetCounter().GetValue())

	// failed runs leave the success gauge alone
	last := findFamily(mfs, "reviewhub_cron_job_last_success_timestamp_seconds")
	require.NotNil(t, last)
	require.Equal(t, float64(finished.Unix()), metricWith(last, map[string]string{"job": "notification-digest"}).GetGauge().GetValue())

	hist := findFamily(mfs, "reviewhub_cron_job_duration_seconds")
	require.NotNil(t, hist)
	h := metricWith(hist, map[string]string{"job": "notification-digest"}).GetHistogram()
	require.EqualValues(t, 2, h.GetSampleCount())
	require.InDelta(t, 1.25, h.GetSampleSum(), 1e-9)

	skipped := findFamily(mfs, "reviewhub_cron_cycles_skipped_total")
	require.NotNil(t, skipped)
	require.Equal(t, 1.0, skipped.GetMetric()[0].GetCounter().GetValue())
}

func TestCronJobMetricsEmptyJobName(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCronJobMetrics(reg).JobFinished("", time.Millisecond, time.Now(), nil)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	runs := findFamily(mfs, "reviewhub_cron_job_runs_total")
	require.NotNil(t, metricWith(runs, map[string]string{"job": "unknown", "result": "ok"}))
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	var m *CronJobMetrics
	require.Nil(t, NewCronJobMetrics(nil))
	m.JobFinished("x", time.Second, time.Now(), nil)
	m.CycleSkipped()
}

func findFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func metricWith(mf *dto.MetricFamily, labels map[string]string) *dto.Metric {
	for _, metric := range mf.GetMetric() {
		matched := 0
		for _, pair := range metric.GetLabel() {
			if want, ok := labels[pair.GetName()]; ok && want == pair.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return metric
		}
	}
	return nil
}
