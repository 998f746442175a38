package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/malusev998/currency-rates/metrics"
)

func TestUpdateJobMetrics(t *testing.T) {
	asserts := require.New(t)

	before := testutil.ToFloat64(metrics.ScheduledJobRunsTotal.WithLabelValues("metrics_test", "failure"))
	metrics.UpdateJobMetrics("metrics_test", time.Now().Add(-time.Second), errors.New("boom"))
	metrics.UpdateJobMetrics("metrics_test", time.Now(), nil)

	asserts.Equal(before+1, testutil.ToFloat64(metrics.ScheduledJobRunsTotal.WithLabelValues("metrics_test", "failure")))
	asserts.Equal(float64(1), testutil.ToFloat64(metrics.ScheduledJobRunsTotal.WithLabelValues("metrics_test", "success")))
	asserts.Greater(testutil.ToFloat64(metrics.ScheduledJobLastRun.WithLabelValues("metrics_test")), float64(0))
}

func TestObserveProviderRequest(t *testing.T) {
	asserts := require.New(t)

	metrics.ObserveProviderRequest("metrics_test", "200", 150*time.Millisecond)
	asserts.Equal(float64(1), testutil.ToFloat64(metrics.ProviderRequestsTotal.WithLabelValues("metrics_test", "200")))
}
