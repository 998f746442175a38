package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "currency_rates_provider_requests_total",
			Help: "Total number of requests sent to a rate provider, by outcome",
		},
		[]string{"provider", "status"},
	)

	ProviderRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "currency_rates_provider_request_duration_seconds",
			Help:    "Rate provider request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ProviderSamples = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "currency_rates_provider_samples",
			Help: "Number of samples returned by a provider in the last update cycle",
		},
		[]string{"provider"},
	)

	UpdateCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "currency_rates_update_cycles_total",
			Help: "Total number of update cycles, by result",
		},
		[]string{"result"},
	)

	HistorySinkFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "currency_rates_history_sink_failures_total",
			Help: "Total number of failed history mirror writes per sink",
		},
		[]string{"sink"},
	)

	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "currency_rates_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "currency_rates_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "currency_rates_http_requests_total",
			Help: "Total number of API requests, by route and status code",
		},
		[]string{"route", "method", "code"},
	)

	ScheduledJobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "currency_rates_job_runs_total",
			Help: "Total number of executions per job, by status",
		},
		[]string{"job", "status"},
	)
)

func ObserveProviderRequest(provider, status string, took time.Duration) {
	ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
	ProviderRequestDurationSeconds.WithLabelValues(provider).Observe(took.Seconds())
}

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))

	status := "success"
	if err != nil {
		status = "failure"
	}

	ScheduledJobRunsTotal.WithLabelValues(job, status).Inc()
}
