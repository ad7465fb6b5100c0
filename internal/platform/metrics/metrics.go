// Package metrics holds the prometheus instrumentation shared by the
// coordinator and worker processes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	InvocationsTotal *prometheus.CounterVec
	FetchesTotal     *prometheus.CounterVec
	RetriesTotal     prometheus.Counter
	RequestSeconds   prometheus.Histogram
	CheckSeconds     prometheus.Histogram
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rove_validate_requests_total",
		Help:        "Validate requests handled, by outcome.",
		ConstLabels: prometheus.Labels{"service": service},
	}, []string{"outcome"})
	invocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rove_check_invocations_total",
		Help:        "Check invocations completed, by outcome.",
		ConstLabels: prometheus.Labels{"service": service},
	}, []string{"outcome"})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rove_series_fetches_total",
		Help:        "Series fetches issued to data connectors, by source and outcome.",
		ConstLabels: prometheus.Labels{"service": service},
	}, []string{"source", "outcome"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "rove_dispatch_retries_total",
		Help:        "Transport-level retries of check invocations.",
		ConstLabels: prometheus.Labels{"service": service},
	})
	requestSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "rove_validate_request_seconds",
		Help:        "End-to-end latency of Validate requests.",
		ConstLabels: prometheus.Labels{"service": service},
		Buckets:     prometheus.ExponentialBuckets(0.005, 2, 12),
	})
	checkSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "rove_check_invocation_seconds",
		Help:        "Latency of individual check invocations.",
		ConstLabels: prometheus.Labels{"service": service},
		Buckets:     prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	registry.MustRegister(requests, invocations, fetches, retries, requestSeconds, checkSeconds)

	return &Metrics{
		registry:         registry,
		RequestsTotal:    requests,
		InvocationsTotal: invocations,
		FetchesTotal:     fetches,
		RetriesTotal:     retries,
		RequestSeconds:   requestSeconds,
		CheckSeconds:     checkSeconds,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
