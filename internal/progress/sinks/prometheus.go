package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qi525/civitai-scraper/internal/progress"
)

// PrometheusSink exports scrape-pipeline metrics via Prometheus. It owns all
// collectors for runs, discovery, fetches, cache hits, and persists.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	discovered    prometheus.Counter
	cacheHits     *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	persisted     *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_runs_started_total",
			Help: "Total scrape runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_runs_completed_total",
			Help: "Total scrape runs completed partitioned by result.",
		}, []string{"result"}),
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_references_discovered_total",
			Help: "Unique image references discovered.",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_reference_cache_hits_total",
			Help: "Download tasks resolved from the reference history.",
		}, []string{"site"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_fetches_total",
			Help: "Image fetch attempts partitioned by site and result.",
		}, []string{"site", "result"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_fetch_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by site.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_images_persisted_total",
			Help: "Persist completions partitioned by outcome (stored or dedup).",
		}, []string{"outcome"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.discovered,
		s.cacheHits,
		s.fetches,
		s.fetchBytes,
		s.fetchDuration,
		s.persisted,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
	case progress.StageDiscover:
		s.discovered.Add(float64(evt.Count))
	case progress.StageCacheHit:
		s.cacheHits.WithLabelValues(site).Inc()
	case progress.StageFetchDone:
		s.fetches.WithLabelValues(site, "success").Inc()
		if evt.Bytes > 0 {
			s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(site).Observe(evt.Dur.Seconds())
		}
	case progress.StageFetchFailed:
		s.fetches.WithLabelValues(site, "error").Inc()
	case progress.StagePersistDone:
		s.persisted.WithLabelValues(string(evt.Outcome)).Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
