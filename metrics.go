package main

import "github.com/prometheus/client_golang/prometheus"

const labelStatus = "status"

// Metrics holds the server's counters. The warning counter makes WARN
// strictness observable without flipping a response to an error.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	warnsTotal    prometheus.Counter
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	packedBytes   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	var m Metrics

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globd_requests_total",
		Help: "Number of glob expansion requests completed, by terminal status.",
	}, []string{labelStatus})
	m.warnsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globd_glob_warn_total",
		Help: "Number of include patterns that matched no files under warn strictness.",
	})
	m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globd_resolve_cache_hits_total",
		Help: "Number of resolutions served from the resolve cache.",
	})
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globd_resolve_cache_misses_total",
		Help: "Number of resolutions that required tree traversal.",
	})
	m.packedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globd_packed_bytes_total",
		Help: "Number of content bytes packed into response buffers.",
	})

	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.warnsTotal, m.cacheHits, m.cacheMisses, m.packedBytes)
	}

	return &m
}
