package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_cycle_duration_seconds",
		Help:    "Wall time of one full trading cycle.",
		Buckets: prometheus.DefBuckets,
	})

	cycleCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_cycle_candidates_total",
		Help: "Candidates produced by evaluation, by kind.",
	}, []string{"kind"})
)
