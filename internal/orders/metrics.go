package orders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

var (
	pairsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_pairs_opened_total",
		Help: "Paired open attempts by outcome.",
	}, []string{"result"})

	pairsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_pairs_closed_total",
		Help: "Paired close attempts by outcome.",
	}, []string{"result"})

	legUnwinds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_leg_unwinds_total",
		Help: "Lone-leg unwind attempts by venue.",
	}, []string{"venue"})
)
