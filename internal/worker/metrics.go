package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	leadsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeshifter_worker_leads_total",
			Help: "Leads handled by the queue worker, by outcome",
		},
		[]string{"outcome"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scrapeshifter_worker_queue_depth",
			Help: "Length of the lead queues at last status check",
		},
		[]string{"queue"},
	)
)
