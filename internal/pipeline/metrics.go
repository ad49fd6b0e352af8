package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stationsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeshifter_pipeline_stations_total",
			Help: "Stations executed, by station and outcome",
		},
		[]string{"station", "status"},
	)

	stationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrapeshifter_pipeline_station_duration_seconds",
			Help:    "Station execution duration in seconds",
			Buckets: []float64{.05, .25, 1, 5, 15, 30, 60, 120, 240},
		},
		[]string{"station"},
	)

	pipelineCost = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scrapeshifter_pipeline_cost_dollars",
			Help:    "Total cost per lead run in dollars",
			Buckets: []float64{0, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)
