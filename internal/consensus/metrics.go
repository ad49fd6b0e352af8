package consensus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var providerBlacklists = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scrapeshifter_provider_blacklists_total",
		Help: "Provider blacklist events, by provider and reason",
	},
	[]string{"provider", "reason"},
)
