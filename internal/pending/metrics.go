package pending

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pendingEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "fairguard_pending_entries",
	Help: "Number of entries held in a pending-action cache",
}, []string{"cache"})
