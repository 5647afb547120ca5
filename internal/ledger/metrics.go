package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ledgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fairguard_ledger_operations_total",
	Help: "Warning ledger operations, by operation and result",
}, []string{"op", "result"})
