package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var limitedCommands = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fairguard_rate_limited_commands_total",
	Help: "Commands denied by the per-user rate limiter.",
})
