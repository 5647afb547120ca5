package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pipelineDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fairguard_pipeline_decisions_total",
	Help: "Moderation pipeline decisions, by check and outcome",
}, []string{"check", "outcome"})
