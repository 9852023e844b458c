package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	allocationCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "table_number_allocation_collisions_total",
		Help: "Table number candidates rejected by the unique index at commit time.",
	})

	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "table_status_transitions_total",
		Help: "Committed table status transitions.",
	}, []string{"from", "to"})

	usageSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "table_usage_sessions_total",
		Help: "Usage sessions opened and closed.",
	}, []string{"action"})
)
