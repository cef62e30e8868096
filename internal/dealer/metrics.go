package dealer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// messagesTotal counts inbound messages by realm and type
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpcmesh_dealer_messages_total",
		Help: "Inbound dealer messages by realm and message type",
	}, []string{"realm", "type"})

	// errorsTotal counts ERROR replies by realm and reason
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpcmesh_dealer_errors_total",
		Help: "ERROR replies sent by the dealer by realm and reason",
	}, []string{"realm", "reason"})

	registrationsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpcmesh_dealer_registrations",
		Help: "Live procedure registrations by realm",
	}, []string{"realm"})

	activeCallsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpcmesh_dealer_active_calls",
		Help: "Invocations awaiting a yield by realm",
	}, []string{"realm"})

	sessionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpcmesh_dealer_sessions",
		Help: "Sessions attached to each realm",
	}, []string{"realm"})

	// callDuration tracks time from invocation to yield
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rpcmesh_dealer_call_duration_seconds",
		Help:    "Time between dispatching an invocation and receiving its yield",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"realm"})
)
