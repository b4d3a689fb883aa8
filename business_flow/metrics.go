package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrations_total",
			Help: "Registration attempts by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	registrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registration_duration_seconds",
			Help:    "Time spent in the registration unit of work",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"role"},
	)

	challengesIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_challenges_issued_total",
			Help: "Verification challenges issued per channel",
		},
		[]string{"channel"},
	)

	challengeDeliveryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_delivery_failures_total",
			Help: "Best-effort challenge deliveries that failed",
		},
		[]string{"channel"},
	)

	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifications_total",
			Help: "Verification attempts by outcome",
		},
		[]string{"outcome"},
	)
)
