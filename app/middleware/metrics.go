package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onboarding",
			Name:      "http_requests_total",
			Help:      "Onboarding API requests by method, route template and final status",
		},
		[]string{"method", "route", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "onboarding",
			Name:      "http_request_duration_seconds",
			Help:      "Onboarding API latency; registration includes password hashing",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	apiInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "onboarding",
			Name:      "http_inflight_requests",
			Help:      "Onboarding API requests currently being served",
		},
	)
)

// Metrics records request count and latency per route template. The status label is the one the
// client will see: errors returned down the chain are mapped the way the error handler maps them
// and panics count as 500 before they are re-raised to the recover middleware.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) (err error) {
		start := time.Now()
		apiInFlight.Inc()

		defer func() {
			apiInFlight.Dec()
			if r := recover(); r != nil {
				observeRequest(c, fiber.StatusInternalServerError, start)
				panic(r)
			}
			observeRequest(c, responseStatus(c, err), start)
		}()

		return c.Next()
	}
}

// responseStatus is the status of a chain that returned err; the response is not written yet when
// an error is pending
func responseStatus(c fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

func observeRequest(c fiber.Ctx, status int, start time.Time) {
	route := c.Path()
	if r := c.Route(); r != nil && r.Path != "" {
		route = r.Path
	}
	labels := prometheus.Labels{
		"method": c.Method(),
		"route":  route,
		"status": strconv.Itoa(status),
	}
	apiRequestsTotal.With(labels).Inc()
	apiRequestDuration.With(labels).Observe(time.Since(start).Seconds())
}
