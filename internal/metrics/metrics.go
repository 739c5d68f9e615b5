// Package metrics provides client core metrics collection.
// It wraps Prometheus collectors to provide structured telemetry for
// coalesced loads, feed subscription transitions, wallet unlocks, and
// notification delivery.
//
// All recording methods are safe to call on a nil *Collector, so components
// can accept an optional collector without guarding every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Loader call outcomes.
const (
	LoaderStarted   = "started"
	LoaderCoalesced = "coalesced"
	LoaderFailed    = "failed"
)

// Collector provides client metrics collection.
type Collector struct {
	registry *prometheus.Registry

	loaderCalls    *prometheus.CounterVec
	loaderInFlight *prometheus.GaugeVec

	feedSubscriptions *prometheus.CounterVec
	feedAbandoned     *prometheus.CounterVec
	feedEvents        *prometheus.CounterVec

	unlockOutcomes *prometheus.CounterVec

	notifications *prometheus.CounterVec
}

// NewCollector creates a collector registered on a private registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "ember"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.loaderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "calls_total",
			Help:      "Coalesced loader calls by outcome (started, coalesced, failed)",
		},
		[]string{"loader", "outcome"},
	)

	c.loaderInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "in_flight",
			Help:      "Current number of pending keys per loader",
		},
		[]string{"loader"},
	)

	c.feedSubscriptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscriptions_total",
			Help:      "Feed subscription attempts by selector and result",
		},
		[]string{"selector", "result"},
	)

	c.feedAbandoned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "abandoned_transitions_total",
			Help:      "Feed transitions superseded before their settle interval elapsed",
		},
		[]string{"selector"},
	)

	c.feedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Feed events by disposition (accepted, stale, duplicate)",
		},
		[]string{"disposition"},
	)

	c.unlockOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "unlock_total",
			Help:      "Wallet unlock attempts by outcome",
		},
		[]string{"outcome"},
	)

	c.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notifications by result (presented, failed, throttled)",
		},
		[]string{"result"},
	)

	c.registry.MustRegister(
		c.loaderCalls,
		c.loaderInFlight,
		c.feedSubscriptions,
		c.feedAbandoned,
		c.feedEvents,
		c.unlockOutcomes,
		c.notifications,
	)

	return c
}

// Registry returns the registry for exposition.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// LoaderCall records one Ensure call.
func (c *Collector) LoaderCall(loader, outcome string) {
	if c == nil {
		return
	}
	c.loaderCalls.WithLabelValues(loader, outcome).Inc()
}

// LoaderInFlight sets the pending key count for a loader.
func (c *Collector) LoaderInFlight(loader string, n int) {
	if c == nil {
		return
	}
	c.loaderInFlight.WithLabelValues(loader).Set(float64(n))
}

// FeedSubscription records a subscription attempt.
func (c *Collector) FeedSubscription(selector, result string) {
	if c == nil {
		return
	}
	c.feedSubscriptions.WithLabelValues(selector, result).Inc()
}

// FeedAbandoned records a superseded transition.
func (c *Collector) FeedAbandoned(selector string) {
	if c == nil {
		return
	}
	c.feedAbandoned.WithLabelValues(selector).Inc()
}

// FeedEvent records the disposition of one delivered event.
func (c *Collector) FeedEvent(disposition string) {
	if c == nil {
		return
	}
	c.feedEvents.WithLabelValues(disposition).Inc()
}

// UnlockOutcome records the result of a wallet unlock.
func (c *Collector) UnlockOutcome(outcome string) {
	if c == nil {
		return
	}
	c.unlockOutcomes.WithLabelValues(outcome).Inc()
}

// Notification records a notification delivery result.
func (c *Collector) Notification(result string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(result).Inc()
}
