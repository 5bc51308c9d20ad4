// Package prom adapts cache.Stats snapshots onto Prometheus gauges.
// Adapted from the teacher repo's push-style Metrics hook
// (Hit()/Miss()/Evict() called inline on every cache operation); since
// tiercache's Stats are a point-in-time clone rather than a live handle
// onto the manager's atomics (spec §9), the adapter is pull-style
// instead: call Observe with a fresh snapshot whenever the registry
// should reflect current counters (a periodic ticker, or from a
// Prometheus Collector's Collect method).
package prom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/tiercache/cache"
)

// Adapter exports a cache.Stats snapshot as Prometheus metrics. Safe for
// concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	tierHits              *prometheus.GaugeVec
	misses                prometheus.Gauge
	promotions            prometheus.Gauge
	inFlightWaits         prometheus.Gauge
	invalidationsSent     prometheus.Gauge
	invalidationsReceived prometheus.Gauge
	invalidationsByKind   *prometheus.GaugeVec
	subscriberErrors      prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		tierHits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "tier_hits", Help: "Cache hits satisfied at each tier",
			ConstLabels: constLabels,
		}, []string{"tier", "level"}),
		misses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "misses_total", Help: "Reads that missed every tier",
			ConstLabels: constLabels,
		}),
		promotions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "promotions_total", Help: "Writes caused by promoting a deeper hit into a shallower tier",
			ConstLabels: constLabels,
		}),
		inFlightWaits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "inflight_waits_total", Help: "Callers that coalesced onto another goroutine's in-flight compute",
			ConstLabels: constLabels,
		}),
		invalidationsSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "invalidations_sent_total", Help: "Invalidation messages published",
			ConstLabels: constLabels,
		}),
		invalidationsReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "invalidations_received_total", Help: "Invalidation messages received from peers",
			ConstLabels: constLabels,
		}),
		invalidationsByKind: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "invalidations_by_kind", Help: "Invalidations received, by kind",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		subscriberErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "subscriber_errors_total", Help: "Invalidation subscriber decode or apply errors",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(
		a.tierHits, a.misses, a.promotions, a.inFlightWaits,
		a.invalidationsSent, a.invalidationsReceived, a.invalidationsByKind, a.subscriberErrors,
	)
	return a
}

// Observe updates every gauge from a fresh Stats snapshot.
func (a *Adapter) Observe(stats cache.Stats) {
	for _, t := range stats.Tiers {
		a.tierHits.WithLabelValues(t.Name, strconv.Itoa(t.Level)).Set(float64(t.Hits))
	}
	a.misses.Set(float64(stats.Misses))
	a.promotions.Set(float64(stats.Promotions))
	a.inFlightWaits.Set(float64(stats.InFlightWaits))
	a.invalidationsSent.Set(float64(stats.InvalidationsSent))
	a.invalidationsReceived.Set(float64(stats.InvalidationsReceived))
	for kind, count := range stats.InvalidationsByKind {
		a.invalidationsByKind.WithLabelValues(kind).Set(float64(count))
	}
	a.subscriberErrors.Set(float64(stats.SubscriberErrors))
}
