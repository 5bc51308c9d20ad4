package prom_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/tiercache/cache"
	"github.com/IvanBrykalov/tiercache/metrics/prom"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestAdapter_ObserveSetsGaugesFromSnapshot(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := prom.New(reg, "tiercache", "test", nil)

	stats := cache.Stats{
		Tiers: []cache.TierStat{
			{Name: "l1", Level: 1, Hits: 5},
			{Name: "shared", Level: 2, Hits: 3},
		},
		Misses:                2,
		Promotions:            1,
		InFlightWaits:         4,
		InvalidationsSent:     7,
		InvalidationsReceived: 6,
		InvalidationsByKind:   map[string]uint64{"remove": 2, "update": 4},
		SubscriberErrors:      1,
	}

	a.Observe(stats)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)

	found := map[string]*dto.MetricFamily{}
	for _, mf := range mfs {
		found[mf.GetName()] = mf
	}

	require.Contains(t, found, "tiercache_test_misses_total")
	require.Equal(t, float64(2), found["tiercache_test_misses_total"].Metric[0].GetGauge().GetValue())

	require.Contains(t, found, "tiercache_test_promotions_total")
	require.Equal(t, float64(1), found["tiercache_test_promotions_total"].Metric[0].GetGauge().GetValue())

	require.Contains(t, found, "tiercache_test_tier_hits")
	hitsByTier := map[string]float64{}
	for _, m := range found["tiercache_test_tier_hits"].Metric {
		var tierName string
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "tier" {
				tierName = lp.GetValue()
			}
		}
		hitsByTier[tierName] = m.GetGauge().GetValue()
	}
	require.Equal(t, float64(5), hitsByTier["l1"])
	require.Equal(t, float64(3), hitsByTier["shared"])

	require.Contains(t, found, "tiercache_test_invalidations_by_kind")
	byKind := map[string]float64{}
	for _, m := range found["tiercache_test_invalidations_by_kind"].Metric {
		var kind string
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "kind" {
				kind = lp.GetValue()
			}
		}
		byKind[kind] = m.GetGauge().GetValue()
	}
	require.Equal(t, float64(2), byKind["remove"])
	require.Equal(t, float64(4), byKind["update"])
}

func TestAdapter_ObserveOverwritesPreviousSnapshot(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := prom.New(reg, "tiercache", "test", nil)

	a.Observe(cache.Stats{Misses: 10})
	a.Observe(cache.Stats{Misses: 3})

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "tiercache_test_misses_total" {
			require.Equal(t, float64(3), mf.Metric[0].GetGauge().GetValue())
		}
	}
}
