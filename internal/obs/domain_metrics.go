package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// DiscountResolutionsTotal counts discount quotes by outcome (discounted, none, failed).
	DiscountResolutionsTotal *prometheus.CounterVec
	// CartRecalculationsTotal counts cart discount passes by outcome (applied, reentrant).
	CartRecalculationsTotal *prometheus.CounterVec
	// OrderLineCorrectionsTotal counts order lines rewritten by reconciliation.
	OrderLineCorrectionsTotal prometheus.Counter
	// ReconciliationsTotal counts reconciliation passes by outcome (clean, corrected, skipped, error).
	ReconciliationsTotal *prometheus.CounterVec
	// HookArbitrationsTotal counts ordering decisions by mode (detected, fallback, default).
	HookArbitrationsTotal *prometheus.CounterVec
	// CacheLookupsTotal counts cache lookups by cache name and result (hit, miss).
	CacheLookupsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers pricing-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		DiscountResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_resolutions_total",
			Help:      "Count of discount resolutions by outcome.",
		}, []string{"point", "result"})
		CartRecalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_recalculations_total",
			Help:      "Count of cart discount passes by outcome.",
		}, []string{"result"})
		OrderLineCorrectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_line_corrections_total",
			Help:      "Number of persisted order lines corrected by reconciliation.",
		})
		ReconciliationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_reconciliations_total",
			Help:      "Count of order reconciliation passes by outcome.",
		}, []string{"trigger", "result"})
		HookArbitrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_arbitrations_total",
			Help:      "Count of hook ordering decisions by point and mode.",
		}, []string{"point", "mode"})
		CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Count of in-process cache lookups by result.",
		}, []string{"cache", "result"})

		DiscountResolutionsTotal = register(reg, DiscountResolutionsTotal)
		CartRecalculationsTotal = register(reg, CartRecalculationsTotal)
		OrderLineCorrectionsTotal = register(reg, OrderLineCorrectionsTotal)
		ReconciliationsTotal = register(reg, ReconciliationsTotal)
		HookArbitrationsTotal = register(reg, HookArbitrationsTotal)
		CacheLookupsTotal = register(reg, CacheLookupsTotal)
	})
}

// CountResolution records a discount resolution outcome when metrics are registered.
func CountResolution(point, result string) {
	if DiscountResolutionsTotal != nil {
		DiscountResolutionsTotal.WithLabelValues(point, result).Inc()
	}
}

// CountCartRecalculation records a cart pass outcome when metrics are registered.
func CountCartRecalculation(result string) {
	if CartRecalculationsTotal != nil {
		CartRecalculationsTotal.WithLabelValues(result).Inc()
	}
}

// CountCorrection records a corrected order line when metrics are registered.
func CountCorrection() {
	if OrderLineCorrectionsTotal != nil {
		OrderLineCorrectionsTotal.Inc()
	}
}

// CountReconciliation records a reconciliation outcome when metrics are registered.
func CountReconciliation(trigger, result string) {
	if ReconciliationsTotal != nil {
		ReconciliationsTotal.WithLabelValues(trigger, result).Inc()
	}
}

// CountArbitration records a hook ordering decision when metrics are registered.
func CountArbitration(point, mode string) {
	if HookArbitrationsTotal != nil {
		HookArbitrationsTotal.WithLabelValues(point, mode).Inc()
	}
}

// CountCacheLookup records a cache hit or miss when metrics are registered.
func CountCacheLookup(cache string, hit bool) {
	if CacheLookupsTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}
