package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolHandlesInUse tracks connection handles currently checked out of the pool
	PoolHandlesInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coupons_pool_handles_in_use",
			Help: "Number of connection handles currently acquired from the pool",
		},
	)

	// PoolAcquireWait tracks how long callers block waiting for a handle
	PoolAcquireWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "coupons_pool_acquire_wait_seconds",
			Help: "Time spent waiting for a free connection handle in seconds",
			Buckets: []float64{
				0.0001, // 100µs
				0.001,  // 1ms
				0.005,  // 5ms
				0.01,   // 10ms
				0.05,   // 50ms
				0.1,    // 100ms
				0.5,    // 500ms
				1.0,    // 1s
				5.0,    // 5s
			},
		},
	)

	// Purchases counts purchase attempts by outcome
	Purchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupons_purchases_total",
			Help: "Coupon purchase attempts by result",
		},
		[]string{"result"}, // success, already_purchased, out_of_stock, date_expired, not_found, error
	)

	// SweeperCycles counts expiration sweeps by status
	SweeperCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coupons_sweeper_cycles_total",
			Help: "Expiration sweeper cycles by status",
		},
		[]string{"status"}, // success or failure
	)

	// SweeperDeleted counts coupons retired by the sweeper
	SweeperDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coupons_sweeper_deleted_total",
			Help: "Expired coupons deleted by the sweeper",
		},
	)
)

// RecordPurchase records the outcome of one purchase attempt
func RecordPurchase(result string) {
	Purchases.WithLabelValues(result).Inc()
}

// RecordSweep records one sweeper cycle and the number of coupons it retired
func RecordSweep(status string, deleted int) {
	SweeperCycles.WithLabelValues(status).Inc()
	SweeperDeleted.Add(float64(deleted))
}
