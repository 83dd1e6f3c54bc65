// Package metrics declares the prometheus counters the transaction
// coordinator increments, following the store/tikv/metrics convention of
// registering everything at package init. Most are exported as label
// vectors that call sites select with WithLabelValues.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RollbackCounter counts rows rolled back via eraseLockAndData, labelled
	// by whether the row rolled back was the primary or a secondary.
	RollbackCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "themis",
			Subsystem: "client",
			Name:      "rollback_total",
			Help:      "Number of rows rolled back by the coordinator.",
		}, []string{"role"})

	// LockCleanCounter counts lock-cleaner invocations triggered by the
	// coordinator, labelled by the path that observed the conflict.
	LockCleanCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "themis",
			Subsystem: "client",
			Name:      "lock_clean_total",
			Help:      "Number of times the coordinator invoked the lock cleaner.",
		}, []string{"path"})

	// PrewriteRetryCounter counts the single retry prewriteRowWithLockClean
	// performs after a successful lock clean.
	PrewriteRetryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "themis",
			Subsystem: "client",
			Name:      "prewrite_retry_total",
			Help:      "Number of prewrite retries issued after cleaning a conflicting lock.",
		}, []string{"role"})

	// CommitSecondaryFailureCounter counts best-effort secondary commit
	// failures that were logged and swallowed.
	CommitSecondaryFailureCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "themis",
			Subsystem: "client",
			Name:      "commit_secondary_failure_total",
			Help:      "Number of secondary commit RPCs that failed and were swallowed.",
		})

	// TxnDurationHistogram observes wall-clock commit() latency.
	TxnDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "themis",
			Subsystem: "client",
			Name:      "txn_duration_seconds",
			Help:      "Observed latency of Transaction.Commit, labelled by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 18),
		}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		RollbackCounter,
		LockCleanCounter,
		PrewriteRetryCounter,
		CommitSecondaryFailureCounter,
		TxnDurationHistogram,
	)
}
