package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	httpDurationHistogram    *prometheus.HistogramVec
	withdrawalTransitions    *prometheus.CounterVec
	withdrawalRefundCounter  *prometheus.CounterVec
	reviewQueueGauge         prometheus.Gauge
	limitRejectionCounter    *prometheus.CounterVec
	idempotencyCounter       *prometheus.CounterVec
	workerRunCounter         *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		withdrawalTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawal_transitions_total",
			Help: "Withdrawal state transitions by target state",
		}, []string{"to"})

		withdrawalRefundCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawal_refunds_total",
			Help: "Refunds of reserved withdrawal funds",
		}, []string{"reason"})

		reviewQueueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "withdrawal_review_queue_size",
			Help: "Current number of withdrawals awaiting admin review",
		})

		limitRejectionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawal_limit_rejections_total",
			Help: "Requests rejected by the limit tracker",
		}, []string{"window"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			withdrawalTransitions,
			withdrawalRefundCounter,
			reviewQueueGauge,
			limitRejectionCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementWithdrawalTransition(to string) {
	if withdrawalTransitions == nil {
		return
	}
	withdrawalTransitions.WithLabelValues(to).Inc()
}

func IncrementWithdrawalRefund(reason string) {
	if withdrawalRefundCounter == nil {
		return
	}
	withdrawalRefundCounter.WithLabelValues(reason).Inc()
}

func SetReviewQueueSize(size int64) {
	if reviewQueueGauge == nil {
		return
	}
	reviewQueueGauge.Set(float64(size))
}

func IncrementLimitRejection(window string) {
	if limitRejectionCounter == nil {
		return
	}
	limitRejectionCounter.WithLabelValues(window).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
