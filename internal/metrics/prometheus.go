package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	dispatchCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchflow_dispatch_total",
		Help: "Outbox rows processed by dispatch loops, by loop and outcome",
	}, []string{"loop", "outcome"})

	recoveryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchflow_recovery_total",
		Help: "Stale tasks reclaimed by the recovery loop, by outcome",
	}, []string{"outcome"})

	retryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchflow_retry_total",
		Help: "Rows resent by retry loops, by loop and outcome",
	}, []string{"loop", "outcome"})

	retryIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchflow_retry_iterations_total",
		Help: "Iterations consumed by retry loop invocations",
	}, []string{"loop"})

	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fetchflow_online_watchers",
		Help: "Number of connected dashboard watchers",
	})

	pushCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetchflow_event_push_total",
		Help: "Total number of task events pushed to watchers",
	})
)

type prometheusObserver struct{}

func NewPrometheusObserver() *prometheusObserver {
	return &prometheusObserver{}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) RecordDispatch(loop string, success, failed int) {
	dispatchCounter.WithLabelValues(loop, "success").Add(float64(success))
	dispatchCounter.WithLabelValues(loop, "failed").Add(float64(failed))
}

func (p *prometheusObserver) RecordRecovery(success, failed int) {
	recoveryCounter.WithLabelValues("success").Add(float64(success))
	recoveryCounter.WithLabelValues("failed").Add(float64(failed))
}

func (p *prometheusObserver) RecordRetry(loop string, succeeded, failed, iterations int) {
	retryCounter.WithLabelValues(loop, "success").Add(float64(succeeded))
	retryCounter.WithLabelValues(loop, "failed").Add(float64(failed))
	retryIterations.WithLabelValues(loop).Add(float64(iterations))
}

func (p *prometheusObserver) IncOnline() {
	onlineGauge.Inc()
}

func (p *prometheusObserver) DecOnline() {
	onlineGauge.Dec()
}

func (p *prometheusObserver) RecordPush() {
	pushCounter.Inc()
}
