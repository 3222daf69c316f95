package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "optinet_"

var (
	registerOnce sync.Once

	clientRequests *prometheus.CounterVec
	clientRetries  prometheus.Counter

	collectorCycles  *prometheus.CounterVec
	collectorItems   *prometheus.CounterVec
	collectorLatency *prometheus.HistogramVec

	alarmTransitions *prometheus.CounterVec

	eventsPublished  *prometheus.CounterVec
	eventsDeadletter prometheus.Counter
)

// Init registers collector metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		clientRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "nms_requests_total",
				Help: "NMS API requests by result",
			},
			[]string{"result"},
		)
		clientRetries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "nms_retries_total",
				Help: "NMS API request retries",
			},
		)
		collectorCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "collector_cycles_total",
				Help: "Collection cycles by job and result",
			},
			[]string{"job", "result"},
		)
		collectorItems = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "collector_items_total",
				Help: "Records persisted by collection job",
			},
			[]string{"job"},
		)
		collectorLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "collector_cycle_seconds",
				Help:    "Collection cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		)
		alarmTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_transitions_total",
				Help: "Alarm lifecycle transitions by kind",
			},
			[]string{"transition"},
		)
		eventsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_published_total",
				Help: "Events published by topic and result",
			},
			[]string{"topic", "result"},
		)
		eventsDeadletter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_deadletter_total",
				Help: "Events redirected to the dead-letter topic",
			},
		)

		prometheus.MustRegister(
			clientRequests,
			clientRetries,
			collectorCycles,
			collectorItems,
			collectorLatency,
			alarmTransitions,
			eventsPublished,
			eventsDeadletter,
		)
	})
}

// IncClientRequest counts one NMS request outcome.
func IncClientRequest(result string) {
	if clientRequests != nil {
		clientRequests.WithLabelValues(result).Inc()
	}
}

// IncClientRetry counts one NMS request retry.
func IncClientRetry() {
	if clientRetries != nil {
		clientRetries.Inc()
	}
}

// IncCollectorCycle counts one collection cycle outcome.
func IncCollectorCycle(job, result string) {
	if collectorCycles != nil {
		collectorCycles.WithLabelValues(job, result).Inc()
	}
}

// AddCollectorItems counts persisted records for a job.
func AddCollectorItems(job string, n int) {
	if collectorItems != nil && n > 0 {
		collectorItems.WithLabelValues(job).Add(float64(n))
	}
}

// ObserveCollectorCycle records a cycle duration.
func ObserveCollectorCycle(job string, seconds float64) {
	if collectorLatency != nil {
		collectorLatency.WithLabelValues(job).Observe(seconds)
	}
}

// IncAlarmTransition counts an alarm lifecycle transition.
func IncAlarmTransition(transition string) {
	if alarmTransitions != nil {
		alarmTransitions.WithLabelValues(transition).Inc()
	}
}

// IncEventPublished counts one publish outcome.
func IncEventPublished(topic, result string) {
	if eventsPublished != nil {
		eventsPublished.WithLabelValues(topic, result).Inc()
	}
}

// IncEventDeadletter counts a dead-lettered event.
func IncEventDeadletter() {
	if eventsDeadletter != nil {
		eventsDeadletter.Inc()
	}
}
