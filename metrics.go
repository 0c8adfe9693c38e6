package shmqueue

import "github.com/prometheus/client_golang/prometheus"

// queueMetrics holds the Prometheus instruments for one open Queue,
// grounded on C360Studio-semstreams/pkg/buffer/metrics.go's per-component
// counter-plus-gauge shape.
type queueMetrics struct {
	pushTotal      prometheus.Counter
	forcePushTotal prometheus.Counter
	popTotal       prometheus.Counter
	evictedTotal   prometheus.Counter
	connGauge      prometheus.Gauge
}

func newQueueMetrics(name string, variant Variant) *queueMetrics {
	labels := prometheus.Labels{"channel": name, "variant": variant.String()}
	m := &queueMetrics{
		pushTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "shmqueue",
			Name:        "push_total",
			ConstLabels: labels,
			Help:        "Total number of successful Push calls.",
		}),
		forcePushTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "shmqueue",
			Name:        "force_push_total",
			ConstLabels: labels,
			Help:        "Total number of successful ForcePush calls.",
		}),
		popTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "shmqueue",
			Name:        "pop_total",
			ConstLabels: labels,
			Help:        "Total number of successful Pop calls.",
		}),
		evictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "shmqueue",
			Name:        "evicted_readers_total",
			ConstLabels: labels,
			Help:        "Total number of readers evicted by ForcePush.",
		}),
		connGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "shmqueue",
			Name:        "connected_readers",
			ConstLabels: labels,
			Help:        "Current number of connected readers.",
		}),
	}
	m.pushTotal = registerCounter(m.pushTotal)
	m.forcePushTotal = registerCounter(m.forcePushTotal)
	m.popTotal = registerCounter(m.popTotal)
	m.evictedTotal = registerCounter(m.evictedTotal)
	m.connGauge = registerGauge(m.connGauge)
	return m
}

// registerCounter registers c, or returns the already-registered instance
// for the same name+labels if a prior Queue for this (name, variant) pair
// registered it first — reopening a channel must keep reporting to the
// same series, not fail or fork a duplicate one.
func registerCounter(c prometheus.Counter) prometheus.Counter {
	if err := prometheus.DefaultRegisterer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return c
}

func registerGauge(g prometheus.Gauge) prometheus.Gauge {
	if err := prometheus.DefaultRegisterer.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing
			}
		}
	}
	return g
}
