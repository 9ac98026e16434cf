// Package metrics exports Prometheus metrics about the operations of process groups.
//
// A Collector is fed by the completion hooks of the backends (see Collector.Instrument), and optionally by
// a Registry interceptor that counts the dispatched ops (see Collector.Interceptor).
package metrics

import (
	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace of all metrics.
const Namespace = "collectives"

// Collector of the process group metrics. It implements prometheus.Collector.
type Collector struct {
	works      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	dispatched *prometheus.CounterVec
	failed     *prometheus.CounterVec
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector. Register it with a prometheus.Registerer to export it.
func NewCollector() *Collector {
	return &Collector{
		works: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "works_total",
				Help:      "Operations completed by the backends, by final state.",
			},
			[]string{"backend", "op", "state"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "work_duration_seconds",
				Help:      "Duration of the operations, from start to completion.",
				Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
			},
			[]string{"backend", "op"},
		),
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "dispatched_total",
				Help:      "Ops dispatched through the registry, by op name.",
			},
			[]string{"op"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "dispatch_errors_total",
				Help:      "Ops whose dispatch failed synchronously, by op name.",
			},
			[]string{"op"},
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.works.Describe(ch)
	c.duration.Describe(ch)
	c.dispatched.Describe(ch)
	c.failed.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.works.Collect(ch)
	c.duration.Collect(ch)
	c.dispatched.Collect(ch)
	c.failed.Collect(ch)
}

// Observe records a completed operation.
func (c *Collector) Observe(info *distributed.WorkInfo) {
	op := info.OpType.String()
	c.works.WithLabelValues(info.Backend, op, info.State.String()).Inc()
	duration := info.ActiveDuration
	if duration == 0 && !info.TimeFinished.IsZero() {
		duration = info.TimeFinished.Sub(info.TimeStarted)
	}
	c.duration.WithLabelValues(info.Backend, op).Observe(duration.Seconds())
}

// Hook returns a completion hook that records the operations in the Collector.
func (c *Collector) Hook() distributed.CompletionHook {
	return c.Observe
}

// Instrument registers the Collector's hook on every backend of pg, and enables their timing.
func (c *Collector) Instrument(pg *distributed.ProcessGroup) error {
	if !pg.HasBackends() {
		return errors.Wrapf(distributed.ErrConfiguration, "metrics: process group %s has no backends to instrument", pg)
	}
	seen := make(map[string]bool)
	for _, deviceType := range pg.DeviceTypes() {
		backend, err := pg.GetBackendForDevice(deviceType)
		if err != nil {
			if errors.Is(err, distributed.ErrBackendNotFound) {
				continue
			}
			return err
		}
		if seen[backend.ID()] {
			continue
		}
		seen[backend.ID()] = true
		backend.RegisterOnCompletionHook(c.Hook())
	}
	pg.EnableCollectivesTiming()
	return nil
}

// Interceptor returns a distributed.Interceptor that counts the ops dispatched, and the ones whose dispatch
// failed synchronously.
func (c *Collector) Interceptor() distributed.Interceptor {
	return func(name string, next distributed.OpHandler) distributed.OpHandler {
		return func(call *distributed.OpCall) (*distributed.OpResult, error) {
			c.dispatched.WithLabelValues(name).Inc()
			result, err := next(call)
			if err != nil {
				c.failed.WithLabelValues(name).Inc()
			}
			return result, err
		}
	}
}
