// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xzl01/switcheroo-control/lib/gpu"
)

const namespace = "switcheroo"

const shutdownTimeout = 5 * time.Second

// Metrics holds the daemon's instruments on a private registry, so
// tests and multiple instances never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	gpus         prometheus.Gauge
	dualGPU      prometheus.Gauge
	publishes    prometheus.Counter
	deviceEvents *prometheus.CounterVec
}

// New builds and registers the daemon's instruments.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gpus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gpus",
			Help:      "Number of GPUs in the published state.",
		}),
		dualGPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dual_gpu",
			Help:      "Whether the published state reports a dual-GPU system (0 or 1).",
		}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_publishes_total",
			Help:      "Distinct GPU states published since start.",
		}),
		deviceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_events_total",
			Help:      "DRM device events applied, grouped by action.",
		}, []string{"action"}),
	}
	m.registry.MustRegister(m.gpus, m.dualGPU, m.publishes, m.deviceEvents)
	return m
}

// ObserveSnapshot records one published state.
func (m *Metrics) ObserveSnapshot(snapshot gpu.Snapshot) {
	m.gpus.Set(float64(snapshot.NumGPUs))
	if snapshot.HasDualGPU {
		m.dualGPU.Set(1)
	} else {
		m.dualGPU.Set(0)
	}
	m.publishes.Inc()
}

// ObserveDeviceEvent records one applied hotplug event.
func (m *Metrics) ObserveDeviceEvent(kind gpu.EventKind) {
	m.deviceEvents.WithLabelValues(kind.String()).Inc()
}

// RegisterWatcherCount exposes the live watch-subscriber count as a
// gauge sampled at scrape time.
func (m *Metrics) RegisterWatcherCount(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "watch_subscribers",
		Help:      "Connected watch subscribers.",
	}, func() float64 {
		return float64(count())
	}))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs an HTTP server exposing /metrics on addr until ctx is
// cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
