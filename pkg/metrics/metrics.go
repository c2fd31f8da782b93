// Copyright The irqd Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the balancing engine's runtime state as
// prometheus metrics, optionally served over HTTP together with the
// health check endpoint.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/containers/irqd/pkg/healthz"
	logger "github.com/containers/irqd/pkg/log"
)

var log = logger.NewLogger("metrics")

// Source provides point-in-time engine state for collection. The
// implementation must be safe to call from the HTTP scrape goroutine.
type Source interface {
	CPULoads() map[int]float64
	IRQWeights() map[int]float64
}

// Collector gathers engine metrics for prometheus.
type Collector struct {
	src Source

	ticks         prometheus.Counter
	moved         prometheus.Counter
	writeFailures prometheus.Counter

	cpuLoadDesc   *prometheus.Desc
	irqWeightDesc *prometheus.Desc
}

// NewCollector creates a collector fed by the given source.
func NewCollector(src Source) *Collector {
	return &Collector{
		src: src,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irqd_ticks_total",
			Help: "Number of completed balancing ticks.",
		}),
		moved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irqd_irqs_moved_total",
			Help: "Number of IRQ affinity moves committed.",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irqd_affinity_write_failures_total",
			Help: "Number of failed smp_affinity writes.",
		}),
		cpuLoadDesc: prometheus.NewDesc(
			"irqd_cpu_load_percent",
			"Per-CPU load during the last tick.",
			[]string{"cpu"}, nil,
		),
		irqWeightDesc: prometheus.NewDesc(
			"irqd_irq_weight",
			"Smoothed interrupts-per-tick weight per IRQ.",
			[]string{"irq"}, nil,
		),
	}
}

// TickDone accounts one completed tick.
func (c *Collector) TickDone(moved, writeFailures int) {
	c.ticks.Inc()
	c.moved.Add(float64(moved))
	c.writeFailures.Add(float64(writeFailures))
}

// Describe implements the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ticks.Desc()
	ch <- c.moved.Desc()
	ch <- c.writeFailures.Desc()
	ch <- c.cpuLoadDesc
	ch <- c.irqWeightDesc
}

// Collect implements the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- c.ticks
	ch <- c.moved
	ch <- c.writeFailures

	for cpu, load := range c.src.CPULoads() {
		ch <- prometheus.MustNewConstMetric(c.cpuLoadDesc,
			prometheus.GaugeValue, load, strconv.Itoa(cpu))
	}
	for irq, weight := range c.src.IRQWeights() {
		ch <- prometheus.MustNewConstMetric(c.irqWeightDesc,
			prometheus.GaugeValue, weight, strconv.Itoa(irq))
	}
}

// Service serves /metrics and /healthz over HTTP.
type Service struct {
	addr     string
	registry *prometheus.Registry
	server   *http.Server
}

// NewService creates an HTTP service on the given address, registering
// the collector. An empty address disables serving.
func NewService(addr string, collector *Collector) (*Service, error) {
	s := &Service{
		addr:     addr,
		registry: prometheus.NewRegistry(),
	}
	if err := s.registry.Register(collector); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins serving in the background. Serving failures are logged,
// never fatal to the balancing loop.
func (s *Service) Start() {
	if s.addr == "" {
		log.Info("no HTTP endpoint configured, metrics serving disabled")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	healthz.Setup(mux)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("serving metrics and health checks on %s", s.addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP serving failed: %v", err)
		}
	}()
}

// Stop shuts the HTTP service down.
func (s *Service) Stop() {
	if s.server != nil {
		s.server.Close()
		s.server = nil
	}
}
