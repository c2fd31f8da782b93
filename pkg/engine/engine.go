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

// Package engine implements the periodic balancing engine: the closed
// control loop that samples load, selects overloaded CPUs' IRQs and
// commits new affinity masks. The loop is single-threaded; signals
// only set flags which are sampled at the top of each tick.
package engine

import (
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/containers/irqd/pkg/balance"
	"github.com/containers/irqd/pkg/config"
	"github.com/containers/irqd/pkg/healthz"
	"github.com/containers/irqd/pkg/irq"
	logger "github.com/containers/irqd/pkg/log"
	"github.com/containers/irqd/pkg/metrics"
	"github.com/containers/irqd/pkg/proximity"
	"github.com/containers/irqd/pkg/stats"
	"github.com/containers/irqd/pkg/sysfs"
)

var log = logger.NewLogger("engine")

// Options are the engine's non-reloadable startup parameters.
type Options struct {
	// ConfigFile is the configuration file path.
	ConfigFile string
	// ConfigFileRequired makes a missing config file an error; set
	// when the operator named the file explicitly.
	ConfigFileRequired bool
	// ProximityFile is the optional IRQ-to-NUMA override file path.
	ProximityFile string
}

// Engine owns the topology, the IRQ registry, and the active
// configuration snapshot, and drives the balancing tick loop.
type Engine struct {
	opts    Options
	cfg     *config.Config
	sys     *sysfs.System
	reg     *irq.Registry
	queue   *balance.Queue
	pxm     *proximity.Table
	sampler *stats.Sampler
	rng     *rand.Rand

	collector *metrics.Collector

	stopFlag   int32
	reloadFlag int32
	wake       chan struct{}
	lastTick   int64 // unix nanoseconds of the last completed tick

	snapshot struct {
		sync.RWMutex
		loads   map[int]float64
		weights map[int]float64
	}
}

// New creates an engine: scans the topology, loads the proximity
// overrides, and prepares the registry.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	sys, err := sysfs.DiscoverSystem(cfg.HT)
	if err != nil {
		return nil, errors.Wrap(err, "topology scan failed")
	}

	var pxm *proximity.Table
	if opts.ProximityFile != "" {
		pxm, err = proximity.Load(opts.ProximityFile, sys.NodeIDs())
		if err != nil {
			return nil, err
		}
		pxm.Dump()
	}

	e := &Engine{
		opts:    opts,
		cfg:     cfg,
		sys:     sys,
		reg:     irq.NewRegistry(),
		queue:   balance.NewQueue(),
		pxm:     pxm,
		sampler: stats.NewSampler(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		wake:    make(chan struct{}, 1),
	}
	e.snapshot.loads = make(map[int]float64)
	e.snapshot.weights = make(map[int]float64)
	e.collector = metrics.NewCollector(e)

	healthEngine.Store(e)
	healthOnce.Do(func() {
		healthz.RegisterHealthChecker("engine", func() error {
			if e, ok := healthEngine.Load().(*Engine); ok {
				return e.healthCheck()
			}
			return nil
		})
	})

	return e, nil
}

// The health checker is registered once and follows the most recently
// created engine.
var (
	healthOnce   sync.Once
	healthEngine atomic.Value
)

// Config returns the active configuration snapshot.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// System returns the engine's topology model.
func (e *Engine) System() *sysfs.System {
	return e.sys
}

// Registry returns the engine's IRQ registry.
func (e *Engine) Registry() *irq.Registry {
	return e.reg
}

// Collector returns the engine's metrics collector.
func (e *Engine) Collector() *metrics.Collector {
	return e.collector
}

// RequestStop asks the loop to terminate at the next tick boundary,
// cutting a sleep in progress short. Safe to call from any goroutine.
func (e *Engine) RequestStop() {
	atomic.StoreInt32(&e.stopFlag, 1)
	e.poke()
}

// RequestReload asks the loop to re-read the configuration file at the
// top of the next tick. Safe to call from any goroutine.
func (e *Engine) RequestReload() {
	atomic.StoreInt32(&e.reloadFlag, 1)
	e.poke()
}

func (e *Engine) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run drives the tick loop until termination is requested.
func (e *Engine) Run() {
	log.Info("balancing engine started")

	for atomic.LoadInt32(&e.stopFlag) == 0 {
		if atomic.CompareAndSwapInt32(&e.reloadFlag, 1, 0) {
			e.reloadConfig()
		}

		interval := e.Tick()
		e.sleep(interval)
	}

	log.Info("balancing engine stopped")
}

// Tick runs one balancing cycle and returns the interval to sleep
// before the next one: the short interval after an active balance, the
// long one otherwise.
func (e *Engine) Tick() time.Duration {
	cfg := e.cfg

	if err := e.sys.Refresh(); err != nil {
		log.Error("topology refresh failed, keeping previous topology: %v", err)
	}

	added, err := e.reg.Scan(e.sys, e.pxm)
	if err != nil {
		log.Error("IRQ scan failed, skipping this tick: %v", err)
		return cfg.LongInterval
	}
	for _, i := range added {
		if i.Balanceable() {
			e.queue.Push(i)
		}
	}

	e.linkIRQs()

	if err := e.sampler.Sample(e.sys, e.reg); err != nil {
		log.Error("statistics sampling failed, skipping this tick: %v", err)
		e.queue.Clear()
		return cfg.LongInterval
	}
	stats.Dump(e.sys)
	e.reg.Dump()

	balance.ChooseIRQsToMove(e.sys, e.reg, e.queue,
		cfg.Threshold, cfg.Strategy, cfg.ExcludeCPUs, e.rng)

	interval := cfg.LongInterval
	moved, failures := 0, 0
	if e.queue.Len() > 0 {
		interval = cfg.ShortInterval

		placed := balance.Balance(e.sys, e.queue.IRQs(),
			cfg.LoadLimit, cfg.ExcludeCPUs, cfg.NonLocalCPUs)
		moved = len(placed)

		if err := irq.ApplyAffinity(placed); err != nil {
			if merr, ok := err.(*multierror.Error); ok {
				failures = merr.Len()
			} else {
				failures = 1
			}
		}
		e.queue.Clear()
	}

	e.collector.TickDone(moved, failures)
	e.updateSnapshot()
	atomic.StoreInt64(&e.lastTick, time.Now().UnixNano())

	return interval
}

// linkIRQs rebuilds the IRQ-to-CPU ownership from the current affinity
// masks: every IRQ is owned by the lowest modeled CPU of its mask.
func (e *Engine) linkIRQs() {
	for _, id := range e.sys.CPUIDs() {
		e.sys.CPU(id).ClearIRQs()
	}
	e.reg.ForEach(func(i *irq.IRQ) {
		if owner := e.sys.Owner(i.Affinity()); owner != nil {
			owner.OwnIRQ(i.Num())
		}
	})
}

// reloadConfig re-reads the configuration file, keeping the previous
// snapshot on any error. A changed ht setting forces a topology rescan.
func (e *Engine) reloadConfig() {
	if _, err := os.Stat(e.opts.ConfigFile); err != nil {
		if e.opts.ConfigFileRequired {
			log.Error("can't find config file %s", e.opts.ConfigFile)
		}
		return
	}

	log.Info("re-reading config file %s", e.opts.ConfigFile)
	cfg, err := config.LoadFile(e.opts.ConfigFile)
	if err != nil {
		log.Error("config reload failed, keeping previous configuration: %v", err)
		return
	}

	if cfg.HT != e.cfg.HT {
		sys, err := sysfs.DiscoverSystem(cfg.HT)
		if err != nil {
			log.Error("topology rescan for ht=%v failed, keeping previous configuration: %v",
				cfg.HT, err)
			return
		}
		e.sys = sys
		e.reg = irq.NewRegistry()
		e.queue.Clear()
	}

	e.cfg = cfg
	cfg.Dump()
}

// sleep waits for the given interval, waking early on stop or reload
// requests.
func (e *Engine) sleep(interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-e.wake:
	}
}

// updateSnapshot publishes the per-CPU loads and per-IRQ weights for
// concurrent metrics scraping.
func (e *Engine) updateSnapshot() {
	loads := make(map[int]float64, e.sys.CPUCount())
	for _, id := range e.sys.CPUIDs() {
		loads[id] = e.sys.CPU(id).Load()
	}
	weights := make(map[int]float64, e.reg.Len())
	e.reg.ForEach(func(i *irq.IRQ) {
		weights[i.Num()] = i.Weight()
	})

	e.snapshot.Lock()
	e.snapshot.loads = loads
	e.snapshot.weights = weights
	e.snapshot.Unlock()
}

// CPULoads implements metrics.Source.
func (e *Engine) CPULoads() map[int]float64 {
	e.snapshot.RLock()
	defer e.snapshot.RUnlock()
	loads := make(map[int]float64, len(e.snapshot.loads))
	for id, load := range e.snapshot.loads {
		loads[id] = load
	}
	return loads
}

// IRQWeights implements metrics.Source.
func (e *Engine) IRQWeights() map[int]float64 {
	e.snapshot.RLock()
	defer e.snapshot.RUnlock()
	weights := make(map[int]float64, len(e.snapshot.weights))
	for num, weight := range e.snapshot.weights {
		weights[num] = weight
	}
	return weights
}

// healthCheck reports the engine unhealthy when ticks have stopped
// completing.
func (e *Engine) healthCheck() error {
	last := atomic.LoadInt64(&e.lastTick)
	if last == 0 {
		return nil
	}
	stale := 3 * e.cfg.LongInterval
	if since := time.Since(time.Unix(0, last)); since > stale {
		return errors.Errorf("no completed tick for %s", since)
	}
	return nil
}
