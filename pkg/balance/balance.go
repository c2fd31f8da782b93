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

// Package balance implements the IRQ selection and placement policies:
// which IRQs to evict from overloaded CPUs, and which CPU each evicted
// IRQ lands on.
package balance

import (
	"math/rand"

	"github.com/containers/irqd/pkg/cpumask"
	"github.com/containers/irqd/pkg/irq"
	logger "github.com/containers/irqd/pkg/log"
	"github.com/containers/irqd/pkg/sysfs"
)

var log = logger.NewLogger("balance")

// ChooseIRQsToMove picks at most one IRQ to evict from every CPU whose
// load has reached the threshold, appending the picks to the queue.
// Excluded CPUs and already-queued IRQs are never picked.
func ChooseIRQsToMove(sys *sysfs.System, reg *irq.Registry, q *Queue,
	threshold float64, strategy Strategy, exclude *cpumask.CPUMask, rng *rand.Rand) {

	for _, id := range sys.CPUIDs() {
		cpu := sys.CPU(id)
		if exclude.IsSet(id) || cpu.Load() < threshold {
			continue
		}

		var candidates []*irq.IRQ
		for _, num := range cpu.IRQs() {
			i := reg.Get(num)
			if i == nil || !i.Balanceable() || q.Contains(num) {
				continue
			}
			candidates = append(candidates, i)
		}
		if len(candidates) == 0 {
			continue
		}

		pick := choose(candidates, strategy, rng)
		log.Info("CPU %d overloaded (%.2f%%), will move IRQ %d (weight %.1f)",
			id, cpu.Load(), pick.Num(), pick.Weight())
		q.Push(pick)
	}
}

// choose applies the strategy to a non-empty candidate list. The list
// is in ascending IRQ number order, so keeping the first candidate on
// equal weights breaks ties towards the lowest number.
func choose(candidates []*irq.IRQ, strategy Strategy, rng *rand.Rand) *irq.IRQ {
	switch strategy {
	case StrategyMax:
		pick := candidates[0]
		for _, i := range candidates[1:] {
			if i.Weight() > pick.Weight() {
				pick = i
			}
		}
		return pick
	case StrategyMin:
		pick := candidates[0]
		for _, i := range candidates[1:] {
			if i.Weight() < pick.Weight() {
				pick = i
			}
		}
		return pick
	default:
		return candidates[rng.Intn(len(candidates))]
	}
}

// Balance assigns a destination CPU to every queued IRQ, committing the
// move to the model. IRQs with no viable destination keep their prior
// affinity and are left out of the returned commit list.
func Balance(sys *sysfs.System, irqs []*irq.IRQ,
	loadLimit float64, exclude *cpumask.CPUMask, nonLocal bool) []*irq.IRQ {

	var placed []*irq.IRQ

	for _, i := range irqs {
		dest := place(sys, i, loadLimit, exclude, nonLocal)
		if dest < 0 {
			log.Warn("IRQ %d: no suitable destination CPU, keeping affinity %s",
				i.Num(), i.Affinity().ListString())
			continue
		}

		if owner := sys.Owner(i.Affinity()); owner != nil {
			owner.DisownIRQ(i.Num())
		}
		i.SetAffinity(cpumask.NewWith(dest))
		sys.CPU(dest).OwnIRQ(i.Num())

		log.Info("IRQ %d moved to CPU %d (load %.2f%%)",
			i.Num(), dest, sys.CPU(dest).Load())
		placed = append(placed, i)
	}

	return placed
}

// place picks the destination CPU for one IRQ: among non-excluded CPUs
// below the load limit, preferring NUMA-local ones, lowest load wins
// and ties break to the lowest CPU id. Returns -1 when no candidate is
// left.
func place(sys *sysfs.System, i *irq.IRQ,
	loadLimit float64, exclude *cpumask.CPUMask, nonLocal bool) int {

	eligible := cpumask.New()
	for _, id := range sys.CPUIDs() {
		if exclude.IsSet(id) || sys.CPU(id).Load() >= loadLimit {
			continue
		}
		eligible.Set(id)
	}

	candidates := eligible
	if !i.LocalCPUs().IsFull() {
		local := eligible.Clone()
		local.And(i.LocalCPUs())
		switch {
		case !local.IsEmpty():
			candidates = local
		case nonLocal:
			log.Debug("IRQ %d: no local candidates, falling back to any CPU", i.Num())
		default:
			return -1
		}
	}

	dest, destLoad := -1, 0.0
	candidates.ForEach(func(id int) bool {
		load := sys.CPU(id).Load()
		if dest < 0 || load < destLoad {
			dest, destLoad = id, load
		}
		return true
	})

	return dest
}
