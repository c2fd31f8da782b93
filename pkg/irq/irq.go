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

package irq

import (
	"path/filepath"
	"sort"

	"github.com/containers/irqd/pkg/cpumask"
	logger "github.com/containers/irqd/pkg/log"
)

var (
	// Parent directory under which the host procfs is mounted (if non-standard).
	procRoot = ""
	// Our logger instance.
	log = logger.NewLogger("irq")
)

// SetProcRoot sets the procfs root directory.
func SetProcRoot(path string) {
	procRoot = path
}

// ProcPath returns the absolute path of the given procfs entry.
func ProcPath(entry string) string {
	return filepath.Join("/", procRoot, "proc", entry)
}

// IRQ is a hardware interrupt line known to the registry.
type IRQ struct {
	num      int
	desc     string           // free-form text from the kernel
	refined  string           // device token extracted from desc
	affinity *cpumask.CPUMask // last-known kernel mask
	local    *cpumask.CPUMask // CPUs NUMA-local to the device, or all
	pxmNode  int              // operator override node, or NoPxmNode

	weight    float64 // smoothed interrupts per tick
	intr      uint64  // interrupt delta this tick
	prevCount uint64  // previous raw counter sum
	samples   int

	balanceable bool // false for kernel-internal IRQs
}

// NoPxmNode marks the absence of an operator proximity override.
const NoPxmNode = -2

// Num returns the IRQ number.
func (i *IRQ) Num() int {
	return i.num
}

// Desc returns the kernel description of the IRQ.
func (i *IRQ) Desc() string {
	return i.desc
}

// RefinedDesc returns the device token extracted from the description.
func (i *IRQ) RefinedDesc() string {
	return i.refined
}

// Affinity returns the last-known affinity mask of the IRQ.
func (i *IRQ) Affinity() *cpumask.CPUMask {
	return i.affinity
}

// SetAffinity replaces the modeled affinity mask of the IRQ.
func (i *IRQ) SetAffinity(mask *cpumask.CPUMask) {
	i.affinity = mask
}

// LocalCPUs returns the mask of CPUs NUMA-local to the device.
func (i *IRQ) LocalCPUs() *cpumask.CPUMask {
	return i.local
}

// PxmNode returns the operator override node, NoPxmNode if none.
func (i *IRQ) PxmNode() int {
	return i.pxmNode
}

// Weight returns the smoothed interrupts-per-tick of the IRQ.
func (i *IRQ) Weight() float64 {
	return i.weight
}

// Intr returns the interrupt delta of the current tick.
func (i *IRQ) Intr() uint64 {
	return i.intr
}

// Balanceable returns false for IRQs that must never be moved.
func (i *IRQ) Balanceable() bool {
	return i.balanceable
}

// UpdateCount feeds the current raw counter sum into the IRQ, updating
// the per-tick delta and the smoothed weight. The weight of a freshly
// counted IRQ is initialised to its first delta.
func (i *IRQ) UpdateCount(sum uint64) {
	switch {
	case i.samples == 0:
		i.intr = 0
	case sum < i.prevCount:
		// counter restart
		i.intr = sum
	default:
		i.intr = sum - i.prevCount
	}
	i.prevCount = sum

	if i.samples == 1 {
		i.weight = float64(i.intr)
	} else if i.samples > 1 {
		i.weight = 0.5*i.weight + 0.5*float64(i.intr)
	}
	i.samples++
}

// New creates an IRQ with the given attributes, outside a kernel scan.
func New(num int, desc string, affinity, local *cpumask.CPUMask) *IRQ {
	return &IRQ{
		num:         num,
		desc:        desc,
		refined:     refineDesc(desc),
		affinity:    affinity,
		local:       local,
		pxmNode:     NoPxmNode,
		balanceable: balanceable(desc),
	}
}

// Registry tracks all IRQs listed by the kernel.
type Registry struct {
	irqs map[int]*IRQ
}

// NewRegistry creates an empty IRQ registry.
func NewRegistry() *Registry {
	return &Registry{irqs: make(map[int]*IRQ)}
}

// Add inserts the given IRQ into the registry, replacing any entry
// with the same number.
func (r *Registry) Add(i *IRQ) {
	r.irqs[i.num] = i
}

// Get returns the IRQ with the given number, nil if unknown.
func (r *Registry) Get(num int) *IRQ {
	return r.irqs[num]
}

// Len returns the number of tracked IRQs.
func (r *Registry) Len() int {
	return len(r.irqs)
}

// Nums returns all tracked IRQ numbers, ascending.
func (r *Registry) Nums() []int {
	nums := make([]int, 0, len(r.irqs))
	for num := range r.irqs {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

// ForEach calls fn for every tracked IRQ in ascending number order.
func (r *Registry) ForEach(fn func(*IRQ)) {
	for _, num := range r.Nums() {
		fn(r.irqs[num])
	}
}

// Dump logs the registry contents.
func (r *Registry) Dump() {
	r.ForEach(func(i *IRQ) {
		log.Debug("IRQ %3d: affinity %s, local %s, weight %.1f, %q",
			i.num, i.affinity.ListString(), i.local.ListString(), i.weight, i.desc)
	})
}
