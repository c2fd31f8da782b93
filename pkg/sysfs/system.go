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

package sysfs

import (
	"path/filepath"
	"sort"

	"github.com/containers/irqd/pkg/cpumask"
	logger "github.com/containers/irqd/pkg/log"
)

var (
	// Parent directory under which the host sysfs is mounted (if non-standard).
	sysRoot = ""
	// Our logger instance.
	log = logger.NewLogger("sysfs")
)

const (
	// sysfs devices/cpu subdirectory path
	sysfsCPUPath = "devices/system/cpu"
	// sysfs devices/node subdirectory path
	sysfsNumaNodePath = "devices/system/node"

	// NoNUMANodeID is the id of the synthetic node absorbing non-NUMA CPUs.
	NoNUMANodeID = -1
)

// System models the CPU and NUMA topology relevant to IRQ balancing.
type System struct {
	path  string        // sysfs mount point
	ht    bool          // hyper-thread siblings modeled individually
	nodes map[int]*Node // NUMA nodes, including the synthetic one
	cpus  map[int]*CPU  // modeled CPUs
}

// Node represents a NUMA node. Id NoNUMANodeID denotes the synthetic
// node whose mask is the complement of all real node masks.
type Node struct {
	id   int
	cpus *cpumask.CPUMask
}

// CPU is a modeled CPU. Topology attributes are immutable after a scan;
// irq ownership, load and time counters are updated every tick.
type CPU struct {
	id       int
	pkg      int
	core     int
	node     int
	siblings *cpumask.CPUMask // hyper-thread peers, including self

	irqs      map[int]struct{} // IRQs owned by this CPU for accounting
	load      float64          // 0.0-100.0, from the last sample
	intr      uint64           // interrupts credited this tick
	prevBusy  uint64
	prevTotal uint64
	sampled   bool
}

// SetSysRoot sets the sysfs root directory.
func SetSysRoot(path string) {
	sysRoot = path
}

// SysRoot returns the current sysfs root directory.
func SysRoot() string {
	return sysRoot
}

// DiscoverSystem scans the running system's topology from /sys.
func DiscoverSystem(ht bool) (*System, error) {
	return DiscoverSystemAt(filepath.Join("/", sysRoot, "sys"), ht)
}

// DiscoverSystemAt scans topology from sysfs mounted at the given path.
// With ht disabled, only the lowest-id sibling of each physical core is
// modeled.
func DiscoverSystemAt(path string, ht bool) (*System, error) {
	sys := &System{
		path:  path,
		ht:    ht,
		nodes: make(map[int]*Node),
		cpus:  make(map[int]*CPU),
	}

	if err := sys.scanNodes(); err != nil {
		return nil, err
	}
	if err := sys.scanCPUs(); err != nil {
		return nil, err
	}
	sys.linkNodes()

	if log.DebugEnabled() {
		sys.Dump()
	}

	return sys, nil
}

// Refresh rescans the topology. On error the previous topology is kept
// and the error returned. Mutable per-CPU state of CPUs that persist
// across the refresh is carried over.
func (sys *System) Refresh() error {
	fresh, err := DiscoverSystemAt(sys.path, sys.ht)
	if err != nil {
		return err
	}

	for id, cpu := range fresh.cpus {
		if old, ok := sys.cpus[id]; ok {
			cpu.irqs = old.irqs
			cpu.load = old.load
			cpu.intr = old.intr
			cpu.prevBusy = old.prevBusy
			cpu.prevTotal = old.prevTotal
			cpu.sampled = old.sampled
		}
	}

	sys.nodes = fresh.nodes
	sys.cpus = fresh.cpus

	return nil
}

// Discover NUMA nodes present in the system.
func (sys *System) scanNodes() error {
	entries, _ := filepath.Glob(filepath.Join(sys.path, sysfsNumaNodePath, "node[0-9]*"))
	for _, entry := range entries {
		id := getEnumeratedID(entry)
		if id < 0 {
			continue
		}
		data, err := readSysfsEntry(entry, "cpumap")
		if err != nil {
			return sysfsError(entry, "can't read cpumap: %v", err)
		}
		mask, err := cpumask.Parse(data)
		if err != nil {
			return sysfsError(entry, "can't parse cpumap: %v", err)
		}
		sys.nodes[id] = &Node{id: id, cpus: mask}
	}

	// The synthetic node absorbs every CPU outside all real node masks.
	rest := cpumask.New()
	for _, node := range sys.nodes {
		rest.Or(node.cpus)
	}
	rest.Complement()
	sys.nodes[NoNUMANodeID] = &Node{id: NoNUMANodeID, cpus: rest}

	return nil
}

// Discover CPUs present in the system.
func (sys *System) scanCPUs() error {
	entries, _ := filepath.Glob(filepath.Join(sys.path, sysfsCPUPath, "cpu[0-9]*"))
	for _, entry := range entries {
		if err := sys.scanCPU(entry); err != nil {
			return err
		}
	}

	// Sibling masks are grouped by (package, core). With ht disabled,
	// only the lowest-id sibling of each group stays in the model.
	type pkgCore struct{ pkg, core int }
	groups := make(map[pkgCore]*cpumask.CPUMask)
	for _, cpu := range sys.cpus {
		key := pkgCore{cpu.pkg, cpu.core}
		if groups[key] == nil {
			groups[key] = cpumask.New()
		}
		groups[key].Set(cpu.id)
	}
	for _, cpu := range sys.cpus {
		cpu.siblings = groups[pkgCore{cpu.pkg, cpu.core}].Clone()
	}

	if !sys.ht {
		for id, cpu := range sys.cpus {
			if cpu.siblings.Lowest() != id {
				delete(sys.cpus, id)
			}
		}
	}

	return nil
}

// Scan details of the CPU with the given sysfs directory.
func (sys *System) scanCPU(path string) error {
	cpu := &CPU{
		id:   getEnumeratedID(path),
		node: NoNUMANodeID,
		irqs: make(map[int]struct{}),
	}
	if cpu.id < 0 {
		return nil
	}

	pkg, err := readSysfsInt(path, "topology/physical_package_id")
	if err != nil {
		return sysfsError(path, "can't read physical_package_id: %v", err)
	}
	core, err := readSysfsInt(path, "topology/core_id")
	if err != nil {
		return sysfsError(path, "can't read core_id: %v", err)
	}
	cpu.pkg, cpu.core = pkg, core

	sys.cpus[cpu.id] = cpu
	return nil
}

// Link each CPU to its NUMA node by mask membership, real nodes in id
// order first, the synthetic node as fallback.
func (sys *System) linkNodes() {
	ids := sys.NodeIDs()
	for _, cpu := range sys.cpus {
		cpu.node = NoNUMANodeID
		for _, nid := range ids {
			if nid == NoNUMANodeID {
				continue
			}
			if sys.nodes[nid].cpus.IsSet(cpu.id) {
				cpu.node = nid
				break
			}
		}
	}
}

// NodeIDs returns the ids of all NUMA nodes, ascending, synthetic node
// included.
func (sys *System) NodeIDs() []int {
	ids := make([]int, 0, len(sys.nodes))
	for id := range sys.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// CPUIDs returns the ids of all modeled CPUs, ascending.
func (sys *System) CPUIDs() []int {
	ids := make([]int, 0, len(sys.cpus))
	for id := range sys.cpus {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// CPUCount returns the number of modeled CPUs.
func (sys *System) CPUCount() int {
	return len(sys.cpus)
}

// Node returns the node with the given id, nil if unknown.
func (sys *System) Node(id int) *Node {
	return sys.nodes[id]
}

// CPU returns the CPU with the given id, nil if unknown.
func (sys *System) CPU(id int) *CPU {
	return sys.cpus[id]
}

// PresentMask returns the mask of all modeled CPU ids.
func (sys *System) PresentMask() *cpumask.CPUMask {
	mask := cpumask.New()
	for id := range sys.cpus {
		mask.Set(id)
	}
	return mask
}

// Owner resolves the CPU accounting for the given affinity mask: the
// lowest set bit that is modeled, or the modeled sibling of the lowest
// set bit when hyper-thread deduplication dropped it. Returns nil when
// nothing matches.
func (sys *System) Owner(affinity *cpumask.CPUMask) *CPU {
	lowest := -1
	for id := affinity.Lowest(); id >= 0; id = affinity.NextSet(id) {
		if cpu, ok := sys.cpus[id]; ok {
			return cpu
		}
		if lowest < 0 {
			lowest = id
		}
	}
	if lowest < 0 {
		return nil
	}
	for _, id := range sys.CPUIDs() {
		if sys.cpus[id].siblings.IsSet(lowest) {
			return sys.cpus[id]
		}
	}
	return nil
}

// Dump logs the discovered topology.
func (sys *System) Dump() {
	for _, nid := range sys.NodeIDs() {
		log.Debug("node #%d: cpus %s", nid, sys.nodes[nid].cpus.ListString())
	}
	for _, id := range sys.CPUIDs() {
		cpu := sys.cpus[id]
		log.Debug("CPU #%d: package %d, core %d, node %d, siblings %s",
			id, cpu.pkg, cpu.core, cpu.node, cpu.siblings.ListString())
	}
}

// ID returns the id of this node.
func (n *Node) ID() int {
	return n.id
}

// CPUMask returns the member mask of this node.
func (n *Node) CPUMask() *cpumask.CPUMask {
	return n.cpus
}

// ID returns the id of this CPU.
func (c *CPU) ID() int {
	return c.id
}

// PackageID returns the physical package id of this CPU.
func (c *CPU) PackageID() int {
	return c.pkg
}

// CoreID returns the core id of this CPU.
func (c *CPU) CoreID() int {
	return c.core
}

// NodeID returns the NUMA node id of this CPU.
func (c *CPU) NodeID() int {
	return c.node
}

// Siblings returns the hyper-thread sibling mask of this CPU, self
// included.
func (c *CPU) Siblings() *cpumask.CPUMask {
	return c.siblings
}

// Load returns the load of this CPU from the last sample, in percents.
func (c *CPU) Load() float64 {
	return c.load
}

// UpdateTimes feeds one /proc/stat sample into the CPU, updating its
// load from the busy and total jiffy deltas. The first sample after a
// (re)scan yields zero load.
func (c *CPU) UpdateTimes(busy, total uint64) {
	if c.sampled {
		busyDelta := busy - c.prevBusy
		totalDelta := total - c.prevTotal
		if total < c.prevTotal {
			// counter restart
			busyDelta, totalDelta = 0, 0
		}
		if totalDelta < 1 {
			totalDelta = 1
		}
		c.load = 100.0 * float64(busyDelta) / float64(totalDelta)
		if c.load > 100.0 {
			c.load = 100.0
		}
	} else {
		c.load = 0.0
		c.sampled = true
	}
	c.prevBusy, c.prevTotal = busy, total
}

// OwnIRQ adds the given IRQ to this CPU's owned set.
func (c *CPU) OwnIRQ(num int) {
	c.irqs[num] = struct{}{}
}

// DisownIRQ removes the given IRQ from this CPU's owned set.
func (c *CPU) DisownIRQ(num int) {
	delete(c.irqs, num)
}

// OwnsIRQ returns true if this CPU owns the given IRQ.
func (c *CPU) OwnsIRQ(num int) bool {
	_, ok := c.irqs[num]
	return ok
}

// IRQs returns the owned IRQ numbers, ascending.
func (c *CPU) IRQs() []int {
	nums := make([]int, 0, len(c.irqs))
	for num := range c.irqs {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

// ClearIRQs empties this CPU's owned set.
func (c *CPU) ClearIRQs() {
	c.irqs = make(map[int]struct{})
}

// AddIntr credits interrupts to this CPU for the current tick.
func (c *CPU) AddIntr(n uint64) {
	c.intr += n
}

// ResetIntr clears the per-tick interrupt credit.
func (c *CPU) ResetIntr() {
	c.intr = 0
}

// Intr returns the interrupts credited to this CPU this tick.
func (c *CPU) Intr() uint64 {
	return c.intr
}
