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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/containers/irqd/pkg/cpumask"
	"github.com/containers/irqd/pkg/proximity"
	"github.com/containers/irqd/pkg/sysfs"
)

// Kernel-internal interrupts that must never be rebalanced. They stay
// in the registry so their counters contribute to CPU accounting.
var nonBalanceable = []string{
	"timer",
	"IPI",
	"resched",
	"TLB",
	"threshold",
	"localtimer",
	"cascade",
	"NMI",
	"machine check",
}

// entries of /proc/irq/<N>/ that are not device action directories
var irqDirFiles = map[string]struct{}{
	"smp_affinity":            {},
	"smp_affinity_list":       {},
	"effective_affinity":      {},
	"effective_affinity_list": {},
	"affinity_hint":           {},
	"node":                    {},
	"spurious":                {},
}

// Scan enumerates /proc/irq, refreshing the registry against what the
// kernel currently lists. New IRQs are returned for queueing; IRQs the
// kernel no longer lists are dropped. Per-IRQ read failures skip the
// single IRQ without failing the scan.
func (r *Registry) Scan(sys *sysfs.System, pxm *proximity.Table) ([]*IRQ, error) {
	entries, err := os.ReadDir(ProcPath("irq"))
	if err != nil {
		return nil, errors.Wrapf(err, "can't enumerate %s", ProcPath("irq"))
	}

	interrupts, err := ParseInterrupts(ProcPath("interrupts"))
	if err != nil {
		return nil, err
	}

	var added []*IRQ
	seen := make(map[int]struct{})

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		num, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		affinity, err := readAffinity(num)
		if err != nil {
			log.Warn("IRQ %d: can't read smp_affinity: %v", num, err)
			if _, ok := r.irqs[num]; ok {
				// keep the stale entry, it is still listed
				seen[num] = struct{}{}
			}
			continue
		}
		seen[num] = struct{}{}

		if i, ok := r.irqs[num]; ok {
			i.affinity = affinity
			continue
		}

		i := r.newIRQ(num, affinity, interrupts[num].Tail, sys, pxm)
		r.irqs[num] = i
		added = append(added, i)
	}

	for num := range r.irqs {
		if _, ok := seen[num]; !ok {
			log.Info("IRQ %d is gone, dropping it", num)
			delete(r.irqs, num)
		}
	}

	return added, nil
}

// newIRQ builds a registry entry for a freshly observed IRQ.
func (r *Registry) newIRQ(num int, affinity *cpumask.CPUMask, tail string,
	sys *sysfs.System, pxm *proximity.Table) *IRQ {

	desc := tail
	if desc == "" {
		desc = deviceDesc(num)
	}

	i := &IRQ{
		num:      num,
		desc:     desc,
		refined:  refineDesc(desc),
		affinity: affinity,
		pxmNode:  NoPxmNode,
	}
	i.balanceable = balanceable(desc)
	i.local = localCPUs(i, sys, pxm)

	log.Info("new IRQ %d (%q), affinity %s, local %s",
		num, i.desc, i.affinity.ListString(), i.local.ListString())

	return i
}

// balanceable returns false for kernel-internal interrupt names.
func balanceable(desc string) bool {
	lower := strings.ToLower(desc)
	for _, name := range nonBalanceable {
		if strings.Contains(lower, strings.ToLower(name)) {
			return false
		}
	}
	return true
}

// localCPUs derives the device-local CPU mask: operator proximity
// override first, then /proc/irq/<N>/node through the topology, then
// all CPUs when nothing is known.
func localCPUs(i *IRQ, sys *sysfs.System, pxm *proximity.Table) *cpumask.CPUMask {
	if node, ok := pxm.Lookup(i.refined); ok {
		i.pxmNode = node
		if n := sys.Node(node); n != nil {
			return n.CPUMask().Clone()
		}
	}

	if data, err := os.ReadFile(ProcPath(filepath.Join("irq", strconv.Itoa(i.num), "node"))); err == nil {
		if node, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			if n := sys.Node(node); n != nil && node != sysfs.NoNUMANodeID {
				return n.CPUMask().Clone()
			}
		}
	}

	all := cpumask.New()
	all.SetAll()
	return all
}

// readAffinity reads and parses /proc/irq/<N>/smp_affinity.
func readAffinity(num int) (*cpumask.CPUMask, error) {
	data, err := os.ReadFile(ProcPath(filepath.Join("irq", strconv.Itoa(num), "smp_affinity")))
	if err != nil {
		return nil, err
	}
	return cpumask.Parse(strings.TrimSpace(string(data)))
}

// deviceDesc names an IRQ from its /proc/irq/<N>/<device> action
// directories when /proc/interrupts carries no description.
func deviceDesc(num int) string {
	entries, err := os.ReadDir(ProcPath(filepath.Join("irq", strconv.Itoa(num))))
	if err != nil {
		return ""
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, ok := irqDirFiles[entry.Name()]; ok {
			continue
		}
		names = append(names, entry.Name())
	}
	return strings.Join(names, ",")
}
