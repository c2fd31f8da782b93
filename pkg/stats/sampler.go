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

// Package stats samples per-CPU utilisation from /proc/stat and per-IRQ
// interrupt deltas from /proc/interrupts once per tick.
package stats

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/containers/irqd/pkg/irq"
	logger "github.com/containers/irqd/pkg/log"
	"github.com/containers/irqd/pkg/sysfs"
)

var log = logger.NewLogger("stats")

// Sampler gathers one tick's worth of statistics.
type Sampler struct{}

// NewSampler creates a sampler.
func NewSampler() *Sampler {
	return &Sampler{}
}

// Sample performs one sampling pass: CPU loads, IRQ deltas, and the
// attribution of each IRQ's delta to its owning CPU.
func (s *Sampler) Sample(sys *sysfs.System, reg *irq.Registry) error {
	if err := s.sampleCPUTimes(sys); err != nil {
		return err
	}
	if err := s.sampleInterrupts(reg); err != nil {
		return err
	}
	s.attribute(sys, reg)
	return nil
}

// sampleCPUTimes reads the cpuN rows of /proc/stat and feeds the busy
// and total jiffy counters into the modeled CPUs.
func (s *Sampler) sampleCPUTimes(sys *sysfs.System) error {
	path := irq.ProcPath("stat")
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "can't open %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 8 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}
		id, err := strconv.Atoi(fields[0][3:])
		if err != nil {
			// the aggregate "cpu" row
			continue
		}
		cpu := sys.CPU(id)
		if cpu == nil {
			continue
		}

		var cols [8]uint64
		for i := 0; i < 8 && i+1 < len(fields); i++ {
			cols[i], _ = strconv.ParseUint(fields[i+1], 10, 64)
		}
		user, nice, system, idle, iowait, hirq, sirq, steal :=
			cols[0], cols[1], cols[2], cols[3], cols[4], cols[5], cols[6], cols[7]

		busy := user + nice + system + hirq + sirq + steal
		total := busy + idle + iowait
		cpu.UpdateTimes(busy, total)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "error reading %s", path)
	}

	return nil
}

// sampleInterrupts reads /proc/interrupts and updates the per-IRQ
// counter deltas and smoothed weights.
func (s *Sampler) sampleInterrupts(reg *irq.Registry) error {
	lines, err := irq.ParseInterrupts(irq.ProcPath("interrupts"))
	if err != nil {
		return err
	}

	reg.ForEach(func(i *irq.IRQ) {
		line, ok := lines[i.Num()]
		if !ok {
			return
		}
		i.UpdateCount(line.Sum())
	})

	return nil
}

// attribute credits each IRQ's delta to the single CPU owning it.
func (s *Sampler) attribute(sys *sysfs.System, reg *irq.Registry) {
	for _, id := range sys.CPUIDs() {
		cpu := sys.CPU(id)
		cpu.ResetIntr()
		for _, num := range cpu.IRQs() {
			if i := reg.Get(num); i != nil {
				cpu.AddIntr(i.Intr())
			}
		}
	}
}

// Dump logs the per-CPU statistics of the current tick.
func Dump(sys *sysfs.System) {
	if !log.DebugEnabled() {
		return
	}
	for _, id := range sys.CPUIDs() {
		cpu := sys.CPU(id)
		log.Debug("CPU %3d: load %6.2f%%, %d interrupts, %d owned IRQs",
			id, cpu.Load(), cpu.Intr(), len(cpu.IRQs()))
	}
}
