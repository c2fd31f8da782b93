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

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	loads   map[int]float64
	weights map[int]float64
}

func (s *fakeSource) CPULoads() map[int]float64 {
	return s.loads
}

func (s *fakeSource) IRQWeights() map[int]float64 {
	return s.weights
}

func TestCollector(t *testing.T) {
	src := &fakeSource{
		loads:   map[int]float64{0: 95.0, 1: 10.0},
		weights: map[int]float64{24: 5000.0},
	}
	c := NewCollector(src)
	c.TickDone(2, 1)
	c.TickDone(0, 0)

	expected := `
# HELP irqd_ticks_total Number of completed balancing ticks.
# TYPE irqd_ticks_total counter
irqd_ticks_total 2
# HELP irqd_irqs_moved_total Number of IRQ affinity moves committed.
# TYPE irqd_irqs_moved_total counter
irqd_irqs_moved_total 2
# HELP irqd_affinity_write_failures_total Number of failed smp_affinity writes.
# TYPE irqd_affinity_write_failures_total counter
irqd_affinity_write_failures_total 1
# HELP irqd_cpu_load_percent Per-CPU load during the last tick.
# TYPE irqd_cpu_load_percent gauge
irqd_cpu_load_percent{cpu="0"} 95
irqd_cpu_load_percent{cpu="1"} 10
# HELP irqd_irq_weight Smoothed interrupts-per-tick weight per IRQ.
# TYPE irqd_irq_weight gauge
irqd_irq_weight{irq="24"} 5000
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestServiceDisabled(t *testing.T) {
	c := NewCollector(&fakeSource{})
	s, err := NewService("", c)
	require.NoError(t, err)

	// a no-op, nothing listens
	s.Start()
	s.Stop()
	assert.Nil(t, s.server)
}
