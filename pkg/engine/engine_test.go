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

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/containers/irqd/pkg/balance"
	"github.com/containers/irqd/pkg/config"
	"github.com/containers/irqd/pkg/irq"
	"github.com/containers/irqd/pkg/sysfs"
)

func write(t *testing.T, root, entry, content string) {
	t.Helper()
	path := filepath.Join(root, entry)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// mockHost lays out a single host root holding both the sysfs and the
// procfs mock trees: one NUMA node with two CPUs, IRQs 24-26 on cpu0.
func mockHost(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	write(t, root, "sys/devices/system/node/node0/cpumap", "3\n")
	for cpu, core := range map[string]string{"cpu0": "0", "cpu1": "1"} {
		write(t, root, "sys/devices/system/cpu/"+cpu+"/topology/physical_package_id", "0\n")
		write(t, root, "sys/devices/system/cpu/"+cpu+"/topology/core_id", core+"\n")
	}

	for _, num := range []int{24, 25, 26} {
		write(t, root, fmt.Sprintf("proc/irq/%d/smp_affinity", num), "1\n")
		write(t, root, fmt.Sprintf("proc/irq/%d/node", num), "0\n")
	}

	sysfs.SetSysRoot(root)
	irq.SetProcRoot(root)
	t.Cleanup(func() {
		sysfs.SetSysRoot("")
		irq.SetProcRoot("")
	})

	return root
}

// writeTick writes /proc/stat and /proc/interrupts for one tick. The
// busy/idle jiffy counters are absolute, they must grow across ticks.
func writeTick(t *testing.T, root string, busy0, idle0, busy1, idle1 uint64, counts [3]uint64) {
	t.Helper()

	stat := "cpu  0 0 0 0 0 0 0 0 0 0\n"
	stat += fmt.Sprintf("cpu0 %d 0 0 %d 0 0 0 0 0 0\n", busy0, idle0)
	stat += fmt.Sprintf("cpu1 %d 0 0 %d 0 0 0 0 0 0\n", busy1, idle1)
	write(t, root, "proc/stat", stat)

	interrupts := "           CPU0       CPU1\n"
	descs := map[int]string{
		24: "IR-PCI-MSI 524288-edge eth0-TxRx-0",
		25: "IR-PCI-MSI 524289-edge eth0-TxRx-1",
		26: "IO-APIC 26-level ahci",
	}
	for i, num := range []int{24, 25, 26} {
		interrupts += fmt.Sprintf("%3d: %10d %10d   %s\n", num, counts[i], 0, descs[num])
	}
	write(t, root, "proc/interrupts", interrupts)
}

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(cfg, Options{ConfigFile: "/no/such/config"})
	require.NoError(t, err)
	return e
}

func TestTickBalancesHotCPU(t *testing.T) {
	root := mockHost(t)

	cfg := config.Default()
	cfg.Strategy = balance.StrategyMax
	cfg.Threshold = 90.0
	cfg.LoadLimit = 80.0

	writeTick(t, root, 100, 900, 10, 990, [3]uint64{1000, 10, 5})
	e := newTestEngine(t, cfg)

	// first tick: new IRQs get queued and placed, loads are still zero
	interval := e.Tick()
	assert.Equal(t, cfg.ShortInterval, interval)
	assert.Equal(t, 3, e.Registry().Len())

	// everything still sits on cpu0, both CPUs idle
	assert.Equal(t, []int{24, 25, 26}, e.System().CPU(0).IRQs())

	// second tick: cpu0 at 95%, cpu1 at 10%, IRQ 24 is the heavy one
	writeTick(t, root, 195, 905, 20, 1080, [3]uint64{6000, 110, 55})
	interval = e.Tick()
	assert.Equal(t, cfg.ShortInterval, interval)

	// the heaviest IRQ moved to the idle CPU and was committed
	assert.True(t, e.System().CPU(1).OwnsIRQ(24))
	assert.False(t, e.System().CPU(0).OwnsIRQ(24))

	data, err := os.ReadFile(filepath.Join(root, "proc/irq/24/smp_affinity"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))

	// third tick: both CPUs idle again, nothing to do
	writeTick(t, root, 200, 1000, 25, 1175, [3]uint64{6010, 111, 56})
	interval = e.Tick()
	assert.Equal(t, cfg.LongInterval, interval)

	data, err = os.ReadFile(filepath.Join(root, "proc/irq/24/smp_affinity"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
}

func TestTickRespectsExclusion(t *testing.T) {
	root := mockHost(t)

	cfg := config.Default()
	cfg.Strategy = balance.StrategyMax
	cfg.Threshold = 90.0
	cfg.LoadLimit = 80.0
	cfg.ExcludeCPUs.Set(1)

	writeTick(t, root, 100, 900, 10, 990, [3]uint64{1000, 10, 5})
	e := newTestEngine(t, cfg)
	e.Tick()

	// the only non-excluded destination is the hot CPU itself
	writeTick(t, root, 195, 905, 20, 1080, [3]uint64{6000, 110, 55})
	e.Tick()

	// no affinity may ever intersect the exclusion mask
	e.Registry().ForEach(func(i *irq.IRQ) {
		masked := i.Affinity().Clone()
		masked.And(cfg.ExcludeCPUs)
		assert.True(t, masked.IsEmpty(), "IRQ %d placed on an excluded CPU", i.Num())
	})
}

func TestSnapshotAndHealth(t *testing.T) {
	root := mockHost(t)

	cfg := config.Default()
	writeTick(t, root, 100, 900, 10, 990, [3]uint64{1000, 10, 5})
	e := newTestEngine(t, cfg)

	require.NoError(t, e.healthCheck())

	e.Tick()
	writeTick(t, root, 195, 905, 20, 1080, [3]uint64{6000, 110, 55})
	e.Tick()

	loads := e.CPULoads()
	assert.InDelta(t, 95.0, loads[0], 0.001)
	assert.InDelta(t, 10.0, loads[1], 0.001)

	weights := e.IRQWeights()
	assert.Equal(t, 5000.0, weights[24])

	assert.NoError(t, e.healthCheck())
}

func TestReloadConfig(t *testing.T) {
	root := mockHost(t)
	writeTick(t, root, 100, 900, 10, 990, [3]uint64{1000, 10, 5})

	cfgFile := filepath.Join(root, "irqd.conf")
	require.NoError(t, os.WriteFile(cfgFile, []byte("threshold = 50\n"), 0644))

	cfg, err := config.LoadFile(cfgFile)
	require.NoError(t, err)

	e, err := New(cfg, Options{ConfigFile: cfgFile})
	require.NoError(t, err)
	assert.Equal(t, 50.0, e.Config().Threshold)

	// a bad file keeps the previous snapshot
	require.NoError(t, os.WriteFile(cfgFile, []byte("threshold = 200\n"), 0644))
	e.reloadConfig()
	assert.Equal(t, 50.0, e.Config().Threshold)

	// a good one replaces it
	require.NoError(t, os.WriteFile(cfgFile, []byte("threshold = 75\nstrategy = min\n"), 0644))
	e.reloadConfig()
	assert.Equal(t, 75.0, e.Config().Threshold)
	assert.Equal(t, balance.StrategyMin, e.Config().Strategy)
}

func TestRunStops(t *testing.T) {
	root := mockHost(t)
	writeTick(t, root, 100, 900, 10, 990, [3]uint64{1000, 10, 5})

	cfg := config.Default()
	cfg.ShortInterval = 100 * time.Millisecond
	cfg.LongInterval = 100 * time.Millisecond
	e := newTestEngine(t, cfg)

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	e.RequestStop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}
