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
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// InterruptLine is one numbered row of /proc/interrupts: the per-CPU
// service counts and the trailing description.
type InterruptLine struct {
	Counts []uint64
	Tail   string
}

// Sum returns the total service count over all CPU columns.
func (l InterruptLine) Sum() uint64 {
	var sum uint64
	for _, c := range l.Counts {
		sum += c
	}
	return sum
}

// ParseInterrupts parses /proc/interrupts, returning the numbered rows
// keyed by IRQ number. Rows with non-numeric labels (LOC, RES, ...) are
// skipped; their counts never correspond to a /proc/irq entry.
func ParseInterrupts(path string) (map[int]InterruptLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %s", path)
	}
	defer f.Close()

	lines := make(map[int]InterruptLine)
	scanner := bufio.NewScanner(f)
	ncpu := 0
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if ncpu == 0 {
			// header row names the CPU columns
			for _, f := range fields {
				if strings.HasPrefix(f, "CPU") {
					ncpu++
				}
			}
			if ncpu == 0 {
				return nil, errors.Errorf("%s: malformed header %q", path, scanner.Text())
			}
			continue
		}

		label := strings.TrimSuffix(fields[0], ":")
		if label == fields[0] {
			continue
		}
		num, err := strconv.Atoi(label)
		if err != nil {
			continue
		}

		line := InterruptLine{}
		col := 1
		for ; col <= ncpu && col < len(fields); col++ {
			cnt, err := strconv.ParseUint(fields[col], 10, 64)
			if err != nil {
				break
			}
			line.Counts = append(line.Counts, cnt)
		}
		line.Tail = strings.Join(fields[col:], " ")
		lines[num] = line
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading %s", path)
	}

	return lines, nil
}

// refineDesc extracts the device token from an interrupt description.
// A tail of three or more fields has the chip and hwirq/trigger fields
// up front; the rest is the device action list. A shorter tail is
// returned whole.
func refineDesc(desc string) string {
	fields := strings.Fields(desc)
	switch {
	case len(fields) >= 3:
		return strings.Join(fields[2:], " ")
	case len(fields) > 0:
		return strings.Join(fields, " ")
	}
	return ""
}
