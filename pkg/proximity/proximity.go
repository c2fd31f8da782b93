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

// Package proximity implements the operator-supplied IRQ-to-NUMA
// override table. Each non-blank, non-comment line of the override file
// is "<token> <numa-id>"; tokens are substring-matched against refined
// IRQ descriptions, first match wins.
package proximity

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	logger "github.com/containers/irqd/pkg/log"
)

var log = logger.NewLogger("proximity")

// Entry is one override: a device token and the NUMA node it maps to.
type Entry struct {
	Token string
	Node  int
}

// Table is an ordered set of overrides. File order defines priority.
type Table struct {
	entries []Entry
}

// Load parses the override file at the given path. Malformed lines are
// skipped with a warning; a NUMA id not present in nodeIDs aborts the
// load with an error.
func Load(path string, nodeIDs []int) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open proximity file %s", path)
	}
	defer f.Close()

	known := make(map[int]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		known[id] = struct{}{}
	}

	t := &Table{}
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			log.Warn("%s:%d: skipping malformed line %q", path, lineno, line)
			continue
		}
		node, err := strconv.Atoi(fields[1])
		if err != nil {
			log.Warn("%s:%d: skipping line with bad NUMA id %q", path, lineno, fields[1])
			continue
		}
		if _, ok := known[node]; !ok {
			return nil, errors.Errorf("%s:%d: unknown NUMA node %d", path, lineno, node)
		}
		t.entries = append(t.entries, Entry{Token: fields[0], Node: node})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading proximity file %s", path)
	}

	return t, nil
}

// Lookup returns the NUMA node for the first entry whose token is a
// substring of the given refined description.
func (t *Table) Lookup(refined string) (int, bool) {
	if t == nil || refined == "" {
		return 0, false
	}
	for _, e := range t.entries {
		if strings.Contains(refined, e.Token) {
			return e.Node, true
		}
	}
	return 0, false
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Dump logs the table contents.
func (t *Table) Dump() {
	if t == nil {
		return
	}
	for _, e := range t.entries {
		log.Debug("override: %q -> node %d", e.Token, e.Node)
	}
}
