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

package proximity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOverrides(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pxm.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeOverrides(t, `
# NIC queues stay close to their socket
eth0 0
eth1 1

nvme 0
`)
	table, err := Load(path, []int{-1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	node, ok := table.Lookup("eth0-TxRx-3")
	require.True(t, ok)
	assert.Equal(t, 0, node)

	node, ok = table.Lookup("eth1")
	require.True(t, ok)
	assert.Equal(t, 1, node)

	_, ok = table.Lookup("i915")
	assert.False(t, ok)
}

func TestLoadLenient(t *testing.T) {
	path := writeOverrides(t, `
eth0 0 extra junk
just-a-token
bad-node notanumber
eth1 1
`)
	table, err := Load(path, []int{0, 1})
	require.NoError(t, err)
	// only the well-formed line survives
	assert.Equal(t, 1, table.Len())

	node, ok := table.Lookup("eth1")
	require.True(t, ok)
	assert.Equal(t, 1, node)
}

func TestLoadUnknownNode(t *testing.T) {
	path := writeOverrides(t, "eth0 7\n")
	_, err := Load(path, []int{0, 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown NUMA node")
}

func TestFirstMatchWins(t *testing.T) {
	path := writeOverrides(t, "eth 1\neth0 0\n")
	table, err := Load(path, []int{0, 1})
	require.NoError(t, err)

	// file order defines priority
	node, ok := table.Lookup("eth0")
	require.True(t, ok)
	assert.Equal(t, 1, node)
}

func TestNilTable(t *testing.T) {
	var table *Table
	_, ok := table.Lookup("eth0")
	assert.False(t, ok)
	assert.Equal(t, 0, table.Len())
}
