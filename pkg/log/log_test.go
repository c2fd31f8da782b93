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

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	l := Get("test-source")
	assert.Equal(t, "test-source", l.Source())
	assert.Equal(t, l, Get("test-source"))
	assert.Equal(t, l, NewLogger("test-source"))
}

func TestDebugEnabled(t *testing.T) {
	l := Get("debug-source")
	assert.False(t, l.DebugEnabled())

	EnableDebug("debug-source", true)
	assert.True(t, l.DebugEnabled())

	EnableDebug("debug-source", false)
	assert.False(t, l.DebugEnabled())

	// the wildcard source covers everything without an explicit entry
	EnableDebug("*", true)
	assert.True(t, Get("some-other-source").DebugEnabled())
	assert.False(t, l.DebugEnabled())
	EnableDebug("*", false)
}

func TestParseDebugFlags(t *testing.T) {
	flags, err := parseDebugFlags("on:sysfs,irq,off:stats")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"sysfs": true, "irq": true, "stats": false}, flags)

	flags, err = parseDebugFlags("all")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"*": true}, flags)

	flags, err = parseDebugFlags("")
	require.NoError(t, err)
	assert.Empty(t, flags)

	_, err = parseDebugFlags("maybe:sysfs")
	assert.Error(t, err)
}

func TestKnownFacility(t *testing.T) {
	assert.True(t, KnownFacility("DAEMON"))
	assert.True(t, KnownFacility("LOCAL3"))
	assert.False(t, KnownFacility("daemon"))
	assert.False(t, KnownFacility("BOGUS"))
}
