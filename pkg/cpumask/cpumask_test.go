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

package cpumask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tcs := []struct {
		description string
		input       string
		expected    []int
	}{
		{
			description: "single group, low bits",
			input:       "3",
			expected:    []int{0, 1},
		},
		{
			description: "single group, mixed case",
			input:       "fF",
			expected:    []int{0, 1, 2, 3, 4, 5, 6, 7},
		},
		{
			description: "two groups",
			input:       "1,00000000",
			expected:    []int{32},
		},
		{
			description: "three groups with gaps",
			input:       "2,00000000,00000001",
			expected:    []int{0, 65},
		},
		{
			description: "surrounding whitespace",
			input:       " 8\n",
			expected:    []int{3},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.description, func(t *testing.T) {
			m, err := Parse(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, m.CPUSet().List())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"xyz",
		"1,,2",
		",1",
		"1,",
		"123456789", // group too wide
		"0x12",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidMask)
		})
	}
}

func TestFormat(t *testing.T) {
	tcs := []struct {
		description string
		ids         []int
		expected    string
	}{
		{
			description: "empty mask",
			ids:         nil,
			expected:    "0",
		},
		{
			description: "low bits only",
			ids:         []int{1},
			expected:    "2",
		},
		{
			description: "minimum groups",
			ids:         []int{0, 4, 35},
			expected:    "8,00000011",
		},
		{
			description: "zero middle group",
			ids:         []int{0, 65},
			expected:    "2,00000000,00000001",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.expected, NewWith(tc.ids...).String())
		})
	}
}

func TestRoundTrip(t *testing.T) {
	// parse(format(m)) == m
	for _, m := range []*CPUMask{
		New(),
		NewWith(0),
		NewWith(31, 32, 33),
		NewWith(0, 63, 64, 127, 1023),
	} {
		parsed, err := Parse(m.String())
		require.NoError(t, err)
		assert.True(t, m.Equal(parsed), "round trip of %s", m)
	}

	// format(parse(s)) canonicalises
	canonical := map[string]string{
		"0003":           "3",
		"00000000,1":     "1",
		"A,00000000":     "a,00000000",
		"0,00000001,0,1": "1,00000000,00000001",
	}
	for input, expected := range canonical {
		m, err := Parse(input)
		require.NoError(t, err)
		assert.Equal(t, expected, m.String())
	}
}

func TestSetOperations(t *testing.T) {
	m := New()
	assert.True(t, m.IsEmpty())
	assert.Equal(t, 0, m.Weight())
	assert.Equal(t, -1, m.Lowest())

	m.Set(5)
	m.Set(64)
	assert.True(t, m.IsSet(5))
	assert.True(t, m.IsSet(64))
	assert.False(t, m.IsSet(6))
	assert.Equal(t, 2, m.Weight())
	assert.Equal(t, 5, m.Lowest())
	assert.Equal(t, 64, m.NextSet(5))
	assert.Equal(t, -1, m.NextSet(64))

	m.Clear(5)
	assert.False(t, m.IsSet(5))
	assert.Equal(t, 64, m.Lowest())

	// out-of-range ids are ignored
	m.Set(-1)
	m.Set(MaxCPUs)
	assert.Equal(t, 1, m.Weight())
}

func TestMaskAlgebra(t *testing.T) {
	a := NewWith(0, 1, 2)
	b := NewWith(2, 3)

	or := a.Clone()
	or.Or(b)
	assert.Equal(t, []int{0, 1, 2, 3}, or.CPUSet().List())

	and := a.Clone()
	and.And(b)
	assert.Equal(t, []int{2}, and.CPUSet().List())

	andnot := a.Clone()
	andnot.AndNot(b)
	assert.Equal(t, []int{0, 1}, andnot.CPUSet().List())

	comp := a.Clone()
	comp.Complement()
	assert.False(t, comp.IsSet(0))
	assert.True(t, comp.IsSet(3))
	assert.Equal(t, MaxCPUs-3, comp.Weight())

	full := New()
	full.SetAll()
	assert.True(t, full.IsFull())
	full.Complement()
	assert.True(t, full.IsEmpty())
}

func TestListBridge(t *testing.T) {
	m, err := ParseList("0-2,8")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 8}, m.CPUSet().List())
	assert.Equal(t, "0-2,8", m.ListString())

	empty, err := ParseList("")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = ParseList("not-a-list")
	assert.Error(t, err)
}
