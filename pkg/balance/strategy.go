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

package balance

import "github.com/pkg/errors"

// Strategy selects which IRQ to evict from an overloaded CPU.
type Strategy int

const (
	// StrategyRnd picks a uniformly random owned IRQ.
	StrategyRnd Strategy = iota
	// StrategyMin picks the owned IRQ with the least smoothed weight.
	StrategyMin
	// StrategyMax picks the owned IRQ with the greatest smoothed weight.
	StrategyMax
)

var strategyNames = map[Strategy]string{
	StrategyRnd: "rnd",
	StrategyMin: "min",
	StrategyMax: "max",
}

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStrategy parses a strategy configuration value.
func ParseStrategy(value string) (Strategy, error) {
	for s, name := range strategyNames {
		if name == value {
			return s, nil
		}
	}
	return StrategyRnd, errors.Errorf("illegal strategy value %q", value)
}
