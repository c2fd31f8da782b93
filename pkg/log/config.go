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
	"os"
	"strings"

	"github.com/containers/irqd/pkg/utils"
)

// debugEnvVar is the environment variable used to seed debugging flags.
const debugEnvVar = "LOGGER_DEBUG"

// parseDebugFlags parses a comma-separated source list with optional
// on:/off: state prefixes, as in "on:sysfs,irq" or "off:all".
func parseDebugFlags(value string) (map[string]bool, error) {
	flags := make(map[string]bool)
	if value = strings.TrimSpace(value); value == "" {
		return flags, nil
	}

	prev := ""
	for _, entry := range strings.Split(value, ",") {
		if entry = strings.TrimSpace(entry); entry == "" {
			continue
		}
		state, src := "", entry
		if statesrc := strings.SplitN(entry, ":", 2); len(statesrc) == 2 {
			state, src = statesrc[0], strings.TrimSpace(statesrc[1])
		}
		if state != "" {
			prev = state
		} else {
			state = prev
			if state == "" {
				state = "on"
			}
		}
		if src == "all" {
			src = "*"
		}
		enabled, err := utils.ParseEnabled(state)
		if err != nil {
			return nil, loggerError("invalid state %q in debug flags %q", state, value)
		}
		flags[src] = enabled
	}

	return flags, nil
}

// Initialize debug logging from the environment.
func init() {
	value, ok := os.LookupEnv(debugEnvVar)
	if !ok {
		return
	}
	flags, err := parseDebugFlags(value)
	if err != nil {
		Default().Error("failed to parse $%s %q: %v", debugEnvVar, value, err)
		return
	}
	for src, enabled := range flags {
		EnableDebug(src, enabled)
	}
}
