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

// Package config loads the daemon configuration file. The file is
// INI-style key = value with # comments; every load starts from the
// defaults so that a reload drops keys removed from the file.
package config

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"github.com/containers/irqd/pkg/balance"
	"github.com/containers/irqd/pkg/cpumask"
	logger "github.com/containers/irqd/pkg/log"
	"github.com/containers/irqd/pkg/utils"
)

var log = logger.NewLogger("config")

// Defaults for configuration file options.
const (
	DefaultThreshold     = 99.0
	DefaultLoadLimit     = 99.0
	DefaultShortInterval = 2 * time.Second
	DefaultLongInterval  = 5 * time.Second
)

// Config is an immutable configuration snapshot. Reloads build a fresh
// snapshot which is swapped in at a tick boundary.
type Config struct {
	Strategy      balance.Strategy
	Threshold     float64
	LoadLimit     float64
	ShortInterval time.Duration
	LongInterval  time.Duration
	// ExcludeCPUs is the effective exclusion: exclude-cpus | ~use-cpus.
	ExcludeCPUs  *cpumask.CPUMask
	HT           bool
	NonLocalCPUs bool
}

// Default returns a snapshot holding the configuration defaults.
func Default() *Config {
	return &Config{
		Strategy:      balance.StrategyRnd,
		Threshold:     DefaultThreshold,
		LoadLimit:     DefaultLoadLimit,
		ShortInterval: DefaultShortInterval,
		LongInterval:  DefaultLongInterval,
		ExcludeCPUs:   cpumask.New(),
		HT:            true,
		NonLocalCPUs:  false,
	}
}

// LoadFile parses the configuration file at the given path into a new
// snapshot. Any error leaves the caller's current snapshot untouched.
func LoadFile(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't parse config file %s", path)
	}

	cfg := Default()
	section := file.Section("")

	if key := section.Key("strategy"); key.String() != "" {
		cfg.Strategy, err = balance.ParseStrategy(key.String())
		if err != nil {
			return nil, configError(path, err)
		}
	}
	if key := section.Key("threshold"); key.String() != "" {
		cfg.Threshold, err = ParseThreshold(key.String())
		if err != nil {
			return nil, configError(path, err)
		}
	}
	if key := section.Key("load-limit"); key.String() != "" {
		cfg.LoadLimit, err = ParseThreshold(key.String())
		if err != nil {
			return nil, configError(path, err)
		}
	}
	if key := section.Key("short-interval"); key.String() != "" {
		cfg.ShortInterval, err = ParseInterval(key.String())
		if err != nil {
			return nil, configError(path, err)
		}
	}
	if key := section.Key("long-interval"); key.String() != "" {
		cfg.LongInterval, err = ParseInterval(key.String())
		if err != nil {
			return nil, configError(path, err)
		}
	}

	exclude := cpumask.New()
	if key := section.Key("exclude-cpus"); key.String() != "" {
		exclude, err = cpumask.Parse(key.String())
		if err != nil {
			return nil, configError(path, errors.Wrap(err, "exclude-cpus"))
		}
	}

	use := cpumask.New()
	use.SetAll()
	if key := section.Key("use-cpus"); key.String() != "" {
		use, err = cpumask.Parse(key.String())
		if err != nil {
			return nil, configError(path, errors.Wrap(err, "use-cpus"))
		}
	}

	// use-cpus says to exclude everything outside its mask, so the
	// effective exclusion is exclude-cpus | ~use-cpus.
	use.Complement()
	exclude.Or(use)
	cfg.ExcludeCPUs = exclude

	if key := section.Key("ht"); key.String() != "" {
		cfg.HT, err = utils.ParseEnabled(key.String())
		if err != nil {
			return nil, configError(path, errors.Wrap(err, "ht"))
		}
	}
	if key := section.Key("non-local-cpus"); key.String() != "" {
		cfg.NonLocalCPUs, err = utils.ParseEnabled(key.String())
		if err != nil {
			return nil, configError(path, errors.Wrap(err, "non-local-cpus"))
		}
	}

	return cfg, nil
}

// ParseThreshold parses a threshold or load-limit percentage.
func ParseThreshold(value string) (float64, error) {
	threshold, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Errorf("illegal threshold/load-limit value %q", value)
	}
	if threshold < 0 || threshold > 100.0 {
		return 0, errors.Errorf("threshold/load-limit value %q out of range 0-100", value)
	}
	return threshold, nil
}

// ParseInterval parses an interval given in whole seconds.
func ParseInterval(value string) (time.Duration, error) {
	seconds, err := strconv.ParseUint(value, 10, 32)
	if err != nil || seconds == 0 {
		return 0, errors.Errorf("illegal interval value %q", value)
	}
	return time.Duration(seconds) * time.Second, nil
}

// Dump logs the configuration snapshot.
func (c *Config) Dump() {
	log.Info("strategy: %s", c.Strategy)
	log.Info("threshold: %.2f", c.Threshold)
	log.Info("load-limit: %.2f", c.LoadLimit)
	log.Info("short-interval: %s", c.ShortInterval)
	log.Info("long-interval: %s", c.LongInterval)
	log.Info("exclude-cpus: %s", c.ExcludeCPUs)
	log.Info("ht: %v", c.HT)
	log.Info("non-local-cpus: %v", c.NonLocalCPUs)
}

// configError wraps an error with the config file path.
func configError(path string, err error) error {
	return errors.Wrapf(err, "config file %s", path)
}
