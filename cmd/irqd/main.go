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

// irqd is a daemon balancing hardware interrupt affinity across CPU
// cores: it keeps per-CPU interrupt load below an operator-defined
// threshold by relocating the smp_affinity of selected IRQs from
// overloaded cores onto less-loaded ones, respecting NUMA locality,
// hyper-threading topology and operator exclusion lists.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/containers/irqd/pkg/balance"
	"github.com/containers/irqd/pkg/config"
	"github.com/containers/irqd/pkg/engine"
	logger "github.com/containers/irqd/pkg/log"
	"github.com/containers/irqd/pkg/metrics"
	"github.com/containers/irqd/pkg/pidfile"
	"github.com/containers/irqd/pkg/version"
)

var log = logger.Default()

func main() {
	flag.Parse()

	if opt.Version {
		fmt.Printf("version: %s\n", version.Version)
		fmt.Printf("build: %s\n", version.Build)
		os.Exit(0)
	}

	setupLoggers()

	cfg, err := loadConfig()
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	e, err := engine.New(cfg, engine.Options{
		ConfigFile:         opt.ConfigFile,
		ConfigFileRequired: configFileGiven(),
		ProximityFile:      opt.ProximityFile,
	})
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	if !opt.Debug {
		pidfile.SetPath(opt.PidFile)
		if err := pidfile.Create(); err != nil {
			log.Error("%v", err)
			os.Exit(1)
		}
		defer func() {
			if err := pidfile.Remove(); err != nil {
				log.Warn("%v", err)
			}
		}()
	}

	setupSignals(e)

	service, err := metrics.NewService(opt.HTTPEndpoint, e.Collector())
	if err != nil {
		log.Error("failed to set up metrics: %v", err)
		os.Exit(1)
	}
	service.Start()
	defer service.Stop()

	log.Info("starting irqd version %s/build %s...", version.Version, version.Build)
	cfg.Dump()

	e.Run()

	log.Info("stop daemon")
}

// setupLoggers wires the logging backends: stderr in debug mode,
// syslog otherwise, verbose turns on all debug sources.
func setupLoggers() {
	if opt.Verbose {
		logger.EnableDebug("*", true)
	}

	if opt.Debug {
		return
	}

	if err := logger.SetSyslog(opt.Facility, "irqd"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.SetStderr(false)
}

// configFileGiven returns true if -c was present on the command line.
func configFileGiven() bool {
	given := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "c" {
			given = true
		}
	})
	return given
}

// loadConfig builds the startup configuration snapshot: the config
// file when present, then any command line overrides on top.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	if _, err := os.Stat(opt.ConfigFile); err == nil {
		cfg, err = config.LoadFile(opt.ConfigFile)
		if err != nil {
			return nil, err
		}
	} else {
		if configFileGiven() {
			return nil, fmt.Errorf("can't find config file %s", opt.ConfigFile)
		}
		cfg = config.Default()
	}

	if err := applyOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyOverrides applies the command line option overrides to the
// configuration snapshot.
func applyOverrides(cfg *config.Config) error {
	var err error

	if opt.ObsoleteHT {
		log.Warn("the -r option is obsolete and ignored, use the ht config file key")
	}
	if opt.Strategy != "" {
		if cfg.Strategy, err = balance.ParseStrategy(opt.Strategy); err != nil {
			return err
		}
	}
	if opt.Threshold != "" {
		if cfg.Threshold, err = config.ParseThreshold(opt.Threshold); err != nil {
			return err
		}
	}
	if opt.LoadLimit != "" {
		if cfg.LoadLimit, err = config.ParseThreshold(opt.LoadLimit); err != nil {
			return err
		}
	}
	if opt.ShortInterval != "" {
		if cfg.ShortInterval, err = config.ParseInterval(opt.ShortInterval); err != nil {
			return err
		}
	}
	if opt.LongInterval != "" {
		if cfg.LongInterval, err = config.ParseInterval(opt.LongInterval); err != nil {
			return err
		}
	}

	return nil
}

// setupSignals wires termination and reload signals to the engine's
// atomic request flags, and SIGUSR1 to the debug toggle.
func setupSignals(e *engine.Engine) {
	logger.SetupDebugToggleSignal(syscall.SIGUSR1)

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP)
	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGHUP:
				log.Info("SIGHUP received, requesting config reload")
				e.RequestReload()
			default:
				log.Info("%s received, requesting shutdown", sig)
				e.RequestStop()
			}
		}
	}()
}
