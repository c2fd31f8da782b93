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

package main

import (
	"flag"

	"github.com/containers/irqd/pkg/pidfile"
)

const (
	defaultConfigFile = "/etc/irqd.conf"
	defaultFacility   = "DAEMON"
)

// options captures our command line parameters.
type options struct {
	Debug         bool
	Verbose       bool
	PidFile       string
	ConfigFile    string
	ProximityFile string
	Facility      string
	Strategy      string
	Threshold     string
	LoadLimit     string
	ShortInterval string
	LongInterval  string
	ObsoleteHT    bool
	HTTPEndpoint  string
	Version       bool
}

// Command line options.
var opt = options{}

// Register us for command line option processing.
func init() {
	flag.BoolVar(&opt.Debug, "d", false,
		"Debug mode. Log to stderr instead of syslog, don't write a pidfile.")
	flag.BoolVar(&opt.Verbose, "v", false,
		"Be verbose.")
	flag.StringVar(&opt.PidFile, "p", pidfile.GetPath(),
		"File to save the daemon's PID to.")
	flag.StringVar(&opt.ConfigFile, "c", defaultConfigFile,
		"Config file.")
	flag.StringVar(&opt.ProximityFile, "x", "",
		"Proximity config file.")
	flag.StringVar(&opt.Facility, "O", defaultFacility,
		"Syslog facility.")
	flag.StringVar(&opt.Strategy, "s", "",
		"Strategy to choose IRQs to move (min/max/rnd).")
	flag.StringVar(&opt.Threshold, "t", "",
		"Threshold to consider a CPU overloaded, in percents.")
	flag.StringVar(&opt.LoadLimit, "l", "",
		"Don't move IRQs to CPUs loaded more than this limit, in percents.")
	flag.StringVar(&opt.ShortInterval, "i", "",
		"Short iteration interval, in seconds.")
	flag.StringVar(&opt.LongInterval, "I", "",
		"Long iteration interval, in seconds.")
	flag.BoolVar(&opt.ObsoleteHT, "r", false,
		"This option is obsolete. Hyper-threading is enabled by default.")
	flag.StringVar(&opt.HTTPEndpoint, "http-endpoint", "",
		"Address to serve /metrics and /healthz on. Empty disables serving.")
	flag.BoolVar(&opt.Version, "version", false,
		"Print version information and exit.")
}
