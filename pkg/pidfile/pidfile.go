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

// Package pidfile implements the daemon's pidfile handling.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	pidFilePath = "/var/run/irqd.pid"
	pidFile     *os.File
)

// GetPath returns the current pidfile path.
func GetPath() string {
	return pidFilePath
}

// SetPath sets the pidfile path.
func SetPath(path string) {
	pidFilePath = path
}

// Create writes the current process id to the pidfile, taking an
// exclusive lock on it. An already locked pidfile means another
// instance is running.
func Create() error {
	if err := os.MkdirAll(filepath.Dir(pidFilePath), 0755); err != nil {
		return errors.Wrapf(err, "can't create pidfile directory for %s", pidFilePath)
	}

	f, err := os.OpenFile(pidFilePath, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrapf(err, "can't open pidfile %s", pidFilePath)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return errors.Wrapf(err, "pidfile %s is locked, daemon already running?", pidFilePath)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return errors.Wrapf(err, "can't truncate pidfile %s", pidFilePath)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		return errors.Wrapf(err, "can't write pidfile %s", pidFilePath)
	}

	// keep the file open, the lock lives as long as the process
	pidFile = f
	return nil
}

// Remove deletes the pidfile and releases its lock.
func Remove() error {
	if pidFile == nil {
		return nil
	}
	pidFile.Close()
	pidFile = nil
	if err := os.Remove(pidFilePath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "can't remove pidfile %s", pidFilePath)
	}
	return nil
}
