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

package sysfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// readSysfsEntry reads a sysfs entry below the given base directory,
// returning its trimmed content.
func readSysfsEntry(base, entry string) (string, error) {
	data, err := os.ReadFile(filepath.Join(base, entry))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// readSysfsInt reads a sysfs entry holding a single decimal integer.
func readSysfsInt(base, entry string) (int, error) {
	data, err := readSysfsEntry(base, entry)
	if err != nil {
		return 0, err
	}
	val, err := strconv.Atoi(data)
	if err != nil {
		return 0, sysfsError(filepath.Join(base, entry), "expected an integer, got %q", data)
	}
	return val, nil
}

// getEnumeratedID digs out the numeric id from the last component of an
// enumerated sysfs path ("cpu12", "node1"). Returns -1 on failure.
func getEnumeratedID(path string) int {
	name := filepath.Base(path)
	idx := strings.IndexAny(name, "0123456789")
	if idx < 0 {
		return -1
	}
	id, err := strconv.Atoi(name[idx:])
	if err != nil {
		return -1
	}
	return id
}

// sysfsError returns a formatted error related to the given sysfs path.
func sysfsError(path, format string, args ...interface{}) error {
	return errors.Errorf("sysfs: %s: %s", path, errors.Errorf(format, args...))
}
