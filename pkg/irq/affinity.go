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

package irq

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ApplyAffinity commits the modeled affinity of the given IRQs to the
// kernel. A failing write drops the single IRQ from the commit; all
// failures of the pass are aggregated into the returned error.
func ApplyAffinity(irqs []*IRQ) error {
	var errs *multierror.Error

	for _, i := range irqs {
		if i.affinity.IsEmpty() {
			log.Error("IRQ %d: refusing to write an empty affinity mask", i.num)
			errs = multierror.Append(errs, errors.Errorf("IRQ %d: empty affinity mask", i.num))
			continue
		}
		path := ProcPath(filepath.Join("irq", strconv.Itoa(i.num), "smp_affinity"))
		if err := os.WriteFile(path, []byte(i.affinity.String()), 0644); err != nil {
			log.Warn("IRQ %d: can't write smp_affinity: %v", i.num, err)
			errs = multierror.Append(errs, errors.Wrapf(err, "IRQ %d", i.num))
			continue
		}
		log.Debug("IRQ %d: affinity set to %s", i.num, i.affinity.ListString())
	}

	return errs.ErrorOrNil()
}
