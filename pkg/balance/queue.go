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

import "github.com/containers/irqd/pkg/irq"

// Queue is the ordered set of IRQs picked for rebalancing this tick.
type Queue struct {
	irqs    []*irq.IRQ
	members map[int]struct{}
}

// NewQueue creates an empty balance queue.
func NewQueue() *Queue {
	return &Queue{members: make(map[int]struct{})}
}

// Push appends an IRQ unless it is already queued.
func (q *Queue) Push(i *irq.IRQ) {
	if _, ok := q.members[i.Num()]; ok {
		return
	}
	q.irqs = append(q.irqs, i)
	q.members[i.Num()] = struct{}{}
}

// Contains returns true if the IRQ with the given number is queued.
func (q *Queue) Contains(num int) bool {
	_, ok := q.members[num]
	return ok
}

// Len returns the number of queued IRQs.
func (q *Queue) Len() int {
	return len(q.irqs)
}

// IRQs returns the queued IRQs in queueing order.
func (q *Queue) IRQs() []*irq.IRQ {
	return q.irqs
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.irqs = q.irqs[:0]
	q.members = make(map[int]struct{})
}
