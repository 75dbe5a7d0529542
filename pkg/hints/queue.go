// Copyright 2023 Intel Corporation. All Rights Reserved.
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

package hints

import (
	"context"
	"sync"

	"github.com/tierhints/tierhints/pkg/metrics"
)

// Queue is an unbounded FIFO of hints. Put never blocks.
type Queue struct {
	sync.Mutex
	hints  []*Hint
	notify chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
	}
}

// Put appends h to the queue.
func (q *Queue) Put(h *Hint) {
	q.Lock()
	q.hints = append(q.hints, h)
	metrics.HintQueueLength.Set(float64(len(q.hints)))
	q.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Get removes and returns the oldest hint, waiting for one or for ctx to
// be done.
func (q *Queue) Get(ctx context.Context) (*Hint, error) {
	for {
		if h := q.pop(); h != nil {
			return h, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued hints.
func (q *Queue) Len() int {
	q.Lock()
	defer q.Unlock()
	return len(q.hints)
}

func (q *Queue) pop() *Hint {
	q.Lock()
	defer q.Unlock()
	if len(q.hints) == 0 {
		return nil
	}
	h := q.hints[0]
	q.hints[0] = nil
	q.hints = q.hints[1:]
	metrics.HintQueueLength.Set(float64(len(q.hints)))
	return h
}
