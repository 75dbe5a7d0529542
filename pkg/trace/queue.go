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

package trace

import (
	"context"

	"github.com/tierhints/tierhints/pkg/metrics"
)

const (
	// DefaultQueueSize is the default capacity of the trace queue.
	DefaultQueueSize = 1000
)

// Queue is a bounded FIFO of trace records. Put blocks while the queue is
// full, so producers are throttled instead of records being dropped.
type Queue struct {
	ch chan Record
}

// NewQueue creates a queue with the given capacity.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Record, size)}
}

// Put enqueues r, waiting for a free slot or for ctx to be done.
func (q *Queue) Put(ctx context.Context, r Record) error {
	select {
	case q.ch <- r:
		metrics.TraceQueueLength.Set(float64(len(q.ch)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the oldest record, waiting for one or for ctx to be done.
func (q *Queue) Get(ctx context.Context) (Record, error) {
	select {
	case r := <-q.ch:
		metrics.TraceQueueLength.Set(float64(len(q.ch)))
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the capacity of the queue.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
