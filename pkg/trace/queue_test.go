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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(4)

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Put(ctx, &BlockTrace{Offset: int64(i)}))
	}
	require.Equal(t, 4, q.Len())

	for i := 0; i < 4; i++ {
		r, err := q.Get(ctx)
		require.NoError(t, err)
		offset, _ := r.Range()
		require.Equal(t, int64(i), offset)
	}
}

func TestQueueBackpressure(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(1)
	require.NoError(t, q.Put(ctx, &BlockTrace{Offset: 1}))

	put := make(chan error)
	go func() {
		put <- q.Put(ctx, &BlockTrace{Offset: 2})
	}()

	select {
	case <-put:
		t.Fatalf("Put on a full queue did not block")
	case <-time.After(50 * time.Millisecond):
	}

	r, err := q.Get(ctx)
	require.NoError(t, err)
	offset, _ := r.Range()
	require.Equal(t, int64(1), offset)

	require.NoError(t, <-put)
	r, err = q.Get(ctx)
	require.NoError(t, err)
	offset, _ = r.Range()
	require.Equal(t, int64(2), offset)
}

func TestQueueCancel(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Put(ctx, &BlockTrace{}))
	cancel()

	require.ErrorIs(t, q.Put(ctx, &BlockTrace{}), context.Canceled)

	q = NewQueue(1)
	_, err := q.Get(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueueNoDrops(t *testing.T) {
	const (
		producers = 4
		records   = 500
	)
	ctx := context.Background()
	q := NewQueue(8)
	require.Equal(t, 8, q.Cap())

	wg := sync.WaitGroup{}
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(pid uint32) {
			defer wg.Done()
			for i := 0; i < records; i++ {
				assert.NoError(t, q.Put(ctx, &BlockTrace{Pid: pid, Offset: int64(i)}))
			}
		}(uint32(p))
	}

	// per-producer order is preserved
	next := make([]int64, producers)
	for i := 0; i < producers*records; i++ {
		r, err := q.Get(ctx)
		require.NoError(t, err)
		b := r.(*BlockTrace)
		require.Equal(t, next[b.Pid], b.Offset)
		next[b.Pid]++
	}
	wg.Wait()
	require.Equal(t, 0, q.Len())
}

func TestDefaultQueueSize(t *testing.T) {
	require.Equal(t, DefaultQueueSize, NewQueue(0).Cap())
}
