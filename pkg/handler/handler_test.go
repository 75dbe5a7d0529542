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

package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tierhints/tierhints/pkg/config"
	"github.com/tierhints/tierhints/pkg/hints"
	"github.com/tierhints/tierhints/pkg/metrics"
)

// fakeInjector records injected entries. It fails entries at failOffset
// and panics on entries at offset 666.
type fakeInjector struct {
	sync.Mutex
	entries    []hints.TierEntry
	failOffset int64
	injected   chan struct{}
}

func newFakeInjector() *fakeInjector {
	return &fakeInjector{failOffset: -1, injected: make(chan struct{}, 16)}
}

func (f *fakeInjector) Inject(e *hints.TierEntry) error {
	if e.Offset == 666 {
		panic("driver on fire")
	}
	if e.Offset == f.failOffset {
		return errors.New("ENOTTY")
	}
	f.Lock()
	f.entries = append(f.entries, *e)
	f.Unlock()
	f.injected <- struct{}{}
	return nil
}

func (f *fakeInjector) Entries() []hints.TierEntry {
	f.Lock()
	defer f.Unlock()
	return append([]hints.TierEntry(nil), f.entries...)
}

// fakeMigrator records migrated blocks, failing for failBlock.
type fakeMigrator struct {
	sync.Mutex
	blocks    []int64
	tiers     []int
	failBlock int64
}

func (f *fakeMigrator) MigrateBlock(blk int64, tier int) error {
	if blk == f.failBlock {
		return errors.New("EINVAL")
	}
	f.Lock()
	defer f.Unlock()
	f.blocks = append(f.blocks, blk)
	f.tiers = append(f.tiers, tier)
	return nil
}

func (f *fakeMigrator) Blocks() []int64 {
	f.Lock()
	defer f.Unlock()
	return append([]int64(nil), f.blocks...)
}

func newHandler(t *testing.T, placement, migration string, inj Injector, mig Migrator) *Handler {
	h, err := New(&Config{
		Placement: config.Component{Name: placement},
		Migration: config.Component{Name: migration},
		Mover:     MoverConfig{Interval: config.Duration(time.Millisecond), Batch: 2},
	}, inj, mig)
	require.NoError(t, err)
	return h
}

func TestNew(t *testing.T) {
	require.Equal(t, []string{"affinity", "dontcare"}, PlacementPolicies())
	require.Equal(t, []string{"affinity", "none"}, MigrationPolicies())

	_, err := New(&Config{Placement: config.Component{Name: "oracle"}}, newFakeInjector(), nil)
	require.Error(t, err)
	_, err = New(&Config{Migration: config.Component{Name: "oracle"}}, newFakeInjector(), nil)
	require.Error(t, err)
	_, err = New(&Config{Migration: config.Component{Name: "affinity"}}, newFakeInjector(), nil)
	require.Error(t, err, "affinity migration needs a migrator")
	_, err = New(&Config{}, newFakeInjector(), nil)
	require.NoError(t, err)
}

func TestHandleMatchedHint(t *testing.T) {
	inj := newFakeInjector()
	h := newHandler(t, "", "", inj, nil)
	injections := testutil.ToFloat64(metrics.Injections)

	require.NoError(t, h.Handle(context.Background(), hints.NullHint(100, 4)))
	require.NoError(t, h.Handle(context.Background(), &hints.Hint{Offset: 5, Size: 1}))

	require.Equal(t, []hints.TierEntry{
		{Offset: 100, Size: 4, PlacementDecision: hints.PlacementDontCare},
	}, inj.Entries())
	require.Equal(t, injections+1, testutil.ToFloat64(metrics.Injections))
}

func TestAffinityPlacement(t *testing.T) {
	inj := newFakeInjector()
	h := newHandler(t, "affinity", "none", inj, nil)

	matched := hints.TierHint(50, 2, 1)
	matched.Match = true
	require.NoError(t, h.Handle(context.Background(), matched))
	require.NoError(t, h.Handle(context.Background(), hints.NullHint(60, 1)))

	require.Equal(t, []hints.TierEntry{
		{Offset: 50, Size: 2, PlacementDecision: 1},
		{Offset: 60, Size: 1, PlacementDecision: hints.PlacementDontCare},
	}, inj.Entries())
}

func TestInjectionFailure(t *testing.T) {
	inj := newFakeInjector()
	inj.failOffset = 9
	h := newHandler(t, "", "", inj, nil)
	failures := testutil.ToFloat64(metrics.InjectionErrors)

	err := h.Handle(context.Background(), hints.NullHint(9, 1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "ENOTTY")
	require.Equal(t, failures+1, testutil.ToFloat64(metrics.InjectionErrors))
	require.Empty(t, inj.Entries())
}

func TestConsumeHintsIsolatesFailures(t *testing.T) {
	inj := newFakeInjector()
	inj.failOffset = 9
	h := newHandler(t, "", "", inj, nil)
	failures := testutil.ToFloat64(metrics.StageFailures.WithLabelValues("handler"))

	q := hints.NewQueue()
	q.Put(hints.NullHint(9, 1))
	q.Put(hints.NullHint(666, 1))
	q.Put(hints.NullHint(10, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ConsumeHints(ctx, q) }()

	select {
	case <-inj.injected:
	case <-time.After(5 * time.Second):
		t.Fatal("hint after failures was not handled")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	require.Equal(t, []hints.TierEntry{
		{Offset: 10, Size: 1, PlacementDecision: hints.PlacementDontCare},
	}, inj.Entries())
	require.Equal(t, failures+2, testutil.ToFloat64(metrics.StageFailures.WithLabelValues("handler")))
}

func TestAffinityMigration(t *testing.T) {
	mig := &fakeMigrator{failBlock: -1}
	h := newHandler(t, "dontcare", "affinity", newFakeInjector(), mig)

	q := hints.NewQueue()
	q.Put(hints.TierHint(10, 3, 1))
	q.Put(hints.NullHint(20, 1))
	q.Put(&hints.Hint{Offset: 30, Size: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.ConsumeHints(ctx, q)

	require.Eventually(t, func() bool {
		return len(mig.Blocks()) == 3
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []int64{10, 11, 12}, mig.Blocks())
	require.Equal(t, []int{1, 1, 1}, mig.tiers)
}

func TestMover(t *testing.T) {
	mig := &fakeMigrator{failBlock: 101}
	m := NewMover(mig)
	require.NoError(t, m.SetConfigJson(`{"interval": "1ms", "batch": 1, "maxTasks": 2}`))
	require.Error(t, m.SetConfigJson(`{"interval": true}`))
	migrationErrors := testutil.ToFloat64(metrics.MigrationErrors)

	require.True(t, m.AddTask(&MigrationTask{Block: 100, Count: 3, Tier: 0}))
	require.True(t, m.AddTask(&MigrationTask{Block: 200, Count: 2, Tier: 1}))
	require.False(t, m.AddTask(&MigrationTask{Block: 300, Count: 1, Tier: 1}))
	require.Equal(t, 2, m.TaskCount())

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	require.Eventually(t, func() bool {
		return m.TaskCount() == 0 && len(mig.Blocks()) == 3
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	m.Wait()

	// tasks take turns, a failing task is abandoned
	require.Equal(t, []int64{100, 200, 201}, mig.Blocks())
	require.Equal(t, migrationErrors+1, testutil.ToFloat64(metrics.MigrationErrors))
}
