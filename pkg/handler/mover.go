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
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tierhints/tierhints/pkg/config"
	"github.com/tierhints/tierhints/pkg/metrics"
)

const (
	// DefaultMoverInterval is the pause between migration batches.
	DefaultMoverInterval = 100 * time.Millisecond
	// DefaultMoverBatch is the number of blocks migrated per batch.
	DefaultMoverBatch = 16
	// DefaultMoverMaxTasks limits the number of pending migration tasks.
	DefaultMoverMaxTasks = 4096
)

// Migrator migrates single blocks between tiers.
type Migrator interface {
	MigrateBlock(blk int64, tier int) error
}

// MoverConfig paces block migration.
type MoverConfig struct {
	// Interval is the pause between migration batches.
	Interval config.Duration `json:"interval,omitempty"`
	// Batch is the number of blocks migrated per batch.
	Batch int `json:"batch,omitempty"`
	// MaxTasks limits pending tasks. Tasks beyond the limit are dropped.
	MaxTasks int `json:"maxTasks,omitempty"`
}

// Mover migrates blocks in the background, a batch per interval.
type Mover struct {
	mutex    sync.Mutex
	tasks    []*moverTask
	config   MoverConfig
	migrator Migrator
	wakeup   chan struct{}
	done     chan struct{}
}

type moverTask struct {
	*MigrationTask
	offset uint64
}

type taskStatus int

const (
	tsContinue taskStatus = iota
	tsDone
	tsError
)

// NewMover creates a mover migrating blocks with m.
func NewMover(m Migrator) *Mover {
	mv := &Mover{
		migrator: m,
		wakeup:   make(chan struct{}, 1),
	}
	mv.SetConfig(&MoverConfig{})
	return mv
}

func (m *Mover) SetConfigJson(configJson string) error {
	config := &MoverConfig{}
	if configJson != "" {
		if err := json.Unmarshal([]byte(configJson), config); err != nil {
			return errors.Wrap(err, "invalid mover configuration")
		}
	}
	m.SetConfig(config)
	return nil
}

func (m *Mover) SetConfig(config *MoverConfig) {
	c := *config
	if c.Batch <= 0 {
		c.Batch = DefaultMoverBatch
	}
	if c.MaxTasks <= 0 {
		c.MaxTasks = DefaultMoverMaxTasks
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.config = c
}

// Start starts migrating tasks until ctx is done.
func (m *Mover) Start(ctx context.Context) {
	m.mutex.Lock()
	m.done = make(chan struct{})
	done := m.done
	m.mutex.Unlock()

	go func() {
		defer close(done)
		m.taskHandler(ctx)
	}()
}

// Wait waits for a started mover to stop.
func (m *Mover) Wait() {
	m.mutex.Lock()
	done := m.done
	m.mutex.Unlock()
	if done != nil {
		<-done
	}
}

// AddTask queues a migration task. It reports false if the task was
// dropped because too many tasks are pending.
func (m *Mover) AddTask(task *MigrationTask) bool {
	m.mutex.Lock()
	if len(m.tasks) >= m.config.MaxTasks {
		m.mutex.Unlock()
		return false
	}
	m.tasks = append(m.tasks, &moverTask{MigrationTask: task})
	m.mutex.Unlock()

	select {
	case m.wakeup <- struct{}{}:
	default:
	}
	return true
}

// TaskCount returns the number of pending tasks.
func (m *Mover) TaskCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tasks)
}

func (m *Mover) taskHandler(ctx context.Context) {
	for {
		select {
		case <-m.wakeup:
		case <-ctx.Done():
			return
		}
		for {
			task := m.popTask()
			if task == nil {
				break
			}
			if ts := m.handleTask(task); ts == tsContinue {
				m.mutex.Lock()
				m.tasks = append(m.tasks, task)
				m.mutex.Unlock()
			}

			t := time.NewTimer(m.interval())
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return
			}
		}
	}
}

// handleTask migrates the next batch of blocks of task.
func (m *Mover) handleTask(task *moverTask) taskStatus {
	m.mutex.Lock()
	batch := uint64(m.config.Batch)
	m.mutex.Unlock()

	for n := uint64(0); n < batch && task.offset < task.Count; n++ {
		blk := task.Block + int64(task.offset)
		if err := m.migrator.MigrateBlock(blk, task.Tier); err != nil {
			metrics.MigrationErrors.Inc()
			rlog.Error("migration %s failed at block %d: %v", task, blk, err)
			return tsError
		}
		metrics.Migrations.Inc()
		task.offset++
	}
	if task.offset < task.Count {
		return tsContinue
	}
	log.Debug("migration %s done", task)
	return tsDone
}

func (m *Mover) interval() time.Duration {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.config.Interval.OrDefault(DefaultMoverInterval)
}

func (m *Mover) popTask() *moverTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.tasks) == 0 {
		return nil
	}
	task := m.tasks[0]
	m.tasks[0] = nil
	m.tasks = m.tasks[1:]
	return task
}
