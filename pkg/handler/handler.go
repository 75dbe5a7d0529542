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

// Package handler applies received hints to the tiering driver: matched
// hints are answered with a placement decision, and hints may trigger
// background block migration.
package handler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/tierhints/tierhints/pkg/config"
	"github.com/tierhints/tierhints/pkg/hints"
	logger "github.com/tierhints/tierhints/pkg/log"
	"github.com/tierhints/tierhints/pkg/metrics"
)

var (
	log  = logger.NewLogger("handler")
	rlog = logger.RateLimit(log, logger.Interval(10*time.Second))
)

// Injector hands placement decisions to the driver.
type Injector interface {
	Inject(*hints.TierEntry) error
}

// Config selects the policies of a handler.
type Config struct {
	// Placement is the placement policy, dontcare by default.
	Placement config.Component `json:"placement"`
	// Migration is the migration policy, none by default.
	Migration config.Component `json:"migration"`
	// Mover paces migrations.
	Mover MoverConfig `json:"mover"`
}

// Handler handles hints one at a time.
type Handler struct {
	injector  Injector
	placement PlacementPolicy
	migration MigrationPolicy
	mover     *Mover
}

// New creates a handler injecting with inj and migrating with mig. mig may
// be nil if the migration policy never migrates.
func New(cfg *Config, inj Injector, mig Migrator) (*Handler, error) {
	placement, err := NewPlacementPolicy(cfg.Placement.Name, cfg.Placement.ConfigJson())
	if err != nil {
		return nil, err
	}
	migration, err := NewMigrationPolicy(cfg.Migration.Name, cfg.Migration.ConfigJson())
	if err != nil {
		return nil, err
	}

	h := &Handler{
		injector:  inj,
		placement: placement,
		migration: migration,
	}
	if _, none := migration.(noMigration); !none {
		if mig == nil {
			return nil, errors.Errorf("migration policy %q needs a tier manager", cfg.Migration.Name)
		}
		h.mover = NewMover(mig)
		h.mover.SetConfig(&cfg.Mover)
	}
	return h, nil
}

// Handle handles a single hint. A matched hint is answered by injecting a
// placement decision; injection errors are returned and not retried. Any
// migrations the hint triggers are queued for the background mover.
func (h *Handler) Handle(ctx context.Context, hint *hints.Hint) error {
	if span := trace.FromContext(ctx); span != nil {
		span.AddAttributes(
			trace.Int64Attribute("offset", hint.Offset),
			trace.Int64Attribute("size", int64(hint.Size)),
			trace.BoolAttribute("match", hint.Match))
	}

	var err error
	if hint.Match {
		err = h.inject(hint)
	}
	h.migrate(hint)
	return err
}

func (h *Handler) inject(hint *hints.Hint) error {
	decision := h.placement.Placement(hint)
	entry := hints.NewTierEntry(hint, decision)
	log.Debug("injecting %s with placement %d", hint, decision)

	metrics.Injections.Inc()
	if err := h.injector.Inject(entry); err != nil {
		metrics.InjectionErrors.Inc()
		return errors.Wrapf(err, "failed to inject %s", hint)
	}
	return nil
}

func (h *Handler) migrate(hint *hints.Hint) {
	if h.mover == nil {
		return
	}
	for _, task := range h.migration.Migrations(hint) {
		if !h.mover.AddTask(task) {
			metrics.MigrationErrors.Inc()
			rlog.Warn("too many pending migrations, dropped %s", task)
		}
	}
}

// ConsumeHints handles hints from q until ctx is done. Failures and panics
// while handling a hint are logged and counted, and the next hint is handled.
func (h *Handler) ConsumeHints(ctx context.Context, q *hints.Queue) error {
	if h.mover != nil {
		h.mover.Start(ctx)
		defer h.mover.Wait()
	}

	for {
		hint, err := q.Get(ctx)
		if err != nil {
			return err
		}
		if err := h.handleOne(ctx, hint); err != nil {
			metrics.StageFailures.WithLabelValues("handler").Inc()
			rlog.Error("%v", err)
		}
	}
}

func (h *Handler) handleOne(ctx context.Context, hint *hints.Hint) (err error) {
	ctx, span := trace.StartSpan(ctx, "handler.Handle")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic while handling %s: %v", hint, r)
		}
		if err != nil {
			span.SetStatus(trace.Status{Code: trace.StatusCodeUnknown, Message: err.Error()})
		}
	}()

	return h.Handle(ctx, hint)
}
