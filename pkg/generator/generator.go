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

// Package generator turns trace records into placement hints.
package generator

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/tierhints/tierhints/pkg/hints"
	logger "github.com/tierhints/tierhints/pkg/log"
	"github.com/tierhints/tierhints/pkg/trace"
)

var log = logger.NewLogger("generator")

// Strategy derives an optional hint from a trace record. Strategies may
// keep state across records; they are only called from a single goroutine.
type Strategy interface {
	// SetConfigJson configures the strategy.
	SetConfigJson(configJson string) error
	// Hint returns the hint for rec, or nil.
	Hint(rec trace.Record) *hints.Hint
}

// strategies is a map of strategy name -> strategy creator
var strategies = make(map[string]func() Strategy)

// RegisterStrategy registers a strategy.
func RegisterStrategy(name string, create func() Strategy) {
	strategies[name] = create
}

// Strategies returns the names of all registered strategies.
func Strategies() []string {
	keys := make([]string, 0, len(strategies))
	for key := range strategies {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// NewStrategy creates and configures the named strategy.
func NewStrategy(name, configJson string) (Strategy, error) {
	create, ok := strategies[name]
	if !ok {
		return nil, errors.Errorf("generator: unknown strategy %q, supported: %v", name, Strategies())
	}
	s := create()
	if err := s.SetConfigJson(configJson); err != nil {
		return nil, errors.Wrapf(err, "generator: failed to configure strategy %q", name)
	}
	return s, nil
}

// Generator applies a strategy to trace records and guarantees that every
// block write gets a matched hint.
type Generator struct {
	strategy Strategy
}

// NewGenerator creates a generator using strategy s.
func NewGenerator(s Strategy) *Generator {
	return &Generator{strategy: s}
}

// Handle returns the hint for rec, or nil. Block writes always yield a
// hint with Match set: the driver holds the write until it gets one. All
// other hints are advisory.
func (g *Generator) Handle(rec trace.Record) *hints.Hint {
	h := g.strategy.Hint(rec)

	if rec.IsBlock() && rec.IsWrite() {
		if h == nil {
			offset, size := rec.Range()
			h = hints.NullHint(offset, size)
		}
		h.Match = true
		return h
	}

	if h != nil {
		h.Match = false
	}
	return h
}
