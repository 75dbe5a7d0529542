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
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/tierhints/tierhints/pkg/hints"
)

// PlacementPolicy decides the tier of a write waiting for a matched hint.
type PlacementPolicy interface {
	SetConfigJson(string) error
	// Placement returns the target tier, or hints.PlacementDontCare.
	Placement(*hints.Hint) int32
}

// MigrationTask requests migrating Count blocks starting at Block to Tier.
type MigrationTask struct {
	Block int64
	Count uint64
	Tier  int
}

// MigrationPolicy derives block migrations from hints.
type MigrationPolicy interface {
	SetConfigJson(string) error
	// Migrations returns the migrations triggered by a hint, if any.
	Migrations(*hints.Hint) []*MigrationTask
}

type (
	placementCreator func() PlacementPolicy
	migrationCreator func() MigrationPolicy
)

var (
	policyLock        sync.Mutex
	placementCreators = map[string]placementCreator{}
	migrationCreators = map[string]migrationCreator{}
)

// RegisterPlacementPolicy registers a placement policy by name.
func RegisterPlacementPolicy(name string, create placementCreator) {
	policyLock.Lock()
	defer policyLock.Unlock()
	placementCreators[name] = create
}

// RegisterMigrationPolicy registers a migration policy by name.
func RegisterMigrationPolicy(name string, create migrationCreator) {
	policyLock.Lock()
	defer policyLock.Unlock()
	migrationCreators[name] = create
}

// PlacementPolicies returns the names of the registered placement policies.
func PlacementPolicies() []string {
	policyLock.Lock()
	defer policyLock.Unlock()
	names := make([]string, 0, len(placementCreators))
	for name := range placementCreators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MigrationPolicies returns the names of the registered migration policies.
func MigrationPolicies() []string {
	policyLock.Lock()
	defer policyLock.Unlock()
	names := make([]string, 0, len(migrationCreators))
	for name := range migrationCreators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewPlacementPolicy creates and configures a placement policy.
func NewPlacementPolicy(name, configJson string) (PlacementPolicy, error) {
	if name == "" {
		name = "dontcare"
	}
	policyLock.Lock()
	create, ok := placementCreators[name]
	policyLock.Unlock()
	if !ok {
		return nil, errors.Errorf("placement policy %q not found", name)
	}
	p := create()
	if err := p.SetConfigJson(configJson); err != nil {
		return nil, errors.Wrapf(err, "placement policy %q", name)
	}
	return p, nil
}

// NewMigrationPolicy creates and configures a migration policy.
func NewMigrationPolicy(name, configJson string) (MigrationPolicy, error) {
	if name == "" {
		name = "none"
	}
	policyLock.Lock()
	create, ok := migrationCreators[name]
	policyLock.Unlock()
	if !ok {
		return nil, errors.Errorf("migration policy %q not found", name)
	}
	p := create()
	if err := p.SetConfigJson(configJson); err != nil {
		return nil, errors.Wrapf(err, "migration policy %q", name)
	}
	return p, nil
}

// dontCare leaves every placement to the driver.
type dontCare struct{}

func (dontCare) SetConfigJson(string) error  { return nil }
func (dontCare) Placement(*hints.Hint) int32 { return hints.PlacementDontCare }

// affinityPlacement places writes on the tier of tier affinity hints.
type affinityPlacement struct{}

func (affinityPlacement) SetConfigJson(string) error { return nil }

func (affinityPlacement) Placement(h *hints.Hint) int32 {
	if tier, ok := h.Tier(); ok && tier >= 0 {
		return int32(tier)
	}
	return hints.PlacementDontCare
}

// noMigration never migrates.
type noMigration struct{}

func (noMigration) SetConfigJson(string) error              { return nil }
func (noMigration) Migrations(*hints.Hint) []*MigrationTask { return nil }

// affinityMigration migrates the blocks of advisory tier affinity hints.
// Matched hints are placed at write time and need no migration.
type affinityMigration struct{}

func (affinityMigration) SetConfigJson(string) error { return nil }

func (affinityMigration) Migrations(h *hints.Hint) []*MigrationTask {
	if h.Match || h.Size == 0 {
		return nil
	}
	tier, ok := h.Tier()
	if !ok || tier < 0 {
		return nil
	}
	return []*MigrationTask{{Block: h.Offset, Count: h.Size, Tier: tier}}
}

func (t *MigrationTask) String() string {
	return strconv.FormatInt(t.Block, 10) + "+" + strconv.FormatUint(t.Count, 10) + "->" + strconv.Itoa(t.Tier)
}

func init() {
	RegisterPlacementPolicy("dontcare", func() PlacementPolicy { return dontCare{} })
	RegisterPlacementPolicy("affinity", func() PlacementPolicy { return affinityPlacement{} })
	RegisterMigrationPolicy("none", func() MigrationPolicy { return noMigration{} })
	RegisterMigrationPolicy("affinity", func() MigrationPolicy { return affinityMigration{} })
}
