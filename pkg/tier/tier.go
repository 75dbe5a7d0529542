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

// Package tier controls a tiered block device through its driver: hint
// injection on the control device and manual block migration through the
// per-device sysfs tier directory.
package tier

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	logger "github.com/tierhints/tierhints/pkg/log"
)

const (
	// DefaultSysfsRoot is where the tier directories of block devices live.
	DefaultSysfsRoot = "/sys/block"

	entryMigrateBlock     = "migrate_block"
	entryMigrationEnabled = "migration_enabled"
	entryShowBlockInfo    = "show_blockinfo"
)

var log = logger.NewLogger("tier")

// Sysfs accesses the entries of a tier directory.
type Sysfs interface {
	// Write stores data in entry.
	Write(entry, data string) error
	// Query stores data in entry, then reads back the response.
	Query(entry, data string) (string, error)
}

// BlockInfo is the driver's bookkeeping for a single block.
type BlockInfo struct {
	Device     int64
	Offset     int64
	Atime      int64
	ReadCount  int64
	WriteCount int64
}

// Manager migrates blocks between tiers and queries block statistics.
type Manager struct {
	sync.Mutex
	sysfs Sysfs
}

// NewManager creates a manager for the tiered device, given either as a
// device name or a device node path.
func NewManager(sysfsRoot, device string) *Manager {
	if sysfsRoot == "" {
		sysfsRoot = DefaultSysfsRoot
	}
	dir := filepath.Join(sysfsRoot, filepath.Base(device), "tier")
	return NewManagerWithSysfs(&sysfsDir{dir: dir})
}

// NewManagerWithSysfs creates a manager using the given sysfs accessor.
func NewManagerWithSysfs(sysfs Sysfs) *Manager {
	return &Manager{sysfs: sysfs}
}

// MigrateBlock asks the driver to move blk to tier. Automatic migration is
// paused for the duration of the request and always re-enabled afterwards.
// The migration itself is asynchronous and its failure is not reported.
func (m *Manager) MigrateBlock(blk int64, tier int) (retErr error) {
	if blk < 0 || tier < 0 {
		return tierError("invalid migration of block %d to tier %d", blk, tier)
	}

	m.Lock()
	defer m.Unlock()

	resume, err := m.pause()
	if err != nil {
		return err
	}
	defer func() {
		if err := resume(); err != nil {
			retErr = multierror.Append(retErr, err)
		}
	}()

	directive := strconv.FormatInt(blk, 10) + "/" + strconv.Itoa(tier) + "\n"
	if err := m.sysfs.Write(entryMigrateBlock, directive); err != nil {
		return errors.Wrapf(err, "failed to migrate block %d to tier %d", blk, tier)
	}
	log.Debug("requested migration of block %d to tier %d", blk, tier)
	return nil
}

// SetAutoMigration enables or disables automatic migration by the driver.
func (m *Manager) SetAutoMigration(enabled bool) error {
	m.Lock()
	defer m.Unlock()
	return m.setAutoMigration(enabled)
}

// PauseAutoMigration disables automatic migration and returns a function
// that re-enables it.
func (m *Manager) PauseAutoMigration() (func() error, error) {
	m.Lock()
	defer m.Unlock()
	return m.pause()
}

func (m *Manager) pause() (func() error, error) {
	if err := m.setAutoMigration(false); err != nil {
		return nil, err
	}
	return func() error { return m.setAutoMigration(true) }, nil
}

func (m *Manager) setAutoMigration(enabled bool) error {
	value := "0\n"
	if enabled {
		value = "1\n"
	}
	if err := m.sysfs.Write(entryMigrationEnabled, value); err != nil {
		if enabled {
			return errors.Wrap(err, "failed to re-enable automatic migration")
		}
		return errors.Wrap(err, "failed to pause automatic migration")
	}
	return nil
}

// BlockInfo queries the driver's statistics of blk.
func (m *Manager) BlockInfo(blk int64) (*BlockInfo, error) {
	if blk < 0 {
		return nil, tierError("invalid block %d", blk)
	}

	m.Lock()
	defer m.Unlock()

	resp, err := m.sysfs.Query(entryShowBlockInfo, strconv.FormatInt(blk, 10)+"\n")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query block %d", blk)
	}
	info, err := ParseBlockInfo(resp)
	if err != nil {
		return nil, errors.Wrapf(err, "block %d", blk)
	}
	return info, nil
}

// ParseBlockInfo parses a "device,offset,atime,readcount,writecount"
// response.
func ParseBlockInfo(resp string) (*BlockInfo, error) {
	fields := strings.Split(strings.TrimSpace(resp), ",")
	if len(fields) != 5 {
		return nil, tierError("invalid block info %q: expected 5 fields, got %d", resp, len(fields))
	}
	values := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, tierError("invalid block info %q: %v", resp, err)
		}
		values[i] = v
	}
	return &BlockInfo{
		Device:     values[0],
		Offset:     values[1],
		Atime:      values[2],
		ReadCount:  values[3],
		WriteCount: values[4],
	}, nil
}

// sysfsDir accesses the entries of a tier directory in sysfs.
type sysfsDir struct {
	dir string
}

func (s *sysfsDir) Write(entry, data string) error {
	path := filepath.Join(s.dir, entry)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return sysfsError(path, "cannot open: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteString(data); err != nil {
		return sysfsError(path, "cannot write: %v", err)
	}
	return nil
}

func (s *sysfsDir) Query(entry, data string) (string, error) {
	path := filepath.Join(s.dir, entry)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return "", sysfsError(path, "cannot open: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteString(data); err != nil {
		return "", sysfsError(path, "cannot write: %v", err)
	}
	buf := make([]byte, 4096)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return "", sysfsError(path, "cannot read: %v", err)
	}
	return string(buf[:n]), nil
}

func tierError(format string, args ...interface{}) error {
	return errors.Errorf("tier: "+format, args...)
}

func sysfsError(path, format string, args ...interface{}) error {
	return errors.Errorf(path+": "+format, args...)
}
