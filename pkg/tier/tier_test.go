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

package tier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/tierhints/tierhints/pkg/hints"
	"github.com/tierhints/tierhints/pkg/testutils"
)

// fakeSysfs records entry writes. Writes listed in fail, by entry or by
// entry=data, fail.
type fakeSysfs struct {
	writes    []string
	fail      map[string]error
	blockinfo map[string]string
}

func (f *fakeSysfs) Write(entry, data string) error {
	if err, ok := f.fail[entry+"="+data]; ok {
		return err
	}
	if err, ok := f.fail[entry]; ok {
		return err
	}
	f.writes = append(f.writes, entry+"="+data)
	return nil
}

func (f *fakeSysfs) Query(entry, data string) (string, error) {
	if err, ok := f.fail[entry]; ok {
		return "", err
	}
	f.writes = append(f.writes, entry+"="+data)
	return f.blockinfo[data], nil
}

func TestMigrateBlock(t *testing.T) {
	fs := &fakeSysfs{}
	m := NewManagerWithSysfs(fs)

	require.NoError(t, m.MigrateBlock(1, 2))
	require.Equal(t, []string{
		"migration_enabled=0\n",
		"migrate_block=1/2\n",
		"migration_enabled=1\n",
	}, fs.writes)

	require.Error(t, m.MigrateBlock(-1, 0))
	require.Error(t, m.MigrateBlock(1, -1))
}

func TestMigrateBlockFailureReenables(t *testing.T) {
	fs := &fakeSysfs{
		fail: map[string]error{entryMigrateBlock: errors.New("EINVAL")},
	}
	m := NewManagerWithSysfs(fs)

	for i := 0; i < 2; i++ {
		err := m.MigrateBlock(7, 1)
		require.Error(t, err)
		require.Contains(t, err.Error(), "EINVAL")
	}
	require.Equal(t, []string{
		"migration_enabled=0\n",
		"migration_enabled=1\n",
		"migration_enabled=0\n",
		"migration_enabled=1\n",
	}, fs.writes)
}

func TestMigrateBlockReportsBothFailures(t *testing.T) {
	fs := &fakeSysfs{
		fail: map[string]error{
			entryMigrateBlock:              errors.New("EINVAL"),
			entryMigrationEnabled + "=1\n": errors.New("EBUSY"),
		},
	}
	m := NewManagerWithSysfs(fs)

	testutils.VerifyError(t, m.MigrateBlock(7, 1), 2, []string{"EINVAL", "EBUSY"})
}

func TestMigrateBlockPauseFailure(t *testing.T) {
	fs := &fakeSysfs{
		fail: map[string]error{entryMigrationEnabled: errors.New("EACCES")},
	}
	m := NewManagerWithSysfs(fs)

	require.Error(t, m.MigrateBlock(7, 1))
	require.Empty(t, fs.writes, "nothing should be migrated without pausing")
}

func TestPauseAutoMigration(t *testing.T) {
	fs := &fakeSysfs{}
	m := NewManagerWithSysfs(fs)

	resume, err := m.PauseAutoMigration()
	require.NoError(t, err)
	require.Equal(t, []string{"migration_enabled=0\n"}, fs.writes)
	require.NoError(t, resume())
	require.NoError(t, m.SetAutoMigration(false))
	require.Equal(t, []string{
		"migration_enabled=0\n",
		"migration_enabled=1\n",
		"migration_enabled=0\n",
	}, fs.writes)
}

func TestBlockInfo(t *testing.T) {
	fs := &fakeSysfs{
		blockinfo: map[string]string{
			"1\n": "0,4096,1690000000,12,3\n",
			"2\n": "0,8192,1690000000\n",
			"3\n": "0,x,1,2,3\n",
		},
	}
	m := NewManagerWithSysfs(fs)

	info, err := m.BlockInfo(1)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(&BlockInfo{
		Device:     0,
		Offset:     4096,
		Atime:      1690000000,
		ReadCount:  12,
		WriteCount: 3,
	}, info))
	require.Equal(t, []string{"show_blockinfo=1\n"}, fs.writes)

	_, err = m.BlockInfo(2)
	require.Error(t, err)
	_, err = m.BlockInfo(3)
	require.Error(t, err)
	_, err = m.BlockInfo(-1)
	require.Error(t, err)
}

func TestSysfsDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "sdtiera", "tier")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, entry := range []string{entryMigrateBlock, entryMigrationEnabled, entryShowBlockInfo} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, entry), nil, 0644))
	}

	m := NewManager(root, "/dev/sdtiera")
	require.NoError(t, m.MigrateBlock(3, 1))

	data, err := os.ReadFile(filepath.Join(dir, entryMigrateBlock))
	require.NoError(t, err)
	require.Equal(t, "3/1\n", string(data))
	data, err = os.ReadFile(filepath.Join(dir, entryMigrationEnabled))
	require.NoError(t, err)
	require.Equal(t, "1\n", string(data))

	// a regular file echoes back the query
	_, err = m.BlockInfo(3)
	require.Error(t, err)

	require.Error(t, NewManager(root, "sdtierb").MigrateBlock(3, 1))
}

func TestControlDevice(t *testing.T) {
	_, err := OpenControlDevice(filepath.Join(t.TempDir(), "tiercontrol"))
	require.Error(t, err)

	dev, err := OpenControlDevice("/dev/null")
	require.NoError(t, err)
	defer dev.Close()

	err = dev.Inject(hints.NewTierEntry(hints.NullHint(1, 1), hints.PlacementDontCare))
	require.Error(t, err)
	require.True(t, errors.Is(err, unix.ENOTTY), "unexpected error %v", err)

	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
}
