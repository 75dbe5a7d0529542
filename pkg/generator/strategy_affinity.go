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

package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tierhints/tierhints/pkg/hints"
	"github.com/tierhints/tierhints/pkg/trace"
)

// AffinityConfig configures the affinity strategy.
type AffinityConfig struct {
	// Markers are the inodes whose access pins a process to a tier.
	Markers []Marker `json:"markers"`
}

// Marker maps an inode to a tier. If Device is set ("major:minor" or a
// device node path), only accesses on that device match. Path names the
// marker file instead of Inode and Device.
type Marker struct {
	Inode  uint64 `json:"inode,omitempty"`
	Tier   int    `json:"tier"`
	Device string `json:"device,omitempty"`
	Path   string `json:"path,omitempty"`
}

type markerKey struct {
	inode        uint64
	major, minor uint32
	anyDevice    bool
}

// affinityStrategy learns process tier affinities from file accesses to
// marker inodes and hints block I/O of those processes to their tier. The
// first affinity learned for a pid sticks.
type affinityStrategy struct {
	markers  map[markerKey]int
	affinity map[uint32]int
}

func init() {
	RegisterStrategy("affinity", func() Strategy {
		return &affinityStrategy{
			markers:  make(map[markerKey]int),
			affinity: make(map[uint32]int),
		}
	})
}

func (s *affinityStrategy) SetConfigJson(configJson string) error {
	if configJson == "" {
		configJson = "{}"
	}
	cfg := &AffinityConfig{}
	dec := json.NewDecoder(bytes.NewReader([]byte(configJson)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return errors.Wrap(err, "invalid affinity configuration")
	}
	return s.SetConfig(cfg)
}

func (s *affinityStrategy) SetConfig(cfg *AffinityConfig) error {
	markers := make(map[markerKey]int, len(cfg.Markers))
	for _, m := range cfg.Markers {
		key, err := m.key()
		if err != nil {
			return err
		}
		if _, ok := markers[key]; ok {
			return errors.Errorf("duplicate marker for inode %d", m.Inode)
		}
		markers[key] = m.Tier
	}
	s.markers = markers
	return nil
}

func (m *Marker) key() (markerKey, error) {
	key := markerKey{inode: m.Inode, anyDevice: true}
	switch {
	case m.Path != "":
		st := unix.Stat_t{}
		if err := unix.Stat(m.Path, &st); err != nil {
			return key, errors.Wrapf(err, "failed to stat marker %q", m.Path)
		}
		key.inode = st.Ino
		key.major, key.minor = unix.Major(uint64(st.Dev)), unix.Minor(uint64(st.Dev))
		key.anyDevice = false
	case strings.HasPrefix(m.Device, "/"):
		st := unix.Stat_t{}
		if err := unix.Stat(m.Device, &st); err != nil {
			return key, errors.Wrapf(err, "failed to stat marker device %q", m.Device)
		}
		if st.Mode&unix.S_IFMT != unix.S_IFBLK {
			return key, errors.Errorf("marker device %q is not a block device", m.Device)
		}
		key.major, key.minor = unix.Major(uint64(st.Rdev)), unix.Minor(uint64(st.Rdev))
		key.anyDevice = false
	case m.Device != "":
		if _, err := fmt.Sscanf(m.Device, "%d:%d", &key.major, &key.minor); err != nil {
			return key, errors.Errorf("invalid marker device %q, expected major:minor", m.Device)
		}
		key.anyDevice = false
	}
	return key, nil
}

func (s *affinityStrategy) Hint(rec trace.Record) *hints.Hint {
	switch r := rec.(type) {
	case *trace.FileTrace:
		s.learn(r.Pid, r.Major, r.Minor, r.Inode)
	case *trace.PostCacheTrace:
		s.learn(r.Pid, r.Major, r.Minor, r.Inode)
	case *trace.BlockTrace:
		if tier, ok := s.affinity[r.Pid]; ok && r.Pid != 0 {
			return hints.TierHint(r.Offset, r.Size, tier)
		}
	}
	return nil
}

func (s *affinityStrategy) learn(pid, major, minor uint32, inode uint64) {
	if pid == 0 {
		return
	}
	if _, ok := s.affinity[pid]; ok {
		return
	}
	tier, ok := s.markers[markerKey{inode: inode, major: major, minor: minor}]
	if !ok {
		tier, ok = s.markers[markerKey{inode: inode, anyDevice: true}]
	}
	if ok {
		log.Debug("pid %d has affinity to tier %d (inode %d on %d:%d)", pid, tier, inode, major, minor)
		s.affinity[pid] = tier
	}
}
