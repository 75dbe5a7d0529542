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

// Package trace reads file- and block-level I/O trace records from kernel
// trace devices, BPF ring buffers and supervised blktrace pipelines.
package trace

import (
	"fmt"
)

// Kind identifies the trace source kind a record was produced by.
type Kind string

const (
	// KindFile is syscall-level file I/O, before the page cache.
	KindFile Kind = "file"
	// KindPostCache is file I/O that passed the page cache.
	KindPostCache Kind = "post_cache"
	// KindBlock is block device I/O with the issuing pid.
	KindBlock Kind = "block"
	// KindBlockLegacy is block device I/O keyed by file descriptor.
	KindBlockLegacy Kind = "block_legacy"
)

// Record is a single trace record. Records are immutable once produced.
type Record interface {
	// Kind returns the kind of the record.
	Kind() Kind
	// IsBlock returns true for block-level records.
	IsBlock() bool
	// IsWrite returns true for writes.
	IsWrite() bool
	// Range returns the offset and size of the I/O.
	Range() (int64, uint64)
}

// FileTrace is a pre-cache syscall-level file I/O record.
type FileTrace struct {
	Pid    uint32
	Major  uint32
	Minor  uint32
	Inode  uint64
	Offset int64
	Size   uint64
	Write  bool
}

// PostCacheTrace is a post page-cache file I/O record.
type PostCacheTrace struct {
	Pid       uint32
	Major     uint32
	Minor     uint32
	Inode     uint64
	Offset    int64
	Size      uint64
	Readahead bool
	Write     bool
}

// BlockTrace is a block device I/O record. Offset and Size are in device
// blocks. Pid is zero for kernel-internal I/O.
type BlockTrace struct {
	Pid    uint32
	Offset int64
	Size   uint64
	Write  bool
}

// LegacyBlockTrace is a block device I/O record of the older fd-based
// trace format. It carries no pid.
type LegacyBlockTrace struct {
	Fd     uint64
	Offset uint64
	Count  uint64
	Write  bool
}

func (*FileTrace) Kind() Kind               { return KindFile }
func (*FileTrace) IsBlock() bool            { return false }
func (t *FileTrace) IsWrite() bool          { return t.Write }
func (t *FileTrace) Range() (int64, uint64) { return t.Offset, t.Size }

func (*PostCacheTrace) Kind() Kind               { return KindPostCache }
func (*PostCacheTrace) IsBlock() bool            { return false }
func (t *PostCacheTrace) IsWrite() bool          { return t.Write }
func (t *PostCacheTrace) Range() (int64, uint64) { return t.Offset, t.Size }

func (*BlockTrace) Kind() Kind               { return KindBlock }
func (*BlockTrace) IsBlock() bool            { return true }
func (t *BlockTrace) IsWrite() bool          { return t.Write }
func (t *BlockTrace) Range() (int64, uint64) { return t.Offset, t.Size }

func (*LegacyBlockTrace) Kind() Kind      { return KindBlockLegacy }
func (*LegacyBlockTrace) IsBlock() bool   { return true }
func (t *LegacyBlockTrace) IsWrite() bool { return t.Write }

func (t *LegacyBlockTrace) Range() (int64, uint64) {
	return int64(t.Offset), t.Count
}

func (t *FileTrace) String() string {
	return fmt.Sprintf("file{pid=%d dev=%d:%d inode=%d off=%d size=%d %s}",
		t.Pid, t.Major, t.Minor, t.Inode, t.Offset, t.Size, rw(t.Write))
}

func (t *PostCacheTrace) String() string {
	return fmt.Sprintf("post_cache{pid=%d dev=%d:%d inode=%d off=%d size=%d ra=%v %s}",
		t.Pid, t.Major, t.Minor, t.Inode, t.Offset, t.Size, t.Readahead, rw(t.Write))
}

func (t *BlockTrace) String() string {
	return fmt.Sprintf("block{pid=%d off=%d size=%d %s}", t.Pid, t.Offset, t.Size, rw(t.Write))
}

func (t *LegacyBlockTrace) String() string {
	return fmt.Sprintf("block_legacy{fd=%d off=%d count=%d %s}", t.Fd, t.Offset, t.Count, rw(t.Write))
}

func rw(write bool) string {
	if write {
		return "W"
	}
	return "R"
}
