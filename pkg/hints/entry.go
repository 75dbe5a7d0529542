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

package hints

import (
	"encoding/binary"
	"unsafe"
)

const (
	// PlacementDontCare leaves placement to the driver's own heuristics.
	PlacementDontCare int32 = -1
)

// TierEntry is the payload of a hint injection. Its layout matches the
// driver's struct: two 64-bit fields, a 32-bit decision, tail padding.
type TierEntry struct {
	Offset            int64
	Size              uint64
	PlacementDecision int32
	_                 [4]byte
}

// TierEntrySize is the size of TierEntry in bytes.
const TierEntrySize = int(unsafe.Sizeof(TierEntry{}))

// NewTierEntry returns the entry for placing h with the given decision.
func NewTierEntry(h *Hint, decision int32) *TierEntry {
	return &TierEntry{
		Offset:            h.Offset,
		Size:              h.Size,
		PlacementDecision: decision,
	}
}

// MarshalBinary returns the native-endian in-memory layout of e.
func (e *TierEntry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, TierEntrySize)
	binary.NativeEndian.PutUint64(buf[0:], uint64(e.Offset))
	binary.NativeEndian.PutUint64(buf[8:], e.Size)
	binary.NativeEndian.PutUint32(buf[16:], uint32(e.PlacementDecision))
	return buf, nil
}
