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

package trace

import (
	"encoding/binary"
	"sort"
)

// Format describes a fixed-size binary trace frame.
type Format struct {
	// Name of the format.
	Name string
	// Length of a frame in bytes.
	Length int
	// Decode decodes a frame of exactly Length bytes.
	Decode func(frame []byte) (Record, error)
}

// formats is a map of frame format name -> format
var formats = make(map[string]*Format)

// RegisterFormat registers a frame format.
func RegisterFormat(f *Format) {
	formats[f.Name] = f
}

// GetFormat returns the named frame format, or nil if it is unknown.
func GetFormat(name string) *Format {
	return formats[name]
}

// Formats returns the names of all registered frame formats.
func Formats() []string {
	keys := make([]string, 0, len(formats))
	for key := range formats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// DecodeFrame decodes frame with format f.
func (f *Format) DecodeFrame(frame []byte) (Record, error) {
	if len(frame) != f.Length {
		return nil, traceError("%s frame: expected %d bytes, got %d", f.Name, f.Length, len(frame))
	}
	r, err := f.Decode(frame)
	if err != nil {
		return nil, err
	}
	if offset, _ := r.Range(); offset < 0 {
		return nil, traceError("%s frame: negative offset %d", f.Name, offset)
	}
	return r, nil
}

// frame decodes packed native-endian fields in order.
type frame struct {
	buf []byte
	pos int
}

func (f *frame) u32() uint32 {
	v := binary.NativeEndian.Uint32(f.buf[f.pos:])
	f.pos += 4
	return v
}

func (f *frame) u64() uint64 {
	v := binary.NativeEndian.Uint64(f.buf[f.pos:])
	f.pos += 8
	return v
}

func (f *frame) i64() int64 {
	return int64(f.u64())
}

func (f *frame) boolean() bool {
	v := f.buf[f.pos] != 0
	f.pos++
	return v
}

func decodeFile(buf []byte) (Record, error) {
	f := &frame{buf: buf}
	return &FileTrace{
		Pid:    f.u32(),
		Major:  f.u32(),
		Minor:  f.u32(),
		Inode:  f.u64(),
		Offset: f.i64(),
		Size:   f.u64(),
		Write:  f.boolean(),
	}, nil
}

func decodePostCache(buf []byte) (Record, error) {
	f := &frame{buf: buf}
	return &PostCacheTrace{
		Pid:       f.u32(),
		Major:     f.u32(),
		Minor:     f.u32(),
		Inode:     f.u64(),
		Offset:    f.i64(),
		Size:      f.u64(),
		Readahead: f.boolean(),
		Write:     f.boolean(),
	}, nil
}

func decodeBlock(buf []byte) (Record, error) {
	f := &frame{buf: buf}
	return &BlockTrace{
		Pid:    f.u32(),
		Write:  f.boolean(),
		Offset: f.i64(),
		Size:   f.u64(),
	}, nil
}

func decodeBlockLegacy(buf []byte) (Record, error) {
	f := &frame{buf: buf}
	return &LegacyBlockTrace{
		Fd:     f.u64(),
		Offset: f.u64(),
		Count:  f.u64(),
		Write:  f.boolean(),
	}, nil
}

func init() {
	RegisterFormat(&Format{Name: string(KindFile), Length: 37, Decode: decodeFile})
	RegisterFormat(&Format{Name: string(KindPostCache), Length: 38, Decode: decodePostCache})
	RegisterFormat(&Format{Name: string(KindBlock), Length: 21, Decode: decodeBlock})
	RegisterFormat(&Format{Name: string(KindBlockLegacy), Length: 25, Decode: decodeBlockLegacy})
}
