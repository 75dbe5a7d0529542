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

// Package hints defines placement hints, their JSON-lines wire protocol and
// the binary payload injected into the tiering driver.
package hints

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

const (
	// HintTypeNull is a hint without a placement opinion.
	HintTypeNull = 0
	// HintTypeTierAffinity is a hint whose data is the preferred tier.
	HintTypeTierAffinity = 1
)

// Hint is a placement or migration suggestion for a range of blocks.
type Hint struct {
	// Offset of the range, in device blocks.
	Offset int64 `json:"offset"`
	// Size of the range, in device blocks.
	Size uint64 `json:"size"`
	// Type is the placement code, HintTypeNull for no opinion.
	Type int `json:"hint_type"`
	// Data is optional type-specific data, kept in compact JSON form.
	Data json.RawMessage `json:"hint_data,omitempty"`
	// Match is set if the driver is blocking a write on this hint.
	Match bool `json:"match,omitempty"`
}

// NullHint returns a matched hint without a placement opinion.
func NullHint(offset int64, size uint64) *Hint {
	return &Hint{
		Offset: offset,
		Size:   size,
		Type:   HintTypeNull,
		Match:  true,
	}
}

// TierHint returns an advisory tier affinity hint.
func TierHint(offset int64, size uint64, tier int) *Hint {
	return &Hint{
		Offset: offset,
		Size:   size,
		Type:   HintTypeTierAffinity,
		Data:   json.RawMessage(fmt.Sprintf("%d", tier)),
	}
}

// Tier returns the tier carried by a tier affinity hint.
func (h *Hint) Tier() (int, bool) {
	if h.Type != HintTypeTierAffinity || len(h.Data) == 0 {
		return 0, false
	}
	var tier int
	if err := json.Unmarshal(h.Data, &tier); err != nil {
		return 0, false
	}
	return tier, true
}

func (h *Hint) String() string {
	match := ""
	if h.Match {
		match = " matched"
	}
	if len(h.Data) > 0 {
		return fmt.Sprintf("hint{off=%d size=%d type=%d data=%s%s}", h.Offset, h.Size, h.Type, h.Data, match)
	}
	return fmt.Sprintf("hint{off=%d size=%d type=%d%s}", h.Offset, h.Size, h.Type, match)
}

// Encode returns the wire representation of h: one JSON object terminated
// by a newline.
func Encode(h *Hint) ([]byte, error) {
	buf, err := json.Marshal(h)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode hint")
	}
	return append(buf, '\n'), nil
}

// wireHint is used to detect missing mandatory keys.
type wireHint struct {
	Offset *int64          `json:"offset"`
	Size   *uint64         `json:"size"`
	Type   *int            `json:"hint_type"`
	Data   json.RawMessage `json:"hint_data"`
	Match  bool            `json:"match"`
}

// Decode parses a single wire line. Trailing whitespace is ignored; offset,
// size and hint_type are mandatory. hint_data is compacted, so a decoded
// hint encodes and decodes back to an identical hint.
func Decode(line []byte) (*Hint, error) {
	w := &wireHint{}
	if err := json.Unmarshal(bytes.TrimSpace(line), w); err != nil {
		return nil, errors.Wrap(err, "invalid hint")
	}
	switch {
	case w.Offset == nil:
		return nil, errors.New("invalid hint: missing offset")
	case w.Size == nil:
		return nil, errors.New("invalid hint: missing size")
	case w.Type == nil:
		return nil, errors.New("invalid hint: missing hint_type")
	case *w.Offset < 0:
		return nil, errors.Errorf("invalid hint: negative offset %d", *w.Offset)
	}
	h := &Hint{
		Offset: *w.Offset,
		Size:   *w.Size,
		Type:   *w.Type,
		Match:  w.Match,
	}
	if len(w.Data) > 0 && string(w.Data) != "null" {
		data := &bytes.Buffer{}
		if err := json.Compact(data, w.Data); err != nil {
			return nil, errors.Wrap(err, "invalid hint_data")
		}
		h.Data = data.Bytes()
	}
	return h, nil
}
