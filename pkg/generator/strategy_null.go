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
	"github.com/tierhints/tierhints/pkg/hints"
	"github.com/tierhints/tierhints/pkg/trace"
)

// nullStrategy has no opinion on anything.
type nullStrategy struct{}

func init() {
	RegisterStrategy("null", func() Strategy { return &nullStrategy{} })
}

func (*nullStrategy) SetConfigJson(string) error {
	return nil
}

func (*nullStrategy) Hint(trace.Record) *hints.Hint {
	return nil
}
