// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
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

// Package testutils has helpers shared by tests of several packages.
package testutils

import (
	"net"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// VerifyError checks that err is a multierror of expectedCount errors whose
// message contains all expectedSubstrings. An expectedCount of 0 checks
// that err is nil.
func VerifyError(t *testing.T, err error, expectedCount int, expectedSubstrings []string) bool {
	t.Helper()

	if expectedCount == 0 {
		return assert.NoError(t, err)
	}
	if !assert.Error(t, err) {
		return false
	}
	merr, ok := err.(*multierror.Error)
	if !assert.True(t, ok, "expected %d errors, but got %#v instead of multierror", expectedCount, err) {
		return false
	}
	if !assert.Len(t, merr.Errors, expectedCount, "unexpected errors: %v", merr) {
		return false
	}
	ok = true
	for _, substring := range expectedSubstrings {
		ok = assert.Contains(t, err.Error(), substring) && ok
	}
	return ok
}

// UnusedPort returns a loopback TCP port that nothing listens on.
func UnusedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}
