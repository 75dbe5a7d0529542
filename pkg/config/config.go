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

// Package config loads daemon configuration files. Files are YAML or JSON
// and are decoded into caller-provided structs that already carry defaults,
// so a missing key keeps its default.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// Component is the configuration of a pluggable component: the name it is
// registered under and its component-specific configuration.
type Component struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config,omitempty"`
}

// ConfigJson returns the component configuration, "{}" if none was given.
func (c Component) ConfigJson() string {
	if len(c.Config) == 0 || string(c.Config) == "null" {
		return "{}"
	}
	return string(c.Config)
}

// Load reads the file at path and decodes it into into. An empty path
// leaves into untouched.
func Load(path string, into interface{}) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return configError("failed to read configuration file: %v", err)
	}
	return Parse(data, into)
}

// Parse decodes YAML or JSON configuration data into into. Unknown keys
// are rejected.
func Parse(data []byte, into interface{}) error {
	if err := yaml.UnmarshalStrict(data, into); err != nil {
		return configError("failed to parse configuration: %v", err)
	}
	return nil
}

// Dump returns the configuration in YAML format.
func Dump(cfg interface{}) (string, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", configError("failed to dump configuration: %v", err)
	}
	return string(out), nil
}

func configError(format string, args ...interface{}) error {
	return errors.Errorf("config: "+format, args...)
}
