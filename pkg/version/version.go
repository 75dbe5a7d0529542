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

// Package version tags binaries with version metadata. Override the
// defaults at link time:
//
//	-ldflags "-X=github.com/tierhints/tierhints/pkg/version.Version=<version> \
//	          -X=github.com/tierhints/tierhints/pkg/version.Build=<build-id>"
//
// Importing the package adds a -version flag and a build info metric.
package version

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tierhints/tierhints/pkg/metrics"
)

// Linker-overridden version metadata.
var (
	// Version is our version as given by 'git describe'.
	Version = "unknown"
	// Build is the SHA1 of the repository we've been built from.
	Build = "unknown"
)

// Get returns the version and build ID, falling back to the module build
// info embedded by the go tool when not set at link time.
func Get() (string, string) {
	version, build := Version, Build
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version, build
	}
	if version == "unknown" && info.Main.Version != "" {
		version = info.Main.Version
	}
	if build == "unknown" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				build = s.Value
			}
		}
	}
	return version, build
}

// PrintVersionInfo prints version information about this binary.
func PrintVersionInfo(w io.Writer) {
	version, build := Get()
	fmt.Fprintf(w, "%s version information:\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(w, "  - version: %s\n", version)
	fmt.Fprintf(w, "  - build:   %s\n", build)
	fmt.Fprintf(w, "  - go:      %s\n", runtime.Version())
}

// versionFlag prints version information and exits when set.
type versionFlag struct{}

func (versionFlag) IsBoolFlag() bool {
	return true
}

func (versionFlag) Set(value string) error {
	print, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	if print {
		PrintVersionInfo(os.Stdout)
		os.Exit(0)
	}
	return nil
}

func (versionFlag) String() string {
	return "false"
}

func newBuildInfoCollector() (prometheus.Collector, error) {
	version, build := Get()
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tierhints",
		Name:      "build_info",
		Help:      "Version of the running binary.",
		ConstLabels: prometheus.Labels{
			"version":   version,
			"build":     build,
			"goversion": runtime.Version(),
		},
	})
	g.Set(1)
	return g, nil
}

func init() {
	flag.Var(versionFlag{}, "version", "Print version information about "+filepath.Base(os.Args[0]))
	metrics.RegisterCollector("build_info", newBuildInfoCollector)
}
