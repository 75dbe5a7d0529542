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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/tierhints/tierhints/pkg/config"
	"github.com/tierhints/tierhints/pkg/generator"
	"github.com/tierhints/tierhints/pkg/instrumentation"
	logger "github.com/tierhints/tierhints/pkg/log"
	"github.com/tierhints/tierhints/pkg/pidfile"
	"github.com/tierhints/tierhints/pkg/trace"
	"github.com/tierhints/tierhints/pkg/transport"
	"github.com/tierhints/tierhints/pkg/version"
)

var log = logger.Default()

func main() {
	optConfig := flag.String("config", "", "file to read configuration from")
	optClient := flag.String("hint-client", transport.SinkRemote, "where to send hints: remote or stdout")
	optHost := flag.String("host", "localhost", "hint receiver host")
	optPort := flag.Int("port", transport.DefaultPort, "hint receiver port")
	optPidFile := flag.String("pidfile", "", "PID file of the daemon")

	flag.Parse()

	if len(flag.Args()) != 0 {
		log.Error("unknown command-line arguments: %s", strings.Join(flag.Args(), ","))
		flag.Usage()
		os.Exit(1)
	}

	cfg := defaultConfig()
	if err := config.Load(*optConfig, cfg); err != nil {
		log.Fatal("%v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "hint-client":
			cfg.Client.Type = *optClient
		case "host":
			cfg.Client.Host = *optHost
		case "port":
			cfg.Client.Port = *optPort
		case "pidfile":
			cfg.PidFile = *optPidFile
		}
	})

	ver, build := version.Get()
	log.Info("hint-generator version %s (build %s)", ver, build)

	logger.SetupDebugToggleSignal(syscall.SIGUSR1)
	logger.SetStdLogger("stdlog")

	pid := pidfile.New(cfg.PidFile)
	if err := writePidFile(pid); err != nil {
		log.Fatal("%v", err)
	}

	err := run(cfg)
	pid.Remove()
	if err != nil {
		log.Error("%v", err)
		logger.Flush()
		os.Exit(1)
	}
	logger.Flush()
}

// writePidFile claims the PID file, replacing it if its owner is gone.
func writePidFile(pid *pidfile.File) error {
	owner, err := pid.OwnerPid()
	if err != nil {
		return err
	}
	if owner > 0 {
		return errors.Errorf("already running with PID %d (%s)", owner, pid.Path())
	}
	if err := pid.Remove(); err != nil {
		return err
	}
	return pid.Write()
}

func run(cfg *generatorConfig) (retErr error) {
	strategy, err := generator.NewStrategy(cfg.Strategy.Name, cfg.Strategy.ConfigJson())
	if err != nil {
		return err
	}

	var sources []trace.Source
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if src.NoDataInterval == 0 {
			src.NoDataInterval = cfg.NoDataInterval
		}
		s, err := trace.NewSource(src)
		if err != nil {
			return err
		}
		sources = append(sources, s)
	}
	if len(sources) == 0 {
		return errors.New("no trace sources configured")
	}

	sink, err := transport.NewSink(&cfg.Client)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			retErr = multierror.Append(retErr, err)
		}
	}()

	svc := instrumentation.NewService("hint-generator", cfg.Instrumentation)
	if err := svc.Start(); err != nil {
		return err
	}
	defer svc.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer cancel()

	log.Info("generating hints with strategy %q from %d sources, sending to %s",
		cfg.Strategy.Name, len(sources), cfg.Client.Type)

	p := generator.NewPipeline(sources, trace.NewQueue(cfg.QueueSize), generator.NewGenerator(strategy), sink)
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shut down")
	return nil
}
