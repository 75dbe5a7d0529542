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
	"golang.org/x/sync/errgroup"

	"github.com/tierhints/tierhints/pkg/config"
	"github.com/tierhints/tierhints/pkg/handler"
	"github.com/tierhints/tierhints/pkg/hints"
	"github.com/tierhints/tierhints/pkg/instrumentation"
	logger "github.com/tierhints/tierhints/pkg/log"
	"github.com/tierhints/tierhints/pkg/pidfile"
	"github.com/tierhints/tierhints/pkg/tier"
	"github.com/tierhints/tierhints/pkg/transport"
	"github.com/tierhints/tierhints/pkg/version"
)

var log = logger.Default()

func main() {
	optConfig := flag.String("config", "", "file to read configuration from")
	optListen := flag.String("listen", "0.0.0.0", "address to accept hints on")
	optPort := flag.Int("port", transport.DefaultPort, "port to accept hints on")
	optMaxConns := flag.Int("max-connections", transport.DefaultMaxConnections, "maximum number of concurrent generator connections")
	optControl := flag.String("control-device", tier.DefaultControlDevice, "control device of the tiering driver")
	optData := flag.String("data-device", "/dev/sdtiera", "tiered block device")
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
		case "listen":
			cfg.Listen = *optListen
		case "port":
			cfg.Port = *optPort
		case "max-connections":
			cfg.MaxConnections = *optMaxConns
		case "control-device":
			cfg.ControlDevice = *optControl
		case "data-device":
			cfg.DataDevice = *optData
		case "pidfile":
			cfg.PidFile = *optPidFile
		}
	})

	ver, build := version.Get()
	log.Info("hint-receiver version %s (build %s)", ver, build)

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

func run(cfg *receiverConfig) (retErr error) {
	dev, err := tier.OpenControlDevice(cfg.ControlDevice)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			retErr = multierror.Append(retErr, errors.Wrap(err, "failed to close control device"))
		}
	}()

	mgr := tier.NewManager(cfg.SysfsRoot, cfg.DataDevice)
	h, err := handler.New(&cfg.Config, dev, mgr)
	if err != nil {
		return err
	}

	q := hints.NewQueue()
	srv := transport.NewServer(cfg.ServerConfig, q)
	if err := srv.Listen(); err != nil {
		return err
	}

	svc := instrumentation.NewService("hint-receiver", cfg.Instrumentation)
	if err := svc.Start(); err != nil {
		srv.Stop()
		return err
	}
	defer svc.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer cancel()

	log.Info("handling hints for %s through %s", cfg.DataDevice, dev.Path())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx)
	})
	g.Go(func() error {
		return h.ConsumeHints(ctx, q)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shut down")
	return nil
}
