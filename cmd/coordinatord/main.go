// Copyright 2025 UMH Systems GmbH
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

// Command coordinatord bootstraps a bare coordinator process: a
// Registry, a Gate Watchdog, and a metrics endpoint. It does not
// construct any subsystem topology of its own — that is for a host
// binary to do by importing pkg/subsystem and pkg/registry directly;
// this command exists to exercise and diagnose the core in isolation,
// per spec.md §6's external interface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/united-manufacturing-hub/subsystem-core/pkg/config"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/logger"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/metrics"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/registry"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/sentry"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/subsystem"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/watchdog"
)

func main() {
	logger.Initialize()
	log := logger.For(logger.ComponentCore)

	cfg, err := config.LoadWithEnvOverrides(configPath(), log)
	if err != nil {
		log.Errorw("failed to load configuration, continuing with defaults", "error", err)
	}

	sentry.InitSentry(cfg.Sentry.DSN, cfg.Sentry.AppVersion, cfg.Sentry.DebounceErrors)

	log.Info("starting coordinatord")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := metrics.SetupMetricsEndpoint(cfg.Metrics.ListenAddr)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Errorw("failed to shut down metrics server", "error", err)
		}
	}()

	reg := registry.New(cfg.Registry.MaxSubsystems)

	gw := watchdog.New(reg, cfg.Watchdog.PollInterval, cfg.Watchdog.StallThreshold)
	defer gw.Stop()

	log.Info("coordinatord ready")

	<-ctx.Done()

	log.Info("shutting down coordinatord")
	subsystem.PrintRegistry(os.Stdout, reg)
}

// configPath returns the path to the YAML config file, defaulting to
// a relative path a deployed binary ships next to itself.
func configPath() string {
	if p := os.Getenv("COORD_CONFIG_PATH"); p != "" {
		return p
	}

	return "coordinator.yaml"
}
