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

package config

import (
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/subsystem-core/pkg/env"
)

// LoadWithEnvOverrides loads the config file at path, then applies
// environment variable overrides on top. Precedence (highest to
// lowest): environment variables, file values, defaults — matching
// the teacher's LoadConfigWithEnvOverrides.
//
// Recognized variables: COORD_MAX_SUBSYSTEMS, COORD_LOG_LEVEL,
// COORD_LOG_FORMAT, COORD_SENTRY_DSN, COORD_METRICS_ADDR,
// COORD_WATCHDOG_POLL_INTERVAL_SECONDS,
// COORD_WATCHDOG_STALL_THRESHOLD_SECONDS (both whole seconds).
func LoadWithEnvOverrides(path string, log *zap.SugaredLogger) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, err
	}

	if v, err := env.GetAsInt("COORD_MAX_SUBSYSTEMS", false, cfg.Registry.MaxSubsystems); err != nil {
		log.Warnf("failed to read COORD_MAX_SUBSYSTEMS: %v", err)
	} else {
		cfg.Registry.MaxSubsystems = v
	}

	if v, err := env.GetAsString("COORD_LOG_LEVEL", false, cfg.Logging.Level); err != nil {
		log.Warnf("failed to read COORD_LOG_LEVEL: %v", err)
	} else if v != "" {
		cfg.Logging.Level = v
	}

	if v, err := env.GetAsString("COORD_LOG_FORMAT", false, cfg.Logging.Format); err != nil {
		log.Warnf("failed to read COORD_LOG_FORMAT: %v", err)
	} else if v != "" {
		cfg.Logging.Format = v
	}

	if v, err := env.GetAsString("COORD_SENTRY_DSN", false, cfg.Sentry.DSN); err != nil {
		log.Warnf("failed to read COORD_SENTRY_DSN: %v", err)
	} else if v != "" {
		cfg.Sentry.DSN = v
	}

	if v, err := env.GetAsString("COORD_METRICS_ADDR", false, cfg.Metrics.ListenAddr); err != nil {
		log.Warnf("failed to read COORD_METRICS_ADDR: %v", err)
	} else if v != "" {
		cfg.Metrics.ListenAddr = v
	}

	if v, err := env.GetAsInt("COORD_WATCHDOG_POLL_INTERVAL_SECONDS", false, int(cfg.Watchdog.PollInterval/time.Second)); err != nil {
		log.Warnf("failed to read COORD_WATCHDOG_POLL_INTERVAL_SECONDS: %v", err)
	} else {
		cfg.Watchdog.PollInterval = time.Duration(v) * time.Second
	}

	if v, err := env.GetAsInt("COORD_WATCHDOG_STALL_THRESHOLD_SECONDS", false, int(cfg.Watchdog.StallThreshold/time.Second)); err != nil {
		log.Warnf("failed to read COORD_WATCHDOG_STALL_THRESHOLD_SECONDS: %v", err)
	} else {
		cfg.Watchdog.StallThreshold = time.Duration(v) * time.Second
	}

	return cfg, nil
}
