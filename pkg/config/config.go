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

// Package config loads the coordinator's ambient configuration: the
// registry's capacity bound, logging, Sentry and metrics setup, and
// the gate watchdog's thresholds. The core itself (pkg/registry,
// pkg/subsystem) never reads this package — only cmd/coordinatord
// does, passing the resolved values in as constructor arguments.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the coordinator's complete ambient configuration.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sentry   SentryConfig   `yaml:"sentry"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
}

// RegistryConfig bounds the shared tag->(state,backref) registry.
type RegistryConfig struct {
	// MaxSubsystems is the hard cap on live registry entries. Zero
	// means unbounded.
	MaxSubsystems int `yaml:"maxSubsystems"`
}

// LoggingConfig holds logger level and format settings. cmd/coordinatord
// loads them but does not apply them; pkg/logger takes its level and
// format from the LOGGING_LEVEL and LOGGING_FORMAT environment variables.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// SentryConfig controls error reporting.
type SentryConfig struct {
	DSN            string  `yaml:"dsn"`
	AppVersion     string  `yaml:"appVersion"`
	DebounceErrors bool    `yaml:"debounceErrors"`
	SampleRate     float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus HTTP endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// WatchdogConfig controls the gate watchdog's polling.
type WatchdogConfig struct {
	// PollInterval is how often the watchdog samples gated subsystems.
	PollInterval time.Duration `yaml:"pollInterval"`
	// StallThreshold is how long a subsystem may remain gated before
	// the watchdog reports it.
	StallThreshold time.Duration `yaml:"stallThreshold"`
}

// Default returns the configuration used when no file or environment
// overrides are present: suitable for tests and local development.
func Default() Config {
	return Config{
		Registry: RegistryConfig{
			MaxSubsystems: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Sentry: SentryConfig{
			DSN:            "",
			AppVersion:     "0.0.0-dev",
			DebounceErrors: true,
			SampleRate:     1.0,
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
		Watchdog: WatchdogConfig{
			PollInterval:   5 * time.Second,
			StallThreshold: 30 * time.Second,
		},
	}
}

// LoadFile reads a YAML config file at path on top of Default(),
// leaving unset fields at their default. A missing file is not an
// error; Default() is returned unchanged.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
