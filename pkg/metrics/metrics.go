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

package metrics

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/subsystem-core/pkg/logger"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/sentry"
)

var (
	namespace = "coordinator"
	subsystem = "core"

	// registrySize tracks the number of live entries in the shared
	// tag->(state,backref) registry.
	registrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "registry_size",
			Help:      "Number of subsystems currently registered",
		},
	)

	// subsystemTransitionsTotal counts committed state transitions,
	// labelled by the subsystem's name and the state it committed to.
	subsystemTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subsystem_transitions_total",
			Help:      "Total number of committed subsystem state transitions",
		},
		[]string{"name", "state"},
	)

	// gateWaitSeconds observes how long a subsystem blocked in its
	// gating predicate before the predicate became true or it was
	// cancelled by DESTROY.
	gateWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "gate_wait_seconds",
			Help:      "Time a subsystem spent blocked on its gating predicate",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"name"},
	)

	// hookFailuresTotal counts hook panics/errors caught by the worker
	// loop, labelled by hook name.
	hookFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hook_failures_total",
			Help:      "Total number of hook invocations that panicked or returned an error",
		},
		[]string{"hook"},
	)

	// busDepth tracks the current number of pending events in a
	// subsystem's bus, sampled on push.
	busDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bus_depth",
			Help:      "Number of pending events queued on a subsystem's bus",
		},
		[]string{"name"},
	)

	// starvationSeconds accumulates time the gate watchdog observed a
	// subsystem stalled past its threshold.
	starvationSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "gate_starved_total_seconds",
			Help:      "Total seconds subsystems spent stalled past the watchdog threshold",
		},
	)
)

// SetupMetricsEndpoint starts an HTTP server exposing /metrics. It
// should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeFatal, logger.For(logger.ComponentCore))
		}
	}()

	return server
}

// printDetailedStackTrace dumps every goroutine's stack at debug level.
func printDetailedStackTrace() {
	buf := make([]byte, 1024*1024)
	n := runtime.Stack(buf, true)

	logger.For(logger.ComponentCore).Debugf("=== DETAILED STACK TRACE ===\n%s", string(buf[:n]))
}

// SetRegistrySize sets the current registry size gauge.
func SetRegistrySize(n int) {
	registrySize.Set(float64(n))
}

// IncSubsystemTransition records a committed state transition.
func IncSubsystemTransition(name, state string) {
	subsystemTransitionsTotal.WithLabelValues(name, state).Inc()
}

// ObserveGateWait records how long a subsystem waited in its gating
// predicate before it resolved.
func ObserveGateWait(name string, d time.Duration) {
	gateWaitSeconds.WithLabelValues(name).Observe(d.Seconds())
}

// IncHookFailure records a hook panic/error, logging a stack trace at
// debug level for diagnosis.
func IncHookFailure(hook string, err error, log *zap.SugaredLogger) {
	hookFailuresTotal.WithLabelValues(hook).Inc()

	if log != nil {
		printDetailedStackTrace()
		log.Debugf("hook %s failed: %v", hook, err)
	}
}

// SetBusDepth records the current pending-event count of a subsystem's bus.
func SetBusDepth(name string, depth int) {
	busDepth.WithLabelValues(name).Set(float64(depth))
}

// AddStarvationTime increases the gate-starvation counter by seconds.
func AddStarvationTime(seconds float64) {
	starvationSeconds.Add(seconds)
}
