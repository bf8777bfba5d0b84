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

// Package watchdog implements the Gate Watchdog, a SPEC_FULL.md domain
// addition with no equivalent in spec.md: a background poller that
// surfaces subsystems stuck in the gating predicate (spec.md §4.3.2)
// for longer than a configured threshold, the same way
// pkg/starvationchecker watches the control loop's reconcile cadence.
// It never touches a Subsystem directly — it type-asserts each
// registry entry's BackRef against the local gateObserver interface,
// so this package never needs to import pkg/subsystem.
package watchdog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/subsystem-core/pkg/logger"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/metrics"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/registry"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/sentry"
)

// gateObserver is implemented by *subsystem.Subsystem via duck typing
// (its GateStatus method matches this shape exactly). Kept local and
// minimal to avoid an import of pkg/subsystem.
type gateObserver interface {
	GateStatus() (waiting bool, since time.Time, waitingOn []string)
}

// GateWatchdog polls a Registry on an interval, reporting any
// subsystem that has been gating longer than StallThreshold.
type GateWatchdog struct {
	reg            *registry.Registry
	pollInterval   time.Duration
	stallThreshold time.Duration
	log            *zap.SugaredLogger

	ctx    context.Context //nolint:containedctx // background service lifecycle, matches pkg/starvationchecker
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reported map[string]time.Time // tag -> since, to avoid re-reporting every tick
	mu       sync.Mutex
}

// New starts a GateWatchdog polling reg every pollInterval, reporting
// any subsystem gating for longer than stallThreshold. The returned
// watchdog must be stopped with Stop().
func New(reg *registry.Registry, pollInterval, stallThreshold time.Duration) *GateWatchdog {
	ctx, cancel := context.WithCancel(context.Background())

	w := &GateWatchdog{
		reg:            reg,
		pollInterval:   pollInterval,
		stallThreshold: stallThreshold,
		log:            logger.For(logger.ComponentGateWatchdog),
		ctx:            ctx,
		cancel:         cancel,
		reported:       make(map[string]time.Time),
	}

	w.wg.Add(1)

	go w.loop()

	return w
}

func (w *GateWatchdog) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

func (w *GateWatchdog) pollOnce() {
	entries := w.reg.Snapshot()

	seenThisPoll := make(map[string]struct{}, len(entries))

	for _, e := range entries {
		obs, ok := e.BackRef.(gateObserver)
		if !ok {
			continue
		}

		waiting, since, waitingOn := obs.GateStatus()
		if !waiting {
			continue
		}

		blockedFor := time.Since(since)
		if blockedFor < w.stallThreshold {
			continue
		}

		stalledFor := blockedFor - w.stallThreshold
		if stalledFor > w.pollInterval {
			stalledFor = w.pollInterval
		}

		metrics.AddStarvationTime(stalledFor.Seconds())

		tagStr := string(e.Tag)
		seenThisPoll[tagStr] = struct{}{}

		w.mu.Lock()
		_, already := w.reported[tagStr]
		w.reported[tagStr] = since
		w.mu.Unlock()

		if already {
			continue
		}

		w.log.Warnw("subsystem gated past stall threshold",
			"name", e.Name, "tag", tagStr, "blocked_for", blockedFor, "waiting_on", waitingOn)
		sentry.ReportGateStall(w.log, tagStr, fieldJoin(waitingOn), blockedFor.String())
	}

	w.mu.Lock()
	for tagStr := range w.reported {
		if _, stillGating := seenThisPoll[tagStr]; !stillGating {
			delete(w.reported, tagStr)
		}
	}
	w.mu.Unlock()
}

func fieldJoin(fields []string) string {
	out := ""

	for i, f := range fields {
		if i > 0 {
			out += ","
		}

		out += f
	}

	return out
}

// Stop terminates the background poller and waits for it to exit.
func (w *GateWatchdog) Stop() {
	w.cancel()
	w.wg.Wait()
}
