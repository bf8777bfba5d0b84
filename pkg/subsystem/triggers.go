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

package subsystem

import (
	"context"
	"fmt"

	"github.com/united-manufacturing-hub/subsystem-core/internal/corefsm"
)

// Start posts a non-blocking SELF/RUNNING trigger, per spec.md §4.5 (C5).
func (s *Subsystem) Start() { s.PostEvent(string(OriginSelf), s.tg, corefsm.StateRunning) }

// Stop posts a non-blocking SELF/STOPPED trigger.
func (s *Subsystem) Stop() { s.PostEvent(string(OriginSelf), s.tg, corefsm.StateStopped) }

// Error posts a non-blocking SELF/ERROR trigger.
func (s *Subsystem) Error() { s.PostEvent(string(OriginSelf), s.tg, corefsm.StateError) }

// Destroy posts a non-blocking SELF/DESTROY trigger. The actual
// destroy sequence (on_destroy hook, cancel-flag set, channel drain
// and terminate) runs later on the worker goroutine when this event is
// dispatched; see doDestroy.
func (s *Subsystem) Destroy() { s.PostEvent(string(OriginSelf), s.tg, corefsm.StateDestroy) }

// DestroyNow runs the destroy sequence synchronously on the caller's
// goroutine instead of going through the bus, per spec.md §4.5's
// "a synchronous variant for host shutdown paths that cannot wait for
// the worker to drain". It is idempotent: calling it more than once,
// or racing it against a worker-driven Destroy, only runs the sequence
// once.
func (s *Subsystem) DestroyNow(ctx context.Context) {
	s.doDestroy(ctx)
}

// doDestroy implements spec.md §4.3.4's SELF-DESTROY sequence exactly
// once per subsystem, regardless of how many times it is invoked or
// from how many goroutines: set the cancel flag so any gated commit
// unblocks, run on_destroy, drain and terminate the bus (stale queued
// events are discarded rather than dispatched), then commit the
// DESTROY transition, which fans out to parents/children and removes
// nothing from the registry — the host owns that per spec.md §6.
func (s *Subsystem) doDestroy(ctx context.Context) {
	s.once.Do(func() {
		s.cancel.Store(true)

		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()

		s.runHook("on_destroy", s.hooks.OnDestroy)

		s.bus.DrainAndTerminate()

		if _, err := s.commit(ctx, corefsm.StateDestroy); err != nil {
			s.log.Errorw("commit to DESTROY failed", "error", err)
		}

		s.destroyed.Store(true)
	})
}

// errFromRecover normalizes the value returned by recover() into an error.
func errFromRecover(r any) error {
	if err, ok := r.(error); ok {
		return err
	}

	return fmt.Errorf("%v", r)
}
