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

	"github.com/united-manufacturing-hub/subsystem-core/internal/corefsm"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/coordinatorerrors"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/metrics"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/sentry"
)

// handleEvent dispatches evt by origin, per spec.md §4.3.4. It runs on
// the worker goroutine (or the cooperative caller of
// HandleBusMessage), never while s.mu is held, except for the brief
// critical sections inside commit/addChild/removeChild.
func (s *Subsystem) handleEvent(ctx context.Context, evt Event) {
	switch evt.Origin {
	case OriginSelf:
		s.handleSelf(ctx, evt)
	case OriginParent:
		s.handleParent(ctx, evt)
	case OriginChild:
		s.handleChild(evt)
	default:
		err := coordinatorerrors.NewProtocolError("unrecognized event origin " + string(evt.Origin))
		s.log.Warnw("dropping event with unrecognized origin", "origin", string(evt.Origin))
		sentry.ReportSubsystemError(s.log, string(s.tg), "dispatch", "handleEvent", err)
	}
}

// handleSelf commits evt.State, then runs the matching hook only if
// the commit produced a genuine transition (see commit's doc comment).
func (s *Subsystem) handleSelf(ctx context.Context, evt Event) {
	if evt.State == corefsm.StateDestroy {
		// doDestroy runs its own commit internally, guarded by a
		// sync.Once, as part of the one-shot destroy sequence.
		s.doDestroy(ctx)

		return
	}

	var hook func()

	switch evt.State {
	case corefsm.StateRunning:
		hook = s.hooks.OnStart
	case corefsm.StateStopped:
		hook = s.hooks.OnStop
	case corefsm.StateError:
		hook = s.hooks.OnError
	default:
		err := coordinatorerrors.NewProtocolError("unrecognized self-event state " + evt.State)
		s.log.Warnw("dropping SELF event with unrecognized state", "state", evt.State)
		sentry.ReportSubsystemError(s.log, string(s.tg), "dispatch", "handleSelf", err)

		return
	}

	transitioned, err := s.commit(ctx, evt.State)
	if err != nil {
		s.log.Errorw("commit failed", "target", evt.State, "error", err)

		return
	}

	if !transitioned {
		return
	}

	hookName := map[string]string{
		corefsm.StateRunning: "on_start",
		corefsm.StateStopped: "on_stop",
		corefsm.StateError:   "on_error",
	}[evt.State]

	s.runHook(hookName, hook)
}

// handleParent applies spec.md §4.3.4's PARENT rules: a DESTROY from a
// parent sets the cancel flag and removes that parent from the parent
// set; OnParent is always invoked as a notification; then the
// built-in cascade re-posts a matching SELF trigger.
func (s *Subsystem) handleParent(_ context.Context, evt Event) {
	if evt.State == corefsm.StateDestroy {
		s.cancel.Store(true)
		s.removeParent(evt.Tag)
		s.cond.Broadcast()
	}

	s.runHookWithEvent("on_parent", evt, s.hooks.OnParent)

	switch evt.State {
	case corefsm.StateRunning:
		s.Start()
	case corefsm.StateStopped:
		s.Stop()
	case corefsm.StateError:
		s.Error()
	case corefsm.StateDestroy:
		s.Destroy()
	case corefsm.StateInit:
		// Ignored per spec.md §4.3.4.
	default:
		err := coordinatorerrors.NewProtocolError("unrecognized parent state " + evt.State)
		s.log.Warnw("dropping PARENT event with unrecognized state", "state", evt.State)
		sentry.ReportSubsystemError(s.log, string(s.tg), "dispatch", "handleParent", err)
	}
}

// handleChild applies spec.md §4.3.4's CHILD rules: a DESTROY from a
// child removes it from the child set; OnChild is invoked, defaulting
// to a no-op.
func (s *Subsystem) handleChild(evt Event) {
	if evt.State == corefsm.StateDestroy {
		s.removeChild(evt.Tag)
	}

	s.runHookWithEvent("on_child", evt, s.hooks.OnChild)
}

// runHook invokes fn, recovering a panic and mapping it to a reported
// HookFailure per spec.md §4.3.5/§9 —
// hook failures never corrupt the registry and never block commit.
func (s *Subsystem) runHook(name string, fn func()) {
	defer s.recoverHook(name)

	fn()
}

func (s *Subsystem) runHookWithEvent(name string, evt Event, fn func(Event)) {
	defer s.recoverHook(name)

	fn(evt)
}

// recoverHook never lets a hook panic escape the worker goroutine, and
// tracks repeated failures through hookBackoff: once more than
// MaxRetries failures have accumulated, the subsystem is escalated into ERROR
// instead of being left to fail the same hook silently forever. A
// single panic is still just reported and swallowed — escalation only
// fires once the backoff manager itself reports permanent.
func (s *Subsystem) recoverHook(name string) {
	r := recover()
	if r == nil {
		return
	}

	hf := coordinatorerrors.NewHookFailure(name, string(s.tg), errFromRecover(r))
	s.log.Errorw("hook panicked", "hook", name, "error", hf.Error())
	metrics.IncHookFailure(name, hf, s.log)
	sentry.ReportSubsystemError(s.log, string(s.tg), name, "hook", hf)

	tick := s.hookFailureTicks.Add(1)
	if s.hookBackoff.SetError(hf, tick) {
		s.log.Errorw("hook failures exceeded retry budget, escalating to ERROR", "hook", name)
		s.Error()
	}
}
