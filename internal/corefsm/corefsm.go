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

// Package corefsm hosts the looplab/fsm-backed transition table for a
// subsystem's lifecycle, spec.md §4.3.1. DESTROY is absorbing: any
// event attempted from DESTROY is filtered out before it reaches the
// underlying fsm.FSM, so it is silently dropped ("no resurrection")
// rather than surfaced as fsm's own InvalidEventError.
package corefsm

import (
	"context"

	"github.com/looplab/fsm"
)

// State names, used both as fsm.FSM state names and as the Registry's
// stored state strings.
const (
	StateInit    = "INIT"
	StateRunning = "RUNNING"
	StateStopped = "STOPPED"
	StateError   = "ERROR"
	StateDestroy = "DESTROY"
)

// Event names, one per target state, matching spec.md §4.3.1's table
// ("Legal transitions (posted as SELF events)").
const (
	EventStart   = "start"
	EventStop    = "stop"
	EventError   = "error"
	EventDestroy = "destroy"
)

// eventForState maps a target state to the event that reaches it.
func eventForState(state string) (string, bool) {
	switch state {
	case StateRunning:
		return EventStart, true
	case StateStopped:
		return EventStop, true
	case StateError:
		return EventError, true
	case StateDestroy:
		return EventDestroy, true
	default:
		return "", false
	}
}

// FSM wraps a looplab/fsm.FSM configured with spec.md §4.3.1's
// transition table. It is not safe for concurrent use on its own —
// pkg/subsystem serializes all access under its state-change mutex.
type FSM struct {
	inner *fsm.FSM
}

// New builds an FSM starting in INIT. onEnter, if non-nil, is invoked
// by the underlying fsm.FSM's "enter_state" callback — pkg/subsystem
// uses this hook to run commit + fan-out (spec.md §4.3.3) in the same
// critical section as the transition itself.
func New(onEnter func(ctx context.Context, state string)) *FSM {
	callbacks := fsm.Callbacks{}
	if onEnter != nil {
		callbacks["enter_state"] = func(_ context.Context, e *fsm.Event) {
			onEnter(context.Background(), e.Dst)
		}
	}

	events := []fsm.EventDesc{
		{Name: EventStart, Src: []string{StateInit, StateStopped, StateError}, Dst: StateRunning},
		{Name: EventStop, Src: []string{StateInit, StateRunning, StateError}, Dst: StateStopped},
		{Name: EventError, Src: []string{StateInit, StateRunning, StateStopped}, Dst: StateError},
		{Name: EventDestroy, Src: []string{StateInit, StateRunning, StateStopped, StateError}, Dst: StateDestroy},
	}

	return &FSM{inner: fsm.NewFSM(StateInit, events, callbacks)}
}

// Current returns the FSM's current state.
func (f *FSM) Current() string {
	return f.inner.Current()
}

// Fire attempts to transition to targetState. Per spec.md §4.3.1:
//   - any attempt from DESTROY is silently ignored ("no resurrection");
//   - a transition whose target equals the current state is a no-op.
//
// Both cases return nil without invoking onEnter, exactly matching
// Testable Property 5 ("Idempotence"). Any other illegal transition
// (there are none left unspecified by the table — every state has an
// edge to every other non-DESTROY state, plus DESTROY — so this path
// is unreachable in practice, but is preserved defensively) returns
// the underlying fsm error.
func (f *FSM) Fire(ctx context.Context, targetState string) error {
	if f.inner.Current() == StateDestroy {
		return nil
	}

	if f.inner.Current() == targetState {
		return nil
	}

	event, ok := eventForState(targetState)
	if !ok {
		return nil
	}

	return f.inner.Event(ctx, event)
}
