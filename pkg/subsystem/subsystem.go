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

// Package subsystem implements C3 (Subsystem Core), C4 (Worker
// Driver), C5 (Public Triggers) and C7 (Hook Interface) from spec.md.
// A Subsystem is a named coordination node: a state machine gated on
// its parents' states, fanning out its own transitions to parents and
// children over per-subsystem buses.
package subsystem

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/subsystem-core/internal/bus"
	"github.com/united-manufacturing-hub/subsystem-core/internal/corefsm"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/backoff"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/coordinatorerrors"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/logger"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/metrics"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/registry"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/sentry"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/tag"
)

// Subsystem is a coordination node with an explicit lifecycle, per
// spec.md §3. The zero value is not usable; construct with New.
type Subsystem struct {
	tg   tag.Tag
	name string

	reg   *registry.Registry
	hooks Hooks
	log   *zap.SugaredLogger

	// state-change mutex + condition variable guarding fsm, parents,
	// children and the gating wait, per spec.md §3 and §4.3.2.
	mu   sync.Mutex
	cond *sync.Cond

	machine  *corefsm.FSM
	parents  map[tag.Tag]struct{}
	children map[tag.Tag]struct{}

	// gating introspection for pkg/watchdog, guarded by mu.
	gating    bool
	gateSince time.Time

	cancel    atomic.Bool
	destroyed atomic.Bool
	once      sync.Once // guards the one-time destroy sequence

	bus *bus.Bus[Event]

	// hookBackoff tracks repeated hook failures, per spec.md §4.3.5's
	// "hook failures never prevent the commit" combined with
	// SPEC_FULL.md's resolution that repeated failures are still a
	// host-visible concern: once hookBackoff escalates to permanent, the
	// subsystem is pushed into ERROR rather than silently retrying the
	// same failing hook forever. Mirrors baseFSM.go's own use of a
	// backoffManager to decide when a repeatedly-failing service should
	// stop being retried as transient.
	hookBackoff      *backoff.BackoffManager
	hookFailureTicks atomic.Uint64
}

// Option configures a Subsystem at construction.
type Option func(*Subsystem)

// WithHooks overrides the subsystem's Hooks; the default is NoopHooks.
func WithHooks(h Hooks) Option {
	return func(s *Subsystem) { s.hooks = h }
}

// New constructs a subsystem named name, depending on parents, backed
// by reg. Per spec.md §3's Lifecycle clause, construction (a)
// allocates a tag, (b) inserts itself into each parent's children
// set, (c) inserts the parents into its own parent set, and (d)
// publishes (INIT, back-ref) into the registry.
func New(name string, parents []*Subsystem, reg *registry.Registry, opts ...Option) (*Subsystem, error) {
	tg, err := reg.NextTag()
	if err != nil {
		return nil, err
	}

	s := &Subsystem{
		tg:       tg,
		name:     name,
		reg:      reg,
		hooks:    NoopHooks{},
		parents:  make(map[tag.Tag]struct{}, len(parents)),
		children: make(map[tag.Tag]struct{}),
		bus:      bus.New[Event](),
		log:      logger.For(logger.ComponentSubsystem).With("tag", string(tg), "name", name),
	}
	s.cond = sync.NewCond(&s.mu)
	s.machine = corefsm.New(s.onEnterState)
	s.hookBackoff = backoff.NewBackoffManager(backoff.DefaultConfig(name, s.log))

	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	for _, p := range parents {
		s.parents[p.tg] = struct{}{}
	}
	s.mu.Unlock()

	if err := reg.PutEntry(tg, name, corefsm.StateInit, s); err != nil {
		return nil, err
	}

	for _, p := range parents {
		p.addChild(tg)
	}

	return s, nil
}

// Tag implements registry.BackRef.
func (s *Subsystem) Tag() tag.Tag { return s.tg }

// PostEvent implements registry.BackRef: it lets a peer enqueue an
// event on this subsystem's bus without holding a direct reference to
// the Subsystem type, per spec.md §9's "peer posting goes through the
// registry, not through a direct reference". It also wakes this
// subsystem's own state-change cond, mirroring put_message's
// notify_one (subsystem.hh) — a peer's transition can flip this
// subsystem's gating predicate (readyLocked reads the peer's state
// straight out of the registry), so a worker already parked in
// waitUntilReadyLocked must be woken to re-evaluate it, independent of
// whether/when it gets around to dequeuing this specific event.
func (s *Subsystem) PostEvent(origin string, fromTag tag.Tag, state string) {
	s.bus.Push(Event{Origin: Origin(origin), Tag: fromTag, State: state})
	metrics.SetBusDepth(s.name, s.bus.Len())

	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Subsystem) addChild(childTag tag.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.children[childTag] = struct{}{}
}

func (s *Subsystem) removeChild(childTag tag.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.children, childTag)
}

func (s *Subsystem) removeParent(parentTag tag.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.parents, parentTag)
}

// GetName returns the subsystem's diagnostic name (spec.md §6).
func (s *Subsystem) GetName() string { return s.name }

// GetTag returns the subsystem's tag (spec.md §6).
func (s *Subsystem) GetTag() tag.Tag { return s.tg }

// GetState returns the subsystem's current state (spec.md §6).
func (s *Subsystem) GetState() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.machine.Current()
}

// GateStatus reports whether the subsystem is currently blocked in
// its gating predicate, and since when — used by pkg/watchdog. It
// never blocks.
func (s *Subsystem) GateStatus() (waiting bool, since time.Time, waitingOn []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.gating {
		return false, time.Time{}, nil
	}

	for p := range s.parents {
		waitingOn = append(waitingOn, string(p))
	}

	return true, s.gateSince, waitingOn
}

// commit runs the gating predicate (spec.md §4.3.2) then fires the
// transition, which synchronously triggers onEnterState to do the
// registry write + fan-out (spec.md §4.3.3). It reports whether a real
// transition occurred (as opposed to an idempotent same-state commit
// or an attempt from the absorbing DESTROY state) so the caller knows
// whether to run the corresponding user hook — per Testable Property 5
// ("Idempotence: ... no hook invocation"), hooks must only fire on a
// genuine transition, never speculatively ahead of one.
func (s *Subsystem) commit(ctx context.Context, target string) (transitioned bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitUntilReadyLocked()

	prior := s.machine.Current()

	if err := s.machine.Fire(ctx, target); err != nil {
		return false, err
	}

	return s.machine.Current() != prior, nil
}

// waitUntilReadyLocked blocks until the gating predicate of spec.md
// §4.3.2 is satisfied. Must be called with s.mu held; it releases and
// reacquires s.mu across cond.Wait, tolerating spurious wakeups by
// re-checking the predicate every time it wakes.
func (s *Subsystem) waitUntilReadyLocked() {
	started := false

	for !s.readyLocked() {
		if !started {
			s.gating = true
			s.gateSince = time.Now()
			started = true
		}

		s.cond.Wait()
	}

	if started {
		metrics.ObserveGateWait(s.name, time.Since(s.gateSince))
		s.gating = false
	}
}

// readyLocked implements the gating predicate. Must be called with
// s.mu held.
func (s *Subsystem) readyLocked() bool {
	// Consumed unconditionally on every evaluation, per spec.md §4.3.2
	// ("the flag is consumed and reset atomically in this step").
	if s.cancel.CompareAndSwap(true, false) {
		return true
	}

	if len(s.parents) == 0 {
		return true
	}

	if s.machine.Current() == corefsm.StateDestroy {
		return true
	}

	for p := range s.parents {
		entry, err := s.reg.Get(p)
		if err != nil {
			// Parent already removed from the registry: treat as gone,
			// equivalent to DESTROY, rather than block forever.
			continue
		}

		// A parent blocks only while it is still INIT, mirroring
		// wait_for_parents (subsystem.hh): RUNNING, STOPPED, ERROR and
		// DESTROY are all "left INIT" and therefore non-blocking. This
		// is what lets the ERROR/STOPPED cascades converge — a child
		// gating on "parent == RUNNING" would deadlock the moment its
		// parent left RUNNING for ERROR or STOPPED.
		if entry.State == corefsm.StateInit {
			return false
		}
	}

	return true
}

// onEnterState is corefsm's enter_state callback: the commit +
// fan-out sequence of spec.md §4.3.3. Invoked synchronously from
// within machine.Fire, which is called with s.mu held, so this runs
// under the state-change mutex too.
func (s *Subsystem) onEnterState(_ context.Context, state string) {
	if err := s.reg.PutState(s.tg, state); err != nil {
		// The only way PutState fails is if our own row was removed out
		// from under us, which violates the host contract in spec.md §6
		// ("remove it first before dropping"/never while still live).
		s.reportInvariant(coordinatorerrors.InvariantUseAfterDestroy, err)

		return
	}

	metrics.IncSubsystemTransition(s.name, state)

	for p := range s.parents {
		entry, err := s.reg.Get(p)
		if err != nil || entry.State != corefsm.StateRunning {
			continue
		}

		entry.BackRef.PostEvent(string(OriginChild), s.tg, state)
	}

	for c := range s.children {
		entry, err := s.reg.Get(c)
		if err != nil || entry.State == corefsm.StateDestroy {
			continue
		}

		entry.BackRef.PostEvent(string(OriginParent), s.tg, state)
	}

	s.cond.Broadcast()
}

func (s *Subsystem) reportInvariant(kind coordinatorerrors.InvariantKind, cause error) {
	err := coordinatorerrors.NewInvariantViolation(kind, cause)
	s.log.Errorw("invariant violation", "kind", kind.String(), "cause", cause)
	sentry.ReportSubsystemFatal(s.log, string(s.tg), "commit", "onEnterState", err)
}
