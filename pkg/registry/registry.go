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

// Package registry implements C2, the shared tag->(state,back-ref)
// table described in spec.md §4.2. Per the Design Notes in spec.md §9
// ("prefer an explicit Registry value passed into each subsystem at
// construction"), Registry is an ordinary value type — there is no
// package-level singleton — though NewProcessRegistry is offered as a
// convenience for hosts that want exactly one process-wide instance.
package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/subsystem-core/pkg/coordinatorerrors"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/logger"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/metrics"
	"github.com/united-manufacturing-hub/subsystem-core/pkg/tag"
)

// BackRef is how a peer posts to another subsystem's channel. The
// registry treats it as an opaque handle; pkg/subsystem supplies the
// concrete implementation.
type BackRef interface {
	// Tag returns the tag of the subsystem this back-reference points at.
	Tag() tag.Tag

	// PostEvent enqueues an (origin, fromTag, state) event onto the
	// target subsystem's bus, per spec.md §4.3.3. It must never block
	// and must never be called while the poster holds its own
	// state-change mutex's peer-facing lock (spec.md §5) — only the
	// target's internal bus mutex is acquired.
	PostEvent(origin string, fromTag tag.Tag, state string)
}

// Entry is a consistent snapshot of one registry row.
type Entry struct {
	Tag     tag.Tag
	Name    string
	State   string
	BackRef BackRef
}

// Registry is the shared tag->(state,back-reference) table. The zero
// value is not usable; construct with New.
type Registry struct {
	mu            sync.RWMutex
	rows          map[tag.Tag]Entry
	maxSubsystems int
	log           *zap.SugaredLogger
	tags          *tag.Allocator
}

// New creates a Registry bounded by maxSubsystems. A maxSubsystems of
// zero means unbounded, matching spec.md §6's idempotent
// init_registry(max_subsystems).
func New(maxSubsystems int) *Registry {
	return &Registry{
		rows:          make(map[tag.Tag]Entry),
		maxSubsystems: maxSubsystems,
		log:           logger.For(logger.ComponentRegistry),
		tags:          tag.NewAllocator(),
	}
}

// NextTag allocates the next process-unique tag from this registry's
// C6 allocator (spec.md §4.6). Subsystem construction calls this once
// per new subsystem.
func (r *Registry) NextTag() (tag.Tag, error) {
	return r.tags.Next()
}

// process-wide convenience instance, built lazily by NewProcessRegistry.
var (
	processOnce sync.Once
	processReg  *Registry
)

// NewProcessRegistry returns a single process-wide Registry, creating
// it on first call with the given bound; subsequent calls return the
// same instance regardless of the maxSubsystems argument. This exists
// purely for hosts that want the source's original "global registry"
// convenience; library code should prefer New and pass the value
// explicitly.
func NewProcessRegistry(maxSubsystems int) *Registry {
	processOnce.Do(func() {
		processReg = New(maxSubsystems)
	})

	return processReg
}

// Get returns a consistent snapshot of the row for tag, or
// coordinatorerrors.ErrNotFound if tag is unknown.
func (r *Registry) Get(t tag.Tag) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rows[t]
	if !ok {
		return Entry{}, coordinatorerrors.ErrNotFound
	}

	return e, nil
}

// PutEntry creates or replaces the row for tag. It returns an
// *coordinatorerrors.InvariantViolation if this would exceed the
// registry's configured maxSubsystems bound — per spec.md §4.2 this is
// a programming error, not a recoverable condition.
func (r *Registry) PutEntry(t tag.Tag, name, state string, backRef BackRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[t]; !exists && r.maxSubsystems > 0 && len(r.rows) >= r.maxSubsystems {
		return coordinatorerrors.NewInvariantViolation(coordinatorerrors.InvariantCapacity, nil)
	}

	r.rows[t] = Entry{Tag: t, Name: name, State: state, BackRef: backRef}

	r.warnIfNearCapacity(len(r.rows))
	metrics.SetRegistrySize(len(r.rows))

	return nil
}

// PutState updates only the state of an existing row. It returns
// coordinatorerrors.ErrNotFound if tag is unknown.
func (r *Registry) PutState(t tag.Tag, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rows[t]
	if !ok {
		return coordinatorerrors.ErrNotFound
	}

	e.State = state
	r.rows[t] = e

	return nil
}

// Remove deletes the row for tag. Removing an unknown tag is a no-op,
// matching the host contract in spec.md §6 ("remove it first before
// dropping" — a caller that already removed it must not be punished
// for calling Remove again).
func (r *Registry) Remove(t tag.Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rows, t)
	metrics.SetRegistrySize(len(r.rows))
}

// Len returns the current number of registry entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rows)
}

// Snapshot returns a copy of every (tag, state, name) row for
// diagnostics, used by pkg/subsystem's PrintRegistry (spec.md §6).
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.rows))
	for _, e := range r.rows {
		out = append(out, e)
	}

	return out
}

// warnIfNearCapacity logs when size is at or above the 80%/95%/100%
// capacity thresholds. Must be called with mu held for writing.
func (r *Registry) warnIfNearCapacity(size int) {
	if r.maxSubsystems <= 0 {
		return
	}

	ratio := float64(size) / float64(r.maxSubsystems)

	switch {
	case size == r.maxSubsystems:
		r.log.Warnf("registry at full capacity: %d/%d", size, r.maxSubsystems)
	case ratio >= 0.95:
		r.log.Warnf("registry nearing capacity: %d/%d (95%%)", size, r.maxSubsystems)
	case ratio >= 0.80:
		r.log.Warnf("registry nearing capacity: %d/%d (80%%)", size, r.maxSubsystems)
	}
}
