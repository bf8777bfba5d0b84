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

// Package tag implements C6, the process-unique subsystem tag
// allocator described in spec.md §4.6.
package tag

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/united-manufacturing-hub/subsystem-core/pkg/coordinatorerrors"
)

// Tag is a process-unique, opaque identifier for a subsystem. Tags are
// never reused, even across a subsystem's DESTROY, so a stale tag can
// always be distinguished from a live one.
type Tag string

// String implements fmt.Stringer.
func (t Tag) String() string {
	return string(t)
}

// Allocator hands out monotonically increasing, process-unique tags.
// A single high-bit prefix (derived once per process from a random
// UUID) is combined with the counter so tags remain distinguishable
// across process restarts in logs and Sentry reports, exactly as
// spec.md §4.6 asks for a "fixed high-bit prefix for human-readable
// tags".
type Allocator struct {
	mu      sync.Mutex
	next    uint64
	prefix  string
	wrapped bool
}

// NewAllocator creates a tag allocator for one process/registry.
func NewAllocator() *Allocator {
	return &Allocator{
		prefix: uuid.New().String()[:8],
	}
}

// Next allocates and returns the next unique tag. It returns an
// *coordinatorerrors.InvariantViolation if the monotonic counter has
// wrapped around — this can only happen after 2^64 allocations from a
// single Allocator and is treated as a programming error per
// spec.md §4.6.
func (a *Allocator) Next() (Tag, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.wrapped {
		return "", coordinatorerrors.NewInvariantViolation(coordinatorerrors.InvariantTagExhausted, nil)
	}

	n := a.next
	a.next++
	if a.next == 0 {
		// Wrapped back to zero: every subsequent call is a violation.
		a.wrapped = true
	}

	return Tag(fmt.Sprintf("%s-%016x", a.prefix, n)), nil
}
