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

// Package coordinatorerrors defines the error taxonomy shared by the
// registry, bus and subsystem packages. See the error-handling design
// in SPEC_FULL.md for the disposition of each kind.
package coordinatorerrors

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Registry lookup for an unknown tag.
var ErrNotFound = errors.New("coordinator: tag not found in registry")

// ErrChannelClosed names the push-after-terminate condition. Per
// spec.md §4.1 such a push is a no-op, not a panic: bus.Push drops the
// value silently and does not return this error.
var ErrChannelClosed = errors.New("coordinator: push after terminate is a no-op")

// InvariantKind classifies an InvariantViolation.
type InvariantKind int

const (
	// InvariantCycle indicates a parent list would close a cycle in the
	// dependency graph.
	InvariantCycle InvariantKind = iota
	// InvariantCapacity indicates the registry's configured MaxSubsystems
	// bound was exceeded.
	InvariantCapacity
	// InvariantUseAfterDestroy indicates an operation was attempted
	// against a subsystem whose worker has already exited.
	InvariantUseAfterDestroy
	// InvariantTagExhausted indicates the monotonic tag counter wrapped
	// around, which can only happen after an astronomical number of
	// allocations and is treated as a programming error.
	InvariantTagExhausted
)

func (k InvariantKind) String() string {
	switch k {
	case InvariantCycle:
		return "cycle"
	case InvariantCapacity:
		return "capacity"
	case InvariantUseAfterDestroy:
		return "use-after-destroy"
	case InvariantTagExhausted:
		return "tag-exhausted"
	default:
		return "unknown"
	}
}

// InvariantViolation is a fatal programming-error condition: a cycle in
// the dependency graph, exceeding max_subsystems, or use-after-destroy.
// Per spec.md §4.3.5 the core does not attempt to recover from these;
// callers should treat them as unrecoverable for the affected subsystem
// (or the whole registry, for capacity violations).
type InvariantViolation struct {
	Kind  InvariantKind
	Cause error
}

func (e *InvariantViolation) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("coordinator: invariant violation (%s): %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("coordinator: invariant violation (%s)", e.Kind)
}

func (e *InvariantViolation) Unwrap() error {
	return e.Cause
}

// NewInvariantViolation constructs an InvariantViolation of the given
// kind, optionally wrapping a lower-level cause.
func NewInvariantViolation(kind InvariantKind, cause error) *InvariantViolation {
	return &InvariantViolation{Kind: kind, Cause: cause}
}

// ProtocolError is raised when an event carries an origin or state the
// dispatcher does not recognize. Per spec.md §4.3.4 this is dropped
// after logging by default; hosts that want it surfaced can inspect it
// via the out-of-band hook-failure/error reporting path.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return "coordinator: protocol error: " + e.Detail
}

// NewProtocolError builds a ProtocolError with the given detail message.
func NewProtocolError(detail string) *ProtocolError {
	return &ProtocolError{Detail: detail}
}

// HookFailure wraps a panic or error raised by a user-supplied hook
// (on_start/on_stop/on_error/on_destroy/on_parent/on_child). Per
// spec.md §4.3.5 a HookFailure never corrupts the registry and never
// prevents the commit that triggered the hook.
type HookFailure struct {
	// Hook names the hook that failed, e.g. "on_start".
	Hook string
	// SubsystemTag is included for diagnostics; it is a string because
	// this package must not import pkg/tag (it is imported by it).
	SubsystemTag string
	Cause        error
}

func (e *HookFailure) Error() string {
	return fmt.Sprintf("coordinator: hook %q failed for subsystem %s: %v", e.Hook, e.SubsystemTag, e.Cause)
}

func (e *HookFailure) Unwrap() error {
	return e.Cause
}

// NewHookFailure builds a HookFailure for the given hook/tag/cause.
func NewHookFailure(hook, subsystemTag string, cause error) *HookFailure {
	return &HookFailure{Hook: hook, SubsystemTag: subsystemTag, Cause: cause}
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// AsInvariantViolation reports whether err is (or wraps) an
// *InvariantViolation, returning it if so.
func AsInvariantViolation(err error) (*InvariantViolation, bool) {
	var iv *InvariantViolation
	if errors.As(err, &iv) {
		return iv, true
	}
	return nil, false
}

// AsHookFailure reports whether err is (or wraps) a *HookFailure,
// returning it if so.
func AsHookFailure(err error) (*HookFailure, bool) {
	var hf *HookFailure
	if errors.As(err, &hf) {
		return hf, true
	}
	return nil, false
}
