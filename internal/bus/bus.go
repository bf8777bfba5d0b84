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

// Package bus implements the blocking MPSC channel described in
// spec.md §4.1: strict FIFO delivery of lifecycle events to one
// consumer, with an explicit terminator sentinel rather than an
// in-band nil. It is built on a mutex-guarded slice and sync.Cond,
// not a bare Go channel, so terminate() can inject a distinguishable
// marker without racing a concurrent push and wait_and_pop can be
// woken promptly.
package bus

import "sync"

// Item wraps a pushed value, distinguishing an ordinary value from
// the terminator sentinel. This is the "tagged sum type (Value |
// Terminator)" spec.md §9 recommends over an in-band null.
type Item[T any] struct {
	Value      T
	Terminator bool
}

// Bus is a single-consumer, multi-producer FIFO queue of Item[T].
type Bus[T any] struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []Item[T]
	terminated bool
}

// New creates an empty Bus.
func New[T any]() *Bus[T] {
	b := &Bus[T]{}
	b.cond = sync.NewCond(&b.mu)

	return b
}

// Push enqueues value and wakes a parked consumer. Never blocks. A
// push after Terminate is a documented no-op (spec.md §4.1: "subsequent
// push after terminator is undefined (callers must stop producing)");
// this implementation chooses silent drop so a racing producer can
// never corrupt an already-terminated channel.
func (b *Bus[T]) Push(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.terminated {
		return
	}

	b.queue = append(b.queue, Item[T]{Value: value})
	b.cond.Signal()
}

// TryPop returns the next item without blocking. ok is false if the
// queue is currently empty (including if it is empty because it was
// already terminated and drained).
func (b *Bus[T]) TryPop() (item Item[T], ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return Item[T]{}, false
	}

	item, b.queue = b.queue[0], b.queue[1:]

	return item, true
}

// WaitAndPop blocks until a value or the terminator arrives, then
// returns it in FIFO order. The worker driver (C4) never calls this
// again once it has seen the terminator, so popping it off the queue
// here is safe — there is nothing left to surface to a well-behaved
// caller.
func (b *Bus[T]) WaitAndPop() Item[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.queue) == 0 {
		b.cond.Wait()
	}

	item := b.queue[0]
	b.queue = b.queue[1:]

	return item
}

// Terminate enqueues the terminator sentinel. Idempotent: calling it
// more than once has no additional effect. After this call, Push is a
// no-op.
func (b *Bus[T]) Terminate() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.terminated {
		return
	}

	b.terminated = true
	b.queue = append(b.queue, Item[T]{Terminator: true})
	b.cond.Broadcast()
}

// DrainAndTerminate discards any items currently queued, then appends
// the terminator, per spec.md §4.3.4's SELF-DESTROY sequence ("drain
// and terminate the channel") — events queued before a destroy was
// observed are stale by the time destroy runs and must not be
// dispatched afterward. Idempotent like Terminate.
func (b *Bus[T]) DrainAndTerminate() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.terminated {
		return
	}

	b.terminated = true
	b.queue = []Item[T]{{Terminator: true}}
	b.cond.Broadcast()
}

// Len reports the number of items currently queued (including the
// terminator, if present and undrained). Exposed for metrics/watchdog
// introspection only.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.queue)
}
