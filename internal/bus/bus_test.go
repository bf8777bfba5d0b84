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

package bus_test

import (
	"sync"
	"testing"
	"time"

	"github.com/united-manufacturing-hub/subsystem-core/internal/bus"
)

func TestFIFOOrder(t *testing.T) {
	b := bus.New[int]()

	for i := 0; i < 10; i++ {
		b.Push(i)
	}

	for i := 0; i < 10; i++ {
		item := b.WaitAndPop()
		if item.Terminator {
			t.Fatalf("unexpected terminator at index %d", i)
		}

		if item.Value != i {
			t.Fatalf("expected %d, got %d", i, item.Value)
		}
	}
}

func TestTryPopEmpty(t *testing.T) {
	b := bus.New[string]()

	if _, ok := b.TryPop(); ok {
		t.Fatal("expected empty bus to report not-ok")
	}

	b.Push("hello")

	item, ok := b.TryPop()
	if !ok || item.Value != "hello" {
		t.Fatalf("expected (hello, true), got (%v, %v)", item, ok)
	}
}

func TestTerminateSurfacesSentinel(t *testing.T) {
	b := bus.New[int]()

	b.Push(1)
	b.Terminate()

	first := b.WaitAndPop()
	if first.Terminator {
		t.Fatal("expected the pending value before the terminator")
	}

	second := b.WaitAndPop()
	if !second.Terminator {
		t.Fatal("expected terminator after the pending value drained")
	}
}

func TestPushAfterTerminateIsNoop(t *testing.T) {
	b := bus.New[int]()

	b.Terminate()
	b.Push(42)

	item := b.WaitAndPop()
	if !item.Terminator {
		t.Fatal("expected terminator, push after terminate should have been dropped")
	}
}

func TestDrainAndTerminateDiscardsQueued(t *testing.T) {
	b := bus.New[int]()

	b.Push(1)
	b.Push(2)
	b.Push(3)

	b.DrainAndTerminate()

	item := b.WaitAndPop()
	if !item.Terminator {
		t.Fatalf("expected terminator immediately after drain, got %v", item)
	}
}

func TestWaitAndPopBlocksUntilPush(t *testing.T) {
	b := bus.New[int]()

	done := make(chan int, 1)

	go func() {
		item := b.WaitAndPop()
		done <- item.Value
	}()

	time.Sleep(20 * time.Millisecond)
	b.Push(7)

	select {
	case v := <-done:
		if v != 7 {
			t.Fatalf("expected 7, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitAndPop did not unblock after push")
	}
}

func TestConcurrentProducersPreserveFIFOPerProducer(t *testing.T) {
	b := bus.New[int]()

	var wg sync.WaitGroup

	const perProducer = 100

	for p := 0; p < 4; p++ {
		wg.Add(1)

		go func(base int) {
			defer wg.Done()

			for i := 0; i < perProducer; i++ {
				b.Push(base + i)
			}
		}(p * perProducer)
	}

	wg.Wait()
	b.Terminate()

	seen := make(map[int]bool)
	last := make(map[int]int)

	for {
		item := b.WaitAndPop()
		if item.Terminator {
			break
		}

		if seen[item.Value] {
			t.Fatalf("value %d delivered twice", item.Value)
		}

		seen[item.Value] = true

		producer := item.Value / perProducer
		if prev, ok := last[producer]; ok && item.Value <= prev {
			t.Fatalf("producer %d: value %d delivered after %d", producer, item.Value, prev)
		}

		last[producer] = item.Value
	}

	if len(seen) != 4*perProducer {
		t.Fatalf("expected %d distinct values, got %d", 4*perProducer, len(seen))
	}
}
