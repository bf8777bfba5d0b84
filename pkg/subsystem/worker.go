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

import "context"

// Run is the worker driver (C4): it pops and dispatches events from
// the bus until the terminator is seen, then returns. Per spec.md
// §4.4, the host owns the goroutine — spawn it with `go s.Run(ctx)`
// once per subsystem. Run returns after the subsystem has been fully
// destroyed; it does not remove the subsystem's registry row, which
// remains the host's responsibility (spec.md §6).
func (s *Subsystem) Run(ctx context.Context) {
	for {
		item := s.bus.WaitAndPop()
		if item.Terminator {
			return
		}

		s.handleEvent(ctx, item.Value)
	}
}

// HandleBusMessage is the cooperative, non-blocking alternative to Run
// for hosts that drive subsystems from their own event loop instead of
// a dedicated goroutine, per spec.md §4.4's "single cooperative driver
// variant". It pops and dispatches at most one pending event, and
// returns false once the terminator has been observed (spec.md §4.4,
// §6); the caller stops looping at that point, exactly as Run's own
// loop returns on the terminator.
func (s *Subsystem) HandleBusMessage(ctx context.Context) (ok bool) {
	item, popped := s.bus.TryPop()
	if !popped {
		return true
	}

	if item.Terminator {
		return false
	}

	s.handleEvent(ctx, item.Value)

	return true
}
