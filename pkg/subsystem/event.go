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

import "github.com/united-manufacturing-hub/subsystem-core/pkg/tag"

// Origin identifies who posted an Event, per spec.md §3.
type Origin string

const (
	OriginSelf   Origin = "SELF"
	OriginParent Origin = "PARENT"
	OriginChild  Origin = "CHILD"
)

// Event is the lifecycle IPC triple from spec.md §3: (origin, tag,
// state). Events are value-copied into buses.
type Event struct {
	Origin Origin
	Tag    tag.Tag
	State  string
}
