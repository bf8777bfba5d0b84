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
	"fmt"
	"io"

	"github.com/united-manufacturing-hub/subsystem-core/pkg/registry"
)

// PrintRegistry writes a `tag, state, name` line per registry entry to
// w, per spec.md §6's diagnostic dump. It takes no lock beyond
// registry.Snapshot's own, and is safe to call from any goroutine at
// any time.
func PrintRegistry(w io.Writer, reg *registry.Registry) {
	for _, e := range reg.Snapshot() {
		fmt.Fprintf(w, "%s, %s, %s\n", e.Tag, e.State, e.Name)
	}
}
