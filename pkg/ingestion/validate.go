// Copyright 2025 KrakLabs
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
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import "fmt"

// ValidateEntities checks referential integrity across a parsed batch
// before it is handed to DatalogBuilder: every defines edge and call edge
// must point at an entity that was actually extracted. Catching this here,
// before the mutation script is built, turns a silent dangling reference
// into an early, specific error.
func ValidateEntities(files []FileEntity, functions []FunctionEntity, defines []DefinesEdge, calls []CallsEdge) error {
	fileIDs := make(map[string]struct{}, len(files))
	for _, f := range files {
		if f.ID == "" {
			return fmt.Errorf("file entity with empty ID (path=%q)", f.Path)
		}
		fileIDs[f.ID] = struct{}{}
	}

	functionIDs := make(map[string]struct{}, len(functions))
	for _, fn := range functions {
		if fn.ID == "" {
			return fmt.Errorf("function entity with empty ID (name=%q, file=%q)", fn.Name, fn.FilePath)
		}
		functionIDs[fn.ID] = struct{}{}
	}

	for _, d := range defines {
		if _, ok := fileIDs[d.FileID]; !ok {
			return fmt.Errorf("defines edge %q references unknown file %q", d.ID, d.FileID)
		}
		if _, ok := functionIDs[d.FunctionID]; !ok {
			return fmt.Errorf("defines edge %q references unknown function %q", d.ID, d.FunctionID)
		}
	}

	for _, c := range calls {
		if _, ok := functionIDs[c.CallerID]; !ok {
			return fmt.Errorf("calls edge %q references unknown caller %q", c.ID, c.CallerID)
		}
		if _, ok := functionIDs[c.CalleeID]; !ok {
			return fmt.Errorf("calls edge %q references unknown callee %q", c.ID, c.CalleeID)
		}
	}

	return nil
}
