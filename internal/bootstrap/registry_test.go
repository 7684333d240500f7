// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bootstrap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputePID_Deterministic(t *testing.T) {
	pid1 := ComputePID("alice", "/home/alice/proj")
	pid2 := ComputePID("alice", "/home/alice/proj")
	require.Equal(t, pid1, pid2)
	require.Len(t, pid1, 16)
}

func TestComputePID_DiffersByUserOrPath(t *testing.T) {
	base := ComputePID("alice", "/home/alice/proj")
	require.NotEqual(t, base, ComputePID("bob", "/home/alice/proj"))
	require.NotEqual(t, base, ComputePID("alice", "/home/alice/other"))
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	r, err := NewRegistryAt(path)
	require.NoError(t, err)
	return r
}

func TestRegistry_ResolveRegistersNewWorkspace(t *testing.T) {
	r := newTestRegistry(t)

	meta, movedFrom, err := r.Resolve("alice", "/home/alice/proj", "myproj")
	require.NoError(t, err)
	require.Empty(t, movedFrom)
	require.Equal(t, "myproj", meta.ProjectName)
	require.Equal(t, ComputePID("alice", "/home/alice/proj"), meta.PID)

	again, movedFrom, err := r.Resolve("alice", "/home/alice/proj", "myproj")
	require.NoError(t, err)
	require.Empty(t, movedFrom)
	require.Equal(t, meta.PID, again.PID)
}

func TestRegistry_ResolveDefaultsNameToPID(t *testing.T) {
	r := newTestRegistry(t)

	meta, _, err := r.Resolve("alice", "/home/alice/proj", "")
	require.NoError(t, err)
	require.Equal(t, meta.PID, meta.ProjectName)
}

func TestRegistry_ResolveRejectsDuplicateName(t *testing.T) {
	r := newTestRegistry(t)

	_, _, err := r.Resolve("alice", "/home/alice/proj-a", "shared")
	require.NoError(t, err)

	_, _, err = r.Resolve("alice", "/home/alice/proj-b", "shared")
	require.Error(t, err)
	require.Contains(t, err.Error(), "already in use")
}

func TestRegistry_ResolveDetectsMovedWorkspace(t *testing.T) {
	r := newTestRegistry(t)

	meta, _, err := r.Resolve("alice", "/home/alice/old-path", "myproj")
	require.NoError(t, err)

	moved, movedFrom, err := r.Resolve("alice", "/home/alice/old-path", "myproj")
	require.NoError(t, err)
	require.Empty(t, movedFrom)
	require.Equal(t, meta.PID, moved.PID)

	// Simulate the on-disk record diverging from the path passed to Resolve,
	// as if the workspace directory were renamed without the pid changing.
	rf, err := r.load()
	require.NoError(t, err)
	rf.Projects[meta.PID].WorkspacePath = "/home/alice/old-path-renamed"
	require.NoError(t, r.save(rf))

	updated, movedFrom, err := r.Resolve("alice", "/home/alice/old-path", "myproj")
	require.NoError(t, err)
	require.Equal(t, "/home/alice/old-path-renamed", movedFrom)
	require.Equal(t, "/home/alice/old-path", updated.WorkspacePath)
}

func TestRegistry_RenameRejectsAlreadyNamed(t *testing.T) {
	r := newTestRegistry(t)

	meta, _, err := r.Resolve("alice", "/home/alice/proj", "first-name")
	require.NoError(t, err)

	err = r.Rename(meta.PID, "second-name")
	require.Error(t, err)
	require.Contains(t, err.Error(), "immutable")
}

func TestRegistry_RenameRejectsCollision(t *testing.T) {
	r := newTestRegistry(t)

	_, _, err := r.Resolve("alice", "/home/alice/proj-a", "taken")
	require.NoError(t, err)
	metaB, _, err := r.Resolve("alice", "/home/alice/proj-b", "")

	err = r.Rename(metaB.PID, "taken")
	require.Error(t, err)
	require.Contains(t, err.Error(), "already in use")
}

func TestRegistry_TouchUpdatesStats(t *testing.T) {
	r := newTestRegistry(t)

	meta, _, err := r.Resolve("alice", "/home/alice/proj", "myproj")
	require.NoError(t, err)

	stats := ProjectStats{SymbolCounts: map[string]int{"constant": 3}, TotalBytes: 512}
	require.NoError(t, r.Touch(meta.PID, "nomic-embed-text", "myproj-col", stats))

	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "nomic-embed-text", list[0].EmbedderModel)
	require.Equal(t, 3, list[0].Stats.SymbolCounts["constant"])
}

func TestRegistry_ListOrdersByLastAccessedDescending(t *testing.T) {
	r := newTestRegistry(t)

	_, _, err := r.Resolve("alice", "/home/alice/proj-a", "proj-a")
	require.NoError(t, err)
	_, _, err = r.Resolve("alice", "/home/alice/proj-b", "proj-b")
	require.NoError(t, err)

	// Touch proj-a again so it becomes the most recently accessed.
	_, _, err = r.Resolve("alice", "/home/alice/proj-a", "proj-a")
	require.NoError(t, err)

	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.True(t, list[0].LastAccessed.After(list[1].LastAccessed) || list[0].LastAccessed.Equal(list[1].LastAccessed))
}

func TestRegistry_RemoveByNameGlob(t *testing.T) {
	r := newTestRegistry(t)

	_, _, err := r.Resolve("alice", "/home/alice/proj-a", "cie-api")
	require.NoError(t, err)
	_, _, err = r.Resolve("alice", "/home/alice/proj-b", "cie-worker")
	require.NoError(t, err)
	_, _, err = r.Resolve("alice", "/home/alice/proj-c", "unrelated")
	require.NoError(t, err)

	removed, err := r.Remove("cie-*")
	require.NoError(t, err)
	require.Len(t, removed, 2)

	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "unrelated", list[0].ProjectName)
}

func TestRegistry_RemoveByPID(t *testing.T) {
	r := newTestRegistry(t)

	meta, _, err := r.Resolve("alice", "/home/alice/proj", "myproj")
	require.NoError(t, err)

	removed, err := r.Remove(meta.PID)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	require.Equal(t, meta.PID, removed[0].PID)
}
