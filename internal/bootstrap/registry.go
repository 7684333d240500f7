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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ProjectMetadata is one entry in the registry: everything needed to resolve
// a workspace path to its data directory and to answer `cie ls`/`cie status`
// without opening the project's CozoDB backend.
type ProjectMetadata struct {
	PID           string         `json:"pid"`
	ProjectName   string         `json:"project_name"`
	WorkspacePath string         `json:"workspace_path"`
	CreatedAt     time.Time      `json:"created_at"`
	LastAccessed  time.Time      `json:"last_accessed"`
	LastIndexed   time.Time      `json:"last_indexed,omitempty"`
	EmbedderModel string         `json:"embedder_model_tag"`
	CollectionName string        `json:"collection_name"`
	Stats         ProjectStats   `json:"stats"`
}

// ProjectStats holds the index statistics shown by `cie ls --long`.
type ProjectStats struct {
	SymbolCounts map[string]int `json:"symbol_counts,omitempty"` // kind -> count
	LanguageMix  map[string]int `json:"language_mix,omitempty"`  // language -> file count
	TotalBytes   int64          `json:"total_bytes"`
}

// ComputePID derives the stable project identifier for a workspace: a
// 16-hex-character truncation of sha256(userID + "\x00" + absWorkspacePath).
func ComputePID(userID, absWorkspacePath string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + absWorkspacePath))
	return hex.EncodeToString(sum[:])[:16]
}

// registryFile is the on-disk shape of the registry: a flat map keyed by pid,
// persisted the same atomic temp-file-then-rename way ingestion.CheckpointManager
// persists checkpoints.
type registryFile struct {
	Projects map[string]*ProjectMetadata `json:"projects"`
}

// Registry resolves workspace paths to project identifiers and enforces the
// project-name-uniqueness and moved-workspace invariants of the data model.
// It is safe for concurrent use by goroutines sharing one Registry; separate
// processes using the same ~/.cie/registry.json are not locked against each
// other, and each save replaces the file atomically via rename.
type Registry struct {
	mu   sync.Mutex
	path string
}

// NewRegistry opens the registry file at the default location
// (~/.cie/registry.json), creating an empty one if it doesn't exist yet.
func NewRegistry() (*Registry, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	return NewRegistryAt(filepath.Join(homeDir, ".cie", "registry.json"))
}

// NewRegistryAt opens (or creates) a registry file at an explicit path;
// exposed for tests that don't want to touch the real home directory.
func NewRegistryAt(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	r := &Registry{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := r.save(&registryFile{Projects: map[string]*ProjectMetadata{}}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) load() (*registryFile, error) {
	data, err := os.ReadFile(r.path) //nolint:gosec // G304: path is operator-configured
	if err != nil {
		if os.IsNotExist(err) {
			return &registryFile{Projects: map[string]*ProjectMetadata{}}, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var rf registryFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if rf.Projects == nil {
		rf.Projects = map[string]*ProjectMetadata{}
	}
	return &rf, nil
}

func (r *Registry) save(rf *registryFile) error {
	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write registry temp: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename registry: %w", err)
	}
	return nil
}

// Resolve returns the metadata for a workspace path, registering a new
// entry on first use. A detected workspace_path mismatch for an existing
// pid (the "moved workspace" case) updates the stored path and returns
// movedFrom set to the previously recorded path, signaling the caller to
// wipe and rebuild the project's data directory.
func (r *Registry) Resolve(userID, absWorkspacePath, projectName string) (meta *ProjectMetadata, movedFrom string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pid := ComputePID(userID, absWorkspacePath)

	rf, err := r.load()
	if err != nil {
		return nil, "", err
	}

	now := time.Now()

	existing, ok := rf.Projects[pid]
	if !ok {
		if projectName != "" {
			if other := findByName(rf, projectName); other != nil {
				return nil, "", fmt.Errorf("project name %q is already in use by workspace %s", projectName, other.WorkspacePath)
			}
		} else {
			projectName = pid
		}
		meta = &ProjectMetadata{
			PID:           pid,
			ProjectName:   projectName,
			WorkspacePath: absWorkspacePath,
			CreatedAt:     now,
			LastAccessed:  now,
		}
		rf.Projects[pid] = meta
		if err := r.save(rf); err != nil {
			return nil, "", err
		}
		return meta, "", nil
	}

	existing.LastAccessed = now
	if existing.WorkspacePath != absWorkspacePath {
		movedFrom = existing.WorkspacePath
		existing.WorkspacePath = absWorkspacePath
	}
	if err := r.save(rf); err != nil {
		return nil, "", err
	}
	return existing, movedFrom, nil
}

func findByName(rf *registryFile, name string) *ProjectMetadata {
	for _, m := range rf.Projects {
		if m.ProjectName == name {
			return m
		}
	}
	return nil
}

// Rename sets a project's name once, rejecting the call if a name is
// already assigned (project_name is immutable once set, per the data model)
// or if the requested name collides with another project.
func (r *Registry) Rename(pid, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rf, err := r.load()
	if err != nil {
		return err
	}
	m, ok := rf.Projects[pid]
	if !ok {
		return fmt.Errorf("no project with pid %s", pid)
	}
	if m.ProjectName != "" && m.ProjectName != pid && m.ProjectName != newName {
		return fmt.Errorf("project %s already has name %q; names are immutable once set", pid, m.ProjectName)
	}
	if other := findByName(rf, newName); other != nil && other.PID != pid {
		return fmt.Errorf("project name %q is already in use", newName)
	}
	m.ProjectName = newName
	return r.save(rf)
}

// Touch records last_indexed / embedder_model_tag / collection_name /
// stats after an indexing run completes.
func (r *Registry) Touch(pid string, embedderModel, collectionName string, stats ProjectStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rf, err := r.load()
	if err != nil {
		return err
	}
	m, ok := rf.Projects[pid]
	if !ok {
		return fmt.Errorf("no project with pid %s", pid)
	}
	m.LastIndexed = time.Now()
	m.EmbedderModel = embedderModel
	m.CollectionName = collectionName
	m.Stats = stats
	return r.save(rf)
}

// List returns every registered project, most-recently-accessed first.
func (r *Registry) List() ([]*ProjectMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rf, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]*ProjectMetadata, 0, len(rf.Projects))
	for _, m := range rf.Projects {
		out = append(out, m)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].LastAccessed.After(out[j-1].LastAccessed); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// Remove deletes every project whose name matches glob (via filepath.Match)
// from the registry, returning the removed entries so the caller can also
// delete their on-disk data directories.
func (r *Registry) Remove(glob string) ([]*ProjectMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rf, err := r.load()
	if err != nil {
		return nil, err
	}

	var removed []*ProjectMetadata
	for pid, m := range rf.Projects {
		match, err := filepath.Match(glob, m.ProjectName)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", glob, err)
		}
		if match || m.PID == glob {
			removed = append(removed, m)
			delete(rf.Projects, pid)
		}
	}
	if err := r.save(rf); err != nil {
		return nil, err
	}
	return removed, nil
}
