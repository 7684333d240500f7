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

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	cozo "github.com/kraklabs/cie/pkg/cozodb"
)

// EmbeddedBackend implements Backend using a local CozoDB instance.
// This is the default backend for standalone/open-source CIE.
type EmbeddedBackend struct {
	db     *cozo.CozoDB
	mu     sync.RWMutex
	closed bool
	dim    int
}

// DefaultEmbeddingDimensions is used when a project does not specify one
// (nomic-embed-text's native output size).
const DefaultEmbeddingDimensions = 768

// EmbeddedConfig configures the embedded backend.
type EmbeddedConfig struct {
	// DataDir is the directory where CozoDB stores its data.
	// Defaults to ~/.cie/data/<project_id>
	DataDir string

	// Engine is the CozoDB storage engine: "rocksdb", "sqlite", or "mem".
	// Defaults to "rocksdb" for persistence.
	Engine string

	// ProjectID is used to namespace the data directory.
	ProjectID string

	// EmbeddingDimensions is the fixed width of the symbol_embedding column.
	// Resolved once at project init from the configured embedding model and
	// frozen for the life of the data directory; defaults to
	// DefaultEmbeddingDimensions when zero.
	EmbeddingDimensions int
}

// NewEmbeddedBackend creates a new embedded CozoDB backend.
func NewEmbeddedBackend(config EmbeddedConfig) (*EmbeddedBackend, error) {
	// Set defaults
	if config.Engine == "" {
		config.Engine = "rocksdb"
	}
	if config.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		config.DataDir = filepath.Join(homeDir, ".cie", "data")
		if config.ProjectID != "" {
			config.DataDir = filepath.Join(config.DataDir, config.ProjectID)
		}
	}

	// Ensure data directory exists
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	// Open CozoDB
	db, err := cozo.New(config.Engine, config.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open cozodb: %w", err)
	}

	dim := config.EmbeddingDimensions
	if dim == 0 {
		dim = DefaultEmbeddingDimensions
	}

	return &EmbeddedBackend{
		db:  &db,
		dim: dim,
	}, nil
}

// EmbeddingDimensions returns the dimension this backend's symbol_embedding
// column was created with.
func (b *EmbeddedBackend) EmbeddingDimensions() int {
	return b.dim
}

// Query executes a read-only Datalog query.
func (b *EmbeddedBackend) Query(ctx context.Context, datalog string) (*QueryResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}

	// Check context cancellation
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.db.RunReadOnly(datalog, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	return FromNamedRows(result), nil
}

// Execute runs a Datalog mutation.
func (b *EmbeddedBackend) Execute(ctx context.Context, datalog string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}

	// Check context cancellation
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := b.db.Run(datalog, nil)
	if err != nil {
		return fmt.Errorf("execute failed: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (b *EmbeddedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	b.db.Close()
	return nil
}

// DB returns the underlying CozoDB instance for advanced operations.
// Use with caution - prefer the Backend interface methods.
func (b *EmbeddedBackend) DB() *cozo.CozoDB {
	return b.db
}

// EnsureSchema creates the CIE tables if they don't exist.
// This is idempotent and safe to call multiple times.
//
// The v3 function/type table split is kept as-is (it is the schema every
// query in pkg/tools is written against), with one addition: cie_symbol
// covers the Symbol kinds that don't fit "function" or "type" - module
// docstrings, top-level constants, and config blocks - so the full kind
// set is representable without renaming the tables dozens of call sites
// already depend on.
func (b *EmbeddedBackend) EnsureSchema() error {
	tables := []string{
		`:create cie_file { id: String => path: String, hash: String, language: String, size: Int }`,
		`:create cie_function { id: String => name: String, signature: String, file_path: String, start_line: Int, end_line: Int, start_col: Int, end_col: Int }`,
		`:create cie_function_code { function_id: String => code_text: String }`,
		fmt.Sprintf(`:create cie_function_embedding { function_id: String => embedding: <F32; %d> }`, b.dim),
		`:create cie_defines { id: String => file_id: String, function_id: String }`,
		`:create cie_calls { id: String => caller_id: String, callee_id: String }`,
		`:create cie_import { id: String => file_path: String, import_path: String, alias: String, start_line: Int }`,
		`:create cie_type { id: String => name: String, kind: String, file_path: String, start_line: Int, end_line: Int, start_col: Int, end_col: Int }`,
		`:create cie_type_code { type_id: String => code_text: String }`,
		fmt.Sprintf(`:create cie_type_embedding { type_id: String => embedding: <F32; %d> }`, b.dim),
		`:create cie_defines_type { id: String => file_id: String, type_id: String }`,
		// cie_symbol covers module_doc, constant, and config Symbol kinds.
		`:create cie_symbol { id: String => kind: String, name: String, file_path: String, start_line: Int, end_line: Int, parent_name: String }`,
		`:create cie_symbol_code { symbol_id: String => code_text: String }`,
		fmt.Sprintf(`:create cie_symbol_embedding { symbol_id: String => embedding: <F32; %d> }`, b.dim),
		`:create cie_project_meta { project_id: String => last_indexed_sha: String, last_committed_index: Int, updated_at: Int }`,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, table := range tables {
		if _, err := b.db.Run(table, nil); err != nil {
			// CozoDB returns an error containing "already exists" on repeat
			// creation; EnsureSchema is expected to be called on every open.
			continue
		}
	}

	return nil
}

// CreateHNSWIndex creates the HNSW indexes for semantic search over
// functions, types, and the supplemental symbol table. dim must match the
// width EnsureSchema created the embedding columns with; passing 0 reuses
// the backend's resolved dimension.
func (b *EmbeddedBackend) CreateHNSWIndex(dim int) error {
	if dim == 0 {
		dim = b.dim
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	indexes := []string{
		fmt.Sprintf(`::hnsw create cie_function_embedding:embedding_idx { dim: %d, m: 16, ef_construction: 100, fields: [embedding] }`, dim),
		fmt.Sprintf(`::hnsw create cie_type_embedding:embedding_idx { dim: %d, m: 16, ef_construction: 100, fields: [embedding] }`, dim),
		fmt.Sprintf(`::hnsw create cie_symbol_embedding:embedding_idx { dim: %d, m: 16, ef_construction: 100, fields: [embedding] }`, dim),
	}

	var firstErr error
	for _, idx := range indexes {
		if _, err := b.db.Run(idx, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("create hnsw index: %w", firstErr)
	}

	return nil
}
