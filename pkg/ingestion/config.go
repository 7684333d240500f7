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

package ingestion

import "time"

// RetryConfig controls the backoff schedule EmbeddingGenerator uses when an
// embedding provider call fails with a retryable error.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// Config is the top-level input to NewLocalPipeline: which project, where
// its source lives, and how to ingest it.
type Config struct {
	ProjectID       string
	RepoSource      RepoSource
	IngestionConfig IngestionConfig
}

// RepoSource identifies where to load a repository's files from.
type RepoSource struct {
	// Type is "local_path" or "git_url".
	Type  string
	Value string
}

// ConcurrencyConfig controls the worker pool sizes for the parse and embed
// stages of the pipeline.
type ConcurrencyConfig struct {
	ParseWorkers int
	EmbedWorkers int
}

// IngestionConfig controls how a repository is walked, parsed, embedded, and
// written during one ingestion run.
type IngestionConfig struct {
	// ParserMode selects treesitter, simplified, or auto (prefer treesitter,
	// fall back to simplified when unavailable).
	ParserMode ParserMode

	// EmbeddingProvider is one of: openai, nomic, ollama, mock.
	EmbeddingProvider string

	MaxFileSizeBytes int64
	MaxCodeTextBytes int64
	ExcludeGlobs     []string

	// OnlyFiles restricts the run to this set of repo-relative paths (in
	// addition to ExcludeGlobs), used by the incremental delta fast path to
	// parse only the files a git diff reports as added/modified instead of
	// walking the whole tree.
	OnlyFiles []string

	Concurrency ConcurrencyConfig

	// LocalDataDir is the CozoDB data directory for the local backend.
	LocalDataDir string
	// LocalEngine is the CozoDB storage engine: rocksdb, sqlite, or mem.
	LocalEngine string

	BatchTargetMutations int
	CheckpointPath       string

	// WriteMode is "bulk" (one mutation script) or "per_statement".
	WriteMode string
}

// DefaultConfig returns the ingestion defaults used when a caller doesn't
// override a field.
func DefaultConfig() IngestionConfig {
	return IngestionConfig{
		ParserMode:        DefaultParserMode,
		EmbeddingProvider: "ollama",
		MaxFileSizeBytes:  1024 * 1024,
		MaxCodeTextBytes:  100 * 1024,
		ExcludeGlobs: []string{
			"node_modules/**",
			".git/**",
			"vendor/**",
			"dist/**",
			"build/**",
		},
		Concurrency: ConcurrencyConfig{
			ParseWorkers: 4,
			EmbedWorkers: 8,
		},
		LocalEngine:          "rocksdb",
		BatchTargetMutations: 2000,
		WriteMode:            "bulk",
	}
}
