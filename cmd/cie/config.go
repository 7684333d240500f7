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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/cie/internal/errors"
	"github.com/kraklabs/cie/pkg/storage"
)

// GlobalFlags holds flags parsed once at the top level and threaded through
// to every subcommand, rather than re-parsed by each one.
type GlobalFlags struct {
	// JSON requests machine-readable output instead of formatted text.
	JSON bool

	// Quiet suppresses progress bars and non-essential stdout chatter.
	Quiet bool

	// NoColor disables ANSI color codes in terminal output.
	NoColor bool

	// Verbose increases logging detail; each repeated -v bumps this by one.
	Verbose int
}

// Config is the on-disk shape of .cie/project.yaml. It is loaded once per
// command invocation and threaded through to the indexer, query layer, and
// daemon; nothing below cmd/cie re-reads the file.
type Config struct {
	// ProjectID identifies this project across the local data directory,
	// the daemon's Unix socket name, and project.yaml itself.
	ProjectID string `yaml:"project_id"`

	CIE       CIEConfig       `yaml:"cie"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	LLM       LLMConfig       `yaml:"llm"`
	Watch     WatchConfig     `yaml:"watch"`
	Rerank    RerankConfig    `yaml:"rerank"`
}

// CIEConfig points at the (optional) remote Edge Cache / Primary Hub, left
// over from the Docker-based deployment mode; the embedded daemon mode
// ignores both fields.
type CIEConfig struct {
	EdgeCache  string `yaml:"edge_cache"`
	PrimaryHub string `yaml:"primary_hub"`
}

// EmbeddingConfig selects and configures the embedding provider used for
// semantic search.
type EmbeddingConfig struct {
	// Provider is one of: ollama, nomic, openai, mock.
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`

	// Dimensions is resolved once at `cie init` time from the chosen model
	// and frozen thereafter: CozoDB's HNSW index is a fixed-width column,
	// so changing providers after the fact requires `cie reset`.
	Dimensions int `yaml:"dimensions"`
}

// IndexingConfig controls how the repository is walked, parsed, and batched
// during indexing.
type IndexingConfig struct {
	// ParserMode selects the code parser: "treesitter", "simplified", or
	// "auto" (prefer tree-sitter, fall back to simplified when unavailable).
	ParserMode   string   `yaml:"parser_mode"`
	BatchTarget  int      `yaml:"batch_target"`
	MaxFileSize  int64    `yaml:"max_file_size"`
	Exclude      []string `yaml:"exclude"`
}

// LLMConfig configures an optional OpenAI-compatible LLM used to generate
// narrative explanations for `cie query --analyze`-style commands.
type LLMConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key,omitempty"`
	MaxTokens int    `yaml:"max_tokens"`
}

// WatchConfig tunes the filesystem watcher's debounce and agent-idle
// heuristics (pkg/watch).
type WatchConfig struct {
	DebounceSeconds   int `yaml:"debounce_seconds"`
	InactivitySeconds int `yaml:"inactivity_seconds"`
}

// RerankConfig overrides the additive re-ranking weights (pkg/rerank).
// Zero value means "use rerank.DefaultWeights()".
type RerankConfig struct {
	Kind     float64 `yaml:"kind"`
	Path     float64 `yaml:"path"`
	Name     float64 `yaml:"name"`
	Language float64 `yaml:"language"`
}

// DefaultConfig returns a Config populated with the defaults `cie init`
// writes out for a freshly created project.
func DefaultConfig(projectID string) *Config {
	return &Config{
		ProjectID: projectID,
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			BaseURL:    "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: storage.DefaultEmbeddingDimensions,
		},
		Indexing: IndexingConfig{
			ParserMode:  "auto",
			BatchTarget: 500,
			MaxFileSize: 1 << 20, // 1MiB
		},
		Watch: WatchConfig{
			DebounceSeconds:   60,
			InactivitySeconds: 120,
		},
	}
}

// ConfigDir returns the .cie directory under repoPath.
func ConfigDir(repoPath string) string {
	return filepath.Join(repoPath, ".cie")
}

// ConfigPath returns the project.yaml path under repoPath's .cie directory.
func ConfigPath(repoPath string) string {
	return filepath.Join(ConfigDir(repoPath), "project.yaml")
}

// LoadConfig reads and parses .cie/project.yaml.
//
// An empty configPath resolves to ConfigPath(cwd). Environment variables
// OLLAMA_HOST and OLLAMA_EMBED_MODEL, when set, override the corresponding
// embedding.base_url and embedding.model fields so a shell-level override
// never requires editing project.yaml.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, errors.NewConfigError(
				"Cannot determine current directory",
				err.Error(),
				"Run this command from within your repository",
				err,
			)
		}
		configPath = ConfigPath(cwd)
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: configPath is operator-supplied
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewConfigError(
				fmt.Sprintf("No configuration found at %s", configPath),
				"the project has not been initialized",
				"Run 'cie init' to create .cie/project.yaml",
				err,
			)
		}
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			err.Error(),
			"Check file permissions on "+configPath,
			err,
		)
	}

	cfg := DefaultConfig("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewConfigError(
			"Cannot parse configuration file",
			err.Error(),
			fmt.Sprintf("Check the YAML syntax in %s", configPath),
			err,
		)
	}

	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if cfg.ProjectID == "" {
		return nil, errors.NewConfigError(
			"Configuration is missing project_id",
			fmt.Sprintf("%s has no project_id set", configPath),
			"Add a project_id field or re-run 'cie init'",
			nil,
		)
	}

	return cfg, nil
}

// SaveConfig writes cfg as YAML to configPath, creating parent directories
// as needed.
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("write configuration: %w", err)
	}
	return nil
}
