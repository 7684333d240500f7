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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/cie/internal/bootstrap"
	"github.com/kraklabs/cie/internal/ignore"
	"github.com/kraklabs/cie/internal/rpcserver"
	"github.com/kraklabs/cie/pkg/ingestion"
	"github.com/kraklabs/cie/pkg/storage"
	"github.com/kraklabs/cie/pkg/tools"
	"github.com/kraklabs/cie/pkg/watch"
)

// daemon is the long-lived per-workspace process: one Unix socket, one
// CozoDB backend, one embedder, one watcher. Construction order matters -
// Registry, then the Ignore Engine, then the Vector Store (schema + HNSW
// ensured before anything can query it), then the Embedder (handle created
// eagerly, model resolved lazily on first embed call), then the Indexer,
// then the Watcher, and only then the Dispatcher that wires the others
// together and starts accepting requests.
type daemon struct {
	logger *slog.Logger

	cfg        *Config
	workspace  string
	meta       *bootstrap.ProjectMetadata
	registry   *bootstrap.Registry
	ignoreEng  *ignore.Engine
	backend    *storage.EmbeddedBackend
	querier    *tools.EmbeddedQuerier
	watcher    *watch.Watcher
	server     *rpcserver.Server
	sockPath   string
}

// sockPathFor returns the Unix socket path for a project, one per project
// ID under the user's data directory so two workspaces never collide.
func sockPathFor(projectID string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, ".cie", "run", projectID+".sock"), nil
}

// pidPathFor returns the daemon's pidfile path for a project.
func pidPathFor(projectID string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, ".cie", "run", projectID+".pid"), nil
}

// logPathFor returns the path a detached daemon's stdout/stderr are
// redirected to, and that 'cie log' tails back.
func logPathFor(projectID string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, ".cie", "logs", projectID+".log"), nil
}

// newDaemon builds every daemon component in construction order, but does
// not yet start serving - call Serve for that.
func newDaemon(cfg *Config, workspace string, logger *slog.Logger) (*daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 1. Registry: resolve this workspace to its project metadata, picking
	// up a moved-workspace rebuild signal if one is pending.
	registry, err := bootstrap.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	meta, movedFrom, err := registry.Resolve(os.Getenv("USER"), workspace, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve project: %w", err)
	}
	if movedFrom != "" {
		logger.Warn("daemon.workspace.moved", "from", movedFrom, "to", workspace, "pid", meta.PID)
	}

	// 2. Ignore Engine: compiled default/git-style/repo-specific rule set.
	ignoreEng, err := ignore.New(workspace)
	if err != nil {
		return nil, fmt.Errorf("build ignore engine: %w", err)
	}

	// 3. Vector Store: open the embedded backend and ensure schema/HNSW
	// before any handler can reach it.
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dataDir := filepath.Join(homeDir, ".cie", "data", cfg.ProjectID)
	if movedFrom != "" {
		// A reused pid with a changed workspace_path invalidates every
		// previously indexed symbol; wipe and let the next `index` rebuild.
		if err := os.RemoveAll(dataDir); err != nil && !os.IsNotExist(err) {
			logger.Warn("daemon.workspace.moved.wipe.error", "err", err)
		}
	}

	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		DataDir:             dataDir,
		Engine:              "rocksdb",
		ProjectID:           cfg.ProjectID,
		EmbeddingDimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	if err := backend.EnsureSchema(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := backend.CreateHNSWIndex(cfg.Embedding.Dimensions); err != nil {
		logger.Warn("daemon.hnsw.warning", "err", err)
	}

	// 4. Embedder: the handle is created here; the underlying provider's
	// model is only actually touched on first SemanticSearch call, inside
	// pkg/tools.
	querier := tools.NewEmbeddedQuerier(backend)

	// 5. Indexer: nothing to construct up front - ingestion.NewLocalPipeline
	// is built fresh per `index` RPC call, since it owns its own embedder
	// worker pool sized to that run's concurrency config.

	// 6. Watcher: debounced filesystem change queue, paused while an agent
	// is actively issuing RPCs.
	watcher, err := watch.New(workspace, logger,
		watch.WithDebounce(time.Duration(cfg.Watch.DebounceSeconds)*time.Second),
		watch.WithInactivity(time.Duration(cfg.Watch.InactivitySeconds)*time.Second),
	)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("start watcher: %w", err)
	}

	sockPath, err := sockPathFor(cfg.ProjectID)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(sockPath), 0750); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	// 7. Dispatcher: binds the socket and registers handlers over every
	// component constructed above.
	server, err := rpcserver.New(sockPath, logger)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("create rpc server: %w", err)
	}

	d := &daemon{
		logger:    logger,
		cfg:       cfg,
		workspace: workspace,
		meta:      meta,
		registry:  registry,
		ignoreEng: ignoreEng,
		backend:   backend,
		querier:   querier,
		watcher:   watcher,
		server:    server,
		sockPath:  sockPath,
	}
	d.registerHandlers()
	server.OnRequest(watcher.NoteRPC)
	return d, nil
}

// Serve runs the watcher loop and the RPC dispatch loop until ctx is
// canceled, then releases every resource acquired during construction.
func (d *daemon) Serve(ctx context.Context) error {
	go d.watcher.Run(ctx)

	go func() {
		for ev := range d.watcher.Events() {
			if d.ignoreEng.ShouldIgnore(ev.Path) {
				continue
			}
			d.logger.Info("daemon.watch.change", "path", ev.Path, "op", ev.Op)
			// A full generalized incremental-reindex hookup belongs to the
			// C9 state machine; the daemon only logs the trigger here so a
			// future `cie index` run picks up the change via C3's fingerprint diff.
		}
	}()

	err := d.server.Serve(ctx)
	d.Close()
	return err
}

// Close releases the vector store and socket.
func (d *daemon) Close() {
	_ = d.server.Close()
	_ = d.backend.Close()
}

type searchRPCArgs struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
	Limit int    `json:"limit"`
}

type searchRPCResult struct {
	Text  string `json:"text"`
	Route string `json:"route"`
}

type indexRPCArgs struct {
	Force bool `json:"force"`
}

type statusRPCResult struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	Workspace   string `json:"workspace"`
	LastIndexed string `json:"last_indexed,omitempty"`
}

type infoRPCResult struct {
	ProjectID string `json:"project_id"`
	SockPath  string `json:"sock_path"`
	Pid       int    `json:"pid"`
}

type lsRPCResult struct {
	Projects []*bootstrap.ProjectMetadata `json:"projects"`
}

func (d *daemon) registerHandlers() {
	d.server.Register("search", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args searchRPCArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode search args: %w", err)
		}
		if args.Limit <= 0 {
			args.Limit = 10
		}
		result, route, err := tools.RouteSearch(ctx, d.querier, tools.RouteSearchArgs{
			Query:          args.Query,
			Mode:           args.Mode,
			Limit:          args.Limit,
			EmbeddingURL:   d.cfg.Embedding.BaseURL,
			EmbeddingModel: d.cfg.Embedding.Model,
		})
		if err != nil {
			return nil, err
		}
		return searchRPCResult{Text: result.Text, Route: string(route)}, nil
	})

	d.server.Register("index", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args indexRPCArgs
		_ = json.Unmarshal(raw, &args)
		result, err := d.runIndex(ctx, args.Force)
		if err != nil {
			return nil, err
		}
		return result, nil
	})

	d.server.Register("status", func(ctx context.Context, _ json.RawMessage) (any, error) {
		res := statusRPCResult{
			ProjectID:   d.meta.PID,
			ProjectName: d.meta.ProjectName,
			Workspace:   d.meta.WorkspacePath,
		}
		if !d.meta.LastIndexed.IsZero() {
			res.LastIndexed = d.meta.LastIndexed.Format(time.RFC3339)
		}
		return res, nil
	})

	d.server.Register("info", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return infoRPCResult{ProjectID: d.cfg.ProjectID, SockPath: d.sockPath, Pid: os.Getpid()}, nil
	})

	d.server.Register("ls", func(ctx context.Context, _ json.RawMessage) (any, error) {
		projects, err := d.registry.List()
		if err != nil {
			return nil, err
		}
		return lsRPCResult{Projects: projects}, nil
	})

	d.server.Register("exclusions", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return ingestion.DefaultConfig().ExcludeGlobs, nil
	})

	d.server.Register("stop", func(ctx context.Context, _ json.RawMessage) (any, error) {
		go func() {
			time.Sleep(100 * time.Millisecond)
			_ = d.server.Close()
		}()
		return map[string]bool{"stopping": true}, nil
	})
}

// runIndex invokes the ingestion pipeline against the daemon's own workspace
// and vector store, reusing the same ingestion.Config shape `cie index`
// builds directly, then records the result in the registry.
func (d *daemon) runIndex(ctx context.Context, force bool) (*ingestion.IngestionResult, error) {
	embeddingProvider := mapEmbeddingProvider(d.cfg.Embedding.Provider)

	checkpointDir := filepath.Join(ConfigDir(d.workspace), "checkpoints")
	if err := os.MkdirAll(checkpointDir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	defaults := ingestion.DefaultConfig()
	excludeGlobs := append(defaults.ExcludeGlobs, d.cfg.Indexing.Exclude...)

	if force {
		homeDir, _ := os.UserHomeDir()
		dataDir := filepath.Join(homeDir, ".cie", "data", d.cfg.ProjectID)
		_ = os.RemoveAll(dataDir)
	}

	cfg := ingestion.Config{
		ProjectID: d.cfg.ProjectID,
		RepoSource: ingestion.RepoSource{
			Type:  "local_path",
			Value: d.workspace,
		},
		IngestionConfig: ingestion.IngestionConfig{
			ParserMode:           ingestion.ParserMode(d.cfg.Indexing.ParserMode),
			EmbeddingProvider:    embeddingProvider,
			BatchTargetMutations: d.cfg.Indexing.BatchTarget,
			MaxFileSizeBytes:     d.cfg.Indexing.MaxFileSize,
			CheckpointPath:       checkpointDir,
			ExcludeGlobs:         excludeGlobs,
			Concurrency: ingestion.ConcurrencyConfig{
				ParseWorkers: 4,
				EmbedWorkers: 8,
			},
		},
	}

	pipeline, err := ingestion.NewLocalPipeline(cfg, d.logger)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	defer pipeline.Close()

	result, err := pipeline.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexing failed: %w", err)
	}

	stats := bootstrap.ProjectStats{
		SymbolCounts: map[string]int{
			"function": result.FunctionsExtracted,
			"type":     result.TypesExtracted,
		},
		TotalBytes: 0,
	}
	if err := d.registry.Touch(d.meta.PID, d.cfg.Embedding.Model, d.cfg.ProjectID, stats); err != nil {
		d.logger.Warn("daemon.registry.touch.error", "err", err)
	}

	return result, nil
}

// runDaemon starts the daemon in the foreground and blocks until ctx is
// canceled; used both by `cie start --foreground` and by the detached
// child process `start` spawns.
func runDaemon(ctx context.Context, cfg *Config, workspace string, logger *slog.Logger) error {
	d, err := newDaemon(cfg, workspace, logger)
	if err != nil {
		return err
	}

	pidPath, err := pidPathFor(cfg.ProjectID)
	if err == nil {
		_ = os.MkdirAll(filepath.Dir(pidPath), 0750)
		_ = os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0644)
		defer os.Remove(pidPath)
	}

	logger.Info("daemon.start", "project_id", cfg.ProjectID, "sock", d.sockPath, "workspace", workspace)
	err = d.Serve(ctx)
	logger.Info("daemon.stop", "project_id", cfg.ProjectID)
	return err
}
