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
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cieerrors "github.com/kraklabs/cie/internal/errors"
	"github.com/kraklabs/cie/pkg/ingestion"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// runIndex executes the 'index' CLI command, indexing the repository for code intelligence.
//
// It parses source files using Tree-sitter, generates embeddings, and stores the results
// in a local CozoDB database. When the project already has indexed data it prints a hint
// and exits, unless --full, --force-full-reindex or --skip-checks is given; --incremental
// indexes only the files a git diff reports as changed.
//
// Flags:
//   - --full: Index even when the project already has data; a checkpoint left by an
//     interrupted run is not deleted, so files it records as done are still skipped (default: false)
//   - --force-full-reindex: Delete checkpoint and reindex everything from scratch
//   - --embed-workers: Number of parallel embedding workers (default: 8)
//   - --debug: Enable debug logging (default: false)
//   - --metrics-addr: HTTP address for Prometheus metrics (default: disabled)
//   - --incremental: Use git diff against the last indexed commit instead of a full tree walk
//   - --until: Commit SHA to index up to (used with --incremental; defaults to HEAD)
//   - --skip-checks: Skip the "already indexed" prompt that --full/--force-full-reindex bypass
//   - --queue: Serialize with any other 'cie index' run for this project via a lock file,
//     queuing this invocation's commit instead of running concurrently
//
// Examples:
//
//	cie index                  Index the project (stops with a hint if it already has data)
//	cie index --full           Force full reindex
//	cie index --embed-workers 16  Use 16 parallel workers for embeddings
//	cie index --incremental --until=$(git rev-parse HEAD) --skip-checks --queue
func runIndex(args []string, configPath string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	full := fs.Bool("full", false, "Force full reindex")
	forceFullReindex := fs.Bool("force-full-reindex", false, "Delete checkpoint and reindex everything from scratch")
	embedWorkers := fs.Int("embed-workers", 8, "Number of parallel embedding workers")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	incremental := fs.Bool("incremental", false, "Index only files changed since the last indexed commit (git diff fast path)")
	until := fs.String("until", "", "Commit SHA to index up to with --incremental (default: HEAD)")
	skipChecks := fs.Bool("skip-checks", false, "Skip the already-indexed prompt and index unconditionally")
	queueFlag := fs.Bool("queue", false, "Serialize with other 'cie index' runs for this project; queue instead of running concurrently")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie index [options]

Indexes the current repository using configuration from .cie/project.yaml.
Data is stored locally in ~/.cie/data/<project_id>/

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	// Load configuration
	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Check for existing data
	if !*full && !*forceFullReindex && !*skipChecks {
		hasData, funcCount, err := checkLocalData(cfg)
		if err == nil && hasData {
			if funcCount >= 0 {
				fmt.Printf("Project '%s' already has %d functions indexed.\n\n", cfg.ProjectID, funcCount)
			} else {
				fmt.Printf("Project '%s' already has indexed data.\n\n", cfg.ProjectID)
			}
			fmt.Println("Choose indexing mode:")
			fmt.Println("  cie index --full           Reindex everything from scratch")
			os.Exit(0)
		}
	}

	// Start Prometheus metrics endpoint (optional)
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	// Get current directory as repo path
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
		os.Exit(1)
	}

	// Map embedding provider
	embeddingProvider := mapEmbeddingProvider(cfg.Embedding.Provider)

	// Delete local data if force-full-reindex is requested
	if *forceFullReindex {
		homeDir, _ := os.UserHomeDir()
		dataDir := filepath.Join(homeDir, ".cie", "data", cfg.ProjectID)
		if err := os.RemoveAll(dataDir); err == nil {
			logger.Info("data.deleted", "path", dataDir)
		} else if !os.IsNotExist(err) {
			logger.Warn("data.delete.error", "path", dataDir, "err", err)
		}
	}

	runIndexed := func() {
		if *incremental {
			runIncrementalIndex(ctx, logger, cfg, cwd, embeddingProvider, *embedWorkers, *until)
		} else {
			runLocalIndex(ctx, logger, cfg, cwd, embeddingProvider, *embedWorkers)
		}
	}

	if !*queueFlag {
		runIndexed()
		return
	}

	idxQueue, err := NewIndexQueue(cfg.ProjectID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot open index queue: %v\n", err)
		os.Exit(1)
	}

	acquired, err := idxQueue.TryAcquireLock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot acquire index lock: %v\n", err)
		os.Exit(1)
	}
	if !acquired {
		// Another 'cie index' is already running for this project (most
		// likely a previous post-commit hook invocation still working
		// through a larger diff). Queue this commit instead of racing it;
		// the running invocation drains the queue before releasing the lock.
		if *until != "" {
			if err := idxQueue.AddToQueue(*until); err != nil {
				logger.Warn("index.queue.add.error", "err", err)
			}
		}
		logger.Info("index.queue.busy", "until", *until)
		return
	}
	defer idxQueue.ReleaseLock()

	for {
		runIndexed()

		queued, err := idxQueue.DrainQueue()
		if err != nil {
			logger.Warn("index.queue.drain.error", "err", err)
			return
		}
		if len(queued) == 0 {
			return
		}
		// Catch up to the latest commit queued while we were indexing; the
		// delta between our last --until and this one covers every commit
		// in between, so there's no need to replay them one at a time.
		*until = queued[len(queued)-1]
		logger.Info("index.queue.catchup", "until", *until, "drained", len(queued))
	}
}

// checkLocalData checks if the project's local data directory exists.
//
// Returns:
//   - bool: true if the local data directory exists
//   - int: 0 if no data; -1 if data exists (the function count is not queried)
//   - error: error if database cannot be opened
func checkLocalData(cfg *Config) (bool, int, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return false, 0, err
	}

	dataDir := filepath.Join(homeDir, ".cie", "data", cfg.ProjectID)
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return false, 0, nil
	}

	// TODO: Query CozoDB for actual function count
	// For now, just check if directory exists
	return true, -1, nil
}

// runLocalIndex executes the local indexing pipeline, writing results to the embedded database.
//
// It walks the repository, parses source files, generates embeddings in parallel, and stores
// all extracted code intelligence data in the local CozoDB database.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - logger: Structured logger for progress reporting
//   - cfg: CIE configuration with project settings
//   - repoPath: Absolute path to the repository root
//   - embeddingProvider: Embedding provider name (ollama, nomic, mock)
//   - embedWorkers: Number of parallel workers for embedding generation
func runLocalIndex(ctx context.Context, logger *slog.Logger, cfg *Config, repoPath, embeddingProvider string, embedWorkers int) {
	// Ensure checkpoint directory exists
	checkpointDir := filepath.Join(ConfigDir(repoPath), "checkpoints")
	if err := os.MkdirAll(checkpointDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create checkpoint directory: %v\n", err)
		os.Exit(1)
	}

	// Combine default excludes with user-specified ones
	defaults := ingestion.DefaultConfig()
	excludeGlobs := append(defaults.ExcludeGlobs, cfg.Indexing.Exclude...)

	config := ingestion.Config{
		ProjectID: cfg.ProjectID,
		RepoSource: ingestion.RepoSource{
			Type:  "local_path",
			Value: repoPath,
		},
		IngestionConfig: ingestion.IngestionConfig{
			ParserMode:           ingestion.ParserMode(cfg.Indexing.ParserMode),
			EmbeddingProvider:    embeddingProvider,
			BatchTargetMutations: cfg.Indexing.BatchTarget,
			MaxFileSizeBytes:     cfg.Indexing.MaxFileSize,
			CheckpointPath:       checkpointDir,
			ExcludeGlobs:         excludeGlobs,
			Concurrency: ingestion.ConcurrencyConfig{
				ParseWorkers: 4,
				EmbedWorkers: embedWorkers,
			},
		},
	}

	// Set embedding environment based on provider
	switch embeddingProvider {
	case "ollama":
		os.Setenv("OLLAMA_BASE_URL", cfg.Embedding.BaseURL)
		os.Setenv("OLLAMA_EMBED_MODEL", cfg.Embedding.Model)
	case "openai":
		os.Setenv("OPENAI_API_BASE", cfg.Embedding.BaseURL)
		os.Setenv("OPENAI_EMBED_MODEL", cfg.Embedding.Model)
		if cfg.Embedding.APIKey != "" {
			os.Setenv("OPENAI_API_KEY", cfg.Embedding.APIKey)
		}
	}

	pipeline, err := ingestion.NewLocalPipeline(config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: create pipeline: %v\n", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	logger.Info("indexing.starting",
		"mode", "local",
		"project_id", cfg.ProjectID,
		"repo_path", repoPath,
		"embedding_provider", embeddingProvider,
	)

	result, err := pipeline.Run(ctx)
	if err != nil {
		ue := cieerrors.NewIngestionError("Indexing failed", err.Error(), "re-run with --force-full-reindex, or check the embedding provider is reachable", err)
		fmt.Fprint(os.Stderr, ue.Format(false))
		os.Exit(ue.ExitCode)
	}

	printResult(result)
}

// runIncrementalIndex executes the git-diff fast path: instead of walking
// the whole repository, it diffs the last commit this project indexed
// against until (HEAD by default) and only parses/embeds the
// added/modified files, retracting entities for deleted and renamed-away
// files directly. It falls back to runLocalIndex's full scan whenever the
// fast path's precondition doesn't hold (not a git repository, or no prior
// indexed commit to diff against).
func runIncrementalIndex(ctx context.Context, logger *slog.Logger, cfg *Config, repoPath, embeddingProvider string, embedWorkers int, until string) {
	checkpointDir := filepath.Join(ConfigDir(repoPath), "checkpoints")
	if err := os.MkdirAll(checkpointDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create checkpoint directory: %v\n", err)
		os.Exit(1)
	}
	checkpointMgr := ingestion.NewCheckpointManager(checkpointDir)

	detector := ingestion.NewDeltaDetector(repoPath, logger)
	if !detector.IsGitRepository() {
		logger.Info("index.incremental.fallback", "reason", "not_a_git_repository")
		runLocalIndex(ctx, logger, cfg, repoPath, embeddingProvider, embedWorkers)
		return
	}

	headSHA := until
	if headSHA == "" {
		resolved, err := detector.GetHeadSHA()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: resolve HEAD: %v\n", err)
			os.Exit(1)
		}
		headSHA = resolved
	}

	checkpoint, err := checkpointMgr.LoadCheckpoint(cfg.ProjectID)
	if err != nil {
		logger.Warn("index.incremental.checkpoint.load.error", "err", err)
	}
	var baseSHA string
	if checkpoint != nil {
		baseSHA = checkpoint.LastIndexedSHA
	}

	if baseSHA == "" {
		logger.Info("index.incremental.fallback", "reason", "no_prior_indexed_commit")
		runLocalIndex(ctx, logger, cfg, repoPath, embeddingProvider, embedWorkers)
		stampIndexedSHA(checkpointMgr, cfg.ProjectID, headSHA, logger)
		return
	}
	if baseSHA == headSHA {
		logger.Info("index.incremental.noop", "sha", headSHA)
		return
	}

	delta, err := detector.DetectDelta(baseSHA, headSHA)
	if err != nil {
		logger.Warn("index.incremental.delta.error", "err", err, "fallback", "full_scan")
		runLocalIndex(ctx, logger, cfg, repoPath, embeddingProvider, embedWorkers)
		stampIndexedSHA(checkpointMgr, cfg.ProjectID, headSHA, logger)
		return
	}

	defaults := ingestion.DefaultConfig()
	excludeGlobs := append(defaults.ExcludeGlobs, cfg.Indexing.Exclude...)
	delta = ingestion.FilterDelta(delta, excludeGlobs, cfg.Indexing.MaxFileSize, repoPath)

	if !delta.HasChanges() {
		logger.Info("index.incremental.no_changes", "base", baseSHA, "head", headSHA)
		stampIndexedSHA(checkpointMgr, cfg.ProjectID, headSHA, logger)
		return
	}

	stats := delta.GetStats()
	logger.Info("index.incremental.delta",
		"base", baseSHA, "head", headSHA,
		"added", stats.AddedCount, "modified", stats.ModifiedCount, "deleted", stats.DeletedCount, "renamed", stats.RenamedCount,
	)

	switch embeddingProvider {
	case "ollama":
		os.Setenv("OLLAMA_BASE_URL", cfg.Embedding.BaseURL)
		os.Setenv("OLLAMA_EMBED_MODEL", cfg.Embedding.Model)
	case "openai":
		os.Setenv("OPENAI_API_BASE", cfg.Embedding.BaseURL)
		os.Setenv("OPENAI_EMBED_MODEL", cfg.Embedding.Model)
		if cfg.Embedding.APIKey != "" {
			os.Setenv("OPENAI_API_KEY", cfg.Embedding.APIKey)
		}
	}

	onlyFiles := append(append([]string{}, delta.Added...), delta.Modified...)
	config := ingestion.Config{
		ProjectID: cfg.ProjectID,
		RepoSource: ingestion.RepoSource{
			Type:  "local_path",
			Value: repoPath,
		},
		IngestionConfig: ingestion.IngestionConfig{
			ParserMode:           ingestion.ParserMode(cfg.Indexing.ParserMode),
			EmbeddingProvider:    embeddingProvider,
			BatchTargetMutations: cfg.Indexing.BatchTarget,
			MaxFileSizeBytes:     cfg.Indexing.MaxFileSize,
			CheckpointPath:       checkpointDir,
			ExcludeGlobs:         excludeGlobs,
			OnlyFiles:            onlyFiles,
			Concurrency: ingestion.ConcurrencyConfig{
				ParseWorkers: 4,
				EmbedWorkers: embedWorkers,
			},
		},
	}

	pipeline, err := ingestion.NewLocalPipeline(config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: create pipeline: %v\n", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	deletedPaths := append(append([]string{}, delta.Deleted...), renamedOldPaths(delta)...)
	if len(deletedPaths) > 0 {
		if err := pipeline.RemoveDeletedFiles(ctx, deletedPaths); err != nil {
			logger.Warn("index.incremental.delete.error", "err", err)
		}
	}

	if len(onlyFiles) > 0 {
		logger.Info("indexing.starting",
			"mode", "incremental",
			"project_id", cfg.ProjectID,
			"repo_path", repoPath,
			"embedding_provider", embeddingProvider,
			"file_count", len(onlyFiles),
		)
		result, err := pipeline.Run(ctx)
		if err != nil {
			ue := cieerrors.NewIngestionError("Incremental indexing failed", err.Error(), "re-run without --incremental to force a full scan", err)
			fmt.Fprint(os.Stderr, ue.Format(false))
			os.Exit(ue.ExitCode)
		}
		printResult(result)
	}

	stampIndexedSHA(checkpointMgr, cfg.ProjectID, headSHA, logger)
}

// renamedOldPaths returns the old side of every rename in delta, which
// RemoveDeletedFiles treats the same as an outright deletion since the
// content now lives at a different path.
func renamedOldPaths(delta *ingestion.GitDelta) []string {
	paths := make([]string, 0, len(delta.Renamed))
	for oldPath := range delta.Renamed {
		paths = append(paths, oldPath)
	}
	return paths
}

// stampIndexedSHA records sha as the project's last-indexed commit so the
// next incremental run knows where to start its git diff from.
func stampIndexedSHA(mgr *ingestion.CheckpointManager, projectID, sha string, logger *slog.Logger) {
	if sha == "" {
		return
	}
	checkpoint, err := mgr.LoadCheckpoint(projectID)
	if err != nil || checkpoint == nil {
		checkpoint = &ingestion.Checkpoint{ProjectID: projectID}
	}
	checkpoint.LastIndexedSHA = sha
	if err := mgr.SaveCheckpoint(checkpoint); err != nil {
		logger.Warn("index.incremental.checkpoint.stamp.error", "err", err)
	}
}

// mapEmbeddingProvider maps user-facing provider names to internal identifiers.
//
// Maps:
//   - "ollama" → "ollama"
//   - "nomic" → "nomic"
//   - "mock" → "mock"
//   - unknown → "mock" (fallback for testing)
//
// Returns the internal provider identifier string.
func mapEmbeddingProvider(provider string) string {
	switch provider {
	case "ollama":
		return "ollama"
	case "nomic":
		return "nomic"
	case "openai":
		return "openai"
	case "mock":
		return "mock"
	default:
		return "mock"
	}
}

// printResult prints the indexing result summary to stdout.
//
// Displays statistics about files processed, functions extracted, embeddings generated,
// and overall execution time. Used to provide user feedback after indexing completes.
func printResult(result *ingestion.IngestionResult) {
	fmt.Println()
	fmt.Println("=== Indexing Complete ===")
	fmt.Printf("Project ID: %s\n", result.ProjectID)
	fmt.Printf("Files Processed: %d\n", result.FilesProcessed)
	fmt.Printf("Functions Extracted: %d\n", result.FunctionsExtracted)
	fmt.Printf("Types Extracted: %d\n", result.TypesExtracted)
	fmt.Printf("Symbols Extracted: %d\n", result.SymbolsExtracted)
	fmt.Printf("Defines Edges: %d\n", result.DefinesEdges)
	fmt.Printf("Calls Edges: %d\n", result.CallsEdges)
	fmt.Printf("Entities Written: %d\n", result.EntitiesSent)

	if result.ParseErrors > 0 {
		fmt.Printf("Parse Errors: %d (%.2f%%)\n", result.ParseErrors, result.ParseErrorRate)
	}
	if result.EmbeddingErrors > 0 {
		fmt.Printf("Embedding Errors: %d\n", result.EmbeddingErrors)
	}
	if result.CodeTextTruncated > 0 {
		fmt.Printf("CodeText Truncated: %d\n", result.CodeTextTruncated)
	}

	if len(result.TopSkipReasons) > 0 {
		fmt.Println("\nSkipped Files:")
		for reason, count := range result.TopSkipReasons {
			fmt.Printf("  %s: %d\n", reason, count)
		}
	}

	fmt.Println("\nTimings:")
	fmt.Printf("  Parse: %s\n", result.ParseDuration)
	fmt.Printf("  Embed: %s\n", result.EmbedDuration)
	fmt.Printf("  Write: %s\n", result.WriteDuration)
	fmt.Printf("  Total: %s\n", result.TotalDuration)
	fmt.Println()

	// Show data location
	homeDir, _ := os.UserHomeDir()
	fmt.Printf("Data stored in: %s\n", filepath.Join(homeDir, ".cie", "data", result.ProjectID))
}
