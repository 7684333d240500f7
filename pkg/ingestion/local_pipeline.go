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

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kraklabs/cie/pkg/storage"
)

// LocalPipeline orchestrates ingestion to a local CozoDB backend.
// This is the standalone/open-source version that doesn't require Primary Hub.
type LocalPipeline struct {
	config        Config
	logger        *slog.Logger
	repoLoader    *RepoLoader
	parser        CodeParser
	embeddingGen  *EmbeddingGenerator
	backend       *storage.EmbeddedBackend
	checkpointMgr *CheckpointManager
	datalogBuild  *DatalogBuilder
}

// IngestionResult summarizes the ingestion run.
type IngestionResult struct {
	// ProjectID is the unique identifier for the indexed project.
	ProjectID string

	// RunID is the unique identifier for this ingestion run (UUID).
	RunID string

	// FilesProcessed is the total number of source files successfully parsed.
	FilesProcessed int

	// FunctionsExtracted is the total number of functions/methods discovered.
	FunctionsExtracted int

	// TypesExtracted is the total number of types/classes/interfaces discovered.
	TypesExtracted int

	// SymbolsExtracted is the total number of module docs, constants, and
	// config blocks discovered.
	SymbolsExtracted int

	// DefinesEdges is the number of file-to-function relationships created.
	DefinesEdges int

	// CallsEdges is the number of function-to-function call relationships created.
	CallsEdges int

	// EntitiesSent is the total number of entities written to storage.
	EntitiesSent int

	// EntitiesRetried is the number of entities that required retry due to transient failures.
	EntitiesRetried int

	// LastCommittedIndex is the replication log index of the last committed write.
	LastCommittedIndex uint64

	// ParseErrors is the number of files that failed to parse.
	ParseErrors int

	// ParseErrorRate is the percentage of files that failed (0-100).
	ParseErrorRate float64

	// EmbeddingErrors is the number of functions/types that failed embedding generation.
	EmbeddingErrors int

	// CodeTextTruncated is the number of functions whose code was truncated due to size limits.
	CodeTextTruncated int

	// TopSkipReasons maps skip reasons to counts (e.g., "too_large": 5, "binary": 2).
	TopSkipReasons map[string]int

	// ParseDuration is the time spent parsing source files.
	ParseDuration time.Duration

	// EmbedDuration is the time spent generating embeddings.
	EmbedDuration time.Duration

	// WriteDuration is the time spent writing entities to storage.
	WriteDuration time.Duration

	// TotalDuration is the total time for the entire ingestion run.
	TotalDuration time.Duration
}

// parseFilesResult holds the aggregated results from parallel parsing.
type parseFilesResult struct {
	files           []FileEntity
	functions       []FunctionEntity
	types           []TypeEntity
	defines         []DefinesEdge
	definesTypes    []DefinesTypeEdge
	calls           []CallsEdge
	imports         []ImportEntity
	unresolvedCalls []UnresolvedCall
	symbols         []SymbolEntity
	packageNames    map[string]string
}

// NewLocalPipeline creates a new local ingestion pipeline.
func NewLocalPipeline(config Config, logger *slog.Logger) (*LocalPipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Create components
	repoLoader := NewRepoLoader(logger)

	// Create parser based on mode
	var parser CodeParser
	parserMode := config.IngestionConfig.ParserMode
	if parserMode == "" {
		parserMode = ParserModeAuto
	}

	switch parserMode {
	case ParserModeTreeSitter:
		logger.Info("parser.mode", "mode", "treesitter")
		parser = NewTreeSitterParser(logger)
	case ParserModeSimplified:
		logger.Info("parser.mode", "mode", "simplified")
		parser = NewParser(logger)
	case ParserModeAuto:
		tsParser := NewTreeSitterParser(logger)
		if tsParser != nil {
			logger.Info("parser.mode", "mode", "treesitter", "selected_by", "auto")
			parser = tsParser
		} else {
			logger.Info("parser.mode", "mode", "simplified", "selected_by", "auto", "reason", "treesitter_unavailable")
			parser = NewParser(logger)
		}
	default:
		logger.Warn("parser.mode.unknown", "mode", parserMode, "fallback", "treesitter")
		parser = NewTreeSitterParser(logger)
	}

	// Set max CodeText size from config
	if config.IngestionConfig.MaxCodeTextBytes > 0 {
		parser.SetMaxCodeTextSize(config.IngestionConfig.MaxCodeTextBytes)
	}

	// Create embedding provider
	embeddingProvider, err := CreateEmbeddingProvider(config.IngestionConfig.EmbeddingProvider, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	embeddingGen := NewEmbeddingGenerator(embeddingProvider, config.IngestionConfig.Concurrency.EmbedWorkers, logger)

	// Create local backend
	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		DataDir:   config.IngestionConfig.LocalDataDir,
		Engine:    config.IngestionConfig.LocalEngine,
		ProjectID: config.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("create local backend: %w", err)
	}

	// Ensure schema exists
	if err := backend.EnsureSchema(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	// Create HNSW indexes for semantic search
	if err := backend.CreateHNSWIndex(0); err != nil {
		logger.Warn("hnsw.index.create.warning", "err", err)
		// Don't fail - HNSW is optional for basic functionality
	}

	// Checkpoint manager
	checkpointMgr := NewCheckpointManager(config.IngestionConfig.CheckpointPath)

	return &LocalPipeline{
		config:        config,
		logger:        logger,
		repoLoader:    repoLoader,
		parser:        parser,
		embeddingGen:  embeddingGen,
		backend:       backend,
		checkpointMgr: checkpointMgr,
		datalogBuild:  NewDatalogBuilder(),
	}, nil
}

// Close cleans up resources.
func (p *LocalPipeline) Close() error {
	var lastErr error
	if p.backend != nil {
		if err := p.backend.Close(); err != nil {
			lastErr = err
		}
	}
	if p.repoLoader != nil {
		if err := p.repoLoader.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// generateRunID generates a deterministic run ID for log correlation.
func (p *LocalPipeline) generateRunID(startTime time.Time) string {
	roundedTime := startTime.Truncate(time.Second)
	baseID := fmt.Sprintf("run-%s-%d", p.config.ProjectID, roundedTime.Unix())
	hash := sha256.Sum256([]byte(baseID))
	return hex.EncodeToString(hash[:16])
}

// Run executes the full local ingestion pipeline.
func (p *LocalPipeline) Run(ctx context.Context) (*IngestionResult, error) {
	startTime := time.Now()
	runID := p.generateRunID(startTime)
	p.logger.Info("local.ingestion.start", "project_id", p.config.ProjectID, "run_id", runID)

	// Step 1: Load repository
	p.logger.Info("local.ingestion.step.load_repo", "run_id", runID)
	loadResult, err := p.repoLoader.LoadRepository(
		p.config.RepoSource,
		p.config.IngestionConfig.ExcludeGlobs,
		p.config.IngestionConfig.MaxFileSizeBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("load repository: %w", err)
	}

	// Sort files by path for deterministic processing
	sort.Slice(loadResult.Files, func(i, j int) bool {
		return loadResult.Files[i].Path < loadResult.Files[j].Path
	})

	// Narrow to the delta fast path's file set, if the caller supplied one:
	// an incremental run only wants the added/modified files a git diff
	// reported, not a full tree walk's worth of unrelated files.
	if len(p.config.IngestionConfig.OnlyFiles) > 0 {
		only := make(map[string]bool, len(p.config.IngestionConfig.OnlyFiles))
		for _, f := range p.config.IngestionConfig.OnlyFiles {
			only[filepath.ToSlash(f)] = true
		}
		narrowed := loadResult.Files[:0]
		for _, f := range loadResult.Files {
			if only[filepath.ToSlash(f.Path)] {
				narrowed = append(narrowed, f)
			}
		}
		loadResult.Files = narrowed
	}

	// Consult the checkpoint left by a prior run (completed, cancelled, or
	// crashed) before parsing anything: files whose content hash still
	// matches what the checkpoint recorded as done are dropped from this
	// run's file list entirely, so a resume never re-parses or re-embeds
	// unchanged files.
	checkpoint, err := p.checkpointMgr.LoadCheckpoint(p.config.ProjectID)
	if err != nil {
		p.logger.Warn("local.ingestion.checkpoint.load.error", "err", err)
	}
	if checkpoint == nil {
		checkpoint = &Checkpoint{
			ProjectID:    p.config.ProjectID,
			FileHashes:   make(map[string]string),
			EntitiesSent: make(map[string]int),
			StartTime:    startTime.UTC().Format(time.RFC3339),
		}
	} else {
		p.logger.Info("local.ingestion.checkpoint.resumed",
			"run_id", runID,
			"files_already_done", len(checkpoint.FileHashes),
			"last_processed_file", checkpoint.LastProcessedFile,
		)
	}

	skipped := 0
	loadResult.Files, skipped = p.skipCheckpointedFiles(loadResult.Files, checkpoint)
	if skipped > 0 {
		p.logger.Info("local.ingestion.checkpoint.skip",
			"run_id", runID, "files_skipped", skipped, "files_remaining", len(loadResult.Files),
		)
	}

	// Step 2: Parse files and extract entities
	p.logger.Info("local.ingestion.step.parse_files", "run_id", runID, "file_count", len(loadResult.Files))
	parseStart := time.Now()

	parseWorkers := p.config.IngestionConfig.Concurrency.ParseWorkers
	if parseWorkers <= 0 {
		parseWorkers = 4
	}

	parseResult, parseErrors := p.parseFilesParallel(ctx, loadResult.Files, parseWorkers)

	parseDuration := time.Since(parseStart)
	codeTextTruncated := p.parser.GetTruncatedCount()

	allFiles := parseResult.files
	allFunctions := parseResult.functions
	allTypes := parseResult.types
	allDefines := parseResult.defines
	allDefinesTypes := parseResult.definesTypes
	allCalls := parseResult.calls
	allImports := parseResult.imports
	allUnresolvedCalls := parseResult.unresolvedCalls
	allSymbols := parseResult.symbols
	packageNames := parseResult.packageNames

	// Step 2b: Resolve cross-package calls
	if len(allUnresolvedCalls) > 0 {
		resolver := NewCallResolver()
		resolver.BuildIndex(allFiles, allFunctions, allImports, packageNames)
		resolvedCalls := resolver.ResolveCalls(allUnresolvedCalls)
		allCalls = append(allCalls, resolvedCalls...)

		p.logger.Info("local.ingestion.cross_package_calls.resolved",
			"local_calls", len(allCalls)-len(resolvedCalls),
			"cross_package_resolved", len(resolvedCalls),
		)
	}

	parseErrorRate := 0.0
	if len(loadResult.Files) > 0 {
		parseErrorRate = float64(parseErrors) / float64(len(loadResult.Files)) * 100.0
	}

	p.logger.Info("local.ingestion.parse.complete",
		"files", len(allFiles),
		"functions", len(allFunctions),
		"types", len(allTypes),
		"defines", len(allDefines),
		"calls", len(allCalls),
		"parse_errors", parseErrors,
		"code_text_truncated", codeTextTruncated,
		"duration_ms", parseDuration.Milliseconds(),
	)

	// Step 3: Generate embeddings for functions
	p.logger.Info("local.ingestion.step.generate_embeddings", "run_id", runID, "function_count", len(allFunctions))
	embedStart := time.Now()

	embedResult, err := p.embeddingGen.EmbedFunctions(ctx, allFunctions)
	if err != nil {
		return nil, fmt.Errorf("generate embeddings: %w", err)
	}
	allFunctions = embedResult.Functions
	embeddingErrors := embedResult.ErrorCount

	embedDuration := time.Since(embedStart)
	p.logger.Info("local.ingestion.embeddings.functions.complete",
		"count", len(allFunctions),
		"errors", embeddingErrors,
		"duration_ms", embedDuration.Milliseconds(),
	)

	// Step 3b: Generate embeddings for types
	if len(allTypes) > 0 {
		p.logger.Info("local.ingestion.step.generate_type_embeddings", "run_id", runID, "type_count", len(allTypes))
		typeEmbedStart := time.Now()

		typeEmbedResult, err := p.embeddingGen.EmbedTypes(ctx, allTypes)
		if err != nil {
			return nil, fmt.Errorf("generate type embeddings: %w", err)
		}
		allTypes = typeEmbedResult.Types
		embeddingErrors += typeEmbedResult.ErrorCount

		typeEmbedDuration := time.Since(typeEmbedStart)
		p.logger.Info("local.ingestion.embeddings.types.complete",
			"count", len(allTypes),
			"errors", typeEmbedResult.ErrorCount,
			"duration_ms", typeEmbedDuration.Milliseconds(),
		)
		embedDuration += typeEmbedDuration
	}

	// Step 3c: Generate embeddings for symbols (module docs, constants, config)
	if len(allSymbols) > 0 {
		p.logger.Info("local.ingestion.step.generate_symbol_embeddings", "run_id", runID, "symbol_count", len(allSymbols))
		symbolEmbedStart := time.Now()

		symbolEmbedResult, err := p.embeddingGen.EmbedSymbols(ctx, allSymbols)
		if err != nil {
			return nil, fmt.Errorf("generate symbol embeddings: %w", err)
		}
		allSymbols = symbolEmbedResult.Symbols
		embeddingErrors += symbolEmbedResult.ErrorCount

		symbolEmbedDuration := time.Since(symbolEmbedStart)
		p.logger.Info("local.ingestion.embeddings.symbols.complete",
			"count", len(allSymbols),
			"errors", symbolEmbedResult.ErrorCount,
			"duration_ms", symbolEmbedDuration.Milliseconds(),
		)
		embedDuration += symbolEmbedDuration
	}

	// Step 4: Validate entities
	p.logger.Info("local.ingestion.step.validate_entities")
	if err := ValidateEntities(allFiles, allFunctions, allDefines, allCalls); err != nil {
		return nil, fmt.Errorf("entity validation failed: %w", err)
	}

	// Step 5: Write to local CozoDB
	p.logger.Info("local.ingestion.step.write_local", "run_id", runID,
		"files", len(allFiles),
		"functions", len(allFunctions),
		"types", len(allTypes),
		"defines", len(allDefines),
		"calls", len(allCalls),
		"imports", len(allImports),
		"symbols", len(allSymbols),
	)
	writeStart := time.Now()

	// Generate Datalog mutations
	mutations := p.datalogBuild.BuildMutationsWithTypes(
		allFiles,
		allFunctions,
		allTypes,
		allDefines,
		allDefinesTypes,
		allCalls,
		allImports,
		allSymbols,
	)

	// Split into batches and checkpoint after each one completes, so a
	// crash mid-write is recorded as partial progress instead of silently
	// losing the whole run.
	batchTarget := p.config.IngestionConfig.BatchTargetMutations
	if batchTarget <= 0 {
		batchTarget = 2000
	}
	batcher := NewBatcher(batchTarget, 2*1024*1024)
	batches, err := batcher.Batch(mutations)
	if err != nil {
		return nil, fmt.Errorf("batch mutations: %w", err)
	}

	checkpoint.Batches = batches
	checkpoint.BatchesSent = 0
	for i, batch := range batches {
		if err := p.backend.Execute(ctx, batch); err != nil {
			return nil, fmt.Errorf("write batch %d/%d to local db: %w", i+1, len(batches), err)
		}
		checkpoint.BatchesSent = i + 1
		checkpoint.LastUpdateTime = time.Now().UTC().Format(time.RFC3339)
		if err := p.checkpointMgr.SaveCheckpoint(checkpoint); err != nil {
			p.logger.Warn("local.ingestion.checkpoint.save.error", "run_id", runID, "err", err)
		}
	}

	// The whole batch set for this run landed successfully: stamp every
	// processed file's content hash so a future run's skip filter above
	// leaves it alone until it changes again.
	for _, f := range allFiles {
		checkpoint.FileHashes[f.Path] = f.Hash
	}
	checkpoint.FilesProcessed += len(allFiles)
	checkpoint.FunctionsExtracted += len(allFunctions)
	if len(allFiles) > 0 {
		checkpoint.LastProcessedFile = allFiles[len(allFiles)-1].Path
	}
	checkpoint.LastUpdateTime = time.Now().UTC().Format(time.RFC3339)
	if err := p.checkpointMgr.SaveCheckpoint(checkpoint); err != nil {
		p.logger.Warn("local.ingestion.checkpoint.save.error", "run_id", runID, "err", err)
	}

	writeDuration := time.Since(writeStart)
	totalDuration := time.Since(startTime)

	entitiesSent := len(allFiles) + len(allFunctions) + len(allTypes) +
		len(allDefines) + len(allDefinesTypes) + len(allCalls) + len(allImports) + len(allSymbols)

	p.logger.Info("local.ingestion.write.complete",
		"entities_written", entitiesSent,
		"duration_ms", writeDuration.Milliseconds(),
	)

	// Build result
	result := &IngestionResult{
		ProjectID:          p.config.ProjectID,
		RunID:              runID,
		FilesProcessed:     len(allFiles),
		FunctionsExtracted: len(allFunctions),
		TypesExtracted:     len(allTypes),
		SymbolsExtracted:   len(allSymbols),
		DefinesEdges:       len(allDefines),
		CallsEdges:         len(allCalls),
		EntitiesSent:       entitiesSent,
		EntitiesRetried:    0, // No retries in local mode
		LastCommittedIndex: 0, // No replication log in local mode
		ParseErrors:        parseErrors,
		ParseErrorRate:     parseErrorRate,
		EmbeddingErrors:    embeddingErrors,
		CodeTextTruncated:  codeTextTruncated,
		TopSkipReasons:     loadResult.SkipReasons,
		ParseDuration:      parseDuration,
		EmbedDuration:      embedDuration,
		WriteDuration:      writeDuration,
		TotalDuration:      totalDuration,
	}

	p.logger.Info("local.ingestion.complete",
		"project_id", p.config.ProjectID,
		"run_id", runID,
		"files", result.FilesProcessed,
		"functions", result.FunctionsExtracted,
		"types", result.TypesExtracted,
		"entities_written", result.EntitiesSent,
		"parse_errors", result.ParseErrors,
		"embedding_errors", result.EmbeddingErrors,
		"total_duration_ms", result.TotalDuration.Milliseconds(),
	)

	// The run reached the end without error: every file it touched is
	// already reflected in FileHashes above, so the checkpoint has no
	// further use and would otherwise make the next run think a crash
	// happened here.
	if err := p.checkpointMgr.ClearCheckpoint(p.config.ProjectID); err != nil {
		p.logger.Warn("local.ingestion.checkpoint.clear.error", "run_id", runID, "err", err)
	}

	return result, nil
}

// skipCheckpointedFiles drops files from the candidate set whose content
// hash still matches what an earlier run's checkpoint recorded as done,
// so a resumed run never re-parses or re-embeds unchanged work. Files it
// cannot read are left in the candidate set (parsing will surface the
// error in the normal way).
func (p *LocalPipeline) skipCheckpointedFiles(files []FileInfo, checkpoint *Checkpoint) ([]FileInfo, int) {
	if len(checkpoint.FileHashes) == 0 {
		return files, 0
	}

	pending := make([]FileInfo, 0, len(files))
	skipped := 0
	for _, f := range files {
		doneHash, ok := checkpoint.FileHashes[f.Path]
		if !ok {
			pending = append(pending, f)
			continue
		}
		content, err := os.ReadFile(f.FullPath)
		if err != nil {
			pending = append(pending, f)
			continue
		}
		if hashContent(content) == doneHash {
			skipped++
			continue
		}
		pending = append(pending, f)
	}
	return pending, skipped
}

// RemoveDeletedFiles retracts every entity associated with paths from
// storage: the file row itself plus any function/type/import rows it
// defines, their code-text and embedding siblings, and the calls/defines
// edges that reference them. It's the cleanup half of the incremental
// delta fast path - DetectDelta's Deleted list (and the old side of a
// rename) never gets re-parsed, so nothing else would retract these rows.
func (p *LocalPipeline) RemoveDeletedFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	var deletions DeletionSet
	for _, path := range paths {
		norm := filepath.ToSlash(path)
		fileID := GenerateFileID(norm)
		deletions.FileIDs = append(deletions.FileIDs, fileID)

		funcIDs, err := p.queryIDsByPath(ctx, "cie_function", norm)
		if err != nil {
			return fmt.Errorf("query functions for deleted file %s: %w", norm, err)
		}
		typeIDs, err := p.queryIDsByPath(ctx, "cie_type", norm)
		if err != nil {
			return fmt.Errorf("query types for deleted file %s: %w", norm, err)
		}
		importIDs, err := p.queryIDsByPath(ctx, "cie_import", norm)
		if err != nil {
			return fmt.Errorf("query imports for deleted file %s: %w", norm, err)
		}
		symbolIDs, err := p.queryIDsByPath(ctx, "cie_symbol", norm)
		if err != nil {
			return fmt.Errorf("query symbols for deleted file %s: %w", norm, err)
		}
		deletions.FunctionIDs = append(deletions.FunctionIDs, funcIDs...)
		deletions.TypeIDs = append(deletions.TypeIDs, typeIDs...)
		deletions.ImportIDs = append(deletions.ImportIDs, importIDs...)
		deletions.SymbolIDs = append(deletions.SymbolIDs, symbolIDs...)

		for _, id := range funcIDs {
			deletions.DefinesEdgeIDs = append(deletions.DefinesEdgeIDs, GenerateDefinesID(fileID, id))
		}
		for _, id := range typeIDs {
			deletions.DefinesTypeEdgeIDs = append(deletions.DefinesTypeEdgeIDs, GenerateDefinesID(fileID, id))
		}

		callIDs, err := p.queryCallEdgeIDs(ctx, funcIDs)
		if err != nil {
			return fmt.Errorf("query call edges for deleted file %s: %w", norm, err)
		}
		deletions.CallsEdgeIDs = append(deletions.CallsEdgeIDs, callIDs...)
	}

	script := p.datalogBuild.BuildDeletions(deletions)
	if script == "" {
		return nil
	}
	if err := p.backend.Execute(ctx, script); err != nil {
		return fmt.Errorf("execute deletions: %w", err)
	}

	p.logger.Info("local.ingestion.delete.complete",
		"files", len(deletions.FileIDs),
		"functions", len(deletions.FunctionIDs),
		"types", len(deletions.TypeIDs),
	)
	return nil
}

// queryIDsByPath returns the ids of every row in table whose file_path
// column equals path.
func (p *LocalPipeline) queryIDsByPath(ctx context.Context, table, path string) ([]string, error) {
	script := fmt.Sprintf(`?[id] := *%s { id, file_path }, file_path == %q`, table, path)
	result, err := p.backend.Query(ctx, script)
	if err != nil {
		return nil, err
	}
	return idColumn(result), nil
}

// queryCallEdgeIDs returns the ids of cie_calls rows where either endpoint
// is one of functionIDs, so deleting a function also drops its call edges.
func (p *LocalPipeline) queryCallEdgeIDs(ctx context.Context, functionIDs []string) ([]string, error) {
	seen := make(map[string]bool)
	for _, fid := range functionIDs {
		for _, col := range []string{"caller_id", "callee_id"} {
			script := fmt.Sprintf(`?[id] := *cie_calls { id, %s }, %s == %q`, col, col, fid)
			result, err := p.backend.Query(ctx, script)
			if err != nil {
				return nil, err
			}
			for _, id := range idColumn(result) {
				seen[id] = true
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids, nil
}

// idColumn pulls the first column of a single-column query result as strings.
func idColumn(result *storage.QueryResult) []string {
	ids := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// parseFilesParallel parses files in parallel using a worker pool.
func (p *LocalPipeline) parseFilesParallel(ctx context.Context, files []FileInfo, numWorkers int) (*parseFilesResult, int) {
	if len(files) == 0 {
		return &parseFilesResult{packageNames: make(map[string]string)}, 0
	}

	// For small file sets, use sequential parsing
	if len(files) < 10 || numWorkers <= 1 {
		return p.parseFilesSequential(ctx, files)
	}

	jobs := make(chan int, len(files))

	type fileResult struct {
		index       int
		result      *ParseResult
		symbols     []SymbolEntity
		err         error
		packageName string
		filePath    string
	}
	resultsChan := make(chan fileResult, len(files))

	var errorCount int32

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				fileInfo := files[i]
				pr, err := p.parser.ParseFile(fileInfo)
				if err != nil {
					atomic.AddInt32(&errorCount, 1)
					p.logger.Warn("local.ingestion.parse_file.error", "path", fileInfo.Path, "err", err)
					resultsChan <- fileResult{index: i, err: err, filePath: fileInfo.Path}
					continue
				}

				symbols, err := ExtractSymbols(fileInfo)
				if err != nil {
					p.logger.Warn("local.ingestion.extract_symbols.error", "path", fileInfo.Path, "err", err)
				}

				resultsChan <- fileResult{
					index:       i,
					result:      pr,
					symbols:     symbols,
					packageName: pr.PackageName,
					filePath:    fileInfo.Path,
				}
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	parseResults := make([]*ParseResult, len(files))
	symbolResults := make([][]SymbolEntity, len(files))
	packageNames := make(map[string]string)
	var mu sync.Mutex

	for fr := range resultsChan {
		if fr.err != nil {
			continue
		}
		parseResults[fr.index] = fr.result
		symbolResults[fr.index] = fr.symbols
		if fr.packageName != "" {
			mu.Lock()
			packageNames[fr.filePath] = fr.packageName
			mu.Unlock()
		}
	}

	result := &parseFilesResult{
		packageNames: packageNames,
	}
	for _, pr := range parseResults {
		if pr == nil {
			continue
		}
		result.files = append(result.files, pr.File)
		result.functions = append(result.functions, pr.Functions...)
		result.types = append(result.types, pr.Types...)
		result.defines = append(result.defines, pr.Defines...)
		result.definesTypes = append(result.definesTypes, pr.DefinesTypes...)
		result.calls = append(result.calls, pr.Calls...)
		result.imports = append(result.imports, pr.Imports...)
		result.unresolvedCalls = append(result.unresolvedCalls, pr.UnresolvedCalls...)
	}
	for _, symbols := range symbolResults {
		result.symbols = append(result.symbols, symbols...)
	}

	return result, int(errorCount)
}

// parseFilesSequential parses files sequentially.
func (p *LocalPipeline) parseFilesSequential(ctx context.Context, files []FileInfo) (*parseFilesResult, int) {
	result := &parseFilesResult{
		packageNames: make(map[string]string),
	}
	errorCount := 0

	for _, fileInfo := range files {
		select {
		case <-ctx.Done():
			return result, errorCount
		default:
		}

		pr, err := p.parser.ParseFile(fileInfo)
		if err != nil {
			errorCount++
			p.logger.Warn("local.ingestion.parse_file.error", "path", fileInfo.Path, "err", err)
			continue
		}

		if symbols, err := ExtractSymbols(fileInfo); err != nil {
			p.logger.Warn("local.ingestion.extract_symbols.error", "path", fileInfo.Path, "err", err)
		} else {
			result.symbols = append(result.symbols, symbols...)
		}

		result.files = append(result.files, pr.File)
		result.functions = append(result.functions, pr.Functions...)
		result.types = append(result.types, pr.Types...)
		result.defines = append(result.defines, pr.Defines...)
		result.definesTypes = append(result.definesTypes, pr.DefinesTypes...)
		result.calls = append(result.calls, pr.Calls...)
		result.imports = append(result.imports, pr.Imports...)
		result.unresolvedCalls = append(result.unresolvedCalls, pr.UnresolvedCalls...)
		if pr.PackageName != "" {
			result.packageNames[fileInfo.Path] = pr.PackageName
		}
	}

	return result, errorCount
}

// Backend returns the underlying storage backend.
func (p *LocalPipeline) Backend() *storage.EmbeddedBackend {
	return p.backend
}
