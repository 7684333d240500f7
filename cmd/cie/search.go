// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie/internal/errors"
	"github.com/kraklabs/cie/internal/rpcserver"
	"github.com/kraklabs/cie/pkg/storage"
	"github.com/kraklabs/cie/pkg/tools"
)

// runSearch executes the 'search' CLI command. If a daemon is already
// running for this workspace, the query is proxied to it over the Unix
// socket; otherwise the embedded backend is opened directly for this one
// call, the same way `cie status` does.
func runSearch(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	mode := fs.String("mode", "auto", "Search mode: auto, semantic, or regex")
	limit := fs.Int("limit", 10, "Maximum number of results")
	threshold := fs.Float64("threshold", 0, "Minimum similarity threshold for semantic results (0-1)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie search QUERY [options]

Description:
  Search the current project. Auto mode routes single-token/pattern-like
  queries to the regex path and natural-language queries to the semantic
  (embedding) path, falling back to regex if semantic search is unavailable.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}
	query := fs.Arg(0)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	sockPath, err := sockPathFor(cfg.ProjectID)
	if err == nil {
		if client, dialErr := rpcserver.Dial(sockPath, 300*time.Millisecond); dialErr == nil {
			defer client.Close()
			resp, callErr := client.Call("search-"+query, "search", map[string]any{
				"query": query, "mode": *mode, "limit": *limit,
			})
			if callErr == nil && resp.OK {
				printSearchRPCResult(resp.Result, globals)
				return
			}
		}
	}

	// No daemon: query the embedded backend directly for this one call.
	homeDir, err := os.UserHomeDir()
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot determine home directory", err.Error(), "", err), globals.JSON)
	}
	dataDir := filepath.Join(homeDir, ".cie", "data", cfg.ProjectID)
	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		DataDir:   dataDir,
		Engine:    "rocksdb",
		ProjectID: cfg.ProjectID,
	})
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("Cannot open project database", err.Error(), "Run 'cie index' first", err), globals.JSON)
	}
	defer backend.Close()

	querier := tools.NewEmbeddedQuerier(backend)
	result, route, err := tools.RouteSearch(context.Background(), querier, tools.RouteSearchArgs{
		Query:          query,
		Mode:           *mode,
		Limit:          *limit,
		EmbeddingURL:   cfg.Embedding.BaseURL,
		EmbeddingModel: cfg.Embedding.Model,
	})
	if err != nil {
		errors.FatalError(errors.NewInternalError("Search failed", err.Error(), "", err), globals.JSON)
	}
	_ = threshold // threshold is applied inside tools.SemanticSearch via MinSimilarity when routed there directly

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]string{"route": string(route), "text": result.Text})
		return
	}
	fmt.Println(result.Text)
}

func printSearchRPCResult(raw any, globals GlobalFlags) {
	data, err := json.Marshal(raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "malformed daemon response:", err)
		return
	}
	var res struct {
		Text  string `json:"text"`
		Route string `json:"route"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		fmt.Fprintln(os.Stderr, "malformed daemon response:", err)
		return
	}
	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}
	fmt.Println(res.Text)
}
