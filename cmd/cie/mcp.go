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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kraklabs/cie/pkg/storage"
	"github.com/kraklabs/cie/pkg/tools"
)

// mcpRequest is one newline-delimited JSON-RPC request read from stdin.
type mcpRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// mcpResponse is one newline-delimited JSON-RPC response written to stdout.
type mcpResponse struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *mcpError       `json:"error,omitempty"`
}

type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mcpToolFunc adapts one pkg/tools function to a uniform (raw params) -> (*tools.ToolResult, error) shape.
type mcpToolFunc func(ctx context.Context, querier tools.Querier, embeddingURL, embeddingModel string, params json.RawMessage) (*tools.ToolResult, error)

// runMCPServer starts CIE as an MCP tool server, speaking newline-delimited
// JSON-RPC over stdin/stdout. Each request names a tool (e.g.
// "search_code_simple", "find_callers") and carries that tool's argument
// struct as params; responses carry the tool's ToolResult text.
//
// Unlike the Unix-socket daemon (internal/rpcserver), this mode is meant to
// be spawned per-session by an MCP-speaking agent host and exits when stdin
// closes.
func runMCPServer(configPath string) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := LoadConfig(configPath)
	if err != nil {
		logger.Error("mcp.config.error", "err", err)
		os.Exit(1)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		logger.Error("mcp.home.error", "err", err)
		os.Exit(1)
	}
	dataDir := filepath.Join(homeDir, ".cie", "data", cfg.ProjectID)

	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		DataDir:             dataDir,
		Engine:              "rocksdb",
		ProjectID:           cfg.ProjectID,
		EmbeddingDimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		logger.Error("mcp.backend.error", "err", err, "data_dir", dataDir)
		os.Exit(1)
	}
	defer backend.Close()

	querier := tools.NewEmbeddedQuerier(backend)
	handlers := mcpHandlers()

	ctx := context.Background()
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for in.Scan() {
		line := in.Bytes()
		if len(line) == 0 {
			continue
		}

		var req mcpRequest
		if err := json.Unmarshal(line, &req); err != nil {
			writeMCPResponse(out, mcpResponse{Error: &mcpError{Code: -32700, Message: "parse error: " + err.Error()}})
			continue
		}

		handler, ok := handlers[req.Method]
		if !ok {
			writeMCPResponse(out, mcpResponse{ID: req.ID, Error: &mcpError{Code: -32601, Message: "unknown method " + req.Method}})
			continue
		}

		result, err := handler(ctx, querier, cfg.Embedding.BaseURL, cfg.Embedding.Model, req.Params)
		if err != nil {
			writeMCPResponse(out, mcpResponse{ID: req.ID, Error: &mcpError{Code: -32000, Message: err.Error()}})
			continue
		}
		writeMCPResponse(out, mcpResponse{ID: req.ID, Result: result})
	}
}

func writeMCPResponse(w *bufio.Writer, resp mcpResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	w.Write(data)
	w.WriteByte('\n')
	w.Flush()
}

// mcpHandlers maps MCP tool names to pkg/tools functions. Every entry here
// should correspond to a named tool advertised by `get_search_capabilities`.
func mcpHandlers() map[string]mcpToolFunc {
	return map[string]mcpToolFunc{
		"search_code_simple": func(ctx context.Context, q tools.Querier, embURL, embModel string, raw json.RawMessage) (*tools.ToolResult, error) {
			var args tools.SemanticSearchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode args: %w", err)
			}
			args.EmbeddingURL = embURL
			args.EmbeddingModel = embModel
			return tools.SemanticSearch(ctx, q, args)
		},
		"search_text": func(ctx context.Context, q tools.Querier, _, _ string, raw json.RawMessage) (*tools.ToolResult, error) {
			var args tools.SearchTextArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode args: %w", err)
			}
			return tools.SearchText(ctx, q, args)
		},
		"find_function": func(ctx context.Context, q tools.Querier, _, _ string, raw json.RawMessage) (*tools.ToolResult, error) {
			var args tools.FindFunctionArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode args: %w", err)
			}
			return tools.FindFunction(ctx, q, args)
		},
		"find_callers": func(ctx context.Context, q tools.Querier, _, _ string, raw json.RawMessage) (*tools.ToolResult, error) {
			var args tools.FindCallersArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode args: %w", err)
			}
			return tools.FindCallers(ctx, q, args)
		},
		"find_callees": func(ctx context.Context, q tools.Querier, _, _ string, raw json.RawMessage) (*tools.ToolResult, error) {
			var args tools.FindCalleesArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode args: %w", err)
			}
			return tools.FindCallees(ctx, q, args)
		},
		"list_files": func(ctx context.Context, q tools.Querier, _, _ string, raw json.RawMessage) (*tools.ToolResult, error) {
			var args tools.ListFilesArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode args: %w", err)
			}
			return tools.ListFiles(ctx, q, args)
		},
		"find_implementations": func(ctx context.Context, q tools.Querier, _, _ string, raw json.RawMessage) (*tools.ToolResult, error) {
			var args tools.FindImplementationsArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode args: %w", err)
			}
			return tools.FindImplementations(ctx, q, args)
		},
		"list_endpoints": func(ctx context.Context, q tools.Querier, _, _ string, raw json.RawMessage) (*tools.ToolResult, error) {
			var args tools.ListEndpointsArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode args: %w", err)
			}
			return tools.ListEndpoints(ctx, q, args)
		},
		"raw_query": func(ctx context.Context, q tools.Querier, _, _ string, raw json.RawMessage) (*tools.ToolResult, error) {
			var args tools.RawQueryArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode args: %w", err)
			}
			return tools.RawQuery(ctx, q, args)
		},
	}
}
