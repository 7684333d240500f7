// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package main implements the CIE CLI for indexing repositories and querying
// the Code Intelligence Engine.
//
// Usage:
//
//	cie init                      Create .cie/project.yaml configuration
//	cie index                     Index the current repository
//	cie status [--json]           Show project status
//	cie query <script> [--json]   Execute CozoScript query
//	cie --mcp                     Start as MCP server (JSON-RPC over stdio)
package main

import (
	"flag"
	"fmt"
	"os"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Global flags
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		mcpMode     = flag.Bool("mcp", false, "Start as MCP server (JSON-RPC over stdio)")
		configPath  = flag.String("config", "", "Path to .cie/project.yaml (default: ./.cie/project.yaml)")
		jsonOutput  = flag.Bool("json", false, "Output as JSON where supported")
		quiet       = flag.Bool("quiet", false, "Suppress progress bars and non-essential output")
		noColor     = flag.Bool("no-color", false, "Disable ANSI color codes")
		verbose     = flag.Int("v", 0, "Increase logging detail (repeatable)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `CIE - Code Intelligence Engine CLI (Standalone)

Usage:
  cie <command> [options]

Daemon commands:
  start           Start the per-workspace daemon
  stop            Stop the per-workspace daemon
  search QUERY    Search the current project (auto-routes regex vs semantic)
  ls              List known projects
  exclusions      Print effective default exclude patterns
  register CLIENT Print the configuration CLIENT should adopt
  rm PROJECT_GLOB Remove one or more projects from the registry
  log [PROJECT]   Tail daemon logs

Maintenance commands:
  init          Create .cie/project.yaml configuration
  index         Index the current repository
  status        Show project status
  query         Execute CozoScript query
  reset         Reset local project data (destructive!)
  install-hook  Install git post-commit hook for auto-indexing
  completion    Generate shell completion script

Global Options:
  --mcp         Start as MCP server (JSON-RPC over stdio)
  --config      Path to .cie/project.yaml
  --json        Output as JSON where supported
  --quiet       Suppress progress bars and non-essential output
  --no-color    Disable ANSI color codes
  -v            Increase logging detail (repeatable)
  --version     Show version and exit

Examples:
  cie init                           Create configuration interactively
  cie start                          Start the daemon for this workspace
  cie index                          Index current repository
  cie index --full                   Force full re-index
  cie search "retry backoff"         Auto-routed search
  cie status                         Show project status
  cie status --json                  Output as JSON (for MCP)
  cie query "?[name] := *cie_function{name}"
  cie --mcp                          Start as MCP server

Data Storage:
  Data is stored locally in ~/.cie/data/<project_id>/

Environment Variables:
  OLLAMA_HOST        Ollama URL (default: http://localhost:11434)
  OLLAMA_EMBED_MODEL Embedding model (default: nomic-embed-text)

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("cie version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	// MCP mode takes precedence
	if *mcpMode {
		runMCPServer(*configPath)
		return
	}

	globals := GlobalFlags{JSON: *jsonOutput, Quiet: *quiet || *jsonOutput, NoColor: *noColor, Verbose: *verbose}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs)
	case "index":
		runIndex(cmdArgs, *configPath)
	case "status":
		runStatus(cmdArgs, *configPath)
	case "query":
		runQuery(cmdArgs, *configPath)
	case "reset":
		runReset(cmdArgs, *configPath)
	case "install-hook":
		runInstallHook(cmdArgs, *configPath)
	case "completion":
		runCompletion(cmdArgs, *configPath)
	case "start":
		runStart(cmdArgs, *configPath, globals)
	case "stop":
		runStop(cmdArgs, *configPath, globals)
	case "search":
		runSearch(cmdArgs, *configPath, globals)
	case "ls":
		runLs(cmdArgs, *configPath, globals)
	case "exclusions":
		runExclusions(cmdArgs, *configPath, globals)
	case "register":
		runRegister(cmdArgs, *configPath, globals)
	case "rm":
		runRm(cmdArgs, *configPath, globals)
	case "log":
		runLog(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
