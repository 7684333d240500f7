// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie/internal/bootstrap"
	"github.com/kraklabs/cie/internal/errors"
)

// mcpClientConfig is the snippet a CLIENT (an agent harness invoking cie as
// an MCP server) should add to its own server registry. Printed, never
// written - 'cie register' never touches the client's own config files.
type mcpClientConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Cwd     string   `json:"cwd"`
}

// runRegister executes the 'register' CLIENT CLI command. It prints the
// configuration a given client (claude, cursor, or any other MCP-speaking
// agent harness) should adopt to launch this project's CIE as an MCP
// server, and records the access against the project's registry metadata -
// the only state change it makes.
func runRegister(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie register CLIENT

Description:
  Print the MCP server configuration CLIENT should adopt to talk to this
  project's CIE. Makes no change beyond touching the project's registry
  metadata (last accessed time).

Examples:
  cie register claude
  cie register cursor
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}
	client := fs.Arg(0)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	workspace, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot determine current directory", err.Error(), "", err), globals.JSON)
	}

	exe, err := os.Executable()
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot locate cie binary", err.Error(), "", err), globals.JSON)
	}

	registry, err := bootstrap.NewRegistry()
	if err == nil {
		_, _, _ = registry.Resolve(os.Getenv("USER"), workspace, cfg.ProjectID)
	}

	snippet := mcpClientConfig{
		Command: exe,
		Args:    []string{"--mcp", "--config", ConfigPath(workspace)},
		Cwd:     workspace,
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{"client": client, "mcpServers": map[string]mcpClientConfig{"cie": snippet}})
		return
	}

	data, err := json.MarshalIndent(map[string]mcpClientConfig{"cie": snippet}, "", "  ")
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot render configuration", err.Error(), "", err), globals.JSON)
	}
	fmt.Printf("Add the following to %s's MCP server configuration:\n\n%s\n", client, string(data))
}
