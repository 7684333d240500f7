// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie/internal/bootstrap"
	"github.com/kraklabs/cie/internal/errors"
	"github.com/kraklabs/cie/internal/rpcserver"
	"github.com/kraklabs/cie/internal/ui"
)

// runRm executes the 'rm' CLI command: removes every project whose name
// matches PROJECT_GLOB from the registry, stopping its daemon first if one
// is running, then deleting its on-disk data directory.
func runRm(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie rm PROJECT_GLOB

Description:
  Remove one or more projects from the registry and delete their indexed
  data. PROJECT_GLOB is matched against project names with filepath.Match
  semantics (supporting '*' and '?'), or matched exactly against a project
  ID.

Examples:
  cie rm my-service
  cie rm 'test-*'
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}
	glob := fs.Arg(0)

	registry, err := bootstrap.NewRegistry()
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot open registry", err.Error(), "", err), globals.JSON)
	}

	removed, err := registry.Remove(glob)
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot remove project", err.Error(), "", err), globals.JSON)
	}

	if len(removed) == 0 {
		ui.Info(fmt.Sprintf("No project matched %q", glob))
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot determine home directory", err.Error(), "", err), globals.JSON)
	}

	for _, m := range removed {
		if sockPath, err := sockPathFor(m.PID); err == nil {
			if client, err := rpcserver.Dial(sockPath, 300*time.Millisecond); err == nil {
				_, _ = client.Call("stop", "stop", nil)
				_ = client.Close()
			}
			_ = os.Remove(sockPath)
		}
		if pidPath, err := pidPathFor(m.PID); err == nil {
			_ = os.Remove(pidPath)
		}
		dataDir := filepath.Join(homeDir, ".cie", "data", m.PID)
		if err := os.RemoveAll(dataDir); err != nil {
			ui.Info(fmt.Sprintf("Warning: failed to remove data directory for %q: %v", m.ProjectName, err))
		}
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(removed)
		return
	}

	for _, m := range removed {
		ui.Success(fmt.Sprintf("Removed project '%s' (%s)", m.ProjectName, m.PID))
	}
}
