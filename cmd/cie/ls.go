// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie/internal/bootstrap"
	"github.com/kraklabs/cie/internal/errors"
)

// runLs executes the 'ls' CLI command: lists every project this machine
// knows about, most-recently-accessed first. It reads the registry directly
// rather than going through any one project's daemon, since the registry
// spans all workspaces.
func runLs(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	long := fs.Bool("long", false, "Show workspace path, last indexed time, and symbol counts")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie ls [options]

Description:
  List every project known to this machine's registry.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	registry, err := bootstrap.NewRegistry()
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot open registry", err.Error(), "", err), globals.JSON)
	}

	projects, err := registry.List()
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot list projects", err.Error(), "", err), globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(projects)
		return
	}

	if len(projects) == 0 {
		fmt.Println("No projects registered yet. Run 'cie init' in a workspace to get started.")
		return
	}

	for _, p := range projects {
		if !*long {
			fmt.Printf("%s  %s\n", p.ProjectName, p.WorkspacePath)
			continue
		}
		lastIndexed := "never"
		if !p.LastIndexed.IsZero() {
			lastIndexed = p.LastIndexed.Format(time.RFC3339)
		}
		total := 0
		for _, n := range p.Stats.SymbolCounts {
			total += n
		}
		fmt.Printf("%s\n  path:          %s\n  pid:           %s\n  last indexed:  %s\n  symbols:       %d\n\n",
			p.ProjectName, p.WorkspacePath, p.PID, lastIndexed, total)
	}
}
