// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie/pkg/ingestion"
)

// runExclusions executes the 'exclusions' CLI command: prints the default
// glob patterns the indexer skips, merged with any project-specific
// additions from .cie/project.yaml when a config is available. This never
// requires a running daemon - the defaults are a pure function of
// pkg/ingestion.
func runExclusions(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("exclusions", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie exclusions [options]

Description:
  Print the glob patterns excluded from indexing by default, plus any
  project-specific additions from .cie/project.yaml.
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	globs := ingestion.DefaultConfig().ExcludeGlobs
	if cfg, err := LoadConfig(configPath); err == nil {
		globs = append(append([]string{}, globs...), cfg.Indexing.Exclude...)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(globs)
		return
	}

	for _, g := range globs {
		fmt.Println(g)
	}
}
