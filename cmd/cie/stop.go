// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie/internal/errors"
	"github.com/kraklabs/cie/internal/rpcserver"
	"github.com/kraklabs/cie/internal/ui"
)

// runStop executes the 'stop' CLI command: asks the running daemon for the
// current workspace to shut down over its Unix socket. Indexed data is
// untouched; use 'cie reset' to also remove it.
func runStop(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie stop [options]

Description:
  Stop the CIE daemon for the current workspace. Preserves all indexed data.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  cie stop
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	sockPath, err := sockPathFor(cfg.ProjectID)
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot resolve socket path", err.Error(), "", err), globals.JSON)
	}

	client, err := rpcserver.Dial(sockPath, 2*time.Second)
	if err != nil {
		ui.Info(fmt.Sprintf("No daemon running for project '%s'", cfg.ProjectID))
		return
	}
	defer client.Close()

	if _, err := client.Call("stop", "stop", nil); err != nil {
		errors.FatalError(errors.NewInternalError("Failed to stop daemon", err.Error(), "", err), globals.JSON)
	}

	ui.Success(fmt.Sprintf("Stopped daemon for project '%s'", cfg.ProjectID))
}
