// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie/internal/errors"
	"github.com/kraklabs/cie/internal/rpcserver"
	"github.com/kraklabs/cie/internal/ui"
)

// runStart executes the 'start' CLI command, bringing up the per-workspace
// daemon: a long-lived process holding the CozoDB backend, embedder handle,
// and filesystem watcher open, serving CLI/agent requests over a Unix
// socket instead of re-opening the database on every invocation.
func runStart(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	foreground := fs.Bool("foreground", false, "Run the daemon in the foreground instead of detaching")
	timeout := fs.Duration("timeout", 30*time.Second, "Time to wait for the daemon socket to come up")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie start [options]

Description:
  Start the long-lived CIE daemon for the current workspace. The daemon
  serves 'search'/'index'/'status'/'ls' requests over a Unix socket at
  ~/.cie/run/<project_id>.sock so repeated queries don't pay CozoDB's
  open/schema-check cost each time.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  cie start
  cie start --foreground
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	workspace, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot determine current directory", err.Error(), "", err,
		), globals.JSON)
	}

	sockPath, err := sockPathFor(cfg.ProjectID)
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot resolve socket path", err.Error(), "", err), globals.JSON)
	}

	if client, err := rpcserver.Dial(sockPath, 500*time.Millisecond); err == nil {
		_ = client.Close()
		ui.Info(fmt.Sprintf("Daemon for project '%s' is already running", cfg.ProjectID))
		return
	}

	if *foreground {
		ui.Header("Starting CIE daemon (foreground)")
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		if err := runDaemon(ctx, cfg, workspace, logger); err != nil {
			errors.FatalError(errors.NewInternalError("Daemon exited with an error", err.Error(), "", err), globals.JSON)
		}
		return
	}

	ui.Header("Starting CIE daemon")
	exe, err := os.Executable()
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot locate cie binary", err.Error(), "", err), globals.JSON)
	}

	spawnArgs := []string{"start", "--foreground"}
	if configPath != "" {
		spawnArgs = append([]string{"--config", configPath}, spawnArgs...)
	}

	logPath, err := logPathFor(cfg.ProjectID)
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot resolve log path", err.Error(), "", err), globals.JSON)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0750); err != nil {
		errors.FatalError(errors.NewInternalError("Cannot create log directory", err.Error(), "", err), globals.JSON)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644) //nolint:gosec // G302: daemon log, not sensitive
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot open log file", err.Error(), "", err), globals.JSON)
	}
	defer logFile.Close()

	proc, err := os.StartProcess(exe, append([]string{exe}, spawnArgs...), &os.ProcAttr{
		Dir:   workspace,
		Env:   os.Environ(),
		Files: []*os.File{nil, logFile, logFile},
	})
	if err != nil {
		errors.FatalError(errors.NewInternalError("Failed to spawn daemon", err.Error(), "", err), globals.JSON)
	}
	ui.Info(fmt.Sprintf("Spawned daemon (pid %d), logging to %s, waiting for socket...", proc.Pid, logPath))

	deadline := time.Now().Add(*timeout)
	for time.Now().Before(deadline) {
		if client, err := rpcserver.Dial(sockPath, 200*time.Millisecond); err == nil {
			_ = client.Close()
			ui.Success(fmt.Sprintf("CIE daemon is up for project '%s'", cfg.ProjectID))
			return
		}
		time.Sleep(150 * time.Millisecond)
	}

	errors.FatalError(errors.NewInternalError(
		"Daemon did not become ready in time",
		fmt.Sprintf("no response on %s within %s", sockPath, timeout.String()),
		"Check ~/.cie/run for a stale pidfile, or run 'cie start --foreground' to see daemon logs directly",
		nil,
	), globals.JSON)
}
