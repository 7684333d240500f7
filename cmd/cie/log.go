// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cie/internal/bootstrap"
	"github.com/kraklabs/cie/internal/errors"
)

// runLog executes the 'log [PROJECT]' CLI command: prints (and optionally
// follows) the daemon's log file for PROJECT, or for the current workspace's
// project when PROJECT is omitted.
func runLog(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	follow := fs.BoolP("follow", "f", false, "Keep printing new log lines as they're written")
	tail := fs.Int("tail", 100, "Number of trailing lines to print before following")
	since := fs.String("since", "", "Only show lines at or after this RFC3339 timestamp")
	level := fs.String("level", "", "Only show lines containing this log level (e.g. INFO, WARN, ERROR)")
	grep := fs.String("grep", "", "Only show lines matching this substring")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie log [PROJECT] [options]

Description:
  Tail the CIE daemon's log file for PROJECT (a project name or ID), or for
  the current workspace's project when PROJECT is omitted.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	projectID, projectLabel := resolveLogProjectID(fs.Args(), configPath, globals)

	logPath, err := logPathFor(projectID)
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot resolve log path", err.Error(), "", err), globals.JSON)
	}

	var sinceTime time.Time
	if *since != "" {
		sinceTime, err = time.Parse(time.RFC3339, *since)
		if err != nil {
			errors.FatalError(errors.NewInternalError("Invalid --since timestamp", err.Error(), "Use RFC3339, e.g. 2026-07-31T10:00:00Z", err), globals.JSON)
		}
	}

	matches := func(line string) bool {
		if *level != "" && !strings.Contains(line, *level) {
			return false
		}
		if *grep != "" && !strings.Contains(line, *grep) {
			return false
		}
		if !sinceTime.IsZero() {
			ts := extractLogTimestamp(line)
			if !ts.IsZero() && ts.Before(sinceTime) {
				return false
			}
		}
		return true
	}

	f, err := os.Open(logPath) //nolint:gosec // G304: path derived from project registry, not user input
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "No log file yet for project '%s'. Has 'cie start' been run?\n", projectLabel)
			return
		}
		errors.FatalError(errors.NewInternalError("Cannot open log file", err.Error(), "", err), globals.JSON)
	}
	defer f.Close()

	lines := readTailLines(f, *tail)
	for _, line := range lines {
		if matches(line) {
			fmt.Println(line)
		}
	}

	if !*follow {
		return
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			trimmed := strings.TrimRight(line, "\n")
			if matches(trimmed) {
				fmt.Println(trimmed)
			}
		}
		if err != nil {
			if err != io.EOF {
				return
			}
			time.Sleep(500 * time.Millisecond)
		}
	}
}

// resolveLogProjectID turns the optional PROJECT positional argument into a
// project ID, defaulting to the current workspace's project.
func resolveLogProjectID(positional []string, configPath string, globals GlobalFlags) (id string, label string) {
	if len(positional) > 0 {
		name := positional[0]
		if registry, err := bootstrap.NewRegistry(); err == nil {
			if projects, err := registry.List(); err == nil {
				for _, p := range projects {
					if p.ProjectName == name || p.PID == name {
						return p.PID, p.ProjectName
					}
				}
			}
		}
		return name, name
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	return cfg.ProjectID, cfg.ProjectID
}

// readTailLines reads the last n lines (empty lines included) from f without loading the
// whole file into memory at once for very large logs.
func readTailLines(f *os.File, n int) []string {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	ring := make([]string, 0, n)
	for scanner.Scan() {
		ring = append(ring, scanner.Text())
		if len(ring) > n {
			ring = ring[1:]
		}
	}
	return ring
}

// extractLogTimestamp pulls a leading RFC3339 timestamp off a slog text-handler
// line (the format runDaemon's logger emits: "time=... level=... msg=...").
func extractLogTimestamp(line string) time.Time {
	const prefix = "time="
	idx := strings.Index(line, prefix)
	if idx < 0 {
		return time.Time{}
	}
	rest := line[idx+len(prefix):]
	end := strings.IndexByte(rest, ' ')
	if end < 0 {
		end = len(rest)
	}
	ts, err := time.Parse(time.RFC3339, strings.Trim(rest[:end], `"`))
	if err != nil {
		return time.Time{}
	}
	return ts
}
