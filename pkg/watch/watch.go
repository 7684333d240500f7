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

// Package watch recursively watches a workspace for file changes and
// emits a debounced stream of per-path events to the incremental indexer.
// Ignore-file changes bypass the debounce window so the ignore engine and
// a scoped reconcile can react immediately.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RepoIgnoreFilename mirrors internal/ignore.RepoIgnoreFilename without
// importing internal/ignore, keeping this package dependency-free of the
// daemon's wiring layer.
const RepoIgnoreFilename = ".rgignore"

// Event describes a single debounced filesystem change.
type Event struct {
	Path      string
	IsIgnoreFile bool
}

// Watcher recursively watches a root directory, debounces bursty edits to
// the same path, and pauses batched reindex emission while no RPC activity
// has been observed recently (the "agent-active" heuristic).
type Watcher struct {
	root   string
	logger *slog.Logger
	fsw    *fsnotify.Watcher

	debounce   time.Duration
	inactivity time.Duration

	mu       sync.Mutex
	pending  map[string]*time.Timer
	lastRPC  time.Time

	out chan Event
}

// Option configures a Watcher at construction time.
type Option func(*Watcher)

// WithDebounce overrides the default ~60s debounce window.
func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

// WithInactivity overrides the default ~2m agent-inactivity pause window.
func WithInactivity(d time.Duration) Option { return func(w *Watcher) { w.inactivity = d } }

// New creates a Watcher rooted at root. Call Run to start emitting events.
func New(root string, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:       root,
		logger:     logger,
		fsw:        fsw,
		debounce:   60 * time.Second,
		inactivity: 2 * time.Minute,
		pending:    make(map[string]*time.Timer),
		out:        make(chan Event, 256),
		lastRPC:    time.Now(),
	}
	for _, o := range opts {
		o(w)
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				w.logger.Warn("watch.add.error", "path", path, "err", err)
			}
		}
		return nil
	})
}

// Events returns the channel of debounced, ready-to-process changes.
func (w *Watcher) Events() <-chan Event { return w.out }

// NoteRPC records that an RPC request just arrived, resetting the
// agent-active window so paused batched reindexing resumes.
func (w *Watcher) NoteRPC() {
	w.mu.Lock()
	w.lastRPC = time.Now()
	w.mu.Unlock()
}

// Idle reports whether no RPC has arrived within the inactivity window,
// meaning batched reindexing may proceed without contending with an
// actively-querying agent.
func (w *Watcher) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Since(w.lastRPC) >= w.inactivity
}

// Run processes fsnotify events until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.out)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch.fsnotify.error", "err", err)
		}
	}
}

func (w *Watcher) handleFSEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	rel = filepath.ToSlash(rel)

	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && (ev.Op&fsnotify.Create != 0) {
		_ = w.fsw.Add(ev.Name)
	}

	isIgnoreFile := strings.HasSuffix(rel, "/.gitignore") || rel == ".gitignore" ||
		strings.HasSuffix(rel, "/"+RepoIgnoreFilename) || rel == RepoIgnoreFilename

	if isIgnoreFile {
		// Ignore-file changes bypass the debounce entirely.
		w.emit(Event{Path: rel, IsIgnoreFile: true})
		return
	}

	w.debounced(rel)
}

func (w *Watcher) debounced(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[rel]; ok {
		t.Stop()
	}
	w.pending[rel] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, rel)
		w.mu.Unlock()
		w.emit(Event{Path: rel})
	})
}

func (w *Watcher) emit(ev Event) {
	select {
	case w.out <- ev:
	default:
		w.logger.Warn("watch.emit.dropped", "path", ev.Path)
	}
}
