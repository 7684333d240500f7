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

// Package ignore compiles and evaluates the three-layer ignore-rule
// hierarchy that gates file discovery and indexing: built-in defaults,
// git-style ignore files discovered per directory, and repo-specific
// ignore files. Precedence is defaults < git-style < repo-specific, with
// child directories extending (never replacing) their ancestors' rules.
package ignore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Layer names, in ascending precedence order.
const (
	LayerDefault    = "default"
	LayerGit        = "git"
	LayerRepository = "repository"
)

// RepoIgnoreFilename is the name of the repo-specific ignore file layer,
// checked in addition to .gitignore at every directory level.
const RepoIgnoreFilename = ".rgignore"

// defaultPatterns mirrors the exclude globs CIE always applies regardless
// of project configuration (vendor trees, VCS metadata, build output).
var defaultPatterns = []string{
	".git/**",
	"node_modules/**",
	"vendor/**",
	"dist/**",
	"build/**",
	"target/**",
	"*.min.js",
	"*.lock",
	".cie/**",
}

// level holds the compiled rule set for one directory, plus its git-style
// and repo-specific matchers.
type level struct {
	dir string
	git *gitignore.GitIgnore // may be nil if no .gitignore present
	rg  *gitignore.GitIgnore // may be nil if no .rgignore present
}

// Engine evaluates should_ignore(path) against the compiled hierarchy.
// Safe for concurrent use; NotifyChanged triggers a scoped recompile.
type Engine struct {
	root string

	mu     sync.RWMutex
	levels map[string]*level // dir (relative to root) -> compiled level

	cacheMu sync.Mutex
	cache   map[string]bool
	cacheLRU []string
	cacheCap int

	defaultMatcher *gitignore.GitIgnore
}

// New compiles the default layer and walks root eagerly to pick up every
// existing .gitignore/.rgignore file. Later changes are applied via
// NotifyChanged rather than a full re-walk.
func New(root string) (*Engine, error) {
	dm := gitignore.CompileIgnoreLines(defaultPatterns...)

	e := &Engine{
		root:           root,
		levels:         make(map[string]*level),
		cache:          make(map[string]bool),
		cacheCap:       10000,
		defaultMatcher: dm,
	}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		e.loadLevel(path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Engine) loadLevel(dir string) {
	rel, err := filepath.Rel(e.root, dir)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		rel = "" // root level; ShouldIgnore's ancestry starts at ""
	}

	lvl := &level{dir: rel}

	if lines, err := readLines(filepath.Join(dir, ".gitignore")); err == nil {
		lvl.git = gitignore.CompileIgnoreLines(lines...)
	}
	if lines, err := readLines(filepath.Join(dir, RepoIgnoreFilename)); err == nil {
		lvl.rg = gitignore.CompileIgnoreLines(lines...)
	}

	e.mu.Lock()
	e.levels[rel] = lvl
	e.mu.Unlock()
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\n"), nil
}

// NotifyChanged re-reads the ignore files at the directory containing path
// (path itself is expected to be an ignore file) and invalidates cached
// decisions for that subtree.
func (e *Engine) NotifyChanged(path string) {
	dir := filepath.Dir(path)
	e.loadLevel(dir)

	rel, err := filepath.Rel(e.root, dir)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		rel = ""
	}

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	for cached := range e.cache {
		if rel == "" || cached == rel || strings.HasPrefix(cached, rel+"/") {
			delete(e.cache, cached)
		}
	}
}

// ShouldIgnore reports whether path (relative to root) is excluded by the
// compiled hierarchy. The last matching rule across (defaults, git-style,
// repo-specific), walked from root to the file's parent directory, wins;
// a negated pattern (!pattern) re-includes.
func (e *Engine) ShouldIgnore(path string) bool {
	rel := filepath.ToSlash(path)

	e.cacheMu.Lock()
	if v, ok := e.cache[rel]; ok {
		e.cacheMu.Unlock()
		return v
	}
	e.cacheMu.Unlock()

	ignored := e.defaultMatcher.MatchesPath(rel)

	e.mu.RLock()
	dir := filepath.Dir(rel)
	if dir == "." {
		dir = ""
	}
	for _, d := range ancestry(dir) {
		if lvl, ok := e.levels[d]; ok {
			// MatchesPathHow reports the winning pattern (nil if none of this
			// level's lines apply to rel at all); only let a level override
			// the running decision when it actually has an opinion, so an
			// unrelated .gitignore/.rgignore can't silently re-include a path
			// a lower-precedence layer already excluded, and a negated
			// pattern (!foo) can re-include a path excluded further up.
			if lvl.git != nil {
				if matched, pat := lvl.git.MatchesPathHow(rel); pat != nil {
					ignored = matched
				}
			}
			if lvl.rg != nil {
				// repo-specific is highest precedence: re-evaluate last so
				// it can both exclude and, via negation, re-include.
				if matched, pat := lvl.rg.MatchesPathHow(rel); pat != nil {
					ignored = matched
				}
			}
		}
	}
	e.mu.RUnlock()

	e.cacheMu.Lock()
	e.setCache(rel, ignored)
	e.cacheMu.Unlock()

	return ignored
}

// setCache must be called with cacheMu held.
func (e *Engine) setCache(key string, v bool) {
	if _, exists := e.cache[key]; !exists {
		if len(e.cacheLRU) >= e.cacheCap {
			evict := e.cacheLRU[0]
			e.cacheLRU = e.cacheLRU[1:]
			delete(e.cache, evict)
		}
		e.cacheLRU = append(e.cacheLRU, key)
	}
	e.cache[key] = v
}

// ancestry returns dir and every ancestor up to (and including) the root,
// ordered from root down to dir, so caller rules apply in precedence order.
func ancestry(dir string) []string {
	if dir == "" {
		return []string{""}
	}
	parts := strings.Split(dir, "/")
	out := make([]string, 0, len(parts)+1)
	out = append(out, "")
	cur := ""
	for _, p := range parts {
		if cur == "" {
			cur = p
		} else {
			cur = cur + "/" + p
		}
		out = append(out, cur)
	}
	return out
}
