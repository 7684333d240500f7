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

package ingestion

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// =============================================================================
// SYMBOL EXTRACTION (module docs, top-level constants, config files)
// =============================================================================
//
// Functions and types get their own AST-backed extraction in the Go/simplified
// parsers; the remaining Symbol kinds SPEC_FULL names - a package's doc
// comment, its top-level constant declarations, and whole-file config blocks
// - are lighter-weight and don't need a grammar, so they're extracted here by
// reading the file directly, independent of which CodeParser ran.

var configFileExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
	".toml": true,
}

// goPackageDocRe matches a `// Package name ...` comment line immediately
// preceding the package clause - the godoc convention this codebase's own
// files follow (see e.g. internal/ignore/ignore.go).
var goPackageDocRe = regexp.MustCompile(`(?m)^package\s+(\w+)\s*$`)

// goTopLevelConstRe matches a top-level `const Name ...` declaration, single
// line or block-opening; anything indented is inside a function and skipped.
var goTopLevelConstRe = regexp.MustCompile(`(?m)^const\s+(\w+)\s*(?:=|\()`)

// pyModuleConstRe matches a module-level `NAME = ...` assignment using the
// all-caps convention Python uses in place of a const keyword.
var pyModuleConstRe = regexp.MustCompile(`(?m)^([A-Z][A-Z0-9_]*)\s*(?::\s*\w+)?\s*=`)

// jsTopLevelConstRe matches a top-level `const NAME = ...` (optionally
// exported), mirroring jsConstFuncRe's style in parser_simplified.go but
// without requiring the value to be a function.
var jsTopLevelConstRe = regexp.MustCompile(`(?m)^(?:export\s+)?const\s+(\w+)\s*=`)

// ExtractSymbols extracts the module_doc/constant/config Symbol kinds from a
// file, reading fileInfo.FullPath directly. It never errors on content it
// doesn't recognize - an unsupported language or malformed file just yields
// no symbols, the same tolerance parser_simplified.go's regex matching has.
func ExtractSymbols(fileInfo FileInfo) ([]SymbolEntity, error) {
	content, err := os.ReadFile(fileInfo.FullPath)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(fileInfo.Path))
	if configFileExtensions[ext] {
		return []SymbolEntity{configSymbol(fileInfo, content)}, nil
	}

	var symbols []SymbolEntity
	switch fileInfo.Language {
	case "go":
		if doc := goModuleDocSymbol(fileInfo, content); doc != nil {
			symbols = append(symbols, *doc)
		}
		symbols = append(symbols, constantSymbols(fileInfo, content, goTopLevelConstRe)...)
	case "python":
		if doc := leadingDocstringSymbol(fileInfo, content); doc != nil {
			symbols = append(symbols, *doc)
		}
		symbols = append(symbols, constantSymbols(fileInfo, content, pyModuleConstRe)...)
	case "javascript", "typescript":
		symbols = append(symbols, constantSymbols(fileInfo, content, jsTopLevelConstRe)...)
	}

	return symbols, nil
}

// configSymbol treats an entire config file (YAML/JSON/TOML) as a single
// Symbol, since these files rarely have internal substructure worth
// splitting and are usually small enough to embed whole.
func configSymbol(fileInfo FileInfo, content []byte) SymbolEntity {
	lines := strings.Count(string(content), "\n") + 1
	name := filepath.Base(fileInfo.Path)
	return SymbolEntity{
		ID:        GenerateSymbolID(fileInfo.Path, SymbolKindConfig, name, 1, lines),
		Kind:      SymbolKindConfig,
		Name:      name,
		FilePath:  fileInfo.Path,
		CodeText:  string(content),
		StartLine: 1,
		EndLine:   lines,
	}
}

// goModuleDocSymbol extracts the `// Package name ...` comment block that
// immediately precedes a Go file's package clause, if present.
func goModuleDocSymbol(fileInfo FileInfo, content []byte) *SymbolEntity {
	loc := goPackageDocRe.FindSubmatchIndex(content)
	if loc == nil {
		return nil
	}
	pkgName := string(content[loc[2]:loc[3]])
	pkgLine := lineNumberAt(content, loc[0])

	start, end := commentBlockAbove(content, pkgLine, "//")
	if start == 0 {
		return nil
	}
	text := linesRange(content, start, end)
	if !strings.Contains(text, "Package "+pkgName) {
		return nil // leading comment is a license header, not a package doc
	}

	return &SymbolEntity{
		ID:         GenerateSymbolID(fileInfo.Path, SymbolKindModuleDoc, pkgName, start, end),
		Kind:       SymbolKindModuleDoc,
		Name:       pkgName,
		FilePath:   fileInfo.Path,
		CodeText:   text,
		StartLine:  start,
		EndLine:    end,
		ParentName: pkgName,
	}
}

// leadingDocstringSymbol extracts a Python module's leading triple-quoted
// docstring, if the file opens with one.
func leadingDocstringSymbol(fileInfo FileInfo, content []byte) *SymbolEntity {
	trimmed := strings.TrimLeft(string(content), " \t\r\n")
	var quote string
	switch {
	case strings.HasPrefix(trimmed, `"""`):
		quote = `"""`
	case strings.HasPrefix(trimmed, `'''`):
		quote = `'''`
	default:
		return nil
	}

	rest := trimmed[len(quote):]
	end := strings.Index(rest, quote)
	if end < 0 {
		return nil
	}
	docText := trimmed[:len(quote)+end+len(quote)]
	startLine := 1
	endLine := startLine + strings.Count(docText, "\n")

	name := strings.TrimSuffix(filepath.Base(fileInfo.Path), filepath.Ext(fileInfo.Path))
	return &SymbolEntity{
		ID:        GenerateSymbolID(fileInfo.Path, SymbolKindModuleDoc, name, startLine, endLine),
		Kind:      SymbolKindModuleDoc,
		Name:      name,
		FilePath:  fileInfo.Path,
		CodeText:  docText,
		StartLine: startLine,
		EndLine:   endLine,
	}
}

// constantSymbols finds every top-level match of re in content and turns it
// into a one-line constant Symbol (or, for a Go `const (` block, extends to
// the block's closing paren).
func constantSymbols(fileInfo FileInfo, content []byte, re *regexp.Regexp) []SymbolEntity {
	matches := re.FindAllSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}

	symbols := make([]SymbolEntity, 0, len(matches))
	for _, m := range matches {
		name := string(content[m[2]:m[3]])
		startLine := lineNumberAt(content, m[0])
		endLine := startLine
		text := strings.TrimRight(string(content[m[0]:m[1]]), "\n")

		if strings.HasSuffix(strings.TrimSpace(text), "(") {
			closeIdx := findMatchingParen(content, m[1]-1)
			if closeIdx > m[1] {
				endLine = lineNumberAt(content, closeIdx)
				text = string(content[m[0] : closeIdx+1])
			}
		}

		symbols = append(symbols, SymbolEntity{
			ID:        GenerateSymbolID(fileInfo.Path, SymbolKindConstant, name, startLine, endLine),
			Kind:      SymbolKindConstant,
			Name:      name,
			FilePath:  fileInfo.Path,
			CodeText:  text,
			StartLine: startLine,
			EndLine:   endLine,
		})
	}
	return symbols
}

// findMatchingParen returns the index of the ')' matching the '(' at
// openIdx, or -1 if unbalanced.
func findMatchingParen(content []byte, openIdx int) int {
	depth := 0
	for i := openIdx; i < len(content); i++ {
		switch content[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// commentBlockAbove returns the 1-indexed [start, end] line range of the
// contiguous `prefix`-commented block directly above targetLine (no blank
// lines in between), or (0, 0) if targetLine isn't preceded by one.
func commentBlockAbove(content []byte, targetLine int, prefix string) (int, int) {
	lines := strings.Split(string(content), "\n")
	if targetLine < 2 || targetLine-2 >= len(lines) {
		return 0, 0
	}

	end := targetLine - 1
	i := end - 1
	for i >= 0 && strings.HasPrefix(strings.TrimSpace(lines[i]), prefix) {
		i--
	}
	start := i + 2 // first comment line, 1-indexed
	if start > end {
		return 0, 0
	}
	return start, end
}

// linesRange returns content's lines [start, end] (1-indexed, inclusive),
// joined back with newlines.
func linesRange(content []byte, start, end int) string {
	lines := strings.Split(string(content), "\n")
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// lineNumberAt returns the 1-indexed line number of byte offset in content.
func lineNumberAt(content []byte, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return strings.Count(string(content[:offset]), "\n") + 1
}
