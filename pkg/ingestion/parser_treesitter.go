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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// defaultMaxCodeTextSize bounds CodeText before truncateCodeText is told
// otherwise. 100KB covers all but the most pathological generated files.
const defaultMaxCodeTextSize = 100 * 1024

// TreeSitterParser extracts functions, types, and calls from source files
// using Tree-sitter grammars. One instance is shared across all files in a
// run; sitter.Parser values are not safe for concurrent ParseCtx calls on
// the same instance, so each language gets its own parser here but callers
// that parse in parallel should use one TreeSitterParser per worker.
type TreeSitterParser struct {
	logger *slog.Logger

	goParser  *sitter.Parser
	tsParser  *sitter.Parser
	jsParser  *sitter.Parser
	pyParser  *sitter.Parser

	maxCodeTextSize int64
	truncatedCount  int32
}

// NewTreeSitterParser creates a parser with one sitter.Parser configured per
// supported language.
func NewTreeSitterParser(logger *slog.Logger) *TreeSitterParser {
	if logger == nil {
		logger = slog.Default()
	}

	goP := sitter.NewParser()
	goP.SetLanguage(golang.GetLanguage())

	tsP := sitter.NewParser()
	tsP.SetLanguage(typescript.GetLanguage())

	jsP := sitter.NewParser()
	jsP.SetLanguage(javascript.GetLanguage())

	pyP := sitter.NewParser()
	pyP.SetLanguage(python.GetLanguage())

	return &TreeSitterParser{
		logger:          logger,
		goParser:        goP,
		tsParser:        tsP,
		jsParser:        jsP,
		pyParser:        pyP,
		maxCodeTextSize: defaultMaxCodeTextSize,
	}
}

// SetMaxCodeTextSize sets the maximum size for CodeText, in bytes.
func (p *TreeSitterParser) SetMaxCodeTextSize(size int64) {
	if size > 0 {
		p.maxCodeTextSize = size
	}
}

// GetTruncatedCount returns the number of CodeTexts truncated so far.
func (p *TreeSitterParser) GetTruncatedCount() int {
	return int(atomic.LoadInt32(&p.truncatedCount))
}

// ResetTruncatedCount resets the truncation counter to zero.
func (p *TreeSitterParser) ResetTruncatedCount() {
	atomic.StoreInt32(&p.truncatedCount, 0)
}

// truncateCodeText enforces maxCodeTextSize on a CodeText value, counting
// truncations for ingestion metrics.
func (p *TreeSitterParser) truncateCodeText(text string) string {
	if int64(len(text)) <= p.maxCodeTextSize {
		return text
	}
	atomic.AddInt32(&p.truncatedCount, 1)
	return text[:p.maxCodeTextSize]
}

// ParseFile reads fileInfo.FullPath and dispatches to the language-specific
// extractor selected by fileInfo.Language, then assembles the shared
// File/Defines/DefinesTypes edges common to every language.
func (p *TreeSitterParser) ParseFile(fileInfo FileInfo) (*ParseResult, error) {
	content, err := os.ReadFile(fileInfo.FullPath)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileInfo.Path, err)
	}

	file := FileEntity{
		ID:       GenerateFileID(fileInfo.Path),
		Path:     fileInfo.Path,
		Language: fileInfo.Language,
		Hash:     hashContent(content),
		Size:     fileInfo.Size,
	}

	var (
		functions       []FunctionEntity
		types           []TypeEntity
		calls           []CallsEdge
		imports         []ImportEntity
		unresolvedCalls []UnresolvedCall
		packageName     string
	)

	switch fileInfo.Language {
	case "go":
		result, err := p.parseGoAST(content, fileInfo.Path)
		if err != nil {
			return nil, err
		}
		functions = result.Functions
		types = result.Types
		calls = result.Calls
		imports = result.Imports
		unresolvedCalls = result.UnresolvedCalls
		packageName = result.PackageName
	case "typescript", "tsx":
		fns, tys, cls, err := p.parseTypeScriptAST(content, fileInfo.Path)
		if err != nil {
			return nil, err
		}
		functions, types, calls = fns, tys, cls
	case "javascript", "jsx":
		fns, tys, cls, err := p.parseJavaScriptAST(content, fileInfo.Path)
		if err != nil {
			return nil, err
		}
		functions, types, calls = fns, tys, cls
	case "python":
		fns, tys, cls, err := p.parsePythonAST(content, fileInfo.Path)
		if err != nil {
			return nil, err
		}
		functions, types, calls = fns, tys, cls
	case "protobuf", "proto":
		fns, cls := parseProtobufSimplified(content, fileInfo.Path, p)
		functions, calls = fns, cls
	default:
		return nil, fmt.Errorf("unsupported language %q for %s", fileInfo.Language, fileInfo.Path)
	}

	defines := make([]DefinesEdge, 0, len(functions))
	for _, fn := range functions {
		defines = append(defines, DefinesEdge{
			ID:         GenerateDefinesID(file.ID, fn.ID),
			FileID:     file.ID,
			FunctionID: fn.ID,
		})
	}

	definesTypes := make([]DefinesTypeEdge, 0, len(types))
	for _, t := range types {
		definesTypes = append(definesTypes, DefinesTypeEdge{
			ID:     GenerateDefinesID(file.ID, t.ID),
			FileID: file.ID,
			TypeID: t.ID,
		})
	}

	return &ParseResult{
		File:            file,
		Functions:       functions,
		Types:           types,
		Defines:         defines,
		DefinesTypes:    definesTypes,
		Calls:           calls,
		Imports:         imports,
		UnresolvedCalls: unresolvedCalls,
		PackageName:     packageName,
	}, nil
}

// hashContent returns a short content hash used for incremental re-index
// change detection (CheckpointManager.FileHashes).
func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:16])
}

// countErrors counts ERROR nodes in a parsed tree, used to log how badly a
// file tripped up the grammar without failing the whole parse - Tree-sitter
// recovers and still yields usable nodes around the error.
func countErrors(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	count := 0
	if node.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrors(node.Child(i))
	}
	return count
}

// isTestFile reports whether path looks like a test file, used by callers
// that want to skip test code during extraction (kept for parity with the
// simplified parser's behavior, unused by the Tree-sitter path today).
func isTestFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, "_test.go") ||
		strings.Contains(lower, ".test.") ||
		strings.Contains(lower, ".spec.")
}
