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
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
)

// =============================================================================
// SIMPLIFIED PARSER (fallback, no CGO)
// =============================================================================

// Parser is a regex/string-matching fallback for CodeParser, used when
// Tree-sitter isn't available. Go gets dedicated line-oriented extraction
// (see parseGoFile in parser_go.go); other languages get the lighter
// brace/indentation matching below. Neither path extracts imports or types
// with the fidelity of the Tree-sitter parser - that precision is exactly
// what ParserModeTreeSitter trades portability for.
type Parser struct {
	logger *slog.Logger

	maxCodeTextSize int64
	truncatedCount  int32
}

// NewParser creates a simplified parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:          logger,
		maxCodeTextSize: defaultMaxCodeTextSize,
	}
}

// SetMaxCodeTextSize sets the maximum size for CodeText, in bytes.
func (p *Parser) SetMaxCodeTextSize(size int64) {
	if size > 0 {
		p.maxCodeTextSize = size
	}
}

// GetTruncatedCount returns the number of CodeTexts truncated so far.
func (p *Parser) GetTruncatedCount() int {
	return int(atomic.LoadInt32(&p.truncatedCount))
}

// ResetTruncatedCount resets the truncation counter to zero.
func (p *Parser) ResetTruncatedCount() {
	atomic.StoreInt32(&p.truncatedCount, 0)
}

func (p *Parser) truncateCodeText(text string) string {
	if int64(len(text)) <= p.maxCodeTextSize {
		return text
	}
	atomic.AddInt32(&p.truncatedCount, 1)
	return text[:p.maxCodeTextSize]
}

var (
	jsFuncRe      = regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s*(\w+)\s*\(`)
	jsConstFuncRe = regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*=>|[\w]+\s*=>)`)
	jsClassRe     = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?class\s+(\w+)`)
	pyFuncRe      = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+(\w+)\s*\(`)
	pyClassRe     = regexp.MustCompile(`^(\s*)class\s+(\w+)`)
	callRe        = regexp.MustCompile(`(\w+)\s*\(`)
)

// ParseFile implements CodeParser using line-oriented matching instead of a
// real grammar.
func (p *Parser) ParseFile(fileInfo FileInfo) (*ParseResult, error) {
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

	lines := strings.Split(string(content), "\n")

	var functions []FunctionEntity
	var types []TypeEntity
	var calls []CallsEdge

	switch fileInfo.Language {
	case "go":
		functions, calls = p.parseGoFile(string(content), fileInfo.Path)
	case "javascript", "jsx", "typescript", "tsx":
		functions, types = p.parseJSSimplified(lines, fileInfo.Path)
		calls = p.extractAllCallsSimplified(lines, functions)
	case "python":
		functions, types = p.parsePythonSimplified(lines, fileInfo.Path)
		calls = p.extractAllCallsSimplified(lines, functions)
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
		File:         file,
		Functions:    functions,
		Types:        types,
		Defines:      defines,
		DefinesTypes: definesTypes,
		Calls:        calls,
	}, nil
}

// braceBlockEnd returns the 0-based index of the line on which the brace
// block opened at startLine (the line containing the first '{' at or after
// startLine) closes, by counting braces character by character.
func braceBlockEnd(lines []string, startLine int) int {
	depth := 0
	seenOpen := false
	for i := startLine; i < len(lines); i++ {
		for _, ch := range lines[i] {
			switch ch {
			case '{':
				depth++
				seenOpen = true
			case '}':
				depth--
			}
		}
		if seenOpen && depth <= 0 {
			return i
		}
	}
	return len(lines) - 1
}

// indentBlockEnd returns the 0-based index of the last line belonging to a
// Python block whose header is at startLine with the given indentation
// (measured in leading-whitespace characters).
func indentBlockEnd(lines []string, startLine int, headerIndent int) int {
	end := startLine
	for i := startLine + 1; i < len(lines); i++ {
		trimmed := strings.TrimRight(lines[i], " \t\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		indent := len(trimmed) - len(strings.TrimLeft(trimmed, " \t"))
		if indent <= headerIndent {
			break
		}
		end = i
	}
	return end
}

func (p *Parser) parseJSSimplified(lines []string, filePath string) ([]FunctionEntity, []TypeEntity) {
	var functions []FunctionEntity
	var types []TypeEntity

	for i, line := range lines {
		var name string
		switch {
		case jsFuncRe.MatchString(line):
			name = jsFuncRe.FindStringSubmatch(line)[1]
		case jsConstFuncRe.MatchString(line):
			name = jsConstFuncRe.FindStringSubmatch(line)[1]
		case jsClassRe.MatchString(line):
			m := jsClassRe.FindStringSubmatch(line)
			className := m[1]
			endLine := braceBlockEnd(lines, i)
			codeText := p.truncateCodeText(strings.Join(lines[i:endLine+1], "\n"))
			id := GenerateTypeID(filePath, className, i+1, endLine+1)
			types = append(types, TypeEntity{
				ID:        id,
				Name:      className,
				Kind:      "class",
				FilePath:  filePath,
				CodeText:  codeText,
				StartLine: i + 1,
				EndLine:   endLine + 1,
				StartCol:  1,
				EndCol:    len(lines[endLine]) + 1,
			})
			continue
		default:
			continue
		}

		if name == "" || (!strings.Contains(line, "{") && !braceOnNextLines(lines, i)) {
			continue
		}

		endLine := braceBlockEnd(lines, i)
		codeText := p.truncateCodeText(strings.Join(lines[i:endLine+1], "\n"))
		signature := strings.TrimSpace(line)
		if idx := strings.Index(signature, "{"); idx != -1 {
			signature = strings.TrimSpace(signature[:idx])
		}
		id := GenerateFunctionID(filePath, name, signature, i+1, endLine+1, 1, len(lines[endLine])+1)
		functions = append(functions, FunctionEntity{
			ID:        id,
			Name:      name,
			Signature: signature,
			FilePath:  filePath,
			CodeText:  codeText,
			StartLine: i + 1,
			EndLine:   endLine + 1,
			StartCol:  1,
			EndCol:    len(lines[endLine]) + 1,
		})
	}

	return functions, types
}

// braceOnNextLines handles the Allman-brace style, where a declaration's
// '{' lands on the following source line rather than the same one.
func braceOnNextLines(lines []string, i int) bool {
	for j := i + 1; j < len(lines) && j < i+3; j++ {
		t := strings.TrimSpace(lines[j])
		if t == "" {
			continue
		}
		return strings.HasPrefix(t, "{")
	}
	return false
}

func (p *Parser) parsePythonSimplified(lines []string, filePath string) ([]FunctionEntity, []TypeEntity) {
	var functions []FunctionEntity
	var types []TypeEntity

	for i, line := range lines {
		if m := pyFuncRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			name := m[2]
			endLine := indentBlockEnd(lines, i, indent)
			codeText := p.truncateCodeText(strings.Join(lines[i:endLine+1], "\n"))
			signature := strings.TrimSuffix(strings.TrimSpace(line), ":")
			id := GenerateFunctionID(filePath, name, signature, i+1, endLine+1, indent+1, len(lines[endLine])+1)
			functions = append(functions, FunctionEntity{
				ID:        id,
				Name:      name,
				Signature: signature,
				FilePath:  filePath,
				CodeText:  codeText,
				StartLine: i + 1,
				EndLine:   endLine + 1,
				StartCol:  indent + 1,
				EndCol:    len(lines[endLine]) + 1,
			})
			continue
		}

		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			name := m[2]
			endLine := indentBlockEnd(lines, i, indent)
			codeText := p.truncateCodeText(strings.Join(lines[i:endLine+1], "\n"))
			id := GenerateTypeID(filePath, name, i+1, endLine+1)
			types = append(types, TypeEntity{
				ID:        id,
				Name:      name,
				Kind:      "class",
				FilePath:  filePath,
				CodeText:  codeText,
				StartLine: i + 1,
				EndLine:   endLine + 1,
				StartCol:  indent + 1,
				EndCol:    len(lines[endLine]) + 1,
			})
		}
	}

	return functions, types
}

// extractAllCallsSimplified resolves same-file calls for every function in
// functions against each other. Used by the JS/Python paths; Go's call
// extraction is handled inline by parseGoFile/extractGoCallsSimplified.
func (p *Parser) extractAllCallsSimplified(lines []string, functions []FunctionEntity) []CallsEdge {
	funcNameToID := make(map[string]string, len(functions))
	for _, fn := range functions {
		funcNameToID[fn.Name] = fn.ID
	}
	var calls []CallsEdge
	for _, fn := range functions {
		calls = append(calls, p.extractCallsSimplified(lines, fn, funcNameToID)...)
	}
	return calls
}

// extractCallsSimplified scans fn's own line range for call-shaped
// `identifier(` occurrences, resolving same-file calls against funcNameToID.
func (p *Parser) extractCallsSimplified(lines []string, fn FunctionEntity, funcNameToID map[string]string) []CallsEdge {
	var calls []CallsEdge
	seen := make(map[string]bool)

	for i := fn.StartLine; i <= fn.EndLine && i-1 < len(lines); i++ {
		if i == fn.StartLine {
			continue // skip the declaration line itself
		}
		for _, m := range callRe.FindAllStringSubmatch(lines[i-1], -1) {
			calleeName := m[1]
			calleeID, ok := funcNameToID[calleeName]
			if !ok || calleeID == fn.ID {
				continue
			}
			key := fn.ID + "->" + calleeID
			if seen[key] {
				continue
			}
			seen[key] = true
			calls = append(calls, CallsEdge{CallerID: fn.ID, CalleeID: calleeID})
		}
	}

	return calls
}
