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
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// JAVASCRIPT PARSER
// =============================================================================

// parseJavaScriptAST extracts functions, classes, and calls from plain
// JavaScript source. TypeScript's walker is reused since the JS subset of
// its node types (function_declaration, arrow_function, method_definition,
// class_declaration, ...) is identical; the TS-only node types it also
// checks for (method_signature, function_signature) simply never match.
func (p *TreeSitterParser) parseJavaScriptAST(content []byte, filePath string) ([]FunctionEntity, []TypeEntity, []CallsEdge, error) {
	tree, err := p.jsParser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	if rootNode.HasError() {
		if errorCount := countErrors(rootNode); errorCount > 0 {
			p.logger.Warn("parser.treesitter.javascript.syntax_errors",
				"path", filePath,
				"error_count", errorCount,
			)
		}
	}

	var functions []FunctionEntity
	funcNameToID := make(map[string]string)
	anonCounter := 0

	p.walkTSFunctions(rootNode, content, filePath, &functions, funcNameToID, &anonCounter)

	types := p.extractTSTypes(rootNode, content, filePath)

	var calls []CallsEdge
	for _, fn := range functions {
		calls = append(calls, p.extractJSCalls(rootNode, content, fn, funcNameToID)...)
	}

	return functions, types, calls, nil
}

// extractJSFunction extracts a `function name(...) { ... }` declaration.
func (p *TreeSitterParser) extractJSFunction(node *sitter.Node, content []byte, filePath string) *FunctionEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])
	return p.createJSFunctionEntity(node, content, filePath, name)
}

// extractJSMethod extracts a class `method(...) { ... }` definition.
func (p *TreeSitterParser) extractJSMethod(node *sitter.Node, content []byte, filePath string) *FunctionEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])
	return p.createJSFunctionEntity(node, content, filePath, name)
}

// extractJSArrowOrExpressionFunction extracts `const name = (...) => {...}`
// or `const name = function(...) {...}`, naming the function after the
// variable it's assigned to.
func (p *TreeSitterParser) extractJSArrowOrExpressionFunction(nameNode, valueNode *sitter.Node, content []byte, filePath string) *FunctionEntity {
	if nameNode == nil || valueNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])
	return p.createJSFunctionEntity(valueNode, content, filePath, name)
}

// extractJSAnonymousArrow extracts a standalone arrow function expression
// that isn't bound to a variable (e.g. passed inline as a callback),
// synthesizing a name from anonCounter so it still gets a stable ID.
func (p *TreeSitterParser) extractJSAnonymousArrow(node *sitter.Node, content []byte, filePath string, anonCounter int) *FunctionEntity {
	name := fmt.Sprintf("<anonymous_%d>", anonCounter)
	return p.createJSFunctionEntity(node, content, filePath, name)
}

// createJSFunctionEntity builds a FunctionEntity from a function-like node,
// used by all JS/TS extraction entry points above.
func (p *TreeSitterParser) createJSFunctionEntity(node *sitter.Node, content []byte, filePath, name string) *FunctionEntity {
	signature := jsSignature(node, content)

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	startCol := int(node.StartPoint().Column) + 1
	endCol := int(node.EndPoint().Column) + 1

	codeText := string(content[node.StartByte():node.EndByte()])
	codeText = p.truncateCodeText(codeText)

	id := GenerateFunctionID(filePath, name, signature, startLine, endLine, startCol, endCol)

	return &FunctionEntity{
		ID:        id,
		Name:      name,
		Signature: signature,
		FilePath:  filePath,
		CodeText:  codeText,
		StartLine: startLine,
		EndLine:   endLine,
		StartCol:  startCol,
		EndCol:    endCol,
	}
}

// jsSignature renders the parameter list (and, for TS, return type) of a
// function-like node as a single-line signature, stopping before the body.
func jsSignature(node *sitter.Node, content []byte) string {
	bodyNode := node.ChildByFieldName("body")
	end := node.EndByte()
	if bodyNode != nil {
		end = bodyNode.StartByte()
	}
	if end <= node.StartByte() {
		return string(content[node.StartByte():node.EndByte()])
	}
	return string(content[node.StartByte():end])
}

// extractJSCalls walks fn's CodeText range of the tree to find call
// expressions made from within that function body, resolving against
// funcNameToID for same-file calls.
func (p *TreeSitterParser) extractJSCalls(rootNode *sitter.Node, content []byte, fn FunctionEntity, funcNameToID map[string]string) []CallsEdge {
	var calls []CallsEdge
	seen := make(map[string]bool)
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		startLine := int(n.StartPoint().Row) + 1
		if startLine >= fn.StartLine && startLine <= fn.EndLine && n.Type() == "call_expression" {
			calleeNode := n.ChildByFieldName("function")
			if calleeNode != nil {
				calleeName := lastIdentifier(string(content[calleeNode.StartByte():calleeNode.EndByte()]))
				if calleeID, ok := funcNameToID[calleeName]; ok && calleeID != fn.ID {
					key := fn.ID + "->" + calleeID
					if !seen[key] {
						seen[key] = true
						calls = append(calls, CallsEdge{CallerID: fn.ID, CalleeID: calleeID})
					}
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(rootNode)

	return calls
}

// lastIdentifier returns the final `.`-separated component of a callee
// expression, e.g. "this.service.save" -> "save".
func lastIdentifier(expr string) string {
	last := expr
	for i := len(expr) - 1; i >= 0; i-- {
		if expr[i] == '.' {
			last = expr[i+1:]
			break
		}
	}
	return last
}
