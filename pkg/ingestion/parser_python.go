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
// PYTHON PARSER
// =============================================================================

// parsePythonAST extracts functions, classes, and calls from Python source.
func (p *TreeSitterParser) parsePythonAST(content []byte, filePath string) ([]FunctionEntity, []TypeEntity, []CallsEdge, error) {
	tree, err := p.pyParser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	if rootNode.HasError() {
		if errorCount := countErrors(rootNode); errorCount > 0 {
			p.logger.Warn("parser.treesitter.python.syntax_errors",
				"path", filePath,
				"error_count", errorCount,
			)
		}
	}

	var functions []FunctionEntity
	var types []TypeEntity
	funcNameToID := make(map[string]string)

	p.walkPythonAST(rootNode, content, filePath, &functions, &types, funcNameToID, "")

	var calls []CallsEdge
	for _, fn := range functions {
		calls = append(calls, p.extractPythonCalls(rootNode, content, fn, funcNameToID)...)
	}

	return functions, types, calls, nil
}

// walkPythonAST recursively collects function_definition and class_definition
// nodes, unwrapping decorated_definition wrappers so a decorated function or
// class is still attributed to its real name and position. Methods defined
// directly in a class body are named ClassName.method; funcNameToID keys them
// by the bare method name so calls like self.method() resolve.
func (p *TreeSitterParser) walkPythonAST(node *sitter.Node, content []byte, filePath string, functions *[]FunctionEntity, types *[]TypeEntity, funcNameToID map[string]string, className string) {
	if node == nil {
		return
	}

	target := node
	if node.Type() == "decorated_definition" {
		if def := node.ChildByFieldName("definition"); def != nil {
			target = def
		}
	}

	childClass := className
	switch target.Type() {
	case "function_definition":
		fn := p.extractPythonFunction(node, target, content, filePath)
		if fn != nil {
			funcNameToID[fn.Name] = fn.ID
			if className != "" {
				fn.Name = className + "." + fn.Name
			}
			*functions = append(*functions, *fn)
		}
		childClass = ""
	case "class_definition":
		te := p.extractPythonClass(node, target, content, filePath)
		if te != nil {
			*types = append(*types, *te)
			childClass = te.Name
		}
	}

	for i := 0; i < int(target.ChildCount()); i++ {
		p.walkPythonAST(target.Child(i), content, filePath, functions, types, funcNameToID, childClass)
	}
}

// extractPythonFunction builds a FunctionEntity from a function_definition
// node. outerNode is the decorated_definition wrapper when present (so
// CodeText/position include the decorators), otherwise it equals defNode.
func (p *TreeSitterParser) extractPythonFunction(outerNode, defNode *sitter.Node, content []byte, filePath string) *FunctionEntity {
	nameNode := defNode.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])

	signature := pythonSignature(defNode, content)

	startLine := int(outerNode.StartPoint().Row) + 1
	endLine := int(outerNode.EndPoint().Row) + 1
	startCol := int(outerNode.StartPoint().Column) + 1
	endCol := int(outerNode.EndPoint().Column) + 1

	codeText := string(content[outerNode.StartByte():outerNode.EndByte()])
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

// pythonSignature renders `def name(params) -> ret:` without the body.
func pythonSignature(defNode *sitter.Node, content []byte) string {
	bodyNode := defNode.ChildByFieldName("body")
	end := defNode.EndByte()
	if bodyNode != nil {
		end = bodyNode.StartByte()
	}
	if end <= defNode.StartByte() {
		return string(content[defNode.StartByte():defNode.EndByte()])
	}
	sig := string(content[defNode.StartByte():end])
	return trimTrailingColon(sig)
}

func trimTrailingColon(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case ':':
			return s[:i]
		default:
			return s
		}
	}
	return s
}

// extractPythonClass builds a TypeEntity from a class_definition node.
func (p *TreeSitterParser) extractPythonClass(outerNode, defNode *sitter.Node, content []byte, filePath string) *TypeEntity {
	nameNode := defNode.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])

	startLine := int(outerNode.StartPoint().Row) + 1
	endLine := int(outerNode.EndPoint().Row) + 1
	startCol := int(outerNode.StartPoint().Column) + 1
	endCol := int(outerNode.EndPoint().Column) + 1

	codeText := string(content[outerNode.StartByte():outerNode.EndByte()])
	codeText = p.truncateCodeText(codeText)

	id := GenerateTypeID(filePath, name, startLine, endLine)

	return &TypeEntity{
		ID:        id,
		Name:      name,
		Kind:      "class",
		FilePath:  filePath,
		CodeText:  codeText,
		StartLine: startLine,
		EndLine:   endLine,
		StartCol:  startCol,
		EndCol:    endCol,
	}
}

// extractPythonCalls walks the tree for `call` nodes whose line falls
// within fn's range, resolving same-file calls against funcNameToID.
func (p *TreeSitterParser) extractPythonCalls(rootNode *sitter.Node, content []byte, fn FunctionEntity, funcNameToID map[string]string) []CallsEdge {
	var calls []CallsEdge
	seen := make(map[string]bool)

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		startLine := int(n.StartPoint().Row) + 1
		if startLine >= fn.StartLine && startLine <= fn.EndLine && n.Type() == "call" {
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
