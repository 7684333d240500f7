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
	"strings"
)

// DatalogBuilder turns parsed entities into CozoScript mutation statements
// against the cie_* tables. It holds no state; the zero value is ready to use.
type DatalogBuilder struct{}

// NewDatalogBuilder creates a DatalogBuilder.
func NewDatalogBuilder() *DatalogBuilder {
	return &DatalogBuilder{}
}

// BuildMutationsWithTypes builds one :put statement per non-empty entity
// slice and joins them into a single script, in the convention every entry
// is wrapped in its own { ... } block so the result can be executed as one
// script or split by Batcher into smaller ones.
func (b *DatalogBuilder) BuildMutationsWithTypes(
	files []FileEntity,
	functions []FunctionEntity,
	types []TypeEntity,
	defines []DefinesEdge,
	definesTypes []DefinesTypeEdge,
	calls []CallsEdge,
	imports []ImportEntity,
	symbols []SymbolEntity,
) string {
	var stmts []string

	if len(files) > 0 {
		rows := make([]string, len(files))
		for i, f := range files {
			rows[i] = fmt.Sprintf("[%q, %q, %q, %q, %d]", f.ID, f.Path, f.Hash, f.Language, f.Size)
		}
		stmts = append(stmts, fmt.Sprintf(
			"{ ?[id, path, hash, language, size] <- [%s] :put cie_file {id => path, hash, language, size} }",
			strings.Join(rows, ", "),
		))
	}

	if len(functions) > 0 {
		rows := make([]string, len(functions))
		codeRows := make([]string, len(functions))
		for i, fn := range functions {
			rows[i] = fmt.Sprintf("[%q, %q, %q, %q, %d, %d, %d, %d]",
				fn.ID, fn.Name, fn.Signature, fn.FilePath, fn.StartLine, fn.EndLine, fn.StartCol, fn.EndCol)
			codeRows[i] = fmt.Sprintf("[%q, %q]", fn.ID, fn.CodeText)
		}
		stmts = append(stmts, fmt.Sprintf(
			"{ ?[id, name, signature, file_path, start_line, end_line, start_col, end_col] <- [%s] :put cie_function {id => name, signature, file_path, start_line, end_line, start_col, end_col} }",
			strings.Join(rows, ", "),
		))
		stmts = append(stmts, fmt.Sprintf(
			"{ ?[function_id, code_text] <- [%s] :put cie_function_code {function_id => code_text} }",
			strings.Join(codeRows, ", "),
		))

		var embRows []string
		for _, fn := range functions {
			if len(fn.Embedding) == 0 {
				continue
			}
			embRows = append(embRows, fmt.Sprintf("[%q, %s]", fn.ID, floatArrayLiteral(fn.Embedding)))
		}
		if len(embRows) > 0 {
			stmts = append(stmts, fmt.Sprintf(
				"{ ?[function_id, embedding] <- [%s] :put cie_function_embedding {function_id => embedding} }",
				strings.Join(embRows, ", "),
			))
		}
	}

	if len(types) > 0 {
		rows := make([]string, len(types))
		codeRows := make([]string, len(types))
		for i, t := range types {
			rows[i] = fmt.Sprintf("[%q, %q, %q, %q, %d, %d, %d, %d]",
				t.ID, t.Name, t.Kind, t.FilePath, t.StartLine, t.EndLine, t.StartCol, t.EndCol)
			codeRows[i] = fmt.Sprintf("[%q, %q]", t.ID, t.CodeText)
		}
		stmts = append(stmts, fmt.Sprintf(
			"{ ?[id, name, kind, file_path, start_line, end_line, start_col, end_col] <- [%s] :put cie_type {id => name, kind, file_path, start_line, end_line, start_col, end_col} }",
			strings.Join(rows, ", "),
		))
		stmts = append(stmts, fmt.Sprintf(
			"{ ?[type_id, code_text] <- [%s] :put cie_type_code {type_id => code_text} }",
			strings.Join(codeRows, ", "),
		))

		var embRows []string
		for _, t := range types {
			if len(t.Embedding) == 0 {
				continue
			}
			embRows = append(embRows, fmt.Sprintf("[%q, %s]", t.ID, floatArrayLiteral(t.Embedding)))
		}
		if len(embRows) > 0 {
			stmts = append(stmts, fmt.Sprintf(
				"{ ?[type_id, embedding] <- [%s] :put cie_type_embedding {type_id => embedding} }",
				strings.Join(embRows, ", "),
			))
		}
	}

	if len(defines) > 0 {
		rows := make([]string, len(defines))
		for i, d := range defines {
			rows[i] = fmt.Sprintf("[%q, %q, %q]", d.ID, d.FileID, d.FunctionID)
		}
		stmts = append(stmts, fmt.Sprintf(
			"{ ?[id, file_id, function_id] <- [%s] :put cie_defines {id => file_id, function_id} }",
			strings.Join(rows, ", "),
		))
	}

	if len(definesTypes) > 0 {
		rows := make([]string, len(definesTypes))
		for i, d := range definesTypes {
			rows[i] = fmt.Sprintf("[%q, %q, %q]", d.ID, d.FileID, d.TypeID)
		}
		stmts = append(stmts, fmt.Sprintf(
			"{ ?[id, file_id, type_id] <- [%s] :put cie_defines_type {id => file_id, type_id} }",
			strings.Join(rows, ", "),
		))
	}

	if len(calls) > 0 {
		rows := make([]string, len(calls))
		for i, c := range calls {
			id := c.ID
			if id == "" {
				id = GenerateCallID(c.CallerID, c.CalleeID)
			}
			rows[i] = fmt.Sprintf("[%q, %q, %q]", id, c.CallerID, c.CalleeID)
		}
		stmts = append(stmts, fmt.Sprintf(
			"{ ?[id, caller_id, callee_id] <- [%s] :put cie_calls {id => caller_id, callee_id} }",
			strings.Join(rows, ", "),
		))
	}

	if len(imports) > 0 {
		rows := make([]string, len(imports))
		for i, imp := range imports {
			rows[i] = fmt.Sprintf("[%q, %q, %q, %q, %d]", imp.ID, imp.FilePath, imp.ImportPath, imp.Alias, imp.StartLine)
		}
		stmts = append(stmts, fmt.Sprintf(
			"{ ?[id, file_path, import_path, alias, start_line] <- [%s] :put cie_import {id => file_path, import_path, alias, start_line} }",
			strings.Join(rows, ", "),
		))
	}

	if len(symbols) > 0 {
		rows := make([]string, len(symbols))
		codeRows := make([]string, len(symbols))
		for i, s := range symbols {
			rows[i] = fmt.Sprintf("[%q, %q, %q, %q, %d, %d, %q]",
				s.ID, s.Kind, s.Name, s.FilePath, s.StartLine, s.EndLine, s.ParentName)
			codeRows[i] = fmt.Sprintf("[%q, %q]", s.ID, s.CodeText)
		}
		stmts = append(stmts, fmt.Sprintf(
			"{ ?[id, kind, name, file_path, start_line, end_line, parent_name] <- [%s] :put cie_symbol {id => kind, name, file_path, start_line, end_line, parent_name} }",
			strings.Join(rows, ", "),
		))
		stmts = append(stmts, fmt.Sprintf(
			"{ ?[symbol_id, code_text] <- [%s] :put cie_symbol_code {symbol_id => code_text} }",
			strings.Join(codeRows, ", "),
		))

		var embRows []string
		for _, s := range symbols {
			if len(s.Embedding) == 0 {
				continue
			}
			embRows = append(embRows, fmt.Sprintf("[%q, %s]", s.ID, floatArrayLiteral(s.Embedding)))
		}
		if len(embRows) > 0 {
			stmts = append(stmts, fmt.Sprintf(
				"{ ?[symbol_id, embedding] <- [%s] :put cie_symbol_embedding {symbol_id => embedding} }",
				strings.Join(embRows, ", "),
			))
		}
	}

	return strings.Join(stmts, "\n")
}

// floatArrayLiteral renders a []float32 as a CozoScript vector literal.
func floatArrayLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// DeletionSet names the entity IDs to remove in BuildDeletions, one slice
// per table that a file re-index or repo delta marks stale.
type DeletionSet struct {
	FileIDs            []string
	FunctionIDs        []string
	TypeIDs            []string
	CallsEdgeIDs       []string
	DefinesEdgeIDs     []string
	DefinesTypeEdgeIDs []string
	ImportIDs          []string
	SymbolIDs          []string
}

// BuildDeletions builds one :rm statement per non-empty ID slice in
// deletions. Function and type deletions also remove their code_text and
// embedding rows, since those tables are keyed by the same ID and would
// otherwise orphan.
func (b *DatalogBuilder) BuildDeletions(deletions DeletionSet) string {
	var stmts []string

	if len(deletions.FileIDs) > 0 {
		stmts = append(stmts, rmStatement("id", "cie_file", deletions.FileIDs))
	}
	if len(deletions.FunctionIDs) > 0 {
		stmts = append(stmts, rmStatement("id", "cie_function", deletions.FunctionIDs))
		stmts = append(stmts, rmStatement("function_id", "cie_function_code", deletions.FunctionIDs))
		stmts = append(stmts, rmStatement("function_id", "cie_function_embedding", deletions.FunctionIDs))
	}
	if len(deletions.TypeIDs) > 0 {
		stmts = append(stmts, rmStatement("id", "cie_type", deletions.TypeIDs))
		stmts = append(stmts, rmStatement("type_id", "cie_type_code", deletions.TypeIDs))
		stmts = append(stmts, rmStatement("type_id", "cie_type_embedding", deletions.TypeIDs))
	}
	if len(deletions.CallsEdgeIDs) > 0 {
		stmts = append(stmts, rmStatement("id", "cie_calls", deletions.CallsEdgeIDs))
	}
	if len(deletions.DefinesEdgeIDs) > 0 {
		stmts = append(stmts, rmStatement("id", "cie_defines", deletions.DefinesEdgeIDs))
	}
	if len(deletions.DefinesTypeEdgeIDs) > 0 {
		stmts = append(stmts, rmStatement("id", "cie_defines_type", deletions.DefinesTypeEdgeIDs))
	}
	if len(deletions.ImportIDs) > 0 {
		stmts = append(stmts, rmStatement("id", "cie_import", deletions.ImportIDs))
	}
	if len(deletions.SymbolIDs) > 0 {
		stmts = append(stmts, rmStatement("id", "cie_symbol", deletions.SymbolIDs))
		stmts = append(stmts, rmStatement("symbol_id", "cie_symbol_code", deletions.SymbolIDs))
		stmts = append(stmts, rmStatement("symbol_id", "cie_symbol_embedding", deletions.SymbolIDs))
	}

	return strings.Join(stmts, "\n")
}

// rmStatement builds `{ ?[key] <- [[id1], [id2], ...] :rm table {key} }`.
func rmStatement(keyCol, table string, ids []string) string {
	rows := make([]string, len(ids))
	for i, id := range ids {
		rows[i] = fmt.Sprintf("[%q]", id)
	}
	return fmt.Sprintf("{ ?[%s] <- [%s] :rm %s {%s} }", keyCol, strings.Join(rows, ", "), table, keyCol)
}
