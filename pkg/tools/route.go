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

package tools

import (
	"context"
	"regexp"
	"strings"
)

// identifierLikePattern matches a single bare identifier/dotted-path token,
// the shape of query that is almost always meant as a literal/regex lookup
// rather than a natural-language question.
var identifierLikePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// regexMetacharPattern matches characters that strongly suggest the caller
// wrote a deliberate regex pattern rather than prose.
var regexMetacharPattern = regexp.MustCompile(`[()\[\]\\^$|]`)

// RouteMode names which path RouteSearch chose.
type RouteMode string

const (
	RouteRegex    RouteMode = "regex"
	RouteSemantic RouteMode = "semantic"
)

// RouteSearchArgs are the parameters shared by both search backends; Mode
// may force a path ("semantic"/"regex") or be left "auto" to use the
// routing heuristic below.
type RouteSearchArgs struct {
	Query          string
	Mode           string // "auto", "semantic", or "regex"
	Limit          int
	MinTokens      int // floor below which a query routes to regex in auto mode; default 1
	Role           string
	PathPattern    string
	EmbeddingURL   string
	EmbeddingModel string
}

// ChooseRoute applies the deterministic auto-routing heuristic: a query
// routes to regex when it looks like a single identifier, contains regex
// metacharacters suggesting a deliberate pattern, or falls below the
// configured token-count floor; otherwise it routes to semantic.
func ChooseRoute(query string, minTokens int) RouteMode {
	trimmed := strings.TrimSpace(query)
	if minTokens <= 0 {
		minTokens = 1
	}

	if identifierLikePattern.MatchString(trimmed) {
		return RouteRegex
	}
	if regexMetacharPattern.MatchString(trimmed) {
		return RouteRegex
	}
	if len(strings.Fields(trimmed)) < minTokens {
		return RouteRegex
	}
	return RouteSemantic
}

// RouteSearch dispatches a query to the regex or semantic backend per
// ChooseRoute (or an explicit override in args.Mode), returning the chosen
// route alongside the result so callers can report which path answered.
func RouteSearch(ctx context.Context, client Querier, args RouteSearchArgs) (*ToolResult, RouteMode, error) {
	mode := RouteMode(args.Mode)
	switch mode {
	case RouteRegex, RouteSemantic:
		// explicit override, use as-is
	default:
		mode = ChooseRoute(args.Query, args.MinTokens)
	}

	if mode == RouteRegex {
		result, err := SearchText(ctx, client, SearchTextArgs{
			Pattern: args.Query,
			Limit:   args.Limit,
		})
		return result, RouteRegex, err
	}

	result, err := SemanticSearch(ctx, client, SemanticSearchArgs{
		Query:          args.Query,
		Limit:          args.Limit,
		Role:           args.Role,
		PathPattern:    args.PathPattern,
		EmbeddingURL:   args.EmbeddingURL,
		EmbeddingModel: args.EmbeddingModel,
	})
	return result, RouteSemantic, err
}
