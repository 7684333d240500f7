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

import "testing"

func TestChooseRoute(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		minTokens int
		want      RouteMode
	}{
		{"bare identifier routes to regex", "BuildMutations", 0, RouteRegex},
		{"dotted path routes to regex", "pkg.tools.RouteSearch", 0, RouteRegex},
		{"regex metacharacters route to regex", "Batch(Request|Response)", 0, RouteRegex},
		{"natural language question routes to semantic", "how does authentication work here", 0, RouteSemantic},
		{"short query below token floor routes to regex", "parse", 3, RouteRegex},
		{"query meeting token floor routes to semantic", "where do we parse the request body", 3, RouteSemantic},
		{"whitespace-only query routes to regex", "   ", 0, RouteRegex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChooseRoute(tt.query, tt.minTokens)
			if got != tt.want {
				t.Fatalf("ChooseRoute(%q, %d) = %s, want %s", tt.query, tt.minTokens, got, tt.want)
			}
		})
	}
}

func TestChooseRoute_DefaultsMinTokensToOne(t *testing.T) {
	// A single-word query is still >= the default floor of 1, so it should
	// fall through to the identifier/metachar checks rather than the floor.
	got := ChooseRoute("authentication", 0)
	if got != RouteRegex {
		t.Fatalf("expected bare word to match the identifier pattern and route to regex, got %s", got)
	}
}

func TestRouteSearch_ExplicitRegexMode(t *testing.T) {
	ctx, client := setupTestWithMock(t, []string{"name", "file_path"}, [][]any{{"Batcher.Batch", "/pkg/batch.go"}})

	result, mode, err := RouteSearch(ctx, client, RouteSearchArgs{
		Query: "Batcher.Batch",
		Mode:  "regex",
		Limit: 10,
	})
	assertNoError(t, err)
	if mode != RouteRegex {
		t.Fatalf("expected RouteRegex, got %s", mode)
	}
	if result == nil || result.Text == "" {
		t.Fatal("expected non-empty result")
	}
}

func TestRouteSearch_ExplicitSemanticMode(t *testing.T) {
	ctx, client := setupTestWithMock(t, []string{"name", "file_path"}, [][]any{{"HandleAuth", "/pkg/auth.go"}})

	result, mode, err := RouteSearch(ctx, client, RouteSearchArgs{
		Query: "authentication",
		Mode:  "semantic",
		Limit: 10,
	})
	assertNoError(t, err)
	if mode != RouteSemantic {
		t.Fatalf("expected RouteSemantic, got %s", mode)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}
}

func TestRouteSearch_AutoModeFollowsChooseRoute(t *testing.T) {
	ctx, client := setupTestWithMock(t, []string{"name", "file_path"}, [][]any{{"ParseArgs", "/pkg/cli.go"}})

	result, mode, err := RouteSearch(ctx, client, RouteSearchArgs{
		Query: "ParseArgs",
		Mode:  "auto",
		Limit: 10,
	})
	assertNoError(t, err)
	if mode != RouteRegex {
		t.Fatalf("expected bare identifier to auto-route to regex, got %s", mode)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}
}

func TestRouteSearch_AutoModeRoutesProseToSemantic(t *testing.T) {
	ctx, client := setupTestWithMock(t, []string{"name", "file_path"}, [][]any{{"HandleAuth", "/pkg/auth.go"}})

	_, mode, err := RouteSearch(ctx, client, RouteSearchArgs{
		Query: "how do we validate incoming webhook signatures",
		Mode:  "auto",
		Limit: 10,
	})
	assertNoError(t, err)
	if mode != RouteSemantic {
		t.Fatalf("expected prose query to auto-route to semantic, got %s", mode)
	}
}
