// Copyright 2025 KrakLabs
// SPDX-License-Identifier: Apache-2.0

package rerank

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRank_MonotonicInSimilarity(t *testing.T) {
	w := DefaultWeights()
	candidates := []Candidate{
		{ID: "a", Kind: "function", Name: "Foo", FilePath: "a.go", Similarity: 0.5},
		{ID: "b", Kind: "function", Name: "Bar", FilePath: "b.go", Similarity: 0.9},
	}
	results := Rank("unrelated", candidates, w)
	require.Equal(t, "b", results[0].ID)
}

func TestRank_TestFilePenalized(t *testing.T) {
	w := DefaultWeights()
	candidates := []Candidate{
		{ID: "impl", Kind: "function", Name: "Parse", FilePath: "parser.go", Similarity: 0.6},
		{ID: "test", Kind: "function", Name: "Parse", FilePath: "parser_test.go", Similarity: 0.6},
	}
	results := Rank("parse", candidates, w)
	require.Equal(t, "impl", results[0].ID)
	require.Contains(t, results[1].Explanation, "path_class=test")
}

func TestRank_NameMatchBonus(t *testing.T) {
	w := DefaultWeights()
	candidates := []Candidate{
		{ID: "match", Kind: "function", Name: "ParseConfig", FilePath: "a.go", Similarity: 0.5},
		{ID: "nomatch", Kind: "function", Name: "DoThing", FilePath: "b.go", Similarity: 0.5},
	}
	results := Rank("parseconfig", candidates, w)
	require.Equal(t, "match", results[0].ID)
}
