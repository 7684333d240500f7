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

// Package rerank layers additive, independent scoring signals on top of
// raw ANN similarity. No signal has veto power: the base similarity score
// always dominates, and every other signal contributes a small bonus or
// penalty, on the assumption that a downstream agent re-ranks again and
// this stage should optimize for recall over precision.
package rerank

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	testFilePattern      = regexp.MustCompile(`(?i)(_test\.go|test\.ts|test\.tsx|test\.js|\.test\.|_test\.py|tests/|__tests__/)`)
	generatedFilePattern = regexp.MustCompile(`(?i)(\.pb\.go|_generated\.go|\.gen\.go|_gen\.go|\.generated\.|/generated/)`)
	entryPointPattern    = regexp.MustCompile(`(?i)^main$`)
	routerNamePattern    = regexp.MustCompile(`(?i)(RegisterRoutes|SetupRoutes|InitRoutes|NewRouter|Routes|SetupRouter|SetupHandlers|RegisterAPI)`)
	handlerNamePattern   = regexp.MustCompile(`(?i)(Handler|Controller|handle[A-Z])`)
	languageTokens       = regexp.MustCompile(`(?i)\b(go|golang|python|py|typescript|ts|tsx|javascript|js|protobuf|proto)\b`)
)

// Weights controls the contribution of each signal. ANN similarity is
// always weighted 1.0 and is not configurable; these fields are the four
// bonus/penalty multipliers applied on top of it.
type Weights struct {
	Kind       float64
	PathClass  float64
	NameMatch  float64
	Language   float64
}

// DefaultWeights are the weights this implementation ships with.
func DefaultWeights() Weights {
	return Weights{Kind: 0.15, PathClass: 0.15, NameMatch: 0.2, Language: 0.1}
}

// Candidate is one ANN hit awaiting re-ranking.
type Candidate struct {
	ID         string
	Kind       string
	Name       string
	Signature  string
	FilePath   string
	Language   string
	Similarity float64 // raw cosine similarity in [0,1]
}

// Result is a Candidate after scoring, with the breakdown retained as the
// QueryResult explanation field.
type Result struct {
	Candidate
	FinalScore  float64
	Explanation []string
}

// Rank scores and sorts candidates for the given query text, highest
// FinalScore first. Ties break by higher raw similarity, then shorter file
// path, then lower line number is not available here and is left to the
// caller (Symbol ordering), so ties beyond similarity break by file path
// length and then lexicographic ID for determinism.
func Rank(query string, candidates []Candidate, w Weights) []Result {
	lowerQuery := strings.ToLower(query)
	queryTokens := tokenize(lowerQuery)

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		score := c.Similarity
		var explain []string

		if bonus, ok := kindBonus(c.Kind); ok {
			score += w.Kind * bonus
			explain = append(explain, fmt.Sprintf("kind=%s", c.Kind))
		}

		if delta, label, ok := pathClassDelta(c.FilePath, c.Name); ok {
			score += w.PathClass * delta
			explain = append(explain, label)
		}

		if nameMatches(queryTokens, c.Name, c.Signature) {
			score += w.NameMatch
			explain = append(explain, "name_match")
		}

		if languageMatches(lowerQuery, c.Language) {
			score += w.Language
			explain = append(explain, "language_match")
		}

		results = append(results, Result{Candidate: c, FinalScore: score, Explanation: explain})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if len(results[i].FilePath) != len(results[j].FilePath) {
			return len(results[i].FilePath) < len(results[j].FilePath)
		}
		return results[i].ID < results[j].ID
	})

	return results
}

func kindBonus(kind string) (float64, bool) {
	switch kind {
	case "function", "method", "class":
		return 1.0, true
	case "module_doc", "constant", "config":
		return 0.5, true
	case "import":
		return 0.0, false
	default:
		return 0.5, true
	}
}

func pathClassDelta(filePath, name string) (float64, string, bool) {
	switch {
	case testFilePattern.MatchString(filePath):
		return -0.1 / 0.15, "path_class=test", true
	case generatedFilePattern.MatchString(filePath):
		return -0.15 / 0.15, "path_class=generated", true
	case entryPointPattern.MatchString(name), routerNamePattern.MatchString(name), handlerNamePattern.MatchString(name):
		return 0.05 / 0.15, "path_class=entry_point", true
	default:
		return 0, "", false
	}
}

func nameMatches(queryTokens []string, name, signature string) bool {
	lowerName := strings.ToLower(name)
	lowerSig := strings.ToLower(signature)
	for _, tok := range queryTokens {
		if tok == "" {
			continue
		}
		if strings.Contains(lowerName, tok) || strings.Contains(lowerSig, tok) {
			return true
		}
	}
	return false
}

func languageMatches(lowerQuery, language string) bool {
	if language == "" {
		return false
	}
	for _, m := range languageTokens.FindAllString(lowerQuery, -1) {
		if strings.EqualFold(m, language) || aliasMatches(m, language) {
			return true
		}
	}
	return false
}

func aliasMatches(token, language string) bool {
	aliases := map[string]string{
		"go": "go", "golang": "go",
		"py": "python", "python": "python",
		"ts": "typescript", "tsx": "typescript", "typescript": "typescript",
		"js": "javascript", "javascript": "javascript",
		"proto": "protobuf", "protobuf": "protobuf",
	}
	return strings.EqualFold(aliases[strings.ToLower(token)], language)
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r == '_')
	})
	return fields
}
