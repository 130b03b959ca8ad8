// Copyright (c) 2026 John Earle
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

// Package match maps a free-text classification label onto a project's
// folder taxonomy. Labels come from a generative model and folder names from
// users, so neither side is clean; the cascade runs cheap deterministic
// tiers first and the fuzzy word-overlap scorer only as a last resort. Each
// tier is a pure function evaluated in a fixed order — the first tier that
// produces a match wins, and ties within a tier go to the first candidate in
// iteration order.
package match

import (
	"strings"
	"unicode"

	"github.com/crewfile/intake/internal/classify"
	"github.com/crewfile/intake/internal/models"
)

// Match is a successful cascade outcome. Tier names the strategy that won,
// for logging and review context.
type Match struct {
	FolderID string
	Tier     string
}

type strategy struct {
	name  string
	match func(label string, folders []models.Folder) (string, bool)
}

// Matcher evaluates the match cascade. The overlap threshold is injected
// because the right cut-off is a product decision, not a constant.
type Matcher struct {
	tiers []strategy
}

// DefaultOverlapThreshold is the word-overlap score a folder must exceed.
const DefaultOverlapThreshold = 0.5

// New builds a Matcher with the given word-overlap threshold; values <= 0
// fall back to the default.
func New(overlapThreshold float64) *Matcher {
	if overlapThreshold <= 0 {
		overlapThreshold = DefaultOverlapThreshold
	}
	return &Matcher{
		tiers: []strategy{
			{"exact", matchExact},
			{"normalized", matchNormalized},
			{"substring", matchSubstring},
			{"hint", matchHint},
			{"overlap", overlapStrategy(overlapThreshold)},
		},
	}
}

// Best returns the best-matching folder for a classification label, or
// false when nothing matches. The Unknown sentinel skips the cascade
// entirely.
func (m *Matcher) Best(label string, folders []models.Folder) (Match, bool) {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, classify.UnknownLabel) {
		return Match{}, false
	}

	for _, tier := range m.tiers {
		if id, ok := tier.match(label, folders); ok {
			return Match{FolderID: id, Tier: tier.name}, true
		}
	}
	return Match{}, false
}

// matchExact: label equals a folder name, case-insensitive, trimmed.
func matchExact(label string, folders []models.Folder) (string, bool) {
	for _, f := range folders {
		if strings.EqualFold(label, strings.TrimSpace(f.Name)) {
			return f.ID, true
		}
	}
	return "", false
}

// matchNormalized: equality after lower-casing, punctuation stripping and
// whitespace collapsing on both sides.
func matchNormalized(label string, folders []models.Folder) (string, bool) {
	n := normalize(label)
	if n == "" {
		return "", false
	}
	for _, f := range folders {
		if normalize(f.Name) == n {
			return f.ID, true
		}
	}
	return "", false
}

// matchSubstring: case-insensitive containment in either direction.
func matchSubstring(label string, folders []models.Folder) (string, bool) {
	l := strings.ToLower(label)
	for _, f := range folders {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if name == "" {
			continue
		}
		if strings.Contains(l, name) || strings.Contains(name, l) {
			return f.ID, true
		}
	}
	return "", false
}

// matchHint: the folder's classification hint contains the full label, or
// any label word longer than 3 characters.
func matchHint(label string, folders []models.Folder) (string, bool) {
	l := strings.ToLower(label)
	labelWords := words(l, 4)
	for _, f := range folders {
		hint := strings.ToLower(f.ClassificationHint)
		if hint == "" {
			continue
		}
		if strings.Contains(hint, l) {
			return f.ID, true
		}
		for _, w := range labelWords {
			if strings.Contains(hint, w) {
				return f.ID, true
			}
		}
	}
	return "", false
}

// overlapStrategy scores each folder by the share of significant label words
// found in the folder's combined name+hint vocabulary (containment in either
// direction) and picks the highest score strictly above the threshold.
func overlapStrategy(threshold float64) func(string, []models.Folder) (string, bool) {
	return func(label string, folders []models.Folder) (string, bool) {
		labelWords := words(normalize(label), 3)
		if len(labelWords) == 0 {
			return "", false
		}

		bestID := ""
		bestScore := 0.0
		for _, f := range folders {
			vocab := append(words(normalize(f.Name), 1), words(normalize(f.ClassificationHint), 1)...)
			score := overlapScore(labelWords, vocab)
			if score > bestScore {
				bestScore = score
				bestID = f.ID
			}
		}

		if bestScore > threshold {
			return bestID, true
		}
		return "", false
	}
}

// overlapScore = matched label words / total label words.
func overlapScore(labelWords, vocab []string) float64 {
	if len(labelWords) == 0 {
		return 0
	}
	matched := 0
	for _, w := range labelWords {
		for _, v := range vocab {
			if strings.Contains(v, w) || strings.Contains(w, v) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(labelWords))
}

// normalize lower-cases and collapses whitespace. Punctuation becomes a
// separator rather than vanishing, so "Safety-Forms" and "Safety Forms"
// normalize identically.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// words splits s into fields of at least minLen runes.
func words(s string, minLen int) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if len([]rune(w)) >= minLen {
			out = append(out, w)
		}
	}
	return out
}
