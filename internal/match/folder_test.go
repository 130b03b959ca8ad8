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

package match

import (
	"testing"

	"github.com/crewfile/intake/internal/models"
)

func taxonomy() []models.Folder {
	return []models.Folder{
		{ID: "f1", Name: "Safety Forms", ClassificationHint: "checklist, induction, toolbox talk"},
		{ID: "f2", Name: "Invoices", ClassificationHint: "payment, billing"},
		{ID: "f3", Name: "Site Photos", ClassificationHint: ""},
		{ID: "f4", Name: "Delivery Dockets", ClassificationHint: "docket, goods received"},
	}
}

// TestBest_TierSelection verifies each tier fires for its kind of label and
// that earlier tiers win.
func TestBest_TierSelection(t *testing.T) {
	m := New(0)

	tests := []struct {
		name     string
		label    string
		wantID   string
		wantTier string
	}{
		{"exact", "Invoices", "f2", "exact"},
		{"exact case and whitespace", "  sAfEtY fOrMs  ", "f1", "exact"},
		{"normalized punctuation", "Safety-Forms!", "f1", "normalized"},
		{"substring label contains name", "Scanned Invoices March", "f2", "substring"},
		{"substring name contains label", "Dockets", "f4", "substring"},
		{"hint full label", "toolbox talk", "f1", "hint"},
		{"hint label word", "Goods inward register", "f4", "hint"},
		{"overlap", "site progress photos", "f3", "overlap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Best(tt.label, taxonomy())
			if !ok {
				t.Fatalf("Best(%q) found no match", tt.label)
			}
			if got.FolderID != tt.wantID {
				t.Errorf("folder = %s, want %s", got.FolderID, tt.wantID)
			}
			if got.Tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", got.Tier, tt.wantTier)
			}
		})
	}
}

// TestBest_ExactNeverFallsThrough verifies an exact-name label (any casing,
// padded) always resolves at tier 1 even when later tiers would also match.
func TestBest_ExactNeverFallsThrough(t *testing.T) {
	m := New(0)
	folders := []models.Folder{
		{ID: "a", Name: "Permits", ClassificationHint: "permits and approvals"},
		{ID: "b", Name: "permits", ClassificationHint: ""},
	}

	got, ok := m.Best("PERMITS", folders)
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Tier != "exact" {
		t.Errorf("tier = %s, want exact", got.Tier)
	}
	// First candidate in iteration order wins the tie.
	if got.FolderID != "a" {
		t.Errorf("folder = %s, want a", got.FolderID)
	}
}

// TestBest_UnknownSentinel verifies the sentinel skips the cascade entirely,
// even when a folder is literally named Unknown.
func TestBest_UnknownSentinel(t *testing.T) {
	m := New(0)
	folders := append(taxonomy(), models.Folder{ID: "f9", Name: "Unknown"})

	for _, label := range []string{"Unknown", "unknown", " UNKNOWN ", ""} {
		if _, ok := m.Best(label, folders); ok {
			t.Errorf("Best(%q) matched, want no match", label)
		}
	}
}

// TestBest_NoMatchBelowThreshold verifies the overlap tier returns no match
// at or below the threshold.
func TestBest_NoMatchBelowThreshold(t *testing.T) {
	m := New(0.5)
	folders := []models.Folder{
		{ID: "f1", Name: "Weekly Reports", ClassificationHint: ""},
	}

	// One of two significant words overlaps: score 0.5 is not > 0.5.
	if got, ok := m.Best("reports cathedral", folders); ok {
		t.Errorf("matched %v at score 0.5, want no match", got)
	}
}

// TestBest_ThresholdConfigurable verifies a lowered threshold admits matches
// the default would reject.
func TestBest_ThresholdConfigurable(t *testing.T) {
	folders := []models.Folder{
		{ID: "f1", Name: "Weekly Reports", ClassificationHint: ""},
	}

	if _, ok := New(0.5).Best("reports cathedral", folders); ok {
		t.Fatal("default threshold should reject score 0.5")
	}
	got, ok := New(0.4).Best("reports cathedral", folders)
	if !ok {
		t.Fatal("threshold 0.4 should admit score 0.5")
	}
	if got.FolderID != "f1" {
		t.Errorf("folder = %s, want f1", got.FolderID)
	}
}

// TestOverlapScore_Monotonic verifies adding shared significant words never
// decreases the score.
func TestOverlapScore_Monotonic(t *testing.T) {
	vocab := []string{"safety", "forms", "induction", "checklist"}

	prev := -1.0
	labelWords := []string{}
	for _, w := range vocab {
		labelWords = append(labelWords, w)
		score := overlapScore(labelWords, vocab)
		if score < prev {
			t.Fatalf("score decreased from %v to %v after adding %q", prev, score, w)
		}
		prev = score
	}
	if prev != 1.0 {
		t.Errorf("full overlap score = %v, want 1.0", prev)
	}
}

// TestNormalize covers the punctuation and whitespace rules.
func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Safety-Forms!", "safety forms"},
		{"  A   lot\tof   space ", "a lot of space"},
		{"ALL CAPS", "all caps"},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
