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

package correlate

import (
	"reflect"
	"testing"

	"github.com/crewfile/intake/internal/models"
)

// TestExtractAddress covers bracketed and bare identities.
func TestExtractAddress(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"Alice A" <ALICE@X.COM>`, "ALICE@X.COM"},
		{"Bob <bob@example.com>", "bob@example.com"},
		{"plain@example.com", "plain@example.com"},
		{"  padded@example.com  ", "padded@example.com"},
		{"Unparseable Name", "Unparseable Name"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractAddress(tt.in); got != tt.want {
			t.Errorf("ExtractAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestExtractAddressList verifies comma-separated, bracket-wrapped recipient
// headers split into bare addresses.
func TestExtractAddressList(t *testing.T) {
	got := ExtractAddressList(`"Jane Doe" <intake+proj1@example.com>, ops@example.com`)
	want := []string{"intake+proj1@example.com", "ops@example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// A comma inside a quoted display name must not split.
	got = ExtractAddressList(`"Doe, Jane" <jane@example.com>, site@example.com`)
	want = []string{"jane@example.com", "site@example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("quoted comma: got %v, want %v", got, want)
	}
}

func roster() []models.ShiftWorker {
	return []models.ShiftWorker{
		{ID: "w1", ShiftID: "s1", Name: "Alice Arnold", Email: "alice@x.com"},
		{ID: "w2", ShiftID: "s1", Name: "Bob Byrne", Email: ""},
		{ID: "w3", ShiftID: "s2", Name: "Carol Chen", Email: "carol@x.com"},
	}
}

// TestMatch_EmailTier verifies case-insensitive email matching against a
// display-name-wrapped source identity.
func TestMatch_EmailTier(t *testing.T) {
	out, ok := Match(roster(), nil, `"Alice A" <ALICE@X.COM>`, "")
	if !ok {
		t.Fatal("expected a match")
	}
	if out.WorkerID != "w1" || out.ShiftID != "s1" || out.Tier != "email" {
		t.Errorf("got %+v, want worker w1 on shift s1 via email", out)
	}
}

// TestMatch_NameTier verifies name equality and containment in both
// directions, only after the email tier misses.
func TestMatch_NameTier(t *testing.T) {
	tests := []struct {
		name       string
		workerName string
		wantWorker string
	}{
		{"equality", "bob byrne", "w2"},
		{"candidate contains extracted", "Byrne", "w2"},
		{"extracted contains candidate", "Ms Carol Chen (Foreman)", "w3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := Match(roster(), nil, "unknown@elsewhere.com", tt.workerName)
			if !ok {
				t.Fatalf("expected a match for %q", tt.workerName)
			}
			if out.WorkerID != tt.wantWorker {
				t.Errorf("worker = %s, want %s", out.WorkerID, tt.wantWorker)
			}
			if out.Tier != "name" {
				t.Errorf("tier = %s, want name", out.Tier)
			}
		})
	}
}

// TestMatch_SingleActiveShiftFallback verifies that with no worker match and
// exactly one active shift, the document links to the shift with no worker.
func TestMatch_SingleActiveShiftFallback(t *testing.T) {
	shifts := []models.Shift{{ID: "s1", ProjectID: "p1", Status: models.ShiftActive}}

	out, ok := Match(roster(), shifts, "stranger@elsewhere.com", "Nobody Known")
	if !ok {
		t.Fatal("expected fallback match")
	}
	if out.WorkerID != "" {
		t.Errorf("workerID = %q, want empty (no worker mutation)", out.WorkerID)
	}
	if out.ShiftID != "s1" {
		t.Errorf("shiftID = %s, want s1", out.ShiftID)
	}
	if out.Tier != "single_active_shift" {
		t.Errorf("tier = %s", out.Tier)
	}
}

// TestMatch_NoFallbackWithMultipleShifts verifies the fallback requires
// exactly one active shift.
func TestMatch_NoFallbackWithMultipleShifts(t *testing.T) {
	shifts := []models.Shift{
		{ID: "s1", Status: models.ShiftActive},
		{ID: "s2", Status: models.ShiftActive},
	}

	if out, ok := Match(roster(), shifts, "stranger@elsewhere.com", ""); ok {
		t.Errorf("got %+v, want no match with two active shifts", out)
	}
}

// TestMatch_EmptyInputs verifies blank identity and name cannot match
// workers with blank fields.
func TestMatch_EmptyInputs(t *testing.T) {
	workers := []models.ShiftWorker{{ID: "w1", ShiftID: "s1", Name: "", Email: ""}}

	if out, ok := Match(workers, nil, "", ""); ok {
		t.Errorf("got %+v, want no match on empty inputs", out)
	}
}
