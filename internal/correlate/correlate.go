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

// Package correlate links an inbound document to the shift-form obligation
// it satisfies. Matching is pure: callers pass the unsubmitted workers of a
// project's active shifts and the package picks at most one. The actual
// worker mutation is the store's conditional claim, applied by the lifecycle
// controller.
package correlate

import (
	"strings"

	"github.com/crewfile/intake/internal/models"
)

// Outcome is a correlation result. WorkerID is empty for the
// single-active-shift fallback, which links the document to the shift for
// human triage without touching any worker row.
type Outcome struct {
	ShiftID  string
	WorkerID string
	Tier     string
}

// ExtractAddress pulls the email address out of a source identity string.
// `"Display Name" <addr>` yields addr; anything without brackets is
// returned trimmed as-is, because webhook providers are not reliably
// RFC-strict.
func ExtractAddress(raw string) string {
	if open := strings.LastIndex(raw, "<"); open >= 0 {
		if end := strings.Index(raw[open:], ">"); end > 0 {
			return strings.TrimSpace(raw[open+1 : open+end])
		}
	}
	return strings.TrimSpace(raw)
}

// ExtractAddressList splits a raw recipient header into individual
// addresses. Commas inside quoted display names do not split.
func ExtractAddressList(raw string) []string {
	var parts []string
	var b strings.Builder
	inQuotes := false
	for _, r := range raw {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			b.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	parts = append(parts, b.String())

	var out []string
	for _, p := range parts {
		if addr := ExtractAddress(p); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Match attempts to link a document to exactly one unsubmitted worker, in
// priority order: sender email, extracted worker name, then — only when the
// project has exactly one active shift — the shift itself with no worker.
// Workers must already be filtered to unsubmitted members of active shifts.
func Match(workers []models.ShiftWorker, activeShifts []models.Shift, sourceIdentity, workerName string) (Outcome, bool) {
	if addr := strings.ToLower(ExtractAddress(sourceIdentity)); addr != "" {
		for _, w := range workers {
			if w.Email != "" && strings.EqualFold(w.Email, addr) {
				return Outcome{ShiftID: w.ShiftID, WorkerID: w.ID, Tier: "email"}, true
			}
		}
	}

	if name := strings.ToLower(strings.TrimSpace(workerName)); name != "" {
		for _, w := range workers {
			candidate := strings.ToLower(strings.TrimSpace(w.Name))
			if candidate == "" {
				continue
			}
			if candidate == name || strings.Contains(candidate, name) || strings.Contains(name, candidate) {
				return Outcome{ShiftID: w.ShiftID, WorkerID: w.ID, Tier: "name"}, true
			}
		}
	}

	// Deliberately low-confidence fallback: a lone active shift receives the
	// document for human triage rather than risking a wrong worker link.
	if len(activeShifts) == 1 {
		return Outcome{ShiftID: activeShifts[0].ID, Tier: "single_active_shift"}, true
	}

	return Outcome{}, false
}
