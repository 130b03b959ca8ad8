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

package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// modelServer builds an httptest server that answers generateContent with
// the given candidate text.
func modelServer(t *testing.T, candidateText string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"parts": []any{map[string]any{"text": candidateText}},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

// TestClassify_UnsupportedTypeFailsFast verifies disallowed mime types fail
// before any network call.
func TestClassify_UnsupportedTypeFailsFast(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "understander-1")
	_, err := c.Classify(context.Background(), []byte("x"), "application/zip", nil)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
	if called {
		t.Error("model endpoint should not be called for an unsupported type")
	}
}

// TestClassify_DisabledFallback verifies a credential-less client yields the
// deterministic Unknown result without network access.
func TestClassify_DisabledFallback(t *testing.T) {
	c := New(context.Background(), Config{})
	if !c.Disabled() {
		t.Fatal("client without credentials should be disabled")
	}

	res, err := c.Classify(context.Background(), []byte("%PDF-1.4"), "application/pdf", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Classification != UnknownLabel {
		t.Errorf("classification = %q, want %q", res.Classification, UnknownLabel)
	}
	if res.Confidence != 0 {
		t.Errorf("confidence = %d, want 0", res.Confidence)
	}
}

// TestClassify_ParsesWellFormedAnswer covers the straight-through path.
func TestClassify_ParsesWellFormedAnswer(t *testing.T) {
	answer := `{"classification": "Safety Forms", "confidence": 92, "extractedData": {"workerName": "Alice Arnold", "documentDate": "2026-03-14"}, "summary": "Completed pre-shift safety checklist."}`
	server := modelServer(t, answer)
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "understander-1")
	res, err := c.Classify(context.Background(), []byte("%PDF-1.4"), "application/pdf", []FolderOption{
		{Name: "Safety Forms", Hint: "checklist, induction"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Classification != "Safety Forms" {
		t.Errorf("classification = %q", res.Classification)
	}
	if res.Confidence != 92 {
		t.Errorf("confidence = %d, want 92", res.Confidence)
	}
	if res.ExtractedData["workerName"] != "Alice Arnold" {
		t.Errorf("workerName = %v", res.ExtractedData["workerName"])
	}
}

// TestClassify_FencedAnswer verifies fenced or preambled JSON still parses.
func TestClassify_FencedAnswer(t *testing.T) {
	answer := "Here is the result:\n```json\n{\"classification\": \"Invoices\", \"confidence\": 71, \"summary\": \"An invoice.\"}\n```"
	server := modelServer(t, answer)
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "understander-1")
	res, err := c.Classify(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Classification != "Invoices" || res.Confidence != 71 {
		t.Errorf("got %q/%d, want Invoices/71", res.Classification, res.Confidence)
	}
}

// TestClassify_MalformedAnswerIsError verifies non-JSON and wrong-shape
// answers fail rather than guessing.
func TestClassify_MalformedAnswerIsError(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"plain text", "I could not classify this document."},
		{"missing classification", `{"confidence": 50}`},
		{"non-numeric confidence", `{"classification": "Other", "confidence": "high"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := modelServer(t, tt.answer)
			defer server.Close()

			c := NewClient(server.Client(), server.URL, "understander-1")
			_, err := c.Classify(context.Background(), []byte("x"), "image/jpeg", nil)
			if err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

// TestClassify_ConfidenceClamped verifies out-of-range confidence values are
// clamped into 0-100.
func TestClassify_ConfidenceClamped(t *testing.T) {
	server := modelServer(t, `{"classification": "Other", "confidence": 140}`)
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "understander-1")
	res, err := c.Classify(context.Background(), []byte("x"), "image/webp", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confidence != 100 {
		t.Errorf("confidence = %d, want 100", res.Confidence)
	}
}

// TestClassify_APIErrorCarriesStatus verifies non-200 answers surface as a
// typed APIError.
func TestClassify_APIErrorCarriesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "overloaded")
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, "understander-1")
	_, err := c.Classify(context.Background(), []byte("x"), "image/png", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", apiErr.StatusCode)
	}
}

// TestRetryable covers the transient/fatal error split.
func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed 429", &APIError{StatusCode: 429}, true},
		{"typed 500", &APIError{StatusCode: 500}, true},
		{"typed 503", &APIError{StatusCode: 503}, true},
		{"typed 400", &APIError{StatusCode: 400}, false},
		{"wrapped typed", fmt.Errorf("call model: %w", &APIError{StatusCode: 429}), true},
		{"rate limit text", errors.New("provider says: Rate Limit exceeded"), true},
		{"quota text", errors.New("quota exhausted for project"), true},
		{"overloaded text", errors.New("model is overloaded"), true},
		{"fatal", errors.New("invalid request"), false},
		{"unsupported type", fmt.Errorf("%w: text/plain", ErrUnsupportedType), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestBuildPrompt verifies the taxonomy and sentinel appear in the prompt.
func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]FolderOption{
		{Name: "Safety Forms", Hint: "checklist, induction"},
		{Name: "Invoices"},
	})

	for _, want := range []string{`"Safety Forms"`, "checklist, induction", `"Invoices"`, "Unknown", "ISO-8601"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
