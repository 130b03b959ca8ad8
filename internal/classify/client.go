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

// Package classify invokes the external content-understanding model and
// normalises its free-text JSON answer into a structured result. The model
// is a black box: bytes + mime type + prompt in, text out. Everything the
// pipeline relies on — the allow-list, the "Unknown" sentinel, strict JSON
// parsing — is enforced on this side of the wire.
package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
)

// UnknownLabel is the sentinel the model is instructed to return when no
// folder applies. Matching layers treat it as an explicit no-match.
const UnknownLabel = "Unknown"

// ErrUnsupportedType is returned before any network call for mime types
// outside the allow-list.
var ErrUnsupportedType = errors.New("unsupported document type")

// allowedMimeTypes is the set of content types the model provider accepts.
var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
}

// APIError is a non-2xx answer from the model endpoint. It keeps the status
// code typed so Retryable can decide without string matching.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("model API returned HTTP %d: %s", e.StatusCode, e.Body)
}

// FolderOption is one taxonomy entry offered to the model.
type FolderOption struct {
	Name string
	Hint string
}

// Result is the normalised classification outcome.
type Result struct {
	Classification string
	Confidence     int // 0-100
	ExtractedData  map[string]any
	Summary        string
}

// Config holds the model endpoint and its OAuth2 client credentials.
// Missing credentials disable classification rather than failing startup.
type Config struct {
	Endpoint     string
	Model        string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Client calls the content-understanding model over HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	disabled   bool
}

// New builds a client authenticated via the OAuth2 client-credentials flow.
// Without credentials the client is disabled and Classify yields the
// deterministic Unknown fallback, so callers never block on this dependency.
func New(ctx context.Context, cfg Config) *Client {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.Endpoint == "" {
		slog.Warn("model credentials not configured, classification disabled")
		return &Client{disabled: true}
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}

	return &Client{
		httpClient: creds.Client(ctx),
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
	}
}

// NewClient builds a client with an explicit http.Client. Used by tests and
// by deployments that terminate auth elsewhere.
func NewClient(httpClient *http.Client, endpoint, model string) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
	}
}

// Disabled reports whether the client has no usable credentials.
func (c *Client) Disabled() bool { return c.disabled }

// generateRequest is the model endpoint's request body: one text part with
// the prompt and one inline-data part with the document bytes.
type generateRequest struct {
	Contents []struct {
		Parts []part `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature      float64 `json:"temperature"`
		ResponseMIMEType string  `json:"response_mime_type"`
	} `json:"generation_config"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// generateResponse is the subset of the model answer we read.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Classify sends the document to the model and parses its answer. The mime
// type is checked before any I/O. A disabled client returns the Unknown
// fallback without touching the network.
func (c *Client) Classify(ctx context.Context, content []byte, mimeType string, folders []FolderOption) (*Result, error) {
	if !allowedMimeTypes[mimeType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}

	if c.disabled {
		return &Result{
			Classification: UnknownLabel,
			Confidence:     0,
			ExtractedData:  map[string]any{},
			Summary:        "classification disabled: no model credentials configured",
		}, nil
	}

	var reqBody generateRequest
	reqBody.Contents = make([]struct {
		Parts []part `json:"parts"`
	}, 1)
	reqBody.Contents[0].Parts = []part{
		{Text: BuildPrompt(folders)},
		{InlineData: &inlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(content),
		}},
	}
	reqBody.GenerationConfig.Temperature = 0
	reqBody.GenerationConfig.ResponseMIMEType = "application/json"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal model request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	var gen generateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if len(gen.Candidates) == 0 || len(gen.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("model returned no candidates")
	}

	return parseResult(gen.Candidates[0].Content.Parts[0].Text)
}

// rawResult mirrors the JSON shape the prompt demands from the model.
type rawResult struct {
	Classification string         `json:"classification"`
	Confidence     json.Number    `json:"confidence"`
	ExtractedData  map[string]any `json:"extractedData"`
	Summary        string         `json:"summary"`
}

// parseResult turns the model's free text into a Result. Models wrap JSON in
// code fences or preamble often enough that we cut to the outermost object
// before decoding; anything still unparseable is a classification failure,
// never a guessed result.
func parseResult(text string) (*Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("model response contains no JSON object: %s", truncate(text, 128))
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("model response is not the expected JSON shape: %w", err)
	}

	if strings.TrimSpace(raw.Classification) == "" {
		return nil, fmt.Errorf("model response missing classification")
	}

	confidence := 0
	if raw.Confidence != "" {
		f, err := raw.Confidence.Float64()
		if err != nil {
			return nil, fmt.Errorf("model confidence is not numeric: %w", err)
		}
		confidence = int(f)
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	extracted := raw.ExtractedData
	if extracted == nil {
		extracted = map[string]any{}
	}

	return &Result{
		Classification: strings.TrimSpace(raw.Classification),
		Confidence:     confidence,
		ExtractedData:  extracted,
		Summary:        strings.TrimSpace(raw.Summary),
	}, nil
}

// Retryable reports whether a model-call error is transient. The typed
// status code wins; string markers cover wrapped transport errors from
// providers that only surface text.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "500", "503", "overloaded", "rate limit", "quota"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
