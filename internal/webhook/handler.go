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

// Package webhook exposes the HTTP surface of the intake service. The
// email provider POSTs parsed inbound messages to /intake/inbound; the
// handler acknowledges fast and runs the pipeline in the background.
// Operators trigger synchronous reprocessing through /intake/reprocess.
package webhook

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/crewfile/intake/internal/models"
	"github.com/crewfile/intake/internal/pipeline"
)

// Runner is the pipeline surface the handler drives.
type Runner interface {
	ProcessMessage(ctx context.Context, msg *models.InboundMessage) (*pipeline.Report, error)
	Reprocess(ctx context.Context, projectID string, ids []string) (*pipeline.Report, error)
}

// Dedup suppresses redelivered webhook payloads. Forget releases a claim
// after a failed run so redelivery can retry the message.
type Dedup interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
	Forget(ctx context.Context, messageID string) error
}

// Pinger reports backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// inboundAttachment mirrors the provider's attachment encoding. Content
// arrives base64 in content_bytes.
type inboundAttachment struct {
	Filename     string `json:"filename"`
	ContentType  string `json:"content_type"`
	Size         int    `json:"size"`
	ContentBytes string `json:"content_bytes"`
}

// inboundPayload is the provider's parsed-message webhook body.
type inboundPayload struct {
	MessageID   string                `json:"message_id"`
	From        models.EmailAddress   `json:"from"`
	Recipient   string                `json:"recipient"`
	To          []models.EmailAddress `json:"to"`
	Subject     string                `json:"subject"`
	Attachments []inboundAttachment   `json:"attachments"`
}

// reprocessRequest is the operator-facing reprocess body. An empty
// DocumentIDs list means every pending or review document in the project.
type reprocessRequest struct {
	ProjectID   string   `json:"project_id"`
	DocumentIDs []string `json:"document_ids"`
}

// Handler serves the intake HTTP endpoints.
type Handler struct {
	runner  Runner
	filter  Dedup
	pingers []Pinger
}

// NewHandler creates the intake handler. Pingers back the health endpoint;
// pass the stores whose loss should flip /health red.
func NewHandler(runner Runner, filter Dedup, pingers ...Pinger) *Handler {
	return &Handler{
		runner:  runner,
		filter:  filter,
		pingers: pingers,
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/intake/inbound", h.ServeInbound)
	mux.HandleFunc("/intake/reprocess", h.ServeReprocess)
	mux.HandleFunc("/health", h.ServeHealth)
}

// ServeInbound accepts one parsed inbound message.
//
// The provider expects a fast response and retries on anything but 2xx:
//   - 202 means the message was accepted and is processing in the background
//   - 200 means the message was understood and deliberately ignored
//   - 400 means the payload is malformed and a retry will not help
func (h *Handler) ServeInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload inboundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("inbound payload not valid JSON", "error", err)
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	msg, err := payload.toMessage()
	if err != nil {
		slog.Warn("inbound payload rejected", "message_id", payload.MessageID, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if len(msg.Attachments) == 0 {
		slog.Info("message without attachments ignored", "message_id", msg.MessageID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if msg.MessageID != "" {
		isNew, err := h.filter.IsNew(r.Context(), msg.MessageID)
		if err != nil {
			slog.Warn("dedup check failed, proceeding", "error", err)
		} else if !isNew {
			slog.Info("duplicate delivery ignored", "message_id", msg.MessageID)
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	// Acknowledge before running the pipeline; classification can take
	// longer than the provider's delivery timeout.
	w.WriteHeader(http.StatusAccepted)

	go func() {
		ctx := context.Background()
		if _, err := h.runner.ProcessMessage(ctx, msg); err != nil {
			slog.Error("inbound processing failed",
				"message_id", msg.MessageID,
				"error", err,
			)
			// Release the dedup claim so the provider's redelivery is
			// not suppressed for a message that produced nothing.
			if msg.MessageID != "" {
				if ferr := h.filter.Forget(ctx, msg.MessageID); ferr != nil {
					slog.Warn("dedup release failed", "message_id", msg.MessageID, "error", ferr)
				}
			}
		}
	}()
}

// ServeReprocess runs the pipeline synchronously over stored documents and
// returns the run report.
func (h *Handler) ServeReprocess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req reprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	report, err := h.runner.Reprocess(r.Context(), req.ProjectID, req.DocumentIDs)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrMissingProject),
			errors.Is(err, pipeline.ErrNoProject),
			errors.Is(err, pipeline.ErrNoFolders):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			slog.Error("reprocess failed", "project_id", req.ProjectID, "error", err)
			http.Error(w, "reprocess failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		slog.Error("encode reprocess report", "error", err)
	}
}

// ServeHealth pings every registered backend and reports 503 when any is down.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	for _, p := range h.pingers {
		if err := p.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// toMessage decodes the provider payload into the pipeline's message form.
// Recipients carries both the envelope recipient and the To header so
// project resolution can try each.
func (p *inboundPayload) toMessage() (*models.InboundMessage, error) {
	msg := &models.InboundMessage{
		MessageID: p.MessageID,
		From:      p.From,
		Subject:   p.Subject,
	}
	if p.Recipient != "" {
		msg.Recipients = append(msg.Recipients, p.Recipient)
	}
	for _, to := range p.To {
		msg.Recipients = append(msg.Recipients, to.Address)
	}
	if len(msg.Recipients) == 0 {
		return nil, errors.New("payload has no recipients")
	}

	for _, a := range p.Attachments {
		content, err := base64.StdEncoding.DecodeString(a.ContentBytes)
		if err != nil {
			return nil, fmt.Errorf("attachment %q: undecodable content: %w", a.Filename, err)
		}
		msg.Attachments = append(msg.Attachments, models.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			Content:     content,
		})
	}
	return msg, nil
}

// Serve starts the intake HTTP server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// accepting connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	handler.Register(mux)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind intake port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("intake server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("intake server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("intake server error", "error", err)
		}
	}()

	return ready, nil
}
