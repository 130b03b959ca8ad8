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

// Package pipeline orchestrates document intake end to end: project
// resolution, blob persistence, classification with retry, folder
// matching, shift correlation and finalization. It runs in two modes,
// webhook-driven message intake and operator-triggered reprocessing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crewfile/intake/internal/classify"
	"github.com/crewfile/intake/internal/correlate"
	"github.com/crewfile/intake/internal/lifecycle"
	"github.com/crewfile/intake/internal/match"
	"github.com/crewfile/intake/internal/models"
	"github.com/crewfile/intake/internal/retry"
)

// DefaultInterDocumentDelay spaces classification calls within one run so
// a many-attachment message does not burst the model endpoint.
const DefaultInterDocumentDelay = 500 * time.Millisecond

var (
	// ErrNoProject means no recipient address resolved to a registered project.
	ErrNoProject = errors.New("no project matches any recipient address")
	// ErrNoFolders means the project has an empty taxonomy and nothing can be filed.
	ErrNoFolders = errors.New("project has no folders configured")
	// ErrMissingProject means a reprocess request omitted the project id.
	ErrMissingProject = errors.New("project id is required")
)

// Store is the slice of the relational store the pipeline reads and writes.
type Store interface {
	ResolveProjectByIntakeAddress(ctx context.Context, address string) (*models.Project, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListFolders(ctx context.Context, projectID string) ([]models.Folder, error)
	ListActiveShifts(ctx context.Context, projectID string) ([]models.Shift, error)
	ListUnsubmittedWorkers(ctx context.Context, projectID string) ([]models.ShiftWorker, error)
	InsertDocument(ctx context.Context, doc *models.ReceivedDocument) error
	ListReprocessable(ctx context.Context, projectID string, ids []string) ([]models.ReceivedDocument, error)
}

// BlobStore persists and retrieves raw document bytes.
type BlobStore interface {
	Upload(ctx context.Context, path string, content []byte, contentType string) error
	Download(ctx context.Context, path string) ([]byte, error)
}

// Classifier sends document content to the classification model.
type Classifier interface {
	Classify(ctx context.Context, content []byte, mimeType string, folders []classify.FolderOption) (*classify.Result, error)
}

// Finalizer persists a document's terminal state.
type Finalizer interface {
	Finalize(ctx context.Context, fin lifecycle.Finalization) (models.DocumentStatus, error)
}

// Config tunes pipeline pacing and retry behavior.
type Config struct {
	InterDocumentDelay time.Duration
	Retry              retry.Policy
}

// Pipeline wires the intake stages together.
type Pipeline struct {
	store      Store
	blobs      BlobStore
	classifier Classifier
	matcher    *match.Matcher
	finalizer  Finalizer
	cfg        Config
}

func New(store Store, blobs BlobStore, classifier Classifier, matcher *match.Matcher, finalizer Finalizer, cfg Config) *Pipeline {
	if cfg.InterDocumentDelay <= 0 {
		cfg.InterDocumentDelay = DefaultInterDocumentDelay
	}
	return &Pipeline{
		store:      store,
		blobs:      blobs,
		classifier: classifier,
		matcher:    matcher,
		finalizer:  finalizer,
		cfg:        cfg,
	}
}

// ItemResult records the outcome for one document in a run.
type ItemResult struct {
	DocumentID string `json:"document_id,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Status     string `json:"status,omitempty"`
	Tier       string `json:"tier,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Report summarizes one pipeline run over a message or a reprocess batch.
type Report struct {
	ProjectID   string       `json:"project_id"`
	Items       []ItemResult `json:"items"`
	Filed       int          `json:"filed"`
	NeedsReview int          `json:"needs_review"`
	Skipped     int          `json:"skipped"`
}

func (r *Report) add(item ItemResult) {
	r.Items = append(r.Items, item)
	switch {
	case item.Skipped:
		r.Skipped++
	case item.Status == string(models.StatusFiled):
		r.Filed++
	case item.Status == string(models.StatusNeedsReview):
		r.NeedsReview++
	}
}

// ProcessMessage runs the full intake pipeline for one inbound message.
// The project is resolved from the recipient list; the first address that
// maps to a registered project wins. Every attachment is persisted and
// classified, with a pacing delay between documents.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg *models.InboundMessage) (*Report, error) {
	project, err := p.resolveProject(ctx, msg.Recipients)
	if err != nil {
		return nil, err
	}

	folders, err := p.store.ListFolders(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("list folders for %s: %w", project.ID, err)
	}
	if len(folders) == 0 {
		return nil, ErrNoFolders
	}

	sourceIdentity := correlate.ExtractAddress(msg.From.Address)
	report := &Report{ProjectID: project.ID}

	for i, att := range msg.Attachments {
		if i > 0 {
			if err := waitDelay(ctx, p.cfg.InterDocumentDelay); err != nil {
				return report, err
			}
		}

		if len(att.Content) == 0 {
			slog.Warn("empty attachment skipped",
				"project_id", project.ID,
				"filename", att.Filename,
			)
			report.add(ItemResult{Filename: att.Filename, Skipped: true, Error: "empty attachment"})
			continue
		}

		// The storage path embeds the document id, so the id is assigned
		// here and the row carries its final path from the first write.
		doc := &models.ReceivedDocument{
			ID:             uuid.New().String(),
			ProjectID:      project.ID,
			MimeType:       att.ContentType,
			SourceIdentity: sourceIdentity,
			Status:         models.StatusPending,
		}
		doc.StoragePath = fmt.Sprintf("projects/%s/intake/%s/%s", project.ID, doc.ID, att.Filename)
		if err := p.store.InsertDocument(ctx, doc); err != nil {
			report.add(ItemResult{Filename: att.Filename, Skipped: true, Error: err.Error()})
			slog.Error("document insert failed",
				"project_id", project.ID,
				"filename", att.Filename,
				"error", err,
			)
			continue
		}
		if err := p.blobs.Upload(ctx, doc.StoragePath, att.Content, att.ContentType); err != nil {
			report.add(ItemResult{DocumentID: doc.ID, Filename: att.Filename, Skipped: true, Error: err.Error()})
			slog.Error("attachment upload failed",
				"document_id", doc.ID,
				"path", doc.StoragePath,
				"error", err,
			)
			continue
		}

		item := p.processDocument(ctx, doc, att.Content, folders, msg.From.Name)
		item.Filename = att.Filename
		report.add(item)
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}

	slog.Info("message processed",
		"project_id", project.ID,
		"message_id", msg.MessageID,
		"filed", report.Filed,
		"needs_review", report.NeedsReview,
		"skipped", report.Skipped,
	)
	return report, nil
}

// Reprocess re-runs classification and routing for stored documents that
// did not reach a filed state, or for an explicit id list.
func (p *Pipeline) Reprocess(ctx context.Context, projectID string, ids []string) (*Report, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, ErrMissingProject
	}
	project, err := p.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectID, err)
	}
	if project == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNoProject)
	}

	folders, err := p.store.ListFolders(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("list folders for %s: %w", project.ID, err)
	}
	if len(folders) == 0 {
		return nil, ErrNoFolders
	}

	docs, err := p.store.ListReprocessable(ctx, project.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", project.ID, err)
	}

	report := &Report{ProjectID: project.ID}
	for i := range docs {
		doc := &docs[i]
		if i > 0 {
			if err := waitDelay(ctx, p.cfg.InterDocumentDelay); err != nil {
				return report, err
			}
		}

		content, err := p.blobs.Download(ctx, doc.StoragePath)
		if err != nil {
			report.add(ItemResult{DocumentID: doc.ID, Skipped: true, Error: err.Error()})
			slog.Error("document download failed",
				"document_id", doc.ID,
				"path", doc.StoragePath,
				"error", err,
			)
			continue
		}

		item := p.processDocument(ctx, doc, content, folders, "")
		report.add(item)
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}

	slog.Info("reprocess complete",
		"project_id", project.ID,
		"documents", len(docs),
		"filed", report.Filed,
		"needs_review", report.NeedsReview,
		"skipped", report.Skipped,
	)
	return report, nil
}

// processDocument classifies one document and drives it to a terminal
// state. Classification failures finalize to review rather than abandoning
// the document; only context cancellation leaves it in flight.
func (p *Pipeline) processDocument(ctx context.Context, doc *models.ReceivedDocument, content []byte, folders []models.Folder, senderName string) ItemResult {
	options := make([]classify.FolderOption, 0, len(folders))
	for _, f := range folders {
		options = append(options, classify.FolderOption{Name: f.Name, Hint: f.ClassificationHint})
	}

	result, err := retry.Do(ctx, p.cfg.Retry, classify.Retryable, func(ctx context.Context) (*classify.Result, error) {
		return p.classifier.Classify(ctx, content, doc.MimeType, options)
	})
	if ctx.Err() != nil {
		// Shutdown mid-flight leaves the document pending for a later
		// reprocess run rather than finalizing a half-done result.
		return ItemResult{DocumentID: doc.ID, Skipped: true, Error: ctx.Err().Error()}
	}
	if err != nil {
		status, ferr := p.finalizer.Finalize(ctx, lifecycle.Finalization{
			Doc:     doc,
			Failure: fmt.Sprintf("classification failed: %v", err),
		})
		if ferr != nil {
			return ItemResult{DocumentID: doc.ID, Skipped: true, Error: ferr.Error()}
		}
		return ItemResult{DocumentID: doc.ID, Status: string(status), Error: err.Error()}
	}

	fin := lifecycle.Finalization{Doc: doc, Result: result}
	item := ItemResult{DocumentID: doc.ID}

	if m, ok := p.matcher.Best(result.Classification, folders); ok {
		fin.FolderID = m.FolderID
		item.Tier = m.Tier
	}

	// Correlation reads are best effort. A flaky shift query should not
	// send an otherwise classifiable document back through retry.
	shifts, err := p.store.ListActiveShifts(ctx, doc.ProjectID)
	if err != nil {
		slog.Warn("active shift lookup failed", "project_id", doc.ProjectID, "error", err)
	}
	workers, err := p.store.ListUnsubmittedWorkers(ctx, doc.ProjectID)
	if err != nil {
		slog.Warn("worker roster lookup failed", "project_id", doc.ProjectID, "error", err)
	}
	// The name tier prefers the name the model read off the document; the
	// sender's display name is only a fallback, since the sender may be
	// forwarding someone else's paperwork.
	workerName := senderName
	if v, ok := result.ExtractedData["workerName"].(string); ok && v != "" {
		workerName = v
	}
	if outcome, ok := correlate.Match(workers, shifts, doc.SourceIdentity, workerName); ok {
		fin.ShiftID = outcome.ShiftID
		fin.WorkerID = outcome.WorkerID
	}

	status, err := p.finalizer.Finalize(ctx, fin)
	if err != nil {
		item.Skipped = true
		item.Error = err.Error()
		return item
	}
	item.Status = string(status)
	return item
}

// resolveProject flattens the raw recipient strings into addresses and
// returns the first one registered as a project intake address.
func (p *Pipeline) resolveProject(ctx context.Context, recipients []string) (*models.Project, error) {
	for _, raw := range recipients {
		for _, addr := range correlate.ExtractAddressList(raw) {
			project, err := p.store.ResolveProjectByIntakeAddress(ctx, addr)
			if err != nil {
				return nil, fmt.Errorf("resolve project for %s: %w", addr, err)
			}
			if project != nil {
				return project, nil
			}
		}
	}
	return nil, ErrNoProject
}

func waitDelay(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
