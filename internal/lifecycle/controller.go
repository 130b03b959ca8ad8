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

// Package lifecycle owns the document state machine: it turns a
// classification result plus match outcomes into a terminal status and
// issues the persistence writes. The document's own update is one atomic
// write; the worker claim and the routing-event publish ride along
// best-effort and can never fail the document.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewfile/intake/internal/classify"
	"github.com/crewfile/intake/internal/models"
	"github.com/crewfile/intake/internal/queue"
)

// DefaultFiledThreshold is the minimum confidence for auto-filing.
const DefaultFiledThreshold = 70

// Store is the slice of the transactional store the controller writes to.
type Store interface {
	FinalizeDocument(ctx context.Context, id string, upd models.DocumentUpdate) error
	ClaimWorkerSubmission(ctx context.Context, workerID, documentID string, at time.Time) (bool, error)
}

// Publisher emits routing events for downstream notifiers.
type Publisher interface {
	PublishRoutingEvent(ctx context.Context, event *queue.RoutingEvent) error
}

// Controller decides and persists terminal document states.
type Controller struct {
	store          Store
	events         Publisher
	filedThreshold int
	now            func() time.Time
}

// New creates a controller. A filedThreshold <= 0 falls back to the
// default; events may be nil when no notifier queue is wired.
func New(store Store, events Publisher, filedThreshold int) *Controller {
	if filedThreshold <= 0 {
		filedThreshold = DefaultFiledThreshold
	}
	return &Controller{
		store:          store,
		events:         events,
		filedThreshold: filedThreshold,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Decide computes the terminal status. A document is filed only when the
// model is confident enough AND a folder matched; every other combination
// goes to human review. Rejection is reserved for reviewers and never
// assigned here.
func (c *Controller) Decide(confidence int, folderMatched bool) models.DocumentStatus {
	if confidence >= c.filedThreshold && folderMatched {
		return models.StatusFiled
	}
	return models.StatusNeedsReview
}

// Finalization carries everything the controller persists for one document.
// A non-empty Failure means classification did not produce a result; the
// document goes to review with the failure captured in its summary.
type Finalization struct {
	Doc      *models.ReceivedDocument
	Result   *classify.Result
	FolderID string
	ShiftID  string
	WorkerID string
	Failure  string
}

// Finalize persists the terminal state and returns the status it assigned.
// An error here means the document write itself failed and nothing was
// committed for it.
func (c *Controller) Finalize(ctx context.Context, fin Finalization) (models.DocumentStatus, error) {
	now := c.now()

	upd := models.DocumentUpdate{
		FolderID:    fin.FolderID,
		ShiftID:     fin.ShiftID,
		ProcessedAt: now,
	}

	if fin.Failure != "" {
		upd.Status = models.StatusNeedsReview
		upd.Summary = fin.Failure
		upd.ExtractedData = map[string]any{}
	} else {
		upd.Status = c.Decide(fin.Result.Confidence, fin.FolderID != "")
		upd.ClassificationLabel = fin.Result.Classification
		upd.ConfidenceScore = fin.Result.Confidence
		upd.ExtractedData = fin.Result.ExtractedData
		upd.Summary = fin.Result.Summary
	}

	if err := c.store.FinalizeDocument(ctx, fin.Doc.ID, upd); err != nil {
		return "", fmt.Errorf("persist document %s: %w", fin.Doc.ID, err)
	}

	// Worker claim is decoupled from the document write: report failures,
	// never roll back. A lost conditional update means a concurrent
	// correlation already claimed the worker; that is a no-op.
	if fin.WorkerID != "" {
		claimed, err := c.store.ClaimWorkerSubmission(ctx, fin.WorkerID, fin.Doc.ID, now)
		switch {
		case err != nil:
			slog.Error("worker submission update failed",
				"document_id", fin.Doc.ID,
				"worker_id", fin.WorkerID,
				"error", err,
			)
		case !claimed:
			slog.Info("worker already submitted, claim skipped",
				"document_id", fin.Doc.ID,
				"worker_id", fin.WorkerID,
			)
		}
	}

	if c.events != nil {
		event := &queue.RoutingEvent{
			DocumentID: fin.Doc.ID,
			ProjectID:  fin.Doc.ProjectID,
			FolderID:   upd.FolderID,
			ShiftID:    upd.ShiftID,
			WorkerID:   fin.WorkerID,
			Status:     string(upd.Status),
			Confidence: upd.ConfidenceScore,
		}
		if err := c.events.PublishRoutingEvent(ctx, event); err != nil {
			slog.Error("routing event publish failed",
				"document_id", fin.Doc.ID,
				"error", err,
			)
		}
	}

	return upd.Status, nil
}
