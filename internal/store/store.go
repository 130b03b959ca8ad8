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

// Package store provides the Postgres-backed transactional store for
// projects, folder taxonomies, shifts, shift workers and received
// documents. The pipeline reads project-scoped state here and performs
// exactly two kinds of writes: single-statement document updates and the
// conditional shift-worker claim. Row ownership beyond that (project and
// folder CRUD, reviewer actions) belongs to external surfaces.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewfile/intake/internal/models"
)

// Store provides data access over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given Postgres pool. It ensures the
// intake schema exists on creation.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure intake schema: %w", err)
	}
	slog.Info("intake store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			intake_address TEXT NOT NULL UNIQUE,
			created_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS folders (
			id                  TEXT PRIMARY KEY,
			project_id          TEXT NOT NULL REFERENCES projects(id),
			name                TEXT NOT NULL,
			classification_hint TEXT DEFAULT '',
			UNIQUE(project_id, name)
		);
		CREATE TABLE IF NOT EXISTS shifts (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id),
			status     TEXT NOT NULL DEFAULT 'draft'
		);
		CREATE TABLE IF NOT EXISTS shift_workers (
			id             TEXT PRIMARY KEY,
			shift_id       TEXT NOT NULL REFERENCES shifts(id),
			name           TEXT NOT NULL,
			email          TEXT DEFAULT '',
			form_submitted BOOLEAN NOT NULL DEFAULT FALSE,
			submitted_at   TIMESTAMPTZ,
			document_id    TEXT
		);
		CREATE TABLE IF NOT EXISTS received_documents (
			id                   TEXT PRIMARY KEY,
			project_id           TEXT NOT NULL REFERENCES projects(id),
			folder_id            TEXT,
			shift_id             TEXT,
			storage_path         TEXT NOT NULL,
			mime_type            TEXT NOT NULL,
			source_identity      TEXT DEFAULT '',
			classification_label TEXT DEFAULT '',
			confidence_score     INT DEFAULT 0,
			extracted_data       JSONB DEFAULT '{}',
			summary              TEXT DEFAULT '',
			status               TEXT NOT NULL DEFAULT 'pending',
			received_at          TIMESTAMPTZ DEFAULT NOW(),
			processed_at         TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_folders_project ON folders(project_id);
		CREATE INDEX IF NOT EXISTS idx_shifts_project_status ON shifts(project_id, status);
		CREATE INDEX IF NOT EXISTS idx_workers_shift ON shift_workers(shift_id);
		CREATE INDEX IF NOT EXISTS idx_docs_project ON received_documents(project_id);
		CREATE INDEX IF NOT EXISTS idx_docs_status ON received_documents(status);
	`)
	return err
}

// ResolveProjectByIntakeAddress finds the project registered for an intake
// email address. Returns (nil, nil) when no project matches.
func (s *Store) ResolveProjectByIntakeAddress(ctx context.Context, address string) (*models.Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, intake_address
		FROM projects
		WHERE LOWER(intake_address) = LOWER($1)
	`, address)
	return scanProject(row)
}

// GetProject retrieves a project by id. Returns (nil, nil) when absent.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, intake_address
		FROM projects
		WHERE id = $1
	`, id)
	return scanProject(row)
}

// ListFolders returns a project's folder taxonomy in stable name order.
func (s *Store) ListFolders(ctx context.Context, projectID string) ([]models.Folder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, name, classification_hint
		FROM folders
		WHERE project_id = $1
		ORDER BY name
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []models.Folder
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Name, &f.ClassificationHint); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// ListActiveShifts returns the project's active shifts.
func (s *Store) ListActiveShifts(ctx context.Context, projectID string) ([]models.Shift, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, status
		FROM shifts
		WHERE project_id = $1 AND status = 'active'
		ORDER BY id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shifts []models.Shift
	for rows.Next() {
		var sh models.Shift
		if err := rows.Scan(&sh.ID, &sh.ProjectID, &sh.Status); err != nil {
			return nil, err
		}
		shifts = append(shifts, sh)
	}
	return shifts, rows.Err()
}

// ListUnsubmittedWorkers returns the unsubmitted workers across a project's
// active shifts, in stable id order. Already-submitted workers are excluded
// here so correlation can never pick one twice.
func (s *Store) ListUnsubmittedWorkers(ctx context.Context, projectID string) ([]models.ShiftWorker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sw.id, sw.shift_id, sw.name, COALESCE(sw.email, ''), sw.form_submitted, sw.submitted_at, COALESCE(sw.document_id, '')
		FROM shift_workers sw
		JOIN shifts sh ON sh.id = sw.shift_id
		WHERE sh.project_id = $1 AND sh.status = 'active' AND sw.form_submitted = FALSE
		ORDER BY sw.id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []models.ShiftWorker
	for rows.Next() {
		var w models.ShiftWorker
		if err := rows.Scan(&w.ID, &w.ShiftID, &w.Name, &w.Email, &w.FormSubmitted, &w.SubmittedAt, &w.DocumentID); err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// InsertDocument creates a new received document row. A missing id is
// assigned; ReceivedAt defaults to now.
func (s *Store) InsertDocument(ctx context.Context, doc *models.ReceivedDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.ReceivedAt.IsZero() {
		doc.ReceivedAt = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO received_documents
			(id, project_id, storage_path, mime_type, source_identity, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, doc.ID, doc.ProjectID, doc.StoragePath, doc.MimeType, doc.SourceIdentity, doc.Status, doc.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument retrieves a received document by id. Returns (nil, nil) when
// absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.ReceivedDocument, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, COALESCE(folder_id, ''), COALESCE(shift_id, ''),
		       storage_path, mime_type, source_identity, classification_label,
		       confidence_score, extracted_data, summary, status, received_at, processed_at
		FROM received_documents
		WHERE id = $1
	`, id)
	return scanDocument(row)
}

// ListReprocessable returns the documents batch mode should re-run: the
// explicit id list when given, otherwise every document in the project
// currently pending or needing review.
func (s *Store) ListReprocessable(ctx context.Context, projectID string, ids []string) ([]models.ReceivedDocument, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(ids) > 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT id, project_id, COALESCE(folder_id, ''), COALESCE(shift_id, ''),
			       storage_path, mime_type, source_identity, classification_label,
			       confidence_score, extracted_data, summary, status, received_at, processed_at
			FROM received_documents
			WHERE project_id = $1 AND id = ANY($2)
			ORDER BY received_at
		`, projectID, ids)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, project_id, COALESCE(folder_id, ''), COALESCE(shift_id, ''),
			       storage_path, mime_type, source_identity, classification_label,
			       confidence_score, extracted_data, summary, status, received_at, processed_at
			FROM received_documents
			WHERE project_id = $1 AND status IN ('pending', 'needs_review')
			ORDER BY received_at
		`, projectID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.ReceivedDocument
	for rows.Next() {
		doc, err := scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// FinalizeDocument applies a terminal-state update as one atomic UPDATE:
// folder and shift linkage, classification fields, status and processing
// timestamp all land together or not at all.
func (s *Store) FinalizeDocument(ctx context.Context, id string, upd models.DocumentUpdate) error {
	extracted, err := json.Marshal(upd.ExtractedData)
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}

	ct, err := s.pool.Exec(ctx, `
		UPDATE received_documents
		SET folder_id            = $2,
		    shift_id             = $3,
		    classification_label = $4,
		    confidence_score     = $5,
		    extracted_data       = $6::jsonb,
		    summary              = $7,
		    status               = $8,
		    processed_at         = $9
		WHERE id = $1
	`, id, nullable(upd.FolderID), nullable(upd.ShiftID), upd.ClassificationLabel,
		upd.ConfidenceScore, string(extracted), upd.Summary, upd.Status, upd.ProcessedAt)
	if err != nil {
		return fmt.Errorf("finalize document %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("finalize document %s: no such document", id)
	}
	return nil
}

// ClaimWorkerSubmission marks a shift worker's form as submitted and links
// the document, only if the worker is still unsubmitted. Returns false when
// the conditional update loses — a concurrent claim already landed — which
// callers must treat as a no-op, not an error.
func (s *Store) ClaimWorkerSubmission(ctx context.Context, workerID, documentID string, at time.Time) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE shift_workers
		SET form_submitted = TRUE, submitted_at = $2, document_id = $3
		WHERE id = $1 AND form_submitted = FALSE
	`, workerID, at, documentID)
	if err != nil {
		return false, fmt.Errorf("claim worker %s: %w", workerID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.IntakeAddress)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanDocument(row pgx.Row) (*models.ReceivedDocument, error) {
	doc, err := scanDocumentRow(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func scanDocumentRow(row pgx.Row) (*models.ReceivedDocument, error) {
	var (
		doc       models.ReceivedDocument
		extracted []byte
	)
	err := row.Scan(
		&doc.ID, &doc.ProjectID, &doc.FolderID, &doc.ShiftID,
		&doc.StoragePath, &doc.MimeType, &doc.SourceIdentity, &doc.ClassificationLabel,
		&doc.ConfidenceScore, &extracted, &doc.Summary, &doc.Status, &doc.ReceivedAt, &doc.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(extracted) > 0 {
		if err := json.Unmarshal(extracted, &doc.ExtractedData); err != nil {
			return nil, fmt.Errorf("decode extracted data for %s: %w", doc.ID, err)
		}
	}
	return &doc, nil
}
