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

// Package models defines the data structures shared across the intake service.
package models

import "time"

// DocumentStatus tracks a received document through the routing pipeline.
type DocumentStatus string

const (
	StatusPending     DocumentStatus = "pending"
	StatusProcessing  DocumentStatus = "processing"
	StatusFiled       DocumentStatus = "filed"
	StatusNeedsReview DocumentStatus = "needs_review"
	StatusRejected    DocumentStatus = "rejected"
)

// ShiftStatus is the lifecycle state of a scheduled shift.
type ShiftStatus string

const (
	ShiftDraft     ShiftStatus = "draft"
	ShiftActive    ShiftStatus = "active"
	ShiftCompleted ShiftStatus = "completed"
	ShiftCancelled ShiftStatus = "cancelled"
)

// Project is a registered project with a dedicated intake email address.
// Projects are managed by an external admin surface; the pipeline only
// resolves and reads them.
type Project struct {
	ID            string
	Name          string
	IntakeAddress string
}

// Folder is one category in a project's filing taxonomy. The classification
// hint carries free-text keywords that aid fuzzy matching against model
// output.
type Folder struct {
	ID                 string
	ProjectID          string
	Name               string
	ClassificationHint string
}

// Shift is a scheduled work period. Only active shifts participate in
// document correlation.
type Shift struct {
	ID        string
	ProjectID string
	Status    ShiftStatus
}

// ShiftWorker is a roster entry expected to submit a shift form. A worker is
// linked to at most one document, and FormSubmitted only ever flips
// false -> true.
type ShiftWorker struct {
	ID            string
	ShiftID       string
	Name          string
	Email         string
	FormSubmitted bool
	SubmittedAt   *time.Time
	DocumentID    string
}

// ReceivedDocument is the pipeline's own record of an inbound document.
// Created on intake, mutated only by the pipeline (classification fields,
// folder/shift linkage, status) or by a human reviewer.
type ReceivedDocument struct {
	ID                  string
	ProjectID           string
	FolderID            string // empty until a folder match succeeds
	ShiftID             string // empty until correlation succeeds
	StoragePath         string
	MimeType            string
	SourceIdentity      string
	ClassificationLabel string
	ConfidenceScore     int
	ExtractedData       map[string]any
	Summary             string
	Status              DocumentStatus
	ReceivedAt          time.Time
	ProcessedAt         *time.Time
}

// DocumentUpdate carries every field the pipeline writes when a document
// reaches a terminal status. The store applies it as a single UPDATE so a
// document is never left half-written.
type DocumentUpdate struct {
	FolderID            string
	ShiftID             string
	ClassificationLabel string
	ConfidenceScore     int
	ExtractedData       map[string]any
	Summary             string
	Status              DocumentStatus
	ProcessedAt         time.Time
}

// EmailAddress represents a sender or recipient with an address and optional name.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Attachment is one file extracted from an inbound message. Content holds
// the decoded bytes.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int
	Content     []byte
}

// InboundMessage is a fully parsed inbound email ready for intake.
// Recipients holds the raw recipient strings as delivered by the provider;
// they may be comma-separated lists with display-name wrappers.
type InboundMessage struct {
	MessageID   string
	From        EmailAddress
	Recipients  []string
	Subject     string
	Attachments []Attachment
}
