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

// Package queue publishes document-routing events to Redis. This is the
// bridge between the intake pipeline and the downstream notifier workers
// that alert project owners and reviewers; delivery itself happens there.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher sends routing events to a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// RoutingEvent records a document reaching a terminal status. Notifier
// workers deserialise this JSON; field names are part of that contract.
type RoutingEvent struct {
	EventID    string `json:"event_id"`
	DocumentID string `json:"document_id"`
	ProjectID  string `json:"project_id"`
	FolderID   string `json:"folder_id,omitempty"`
	ShiftID    string `json:"shift_id,omitempty"`
	WorkerID   string `json:"worker_id,omitempty"`
	Status     string `json:"status"`
	Confidence int    `json:"confidence"`
	OccurredAt string `json:"occurred_at"`
}

// PublishRoutingEvent serialises a routing event and pushes it onto the
// queue. EventID and OccurredAt are filled in when absent.
func (p *Publisher) PublishRoutingEvent(ctx context.Context, event *RoutingEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.OccurredAt == "" {
		event.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal routing event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published routing event",
		"event_id", event.EventID,
		"document_id", event.DocumentID,
		"status", event.Status,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
