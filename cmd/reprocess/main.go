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

// Crewfile Intake — Reprocess Command
//
// Standalone CLI tool that re-runs classification and routing over stored
// documents that never reached a filed state. Useful after fixing a
// project's folder taxonomy or restoring model credentials.
//
// Usage:
//
//	go run ./cmd/reprocess/ --project <id> [--ids doc1,doc2]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/crewfile/intake/internal/blob"
	"github.com/crewfile/intake/internal/classify"
	"github.com/crewfile/intake/internal/config"
	"github.com/crewfile/intake/internal/lifecycle"
	"github.com/crewfile/intake/internal/match"
	"github.com/crewfile/intake/internal/pipeline"
	"github.com/crewfile/intake/internal/queue"
	"github.com/crewfile/intake/internal/retry"
	"github.com/crewfile/intake/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	projectFlag := flag.String("project", "", "Project id to reprocess (required)")
	idsFlag := flag.String("ids", "", "Comma-separated document ids (optional; empty = all pending and review documents)")
	flag.Parse()

	if *projectFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --project is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	var ids []string
	for _, id := range strings.Split(*idsFlag, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	slog.Info("starting reprocess run",
		"project", *projectFlag,
		"explicit_ids", len(ids),
	)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise document store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.RoutingQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// --- Document Bucket ---
	gcs, err := storage.NewClient(ctx)
	if err != nil {
		slog.Error("failed to create storage client", "error", err)
		os.Exit(1)
	}
	defer gcs.Close()
	blobs := blob.New(gcs, cfg.Bucket)

	// --- Classification Client ---
	classifier := classify.New(ctx, classify.Config{
		Endpoint:     cfg.Model.Endpoint,
		Model:        cfg.Model.Model,
		TokenURL:     cfg.Model.TokenURL,
		ClientID:     cfg.Model.ClientID,
		ClientSecret: cfg.Model.ClientSecret,
	})
	if classifier.Disabled() {
		slog.Warn("classification credentials missing, documents will route to review")
	}

	// --- Run Reprocess ---
	controller := lifecycle.New(st, publisher, cfg.Pipeline.FiledConfidenceThreshold)
	matcher := match.New(cfg.Pipeline.OverlapThreshold)
	pipe := pipeline.New(st, blobs, classifier, matcher, controller, pipeline.Config{
		InterDocumentDelay: cfg.Pipeline.InterDocumentDelay,
		Retry: retry.Policy{
			MaxAttempts: cfg.Pipeline.MaxRetries,
			BaseDelay:   cfg.Pipeline.RetryBaseDelay,
		},
	})

	report, err := pipe.Reprocess(ctx, *projectFlag, ids)
	if err != nil {
		slog.Error("reprocess failed", "error", err)
		os.Exit(1)
	}

	// --- Summary ---
	slog.Info("reprocess complete",
		"project", report.ProjectID,
		"filed", report.Filed,
		"needs_review", report.NeedsReview,
		"skipped", report.Skipped,
	)

	for _, item := range report.Items {
		slog.Info("document result",
			"document_id", item.DocumentID,
			"status", item.Status,
			"tier", item.Tier,
			"skipped", item.Skipped,
			"error", item.Error,
		)
	}
}
