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

// Crewfile Intake Service
//
// Entry point for the document intake service. It:
//  1. Loads configuration from config.yaml
//  2. Connects to PostgreSQL, Redis and the document bucket
//  3. Builds the classification client from OAuth2 client credentials
//  4. Serves the inbound webhook, reprocess and health endpoints
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/crewfile/intake/internal/blob"
	"github.com/crewfile/intake/internal/classify"
	"github.com/crewfile/intake/internal/config"
	"github.com/crewfile/intake/internal/dedup"
	"github.com/crewfile/intake/internal/lifecycle"
	"github.com/crewfile/intake/internal/match"
	"github.com/crewfile/intake/internal/pipeline"
	"github.com/crewfile/intake/internal/queue"
	"github.com/crewfile/intake/internal/retry"
	"github.com/crewfile/intake/internal/store"
	"github.com/crewfile/intake/internal/webhook"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting crewfile intake service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"bucket", cfg.Bucket,
		"filed_threshold", cfg.Pipeline.FiledConfidenceThreshold,
		"model_enabled", cfg.Model.Endpoint != "" && cfg.Model.ClientID != "",
	)

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
	if err := st.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

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
	slog.Info("connected to Redis")

	filter := dedup.NewFilter(rdb)

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

	// --- Pipeline ---
	controller := lifecycle.New(st, publisher, cfg.Pipeline.FiledConfidenceThreshold)
	matcher := match.New(cfg.Pipeline.OverlapThreshold)
	pipe := pipeline.New(st, blobs, classifier, matcher, controller, pipeline.Config{
		InterDocumentDelay: cfg.Pipeline.InterDocumentDelay,
		Retry: retry.Policy{
			MaxAttempts: cfg.Pipeline.MaxRetries,
			BaseDelay:   cfg.Pipeline.RetryBaseDelay,
		},
	})

	// --- HTTP Server ---
	handler := webhook.NewHandler(pipe, filter, st, publisher)
	ready, err := webhook.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start intake server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()

	// In-flight background processing gets a short grace window before
	// the process exits and pending documents wait for a reprocess run.
	time.Sleep(2 * time.Second)

	slog.Info("intake service stopped")
}
