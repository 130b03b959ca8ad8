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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelConfig holds the classification model endpoint and its OAuth2
// client credentials. With any of endpoint, client id or secret missing
// the classifier runs disabled and every document falls back to review.
type ModelConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// PipelineConfig exposes the routing thresholds and pacing as tunables.
type PipelineConfig struct {
	FiledConfidenceThreshold int
	OverlapThreshold         float64
	InterDocumentDelay       time.Duration
	MaxRetries               int
	RetryBaseDelay           time.Duration
}

// Config holds all configuration for the intake service.
type Config struct {
	// Postgres
	DatabaseURL string

	// Redis
	RedisURL     string
	RoutingQueue string

	// Document blob storage
	Bucket string

	Model    ModelConfig
	Pipeline PipelineConfig

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Routing string `yaml:"routing"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Storage struct {
		Bucket string `yaml:"bucket"`
	} `yaml:"storage"`
	Model    ModelConfig `yaml:"model"`
	Pipeline struct {
		FiledConfidenceThreshold int     `yaml:"filed_confidence_threshold"`
		OverlapThreshold         float64 `yaml:"overlap_threshold"`
		InterDocumentDelay       string  `yaml:"inter_document_delay"`
		MaxRetries               int     `yaml:"max_retries"`
		RetryBaseDelay           string  `yaml:"retry_base_delay"`
	} `yaml:"pipeline"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		DatabaseURL:  firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:     firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		RoutingQueue: firstNonEmpty(raw.Redis.Queues.Routing, envOrDefault("ROUTING_QUEUE", "routing_events")),
		Bucket:       firstNonEmpty(raw.Storage.Bucket, os.Getenv("DOCUMENTS_BUCKET")),
		Model: ModelConfig{
			Endpoint:     firstNonEmpty(raw.Model.Endpoint, os.Getenv("MODEL_ENDPOINT")),
			Model:        firstNonEmpty(raw.Model.Model, envOrDefault("MODEL_NAME", "gemini-2.0-flash")),
			TokenURL:     firstNonEmpty(raw.Model.TokenURL, os.Getenv("MODEL_TOKEN_URL")),
			ClientID:     firstNonEmpty(raw.Model.ClientID, os.Getenv("MODEL_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.Model.ClientSecret, os.Getenv("MODEL_CLIENT_SECRET")),
		},
		Pipeline: PipelineConfig{
			FiledConfidenceThreshold: 70,
			OverlapThreshold:         0.5,
			InterDocumentDelay:       500 * time.Millisecond,
			MaxRetries:               3,
			RetryBaseDelay:           time.Second,
		},
		Port: envOrDefaultInt("PORT", 8080),
	}

	if raw.Pipeline.FiledConfidenceThreshold > 0 {
		cfg.Pipeline.FiledConfidenceThreshold = raw.Pipeline.FiledConfidenceThreshold
	}
	if raw.Pipeline.OverlapThreshold > 0 {
		cfg.Pipeline.OverlapThreshold = raw.Pipeline.OverlapThreshold
	}
	if d, err := time.ParseDuration(raw.Pipeline.InterDocumentDelay); err == nil && d > 0 {
		cfg.Pipeline.InterDocumentDelay = d
	}
	if raw.Pipeline.MaxRetries > 0 {
		cfg.Pipeline.MaxRetries = raw.Pipeline.MaxRetries
	}
	if d, err := time.ParseDuration(raw.Pipeline.RetryBaseDelay); err == nil && d > 0 {
		cfg.Pipeline.RetryBaseDelay = d
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL not configured — set database.url or DATABASE_URL")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("documents bucket not configured — set storage.bucket or DOCUMENTS_BUCKET")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
