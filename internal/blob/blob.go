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

// Package blob adapts the document byte store — a GCS bucket keyed by
// object path — to the pipeline's boundary contract: download that keeps
// "missing" and "empty" distinct, and upload for webhook-received bytes.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

var (
	// ErrNotFound means no object exists at the path.
	ErrNotFound = errors.New("object not found")

	// ErrEmptyObject means the object exists but holds zero bytes. Kept
	// distinct from success so callers never classify an empty file.
	ErrEmptyObject = errors.New("object is empty")
)

// Store reads and writes document bytes in a single bucket.
type Store struct {
	bucket     *storage.BucketHandle
	bucketName string
}

// New creates a blob store over the named bucket.
func New(client *storage.Client, bucketName string) *Store {
	return &Store{
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
	}
}

// Download fetches the full object at path.
func (s *Store) Download(ctx context.Context, path string) ([]byte, error) {
	r, err := s.bucket.Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, s.bucketName, path)
		}
		return nil, fmt.Errorf("open gs://%s/%s: %w", s.bucketName, path, err)
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", s.bucketName, path, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrEmptyObject, s.bucketName, path)
	}
	return content, nil
}

// Upload writes content to path with the given content type. Paths include
// a fresh document id, so an existing object at the same path indicates a
// replayed write and is left as-is.
func (s *Store) Upload(ctx context.Context, path string, content []byte, contentType string) error {
	w := s.bucket.Object(path).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", s.bucketName, path, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			slog.Info("object already exists, skipping upload", "path", path)
			return nil
		}
		return fmt.Errorf("finalize gs://%s/%s: %w", s.bucketName, path, err)
	}
	return nil
}
