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

// Package dedup provides message deduplication using a Redis SET with TTL.
// Inbound-mail providers redeliver webhooks on slow or failed responses;
// this prevents the same message from creating duplicate documents.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a seen message ID is remembered. Providers
	// stop redelivering well within 48 hours.
	DefaultTTL = 48 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "intake:seen:"
)

// Filter tracks which inbound message IDs have already been processed.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// IsNew returns true if the message ID has NOT been seen before.
// If true, the ID is marked as seen atomically (SETNX), which also stops a
// concurrent redelivery of the same message from claiming it.
func (f *Filter) IsNew(ctx context.Context, messageID string) (bool, error) {
	key := fmt.Sprintf("%s%s", keyPrefix, messageID)

	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}

// Forget drops the seen marker for a message whose processing failed, so
// the provider's next redelivery gets another attempt instead of being
// suppressed for the full TTL.
func (f *Filter) Forget(ctx context.Context, messageID string) error {
	key := fmt.Sprintf("%s%s", keyPrefix, messageID)

	if err := f.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
