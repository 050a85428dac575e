// Copyright 2025 Poiesic Systems
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

// Package blob archives raw uploads so failed ingestions can be retried
// without the client sending the file again.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates no object is stored under the key.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidKey indicates a key that is empty or contains a path separator.
	ErrInvalidKey = errors.New("invalid blob key")
)

// Store keeps opaque objects by key.
// Implementations must be thread-safe for concurrent use.
type Store interface {
	// Put stores data under key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// Store types accepted by Config.Type.
const (
	TypeNone  = ""
	TypeLocal = "local"
	TypeS3    = "s3"
)

// Config selects and configures a Store.
type Config struct {
	Type string `yaml:"type"`
	// Dir is the directory of a local store.
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

// New creates the configured store. TypeNone yields a nil Store, which
// disables archiving.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case TypeNone:
		return nil, nil
	case TypeLocal:
		return NewLocal(cfg.Dir)
	case TypeS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported blob store type: %s", cfg.Type)
	}
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
