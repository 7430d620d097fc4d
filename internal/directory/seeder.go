// Copyright 2025 Web7 Labs
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

package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// CatalogEntry is one provider record in a seed catalog file.
type CatalogEntry struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	Transport      string `json:"transport,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	Authentication string `json:"authentication,omitempty"`

	// Description is the text embedded for similarity search.
	Description string `json:"description"`
}

// Seeder loads provider catalogs into a Qdrant collection so the directory
// has something to search. It can run once or watch the catalog file and
// re-seed on change.
type Seeder struct {
	qdrant   *QdrantClient
	embedder Embedder
	logger   *slog.Logger
}

// NewSeeder creates a catalog seeder.
func NewSeeder(qdrant *QdrantClient, embedder Embedder, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{qdrant: qdrant, embedder: embedder, logger: logger}
}

// LoadCatalog reads and validates a JSON catalog file.
func LoadCatalog(path string) ([]CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read catalog %s: %w", path, err)
	}

	var entries []CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("directory: parse catalog %s: %w", path, err)
	}

	for i, e := range entries {
		if e.Name == "" || e.URL == "" || e.Description == "" {
			return nil, fmt.Errorf("directory: catalog entry %d missing name, url, or description", i)
		}
	}
	return entries, nil
}

// Seed embeds every catalog entry and upserts it into the collection,
// creating the collection on first use. Point IDs are derived from the
// provider name so re-seeding updates in place instead of duplicating.
func (s *Seeder) Seed(ctx context.Context, entries []CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ensured := false
	for _, entry := range entries {
		vector, err := s.embedder.Embed(ctx, entry.Description)
		if err != nil {
			return fmt.Errorf("directory: embed catalog entry %q: %w", entry.Name, err)
		}

		if !ensured {
			if err := s.qdrant.EnsureCollection(ctx, len(vector)); err != nil {
				return fmt.Errorf("directory: ensure collection: %w", err)
			}
			ensured = true
		}

		provider := Provider{
			Name:           entry.Name,
			URL:            entry.URL,
			Transport:      Transport(entry.Transport),
			ImageURL:       entry.ImageURL,
			Authentication: entry.Authentication,
		}
		if provider.Transport == "" {
			provider.Transport = TransportStreamableHTTP
		}

		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("maestro:provider:"+entry.Name)).String()
		if err := s.qdrant.UpsertPoint(ctx, id, vector, provider, entry.Description); err != nil {
			return fmt.Errorf("directory: upsert catalog entry %q: %w", entry.Name, err)
		}

		s.logger.Debug("seeded provider",
			slog.String("provider", entry.Name),
			slog.String("url", entry.URL))
	}

	s.logger.Info("provider catalog seeded", slog.Int("count", len(entries)))
	return nil
}

// SeedFile loads the catalog at path and seeds it.
func (s *Seeder) SeedFile(ctx context.Context, path string) error {
	entries, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	return s.Seed(ctx, entries)
}

// Watch seeds the catalog once, then re-seeds whenever the file changes.
// It blocks until ctx is cancelled. Editors replace files rather than
// writing in place, so the watch is on the parent directory.
func (s *Seeder) Watch(ctx context.Context, path string) error {
	if err := s.SeedFile(ctx, path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("directory: create catalog watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("directory: watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	reseed := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			// Coalesce the burst of events a single save produces.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				select {
				case reseed <- struct{}{}:
				default:
				}
			})

		case <-reseed:
			if err := s.SeedFile(ctx, path); err != nil {
				s.logger.Warn("catalog re-seed failed",
					slog.String("path", path), slog.Any("error", err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("catalog watcher error", slog.Any("error", err))
		}
	}
}
