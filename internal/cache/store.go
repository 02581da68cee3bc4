// Package cache holds the two result tiers: an in-process memo for raw fetches and a
// file-backed store of filtered results keyed by query fingerprint.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"

	"github.com/ghtracker/pkg/models"
)

// DefaultTTL is how long a durable entry stays fresh
const DefaultTTL = 24 * time.Hour

const (
	itemsSuffix = ".json"
	metaSuffix  = ".meta.json"
)

// Metadata describes one durable entry
type Metadata struct {
	CachedAt     time.Time `json:"cached_at"`
	TemplateName string    `json:"template_name"`
	IssueCount   int       `json:"issue_count"`
	Repositories []string  `json:"repositories"`
}

// EntryInfo is Metadata plus the fingerprint it was found under
type EntryInfo struct {
	Fingerprint string `json:"fingerprint"`
	Metadata
	Expired bool `json:"expired"`
}

// Store is the durable tier. Each entry is an items file and a metadata file
// named after the query fingerprint.
type Store struct {
	dir    string
	ttl    time.Duration
	log    zerolog.Logger
	now    func() time.Time
	enable bool
}

// StoreOption customizes a Store
type StoreOption func(*Store)

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger attaches a logger for miss diagnostics
func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// Disabled turns Get into a permanent miss and Set into a no-op
func Disabled() StoreOption {
	return func(s *Store) { s.enable = false }
}

// NewStore creates the cache directory if needed
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		dir:    dir,
		ttl:    DefaultTTL,
		log:    zerolog.Nop(),
		now:    time.Now,
		enable: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return s, nil
}

// Dir returns the cache directory
func (s *Store) Dir() string { return s.dir }

func (s *Store) paths(fp string) (string, string) {
	return filepath.Join(s.dir, fp+itemsSuffix), filepath.Join(s.dir, fp+metaSuffix)
}

// Get returns the cached items for q. Missing, unreadable or stale entries are a miss.
func (s *Store) Get(q *models.QueryDefinition) ([]models.Item, bool) {
	if !s.enable {
		return nil, false
	}

	fp := Fingerprint(q)
	itemsPath, metaPath := s.paths(fp)
	log := s.log.With().Str("fingerprint", fp).Logger()

	meta, err := readMetadata(metaPath)
	if err != nil {
		log.Debug().Err(err).Msg("cache miss: metadata unavailable")
		return nil, false
	}
	if age := s.now().Sub(meta.CachedAt); age > s.ttl {
		log.Debug().Dur("age", age).Msg("cache miss: entry expired")
		return nil, false
	}

	data, err := os.ReadFile(itemsPath)
	if err != nil {
		log.Debug().Err(err).Msg("cache miss: items unavailable")
		return nil, false
	}
	var items []models.Item
	if err := json.Unmarshal(data, &items); err != nil {
		log.Debug().Err(err).Msg("cache miss: items unparsable")
		return nil, false
	}

	log.Debug().Int("items", len(items)).Msg("cache hit")
	return items, true
}

// Set stores items for q. Empty results are never cached.
func (s *Store) Set(q *models.QueryDefinition, items []models.Item) error {
	if !s.enable || len(items) == 0 {
		return nil
	}

	fp := Fingerprint(q)
	itemsPath, metaPath := s.paths(fp)

	stripped := make([]models.Item, len(items))
	for i, item := range items {
		stripped[i] = item.StripDerived()
	}
	data, err := json.MarshalIndent(stripped, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cached items: %w", err)
	}

	meta := Metadata{
		CachedAt:     s.now().UTC(),
		TemplateName: q.Name,
		IssueCount:   len(items),
		Repositories: q.RepositoryNames(),
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache metadata: %w", err)
	}

	// Items first: a reader only trusts items once fresh metadata points at them
	if err := atomic.WriteFile(itemsPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", itemsPath, err)
	}
	if err := atomic.WriteFile(metaPath, bytes.NewReader(metaData)); err != nil {
		return fmt.Errorf("failed to write %s: %w", metaPath, err)
	}

	s.log.Debug().Str("fingerprint", fp).Int("items", len(items)).Msg("cache entry written")
	return nil
}

// Invalidate removes the entry for q
func (s *Store) Invalidate(q *models.QueryDefinition) error {
	itemsPath, metaPath := s.paths(Fingerprint(q))
	for _, p := range []string{metaPath, itemsPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// InvalidateAll removes every cache artifact in the directory and returns how many
// files were deleted
func (s *Store) InvalidateAll() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), itemsSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Info lists the metadata of every entry, newest first. Unreadable metadata is skipped.
func (s *Store) Info() ([]EntryInfo, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+metaSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	infos := make([]EntryInfo, 0, len(matches))
	for _, path := range matches {
		meta, err := readMetadata(path)
		if err != nil {
			s.log.Debug().Err(err).Str("path", path).Msg("skipping unreadable cache metadata")
			continue
		}
		infos = append(infos, EntryInfo{
			Fingerprint: strings.TrimSuffix(filepath.Base(path), metaSuffix),
			Metadata:    meta,
			Expired:     s.now().Sub(meta.CachedAt) > s.ttl,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CachedAt.After(infos[j].CachedAt)
	})
	return infos, nil
}

func readMetadata(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	if meta.CachedAt.IsZero() {
		return meta, fmt.Errorf("metadata %s has no cached_at", path)
	}
	return meta, nil
}
