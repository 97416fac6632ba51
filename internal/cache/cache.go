// Package cache memoizes completions by the fingerprint of their exact
// inputs. A bounded in-process LRU sits in front of the response_cache
// table; both tiers are accelerators only and a miss simply means a fresh
// model call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/observability"
	"github.com/tbourn/stelgent-backend/internal/repo"
)

// Fingerprint is the hex SHA-256 of systemPrompt|message|projectID.
func Fingerprint(systemPrompt, message, projectID string) string {
	sum := sha256.Sum256([]byte(systemPrompt + "|" + message + "|" + projectID))
	return hex.EncodeToString(sum[:])
}

// Entry is one cached completion.
type Entry struct {
	Fingerprint string
	ProjectID   string
	Response    string
	Files       []domain.CachedFile
	CreatedAt   time.Time
}

// Store is a two-tier completion cache.
type Store struct {
	db     *gorm.DB
	mem    *lru.Cache[string, Entry]
	maxAge time.Duration
	now    func() time.Time
}

// NewStore returns a Store over db. size bounds the in-memory tier (<= 0
// disables it). maxAge > 0 makes older entries count as misses; zero keeps
// entries forever.
func NewStore(db *gorm.DB, size int, maxAge time.Duration) (*Store, error) {
	s := &Store{db: db, maxAge: maxAge, now: time.Now}
	if size > 0 {
		mem, err := lru.New[string, Entry](size)
		if err != nil {
			return nil, fmt.Errorf("cache: lru: %w", err)
		}
		s.mem = mem
	}
	return s, nil
}

// Get looks fingerprint up in memory, then in the table. Stale and absent
// entries both report ok=false with a nil error.
func (s *Store) Get(ctx context.Context, fingerprint string) (Entry, bool, error) {
	if s.mem != nil {
		if e, ok := s.mem.Get(fingerprint); ok {
			if s.stale(e) {
				s.mem.Remove(fingerprint)
				observability.CacheLookups.WithLabelValues("stale").Inc()
				return Entry{}, false, nil
			}
			observability.CacheLookups.WithLabelValues("hit_memory").Inc()
			return e, true, nil
		}
	}

	row, err := repo.GetCachedCompletion(ctx, s.db, fingerprint)
	if errors.Is(err, repo.ErrNotFound) {
		observability.CacheLookups.WithLabelValues("miss").Inc()
		return Entry{}, false, nil
	}
	if err != nil {
		observability.CacheLookups.WithLabelValues("error").Inc()
		return Entry{}, false, fmt.Errorf("cache: get: %w", err)
	}

	e := Entry{
		Fingerprint: row.Fingerprint,
		ProjectID:   row.ProjectID,
		Response:    row.Response,
		CreatedAt:   row.CreatedAt,
	}
	if len(row.Files) > 0 {
		if err := json.Unmarshal(row.Files, &e.Files); err != nil {
			observability.CacheLookups.WithLabelValues("error").Inc()
			return Entry{}, false, fmt.Errorf("cache: decode files: %w", err)
		}
	}
	if s.stale(e) {
		observability.CacheLookups.WithLabelValues("stale").Inc()
		return Entry{}, false, nil
	}
	if s.mem != nil {
		s.mem.Add(fingerprint, e)
	}
	observability.CacheLookups.WithLabelValues("hit_store").Inc()
	return e, true, nil
}

// Set upserts e in both tiers, stamping CreatedAt. The memory tier is only
// filled once the row is written.
func (s *Store) Set(ctx context.Context, e Entry) error {
	files := e.Files
	if files == nil {
		files = []domain.CachedFile{}
	}
	raw, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("cache: encode files: %w", err)
	}
	row := &domain.CachedCompletion{
		Fingerprint: e.Fingerprint,
		ProjectID:   e.ProjectID,
		Response:    e.Response,
		Files:       raw,
	}
	if err := repo.UpsertCachedCompletion(ctx, s.db, row); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	e.CreatedAt = row.CreatedAt
	if s.mem != nil {
		s.mem.Add(e.Fingerprint, e)
	}
	return nil
}

// ForgetProject drops projectID's entries from the memory tier. Table rows
// go with the project itself.
func (s *Store) ForgetProject(projectID string) {
	if s.mem == nil {
		return
	}
	for _, k := range s.mem.Keys() {
		if e, ok := s.mem.Peek(k); ok && e.ProjectID == projectID {
			s.mem.Remove(k)
		}
	}
}

// Prune deletes table rows older than maxAge. It is a no-op when entries
// never go stale.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.maxAge <= 0 {
		return 0, nil
	}
	return repo.PruneCachedCompletions(ctx, s.db, s.now().UTC().Add(-s.maxAge))
}

func (s *Store) stale(e Entry) bool {
	return s.maxAge > 0 && s.now().Sub(e.CreatedAt) > s.maxAge
}
