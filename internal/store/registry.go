// Package store tracks which tracks have already been tagged, combining a
// Bloom filter and LRU cache for fast membership checks with a SQLite table
// for persistence across runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"spotgrab/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS tagged_tracks (
	track_id  TEXT PRIMARY KEY,
	title     TEXT NOT NULL DEFAULT '',
	tagged_at TIMESTAMP NOT NULL
);
`

// Registry is a thread-safe record of tagged tracks. Membership checks hit
// the Bloom filter first and fall through to the exact in-memory set; the
// SQLite table is only touched on mutation and startup.
type Registry struct {
	db                     *sql.DB
	trackIDs               map[string]struct{}
	bloom                  *bloom.BloomFilter
	lru                    *lru.Cache[string, struct{}]
	mutex                  sync.RWMutex
	maxTracks              int
	bloomFalsePositiveRate float64
}

// NewRegistry opens the registry database at cfg.Path, creating the schema
// when missing, and loads all persisted track IDs into memory.
func NewRegistry(ctx context.Context, cfg *core.StoreConfig) (*Registry, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", cfg.Path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create registry schema: %w", err)
	}

	if cfg.MaxTracks < 0 {
		db.Close()
		return nil, fmt.Errorf("max tracks must be non-negative, got %d", cfg.MaxTracks)
	}
	// One above capacity so GetOldest still sees the true oldest entry when
	// the registry overflows.
	lruCache, err := lru.New[string, struct{}](cfg.MaxTracks + 1)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create lru cache: %w", err)
	}

	r := &Registry{
		db:                     db,
		trackIDs:               make(map[string]struct{}),
		bloom:                  bloom.NewWithEstimates(uint(cfg.MaxTracks), cfg.BloomFalsePositiveRate),
		lru:                    lruCache,
		maxTracks:              cfg.MaxTracks,
		bloomFalsePositiveRate: cfg.BloomFalsePositiveRate,
	}
	if err := r.loadPersisted(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadPersisted(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `SELECT track_id FROM tagged_tracks ORDER BY tagged_at`)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	defer rows.Close()

	r.mutex.Lock()
	defer r.mutex.Unlock()
	for rows.Next() {
		var trackID string
		if err := rows.Scan(&trackID); err != nil {
			return fmt.Errorf("load registry: %w", err)
		}
		r.addLocked(trackID)
	}
	return rows.Err()
}

// Has checks whether a track has been tagged before.
func (r *Registry) Has(trackID string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.bloom.TestString(trackID) {
		return false
	}
	_, exists := r.trackIDs[trackID]
	return exists
}

// MarkTagged records a successful tag write for the track, persisting it and
// updating the in-memory structures. Re-marking an already tagged track only
// refreshes its timestamp.
func (r *Registry) MarkTagged(ctx context.Context, track *core.Track) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tagged_tracks (track_id, title, tagged_at) VALUES (?, ?, ?)
		 ON CONFLICT(track_id) DO UPDATE SET title = excluded.title, tagged_at = excluded.tagged_at`,
		track.ID, track.Title, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persist tagged track: %w", err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.addLocked(track.ID)
	return nil
}

// Remove drops a track from the registry.
func (r *Registry) Remove(ctx context.Context, trackID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tagged_tracks WHERE track_id = ?`, trackID); err != nil {
		return fmt.Errorf("remove tagged track: %w", err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.trackIDs[trackID]; !exists {
		return nil
	}
	delete(r.trackIDs, trackID)
	r.lru.Remove(trackID)
	// The bloom filter does not support removal; the exact set catches the
	// resulting false positives.
	return nil
}

// Size returns the number of tracks currently held in memory.
func (r *Registry) Size() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.trackIDs)
}

// Clear wipes the registry, both persisted and in-memory.
func (r *Registry) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tagged_tracks`); err != nil {
		return fmt.Errorf("clear registry: %w", err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.trackIDs = make(map[string]struct{})
	r.bloom = bloom.NewWithEstimates(uint(r.maxTracks), r.bloomFalsePositiveRate)
	r.lru.Purge()
	return nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) addLocked(trackID string) {
	if trackID == "" {
		return
	}
	if _, exists := r.trackIDs[trackID]; exists {
		r.lru.Add(trackID, struct{}{})
		return
	}
	r.trackIDs[trackID] = struct{}{}
	r.bloom.AddString(trackID)
	r.lru.Add(trackID, struct{}{})

	for len(r.trackIDs) > r.maxTracks {
		oldestKey, _, ok := r.lru.GetOldest()
		if !ok {
			return
		}
		delete(r.trackIDs, oldestKey)
		r.lru.Remove(oldestKey)
	}
}
