package ledger

import (
	"context"
	"database/sql"

	"github.com/upkit-dev/upkit/internal/errs"
)

// VersionsCacheEntry is one persisted row of the versions-list cache (spec
// §3 "Versions-list cache"): per remote index, the last fetched candidate
// list and when it was fetched. Rows are served stale on a failed refresh
// (spec §4.2 step 1); internal/versionsrc layers a process-local ttlcache
// in front of this for the hot path.
type VersionsCacheEntry struct {
	Key          string
	VersionsJSON string
	FetchedAt    int64
}

// GetVersionsCache reads the persisted cache row for key, if any.
func (l *Ledger) GetVersionsCache(ctx context.Context, key string) (*VersionsCacheEntry, error) {
	var e VersionsCacheEntry
	err := l.withReadConn(func(c conn) error {
		return c.QueryRowContext(ctx, `
			SELECT key, versions_json, fetched_at FROM versions_cache WHERE key = ?
		`, key).Scan(&e.Key, &e.VersionsJSON, &e.FetchedAt)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Cache("reading versions cache", err)
	}
	return &e, nil
}

// SetVersionsCache upserts the cache row for key after a successful fetch.
func (l *Ledger) SetVersionsCache(ctx context.Context, key, versionsJSON string, fetchedAt int64) error {
	return l.withExclusiveTx(ctx, func(c conn) error {
		_, err := c.ExecContext(ctx, `
			INSERT INTO versions_cache (key, versions_json, fetched_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET versions_json = excluded.versions_json, fetched_at = excluded.fetched_at
		`, key, versionsJSON, fetchedAt)
		return err
	})
}
