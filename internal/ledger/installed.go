package ledger

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/upkit-dev/upkit/internal/errs"
)

// InstalledArtifact is one row of the generalized installed_artifacts table
// (spec §3's four per-backend tables, unified — see migrations/001). Key1/
// Key2 are backend-specific: (owner, repo) for github-release,
// (import_path, "") for go-install, (crate, "") for cargo-install,
// (plugin, "") for mise, (formula, "") for homebrew, (attribute,
// profile_id) for nix, (name, "") for custom.
type InstalledArtifact struct {
	ID                 int64
	Backend            string
	Key1               string
	Key2               string
	Version            string
	BinPaths           []string
	DataPath           string
	LastRequiredAt     int64
	InstallStartedAt   int64
	InstallCompletedAt *int64
}

// Complete reports whether the artifact finished installing. A row whose
// InstallCompletedAt is nil represents an install interrupted mid-flight by
// a prior crashed process and is treated as absent everywhere version
// resolution and GC look at installed state.
func (a InstalledArtifact) Complete() bool {
	return a.InstallCompletedAt != nil
}

// MarkInstallStarted records that an install attempt for (backend, key1,
// key2, version) has begun. Its only caller, recordInstalled, runs it after
// the backend's install step and immediately before AddInstalled. If a
// completed row already exists this is a no-op: the backend's plan step
// should have already short-circuited, but this keeps the call idempotent
// either way.
func (l *Ledger) MarkInstallStarted(ctx context.Context, backend, key1, key2, version string) error {
	return l.withExclusiveTx(ctx, func(c conn) error {
		_, err := c.ExecContext(ctx, `
			INSERT INTO installed_artifacts (backend, key1, key2, version, last_required_at, install_started_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(backend, key1, key2, version) DO UPDATE SET
			  install_started_at = excluded.install_started_at
			WHERE installed_artifacts.install_completed_at IS NULL
		`, backend, key1, key2, version, l.now(), l.now())
		if err != nil {
			return errs.Cache("marking install started", err)
		}
		return nil
	})
}

// AddInstalled idempotently upserts a completed artifact row (spec §8:
// "ledger add_installed is idempotent; same row never duplicated"). Re-
// running it for an already-present (backend, key1, key2, version) updates
// bin paths, data path, and timestamps without creating a second row.
func (l *Ledger) AddInstalled(ctx context.Context, backend, key1, key2, version string, binPaths []string, dataPath string) (id int64, err error) {
	binJSON, err := json.Marshal(binPaths)
	if err != nil {
		return 0, errs.Cache("marshaling bin paths", err)
	}

	txErr := l.withExclusiveTx(ctx, func(c conn) error {
		now := l.now()
		row := c.QueryRowContext(ctx, `
			INSERT INTO installed_artifacts
			  (backend, key1, key2, version, bin_paths, data_path, last_required_at, install_started_at, install_completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(backend, key1, key2, version) DO UPDATE SET
			  bin_paths = excluded.bin_paths,
			  data_path = excluded.data_path,
			  last_required_at = excluded.last_required_at,
			  install_completed_at = excluded.install_completed_at
			RETURNING id
		`, backend, key1, key2, version, string(binJSON), dataPath, now, now, now)
		return row.Scan(&id)
	})
	if txErr != nil {
		return 0, errs.Cache("adding installed artifact", txErr)
	}
	return id, nil
}

// AddRequiredBy idempotently records that envVersionID depends on the given
// installed artifact (spec §8: "add_required_by is idempotent per (key…,
// env_version_id)"), and touches the artifact's last_required_at forward to
// keep invariant I3 (installed.last_required_at ≥ max(required_by…)) true.
func (l *Ledger) AddRequiredBy(ctx context.Context, installedArtifactID int64, envVersionID string) error {
	return l.withExclusiveTx(ctx, func(c conn) error {
		now := l.now()
		if _, err := c.ExecContext(ctx, `
			INSERT INTO required_by (installed_artifact_id, env_version_id, last_required_at)
			VALUES (?, ?, ?)
			ON CONFLICT(installed_artifact_id, env_version_id) DO UPDATE SET
			  last_required_at = excluded.last_required_at
		`, installedArtifactID, envVersionID, now); err != nil {
			return errs.Cache("adding required_by edge", err)
		}
		if _, err := c.ExecContext(ctx, `
			UPDATE installed_artifacts SET last_required_at = ?
			WHERE id = ? AND last_required_at < ?
		`, now, installedArtifactID, now); err != nil {
			return errs.Cache("touching installed artifact", err)
		}
		return nil
	})
}

// InstalledVersions returns the completed, installed versions for a tool
// handle, for use as ResolveOptions.Installed (spec §4.2 step 5).
func (l *Ledger) InstalledVersions(ctx context.Context, backend, key1, key2 string) ([]string, error) {
	var out []string
	err := l.withReadConn(func(c conn) error {
		rows, err := c.QueryContext(ctx, `
			SELECT version FROM installed_artifacts
			WHERE backend = ? AND key1 = ? AND key2 = ? AND install_completed_at IS NOT NULL
		`, backend, key1, key2)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errs.Cache("listing installed versions", err)
	}
	return out, nil
}

// FindInstalled looks up a single completed artifact row, for the "already
// installed" fast path that skips a network resolve entirely.
func (l *Ledger) FindInstalled(ctx context.Context, backend, key1, key2, version string) (*InstalledArtifact, error) {
	var a InstalledArtifact
	var binJSON string
	var completedAt sql.NullInt64
	err := l.withReadConn(func(c conn) error {
		row := c.QueryRowContext(ctx, `
			SELECT id, backend, key1, key2, version, bin_paths, data_path, last_required_at, install_started_at, install_completed_at
			FROM installed_artifacts
			WHERE backend = ? AND key1 = ? AND key2 = ? AND version = ? AND install_completed_at IS NOT NULL
		`, backend, key1, key2, version)
		return row.Scan(&a.ID, &a.Backend, &a.Key1, &a.Key2, &a.Version, &binJSON, &a.DataPath, &a.LastRequiredAt, &a.InstallStartedAt, &completedAt)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Cache("finding installed artifact", err)
	}
	if completedAt.Valid {
		v := completedAt.Int64
		a.InstallCompletedAt = &v
	}
	_ = json.Unmarshal([]byte(binJSON), &a.BinPaths)
	return &a, nil
}

// ListInstalled returns every completed artifact for a backend, used by
// `cleanup_global` (spec §4.1, §4.7 step 2) to compute the expected on-disk
// path set.
func (l *Ledger) ListInstalled(ctx context.Context, backend string) ([]InstalledArtifact, error) {
	var out []InstalledArtifact
	err := l.withReadConn(func(c conn) error {
		rows, err := c.QueryContext(ctx, `
			SELECT id, backend, key1, key2, version, bin_paths, data_path, last_required_at, install_started_at, install_completed_at
			FROM installed_artifacts
			WHERE backend = ? AND install_completed_at IS NOT NULL
		`, backend)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var a InstalledArtifact
			var binJSON string
			var completedAt sql.NullInt64
			if err := rows.Scan(&a.ID, &a.Backend, &a.Key1, &a.Key2, &a.Version, &binJSON, &a.DataPath, &a.LastRequiredAt, &a.InstallStartedAt, &completedAt); err != nil {
				return err
			}
			if completedAt.Valid {
				v := completedAt.Int64
				a.InstallCompletedAt = &v
			}
			_ = json.Unmarshal([]byte(binJSON), &a.BinPaths)
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errs.Cache("listing installed artifacts", err)
	}
	return out, nil
}

// DeleteOrphanedInstalled removes installed_artifacts rows for backend that
// have no surviving required_by edge and haven't been touched in
// cleanupAfter seconds (spec §4.7 step 1). Deletion cascades to required_by
// (already-empty for these rows) via the FK.
func (l *Ledger) DeleteOrphanedInstalled(ctx context.Context, backend string, cleanupAfterSeconds int64) ([]InstalledArtifact, error) {
	cutoff := l.now() - cleanupAfterSeconds

	var removed []InstalledArtifact
	err := l.withExclusiveTx(ctx, func(c conn) error {
		rows, err := c.QueryContext(ctx, `
			SELECT id, backend, key1, key2, version, bin_paths, data_path, last_required_at, install_started_at, install_completed_at
			FROM installed_artifacts a
			WHERE a.backend = ?
			  AND a.last_required_at < ?
			  AND NOT EXISTS (SELECT 1 FROM required_by r WHERE r.installed_artifact_id = a.id)
		`, backend, cutoff)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var a InstalledArtifact
			var binJSON string
			var completedAt sql.NullInt64
			if err := rows.Scan(&a.ID, &a.Backend, &a.Key1, &a.Key2, &a.Version, &binJSON, &a.DataPath, &a.LastRequiredAt, &a.InstallStartedAt, &completedAt); err != nil {
				_ = rows.Close()
				return err
			}
			_ = json.Unmarshal([]byte(binJSON), &a.BinPaths)
			removed = append(removed, a)
			ids = append(ids, a.ID)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		_ = rows.Close()

		for _, id := range ids {
			if _, err := c.ExecContext(ctx, `DELETE FROM installed_artifacts WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Cache("deleting orphaned installed artifacts", err)
	}
	return removed, nil
}
