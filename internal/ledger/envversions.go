package ledger

import (
	"context"
	"database/sql"

	"github.com/upkit-dev/upkit/internal/errs"
)

// EnvPayload is the serialized form of the three ordered sequences an
// environment assembler produces, ready to hash and persist (spec §3, §4.4
// step 1). Callers (internal/environment) own the JSON encoding; the ledger
// only hashes and stores it.
type EnvPayload struct {
	VersionsJSON       string
	PathsJSON          string
	EnvVarsJSON        string
	ConfigModtimesJSON string
	ConfigHash         string

	// AliasesJSON is stored alongside the env version but deliberately
	// excluded from HashPayload's inputs (supplemental feature; see
	// migrations/003_env_version_aliases.go).
	AliasesJSON string
}

// EnvVersion is one persisted, immutable row of env_versions.
type EnvVersion struct {
	ID                 string
	WdTrustID          string
	VersionsJSON       string
	PathsJSON          string
	EnvVarsJSON        string
	ConfigModtimesJSON string
	ConfigHash         string
	AliasesJSON        string
	CreatedAt          int64
}

// Retention bounds the workdir_history compaction assign runs each time
// (spec §4.4 step 5, §8 P4).
type Retention struct {
	MaxTotal      int
	MaxPerWorkdir int
	RetentionSecs int64
}

// AssignEnvironment implements the six-step assign_environment protocol of
// spec §4.4 inside a single exclusive transaction. It is idempotent:
// running it twice with identical (wdTrustID, payload, headSHA) leaves the
// ledger in the same state and returns the same id with isNew=false the
// second time (spec §8 P5).
func (l *Ledger) AssignEnvironment(ctx context.Context, wdTrustID string, payload EnvPayload, headSHA string, retention Retention) (envVersionID string, isNew bool, err error) {
	hash := HashPayload(payload.VersionsJSON, payload.PathsJSON, payload.EnvVarsJSON, payload.ConfigModtimesJSON, payload.ConfigHash)
	id := EnvVersionID(wdTrustID, hash)

	txErr := l.withExclusiveTx(ctx, func(c conn) error {
		now := l.now()

		// Step 2: insert the env_versions row if it doesn't exist yet.
		var exists int
		if err := c.QueryRowContext(ctx, `SELECT 1 FROM env_versions WHERE id = ?`, id).Scan(&exists); err != nil {
			if err != sql.ErrNoRows {
				return err
			}
			aliasesJSON := payload.AliasesJSON
			if aliasesJSON == "" {
				aliasesJSON = "[]"
			}
			if _, err := c.ExecContext(ctx, `
				INSERT INTO env_versions (id, wd_trust_id, versions_json, paths_json, env_vars_json, config_modtimes_json, config_hash, aliases_json, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, id, wdTrustID, payload.VersionsJSON, payload.PathsJSON, payload.EnvVarsJSON, payload.ConfigModtimesJSON, payload.ConfigHash, aliasesJSON, now); err != nil {
				return err
			}
			isNew = true
		}

		// Step 3: replace the wd's current binding if it differs.
		var currentBinding string
		err := c.QueryRowContext(ctx, `SELECT env_version_id FROM env_bindings WHERE wd_trust_id = ?`, wdTrustID).Scan(&currentBinding)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if err == sql.ErrNoRows || currentBinding != id {
			if _, err := c.ExecContext(ctx, `
				INSERT INTO env_bindings (wd_trust_id, env_version_id) VALUES (?, ?)
				ON CONFLICT(wd_trust_id) DO UPDATE SET env_version_id = excluded.env_version_id
			`, wdTrustID, id); err != nil {
				return err
			}
		}

		// Step 4: open-history handling.
		var openID int64
		var openEnv, openHead string
		err = c.QueryRowContext(ctx, `
			SELECT id, env_version_id, head_sha FROM workdir_history
			WHERE wd_trust_id = ? AND closed_at IS NULL
		`, wdTrustID).Scan(&openID, &openEnv, &openHead)
		switch {
		case err != nil && err != sql.ErrNoRows:
			return err
		case err == sql.ErrNoRows:
			if _, err := c.ExecContext(ctx, `
				INSERT INTO workdir_history (wd_trust_id, env_version_id, head_sha, opened_at, closed_at)
				VALUES (?, ?, ?, ?, NULL)
			`, wdTrustID, id, headSHA, now); err != nil {
				return err
			}
		case openEnv != id || openHead != headSHA:
			if _, err := c.ExecContext(ctx, `UPDATE workdir_history SET closed_at = ? WHERE id = ?`, now, openID); err != nil {
				return err
			}
			if _, err := c.ExecContext(ctx, `
				INSERT INTO workdir_history (wd_trust_id, env_version_id, head_sha, opened_at, closed_at)
				VALUES (?, ?, ?, ?, NULL)
			`, wdTrustID, id, headSHA, now); err != nil {
				return err
			}
		default:
			// identical (env, head) already open: nothing to do, keeps assign idempotent.
		}

		// Step 5: compaction.
		if err := compactDedupeConsecutive(ctx, c, wdTrustID); err != nil {
			return err
		}
		if retention.RetentionSecs > 0 {
			if _, err := c.ExecContext(ctx, `
				DELETE FROM workdir_history WHERE closed_at IS NOT NULL AND closed_at < ?
			`, now-retention.RetentionSecs); err != nil {
				return err
			}
		}
		if retention.MaxPerWorkdir > 0 {
			if err := compactCap(ctx, c, `WHERE wd_trust_id = ?`, []any{wdTrustID}, retention.MaxPerWorkdir); err != nil {
				return err
			}
		}
		if retention.MaxTotal > 0 {
			if err := compactCap(ctx, c, ``, nil, retention.MaxTotal); err != nil {
				return err
			}
		}

		// Step 6: orphan sweep (cascades to required_by via FK).
		if _, err := c.ExecContext(ctx, `
			DELETE FROM env_versions
			WHERE id NOT IN (SELECT env_version_id FROM env_bindings)
			  AND id NOT IN (SELECT DISTINCT env_version_id FROM workdir_history)
		`); err != nil {
			return err
		}

		return nil
	})
	if txErr != nil {
		return "", false, errs.Cache("assigning environment", txErr)
	}
	return id, isNew, nil
}

// compactDedupeConsecutive merges adjacent workdir_history rows for wd that
// share the same env_version_id (spec §4.4 step 5a), extending the earlier
// row's closed_at to the later row's and dropping the later row.
func compactDedupeConsecutive(ctx context.Context, c conn, wd string) error {
	rows, err := c.QueryContext(ctx, `
		SELECT id, env_version_id, closed_at FROM workdir_history
		WHERE wd_trust_id = ? ORDER BY id ASC
	`, wd)
	if err != nil {
		return err
	}
	type histRow struct {
		id     int64
		env    string
		closed sql.NullInt64
	}
	var list []histRow
	for rows.Next() {
		var r histRow
		if err := rows.Scan(&r.id, &r.env, &r.closed); err != nil {
			_ = rows.Close()
			return err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	for i := 0; i < len(list)-1; {
		if list[i].env == list[i+1].env {
			next := list[i+1]
			var arg any
			if next.closed.Valid {
				arg = next.closed.Int64
			}
			if _, err := c.ExecContext(ctx, `UPDATE workdir_history SET closed_at = ? WHERE id = ?`, arg, list[i].id); err != nil {
				return err
			}
			if _, err := c.ExecContext(ctx, `DELETE FROM workdir_history WHERE id = ?`, next.id); err != nil {
				return err
			}
			list[i].closed = next.closed
			list = append(list[:i+1], list[i+2:]...)
			continue
		}
		i++
	}
	return nil
}

// compactCap keeps only the most-recent cap rows matching whereClause
// (empty for "globally"), always retaining any still-open row regardless of
// recency (spec §4.4 step 5c/5d).
func compactCap(ctx context.Context, c conn, whereClause string, whereArgs []any, cap int) error {
	query := `SELECT id, closed_at FROM workdir_history ` + whereClause + ` ORDER BY id DESC`
	rows, err := c.QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return err
	}
	type row struct {
		id     int64
		closed sql.NullInt64
	}
	var list []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.closed); err != nil {
			_ = rows.Close()
			return err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	keep := make(map[int64]bool, len(list))
	for i, r := range list {
		if i < cap {
			keep[r.id] = true
		}
		if !r.closed.Valid {
			keep[r.id] = true
		}
	}
	for _, r := range list {
		if keep[r.id] {
			continue
		}
		if _, err := c.ExecContext(ctx, `DELETE FROM workdir_history WHERE id = ?`, r.id); err != nil {
			return err
		}
	}
	return nil
}

// CurrentBinding returns the env_version_id bound to wd, if any.
func (l *Ledger) CurrentBinding(ctx context.Context, wdTrustID string) (string, bool, error) {
	var id string
	err := l.withReadConn(func(c conn) error {
		return c.QueryRowContext(ctx, `SELECT env_version_id FROM env_bindings WHERE wd_trust_id = ?`, wdTrustID).Scan(&id)
	})
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Cache("reading binding", err)
	}
	return id, true, nil
}

// GetEnvVersion fetches a persisted environment version by id.
func (l *Ledger) GetEnvVersion(ctx context.Context, id string) (*EnvVersion, error) {
	var v EnvVersion
	err := l.withReadConn(func(c conn) error {
		return c.QueryRowContext(ctx, `
			SELECT id, wd_trust_id, versions_json, paths_json, env_vars_json, config_modtimes_json, config_hash, aliases_json, created_at
			FROM env_versions WHERE id = ?
		`, id).Scan(&v.ID, &v.WdTrustID, &v.VersionsJSON, &v.PathsJSON, &v.EnvVarsJSON, &v.ConfigModtimesJSON, &v.ConfigHash, &v.AliasesJSON, &v.CreatedAt)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Cache("reading env version", err)
	}
	return &v, nil
}

// RemoveBinding deletes wd's current binding and closes its open history
// row, used by the `down` pipeline (spec §4.1 Backend.down is a no-op per
// backend, but the pipeline itself tears down the wd-level binding). It then
// deletes every env version that no binding and no open history row
// references; the FK cascade removes their closed history rows and
// required_by edges with them.
func (l *Ledger) RemoveBinding(ctx context.Context, wdTrustID string) error {
	return l.withExclusiveTx(ctx, func(c conn) error {
		if _, err := c.ExecContext(ctx, `DELETE FROM env_bindings WHERE wd_trust_id = ?`, wdTrustID); err != nil {
			return err
		}
		if _, err := c.ExecContext(ctx, `
			UPDATE workdir_history SET closed_at = ? WHERE wd_trust_id = ? AND closed_at IS NULL
		`, l.now(), wdTrustID); err != nil {
			return err
		}
		if _, err := c.ExecContext(ctx, `
			DELETE FROM env_versions
			WHERE id NOT IN (SELECT env_version_id FROM env_bindings)
			  AND id NOT IN (SELECT env_version_id FROM workdir_history WHERE closed_at IS NULL)
		`); err != nil {
			return err
		}
		return nil
	})
}
