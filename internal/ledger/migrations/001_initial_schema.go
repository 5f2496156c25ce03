package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateInitialSchema creates the core tables: installed artifacts and
// their usage edges, environment versions, work-directory bindings, the
// per-wd history log, and the versions-list cache (spec §3).
//
// installed_artifacts generalizes the four per-backend tables spec.md
// describes (github-release/go-install/cargo-install/mise-managed) into one
// table keyed by (backend, key1, key2, version); key1/key2 hold whichever
// backend-specific identifiers apply (owner and repo, import path, crate,
// plugin or formula, nix attribute and profile id, custom name) and are
// simply opaque strings to the schema.
func MigrateInitialSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS installed_artifacts (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  backend TEXT NOT NULL,
		  key1 TEXT NOT NULL,
		  key2 TEXT NOT NULL DEFAULT '',
		  version TEXT NOT NULL,
		  bin_paths TEXT NOT NULL DEFAULT '[]',
		  data_path TEXT NOT NULL DEFAULT '',
		  last_required_at INTEGER NOT NULL,
		  UNIQUE(backend, key1, key2, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_installed_artifacts_last_required
		  ON installed_artifacts(last_required_at)`,

		`CREATE TABLE IF NOT EXISTS env_versions (
		  id TEXT PRIMARY KEY,
		  wd_trust_id TEXT NOT NULL,
		  versions_json TEXT NOT NULL,
		  paths_json TEXT NOT NULL,
		  env_vars_json TEXT NOT NULL,
		  config_modtimes_json TEXT NOT NULL,
		  config_hash TEXT NOT NULL,
		  created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_env_versions_wd ON env_versions(wd_trust_id)`,

		`CREATE TABLE IF NOT EXISTS required_by (
		  installed_artifact_id INTEGER NOT NULL REFERENCES installed_artifacts(id) ON DELETE CASCADE,
		  env_version_id TEXT NOT NULL REFERENCES env_versions(id) ON DELETE CASCADE,
		  last_required_at INTEGER NOT NULL,
		  PRIMARY KEY (installed_artifact_id, env_version_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_required_by_env ON required_by(env_version_id)`,

		`CREATE TABLE IF NOT EXISTS env_bindings (
		  wd_trust_id TEXT PRIMARY KEY,
		  env_version_id TEXT NOT NULL REFERENCES env_versions(id)
		)`,

		`CREATE TABLE IF NOT EXISTS workdir_history (
		  id INTEGER PRIMARY KEY AUTOINCREMENT,
		  wd_trust_id TEXT NOT NULL,
		  env_version_id TEXT NOT NULL REFERENCES env_versions(id) ON DELETE CASCADE,
		  head_sha TEXT NOT NULL DEFAULT '',
		  opened_at INTEGER NOT NULL,
		  closed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workdir_history_wd ON workdir_history(wd_trust_id, closed_at)`,

		`CREATE TABLE IF NOT EXISTS versions_cache (
		  key TEXT PRIMARY KEY,
		  versions_json TEXT NOT NULL,
		  fetched_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("initial schema: %w", err)
		}
	}
	return nil
}
