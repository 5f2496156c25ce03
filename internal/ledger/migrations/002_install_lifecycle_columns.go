package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateInstallLifecycleColumns adds crash-safety bookkeeping to
// installed_artifacts: a row is only a satisfying candidate for version
// resolution once install_completed_at is set. A row with
// install_started_at set but install_completed_at still NULL means a prior
// process was interrupted mid-install; it is treated as absent (supplemental
// behavior carried from original_source/, dropped by the spec distillation).
func MigrateInstallLifecycleColumns(db *sql.DB) error {
	if !hasColumn(db, "installed_artifacts", "install_started_at") {
		if _, err := db.Exec(`ALTER TABLE installed_artifacts ADD COLUMN install_started_at INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("adding install_started_at: %w", err)
		}
	}
	if !hasColumn(db, "installed_artifacts", "install_completed_at") {
		if _, err := db.Exec(`ALTER TABLE installed_artifacts ADD COLUMN install_completed_at INTEGER`); err != nil {
			return fmt.Errorf("adding install_completed_at: %w", err)
		}
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}
