package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateEnvVersionAliases adds the aliases_json column to env_versions,
// carrying the supplemental shell-alias feature (original_source/'s
// shell_aliases.rs, see SPEC_FULL.md §4.5). Aliases are stored alongside
// an environment version but deliberately excluded from its content hash
// (internal/ledger.HashPayload's signature is unchanged) so adding or
// editing aliases never invalidates an otherwise-identical env_version_id.
func MigrateEnvVersionAliases(db *sql.DB) error {
	if hasColumn(db, "env_versions", "aliases_json") {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE env_versions ADD COLUMN aliases_json TEXT NOT NULL DEFAULT '[]'`); err != nil {
		return fmt.Errorf("adding aliases_json: %w", err)
	}
	return nil
}
