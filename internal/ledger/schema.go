package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/upkit-dev/upkit/internal/ledger/migrations"
)

// schemaMigration is one named, idempotent step in the ledger's schema
// history (spec §3's table layout, grown incrementally the way the teacher
// grows its own sqlite schema).
type schemaMigration struct {
	Name string
	Func func(*sql.DB) error
}

var migrationsList = []schemaMigration{
	{"initial_schema", migrations.MigrateInitialSchema},
	{"install_lifecycle_columns", migrations.MigrateInstallLifecycleColumns},
	{"env_version_aliases", migrations.MigrateEnvVersionAliases},
}

// migrate runs every pending migration inside a single exclusive
// transaction (BEGIN EXCLUSIVE, then COMMIT or ROLLBACK: the same shape as
// withExclusiveTx in ledger.go, which the write protocols run with BEGIN
// IMMEDIATE), so a crash mid-migration never leaves the schema half-applied.
func (l *Ledger) migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("acquiring exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = l.db.ExecContext(ctx, "ROLLBACK")
		}
	}()

	for _, m := range migrationsList {
		if err := m.Func(l.db); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
	}

	if _, err := l.db.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("committing migrations: %w", err)
	}
	committed = true
	return nil
}
