package postgres

import (
	"context"
	"embed"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antti/imagevault/internal/shared"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every bundled migration in name order. The statements
// are all CREATE ... IF NOT EXISTS, so running Migrate repeatedly is
// safe; cmd/setup relies on that to be re-runnable.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return shared.NewFatalError(err, "read bundled migrations")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return shared.NewFatalError(err, "read migration "+name)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return shared.NewFatalError(err, "apply migration "+name)
		}
	}
	return nil
}
