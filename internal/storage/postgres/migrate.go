package postgres

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// migrationLogger adapts slog to migrate.Logger.
type migrationLogger struct {
	verbose bool
}

func (l migrationLogger) Printf(format string, v ...any) {
	slog.Info("migrate: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrationLogger) Verbose() bool { return l.verbose }

// MigrateURL rewrites a postgres:// URL to the scheme the pgx/v5
// migrate driver registers.
func MigrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

// Migrate applies (Up) or rolls back (Down) every embedded migration.
// Having nothing to do is not an error.
func Migrate(databaseURL string, dir Direction) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, MigrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()
	m.Log = migrationLogger{}

	before, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", verr)
	}
	if dirty {
		return fmt.Errorf("schema is dirty at version %d, fix it manually before migrating", before)
	}

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return fmt.Errorf("unknown migration direction %q", dir)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("no new migrations to apply", "version", before)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}

	after, _, _ := m.Version()
	slog.Info("migrations applied", "direction", dir, "from", before, "to", after)
	return nil
}
