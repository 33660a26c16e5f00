package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync/atomic"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/zjrosen/connreg/internal/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// runMigrations brings the schema up to date. When migrations are pending and
// the database already existed, a copy is saved next to it first.
func runMigrations(conn *sql.DB, path string, existed bool) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", &migrationDriver{db: conn})
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	// The driver does not own conn, so this only releases the source.
	defer func() { _, _ = m.Close() }()

	current, dirty, err := m.Version()
	fresh := errors.Is(err, migrate.ErrNilVersion)
	if err != nil && !fresh {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", current)
	}

	latest, err := latestVersion(src)
	if err != nil {
		return err
	}
	if fresh || current < latest {
		if existed {
			if err := backupFile(path, path+".bak"); err != nil {
				return fmt.Errorf("backing up database before migration: %w", err)
			}
		}
		log.Info(log.CatDB, "Migrating schema", "from", current, "to", latest)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func latestVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("reading migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("reading migrations: %w", err)
		}
		v = next
	}
}

func backupFile(from, to string) error {
	data, err := os.ReadFile(from) //nolint:gosec // G304: path is the configured database
	if err != nil {
		return err
	}
	return os.WriteFile(to, data, 0o600)
}

// migrationDriver adapts an open *sql.DB to golang-migrate's database.Driver.
// Versions are kept in schema_migrations like the stock drivers do.
type migrationDriver struct {
	db     *sql.DB
	locked atomic.Bool
}

var _ database.Driver = (*migrationDriver)(nil)

func (d *migrationDriver) Open(string) (database.Driver, error) {
	return nil, errors.New("sqlite migration driver must be created with an open connection")
}

// Close leaves the connection open; DB owns it.
func (d *migrationDriver) Close() error {
	return nil
}

func (d *migrationDriver) Lock() error {
	if !d.locked.CompareAndSwap(false, true) {
		return database.ErrLocked
	}
	return nil
}

func (d *migrationDriver) Unlock() error {
	if !d.locked.CompareAndSwap(true, false) {
		return database.ErrNotLocked
	}
	return nil
}

func (d *migrationDriver) Run(migration io.Reader) error {
	stmts, err := io.ReadAll(migration)
	if err != nil {
		return err
	}
	if _, err := d.db.Exec(string(stmts)); err != nil {
		return database.Error{OrigErr: err, Err: "migration failed", Query: stmts}
	}
	return nil
}

func (d *migrationDriver) ensureVersionTable(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL, dirty INTEGER NOT NULL)`)
	return err
}

func (d *migrationDriver) SetVersion(version int, dirty bool) error {
	ctx := context.Background()
	if err := d.ensureVersionTable(ctx); err != nil {
		return err
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		return err
	}
	if version >= 0 || (version == database.NilVersion && dirty) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirty); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *migrationDriver) Version() (int, bool, error) {
	ctx := context.Background()
	if err := d.ensureVersionTable(ctx); err != nil {
		return 0, false, err
	}
	var (
		version int
		dirty   bool
	)
	err := d.db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return database.NilVersion, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

func (d *migrationDriver) Drop() error {
	rows, err := d.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return err
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, name := range tables {
		if _, err := d.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q`, name)); err != nil {
			return err
		}
	}
	return nil
}
