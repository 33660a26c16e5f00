// Package sqlite persists the registry in a SQLite database shared by every
// process on the machine. The entries table holds the tree and the
// registry_changes table carries change notices between processes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver" // database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // bundled SQLite build

	"github.com/zjrosen/connreg/internal/log"
)

// dsnPragmas are applied to every pooled connection. Immediate transactions
// take the write lock up front so concurrent writers queue on busy_timeout
// instead of failing on lock upgrade.
const dsnPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_txlock=immediate"

// DB wraps the shared database connection.
type DB struct {
	conn *sql.DB
	path string
}

// NewDB opens (creating if needed) the database at path and migrates it to the
// current schema.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	existed := false
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		existed = true
	}

	conn, err := sql.Open("sqlite3", "file:"+path+"?"+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := runMigrations(conn, path, existed); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Debug(log.CatDB, "Opened database", "path", path)
	return &DB{conn: conn, path: path}, nil
}

// Connection returns the underlying connection pool.
func (db *DB) Connection() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// TreeRepository returns the registry backend stored in this database.
func (db *DB) TreeRepository() *TreeRepository {
	return newTreeRepository(db.conn)
}

// ChangeLog returns the notice log used by notify.FileChannel.
func (db *DB) ChangeLog() *ChangeLog {
	return newChangeLog(db.conn)
}
