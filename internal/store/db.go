package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationFiles embed.FS

// Dialect selects the SQL flavor a DB speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB is a database handle shared by the insight and profile stores.
type DB struct {
	sql     *sql.DB
	dialect Dialect
}

// Open connects to the database named by driver ("sqlite" or "postgres") and
// applies all pending migrations. For sqlite, dsn is a file path.
func Open(driver, dsn string) (*DB, error) {
	dialect, driverName, err := resolveDriver(driver)
	if err != nil {
		return nil, err
	}

	if err := migrateUp(dialect, driverName, dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// SQLite allows one writer; a single connection serializes access
		// instead of surfacing "database is locked".
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s db: %w", dialect, err)
	}

	return &DB{sql: db, dialect: dialect}, nil
}

func resolveDriver(driver string) (Dialect, string, error) {
	switch driver {
	case "", "sqlite":
		return DialectSQLite, "sqlite", nil
	case "postgres", "pgx":
		return DialectPostgres, "pgx/v5", nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// migrateUp applies the embedded migrations for dialect on a dedicated handle,
// which the migrate drivers close when done.
func migrateUp(dialect Dialect, driverName, dsn string) error {
	sourceDriver, err := iofs.New(migrationFiles, "migrations/"+string(dialect))
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("opening %s db for migrations: %w", dialect, err)
	}

	var m *migrate.Migrate
	switch dialect {
	case DialectPostgres:
		dbDriver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{
			MigrationsTable: "gomigrate_pathwise",
		})
		if err != nil {
			sqlDB.Close()
			return fmt.Errorf("creating pgx migrate driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", sourceDriver, "pgx", dbDriver)
		if err != nil {
			dbDriver.Close()
			return fmt.Errorf("creating migrate instance: %w", err)
		}
	default:
		dbDriver, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{
			MigrationsTable: "gomigrate_pathwise",
		})
		if err != nil {
			sqlDB.Close()
			return fmt.Errorf("creating sqlite migrate driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
		if err != nil {
			dbDriver.Close()
			return fmt.Errorf("creating migrate instance: %w", err)
		}
	}
	defer m.Close()

	_, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading migration version: %w", err)
	}
	if dirty {
		return errors.New("database migration is dirty, fix it before starting")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Dialect reports which SQL flavor the handle speaks.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.sql.Close()
}

// rebind rewrites '?' placeholders to '$n' for Postgres. Queries in this
// package never contain a literal question mark.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Timestamps are stored as unix milliseconds so both dialects compare them numerically.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
