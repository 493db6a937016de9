package storage

import (
	"context"
	"embed"
	"strings"
	"time"

	"scamwatch/internal/config"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store owns the reports, admin_actions and user_timeouts tables. The same
// queries run against PostgreSQL (pgx) and SQLite; placeholders are written
// as ? and rebound per driver.
type Store struct {
	db     *sqlx.DB
	driver string
	clock  Clock
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// New opens a store without applying pool settings. driver is "postgres"
// or "sqlite".
func New(driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverPostgres:
		sqlDriver = "pgx"
	case DriverSQLite:
		sqlDriver = "sqlite"
	default:
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(sqlDriver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, driver: driver, clock: realClock{}}, nil
}

// Open builds a store from config with a bounded connection pool.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	store, err := New(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverPostgres {
		store.db.SetMaxOpenConns(cfg.MaxConns)
		store.db.SetMaxIdleConns(cfg.MaxConns)
		store.db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return store, nil
}

func (s *Store) WithClock(clock Clock) {
	s.clock = clock
}

func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "ping database")
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// Migrate applies pending migrations and returns how many ran.
func (s *Store) Migrate() (int, error) {
	dialect := "postgres"
	if s.driver == DriverSQLite {
		dialect = "sqlite3"
	}
	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       "migrations/" + s.driver,
	}
	n, err := migrate.Exec(s.db.DB, dialect, source, migrate.Up)
	if err != nil {
		return n, errors.Wrap(err, "apply migrations")
	}
	return n, nil
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// IsUniqueViolation reports whether err came from a unique or primary key
// constraint on either backend.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
