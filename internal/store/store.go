package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// Store wraps the SQLite metadata database for images and derivatives.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database and applies pending migrations.
func Open(path string) (*Store, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// New wraps an already configured and migrated database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SchemaVersion returns the latest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	return currentVersion(s.db)
}

// connPragmas go in the DSN so the driver applies them to every connection
// the pool opens, not only the first.
var connPragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS),
}

func configureDB(db *sql.DB) error {
	// Single writer keeps SQLite lock contention off the request path.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return db.Ping()
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	query := url.Values{}
	for _, pragma := range connPragmas {
		query.Add("_pragma", pragma)
	}
	u := url.URL{Scheme: "file", Path: path, RawQuery: query.Encode()}
	return u.String(), nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
