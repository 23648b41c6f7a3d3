package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"CaseCurator/internal/ports"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// timeLayout is fixed-width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLStore persists cases, evaluations and bulk jobs in sqlite or postgres.
type SQLStore struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	driver string
	now    func() time.Time
}

var _ ports.Store = (*SQLStore)(nil)

// Open connects with the named driver and runs migrations.
func Open(driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY under the scoring pool.
		db.SetMaxOpenConns(1)
	}
	store, err := NewStoreWithDB(db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithDB wraps an existing handle and runs migrations.
func NewStoreWithDB(db *sql.DB, driver string) (*SQLStore, error) {
	var ph sq.PlaceholderFormat
	switch driver {
	case DriverSQLite:
		ph = sq.Question
	case DriverPostgres:
		ph = sq.Dollar
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	s := &SQLStore{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(ph),
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
