package adapt

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteDataSource is a DataSource for a SQLite database file backed by
// modernc.org/sqlite. SQLite has no users, therefore ConnAs always fails.
type SQLiteDataSource struct {
	db *sql.DB
}

// NewSQLiteDataSource opens the database file at path. An in-memory database
// only lives as long as a single connection and is therefore not useful here.
func NewSQLiteDataSource(path string) (*SQLiteDataSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("adapt: open sqlite database: %w", err)
	}
	return &SQLiteDataSource{db: db}, nil
}

func (ds *SQLiteDataSource) Conn(ctx context.Context) (Conn, error) {
	return openConn(ctx, ds.db, nil, dialectSQLite)
}

func (ds *SQLiteDataSource) ConnAs(_ context.Context, _, _ string) (Conn, error) {
	return nil, ErrCredentialsUnsupported
}

func (ds *SQLiteDataSource) Dialect() string {
	return dialectSQLite
}

// DB returns the underlying pool
func (ds *SQLiteDataSource) DB() *sql.DB {
	return ds.db
}

// Close closes the underlying pool
func (ds *SQLiteDataSource) Close() error {
	return ds.db.Close()
}
