package adapt

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresDataSource is a DataSource for PostgreSQL backed by pgx. Connections
// opened with explicit credentials use a dedicated pool built from the same
// connection string.
type PostgresDataSource struct {
	dsn string
	db  *sql.DB
}

// NewPostgresDataSource parses dsn (URL or keyword/value format) and opens a
// connection pool for the default credentials contained in it.
func NewPostgresDataSource(dsn string) (*PostgresDataSource, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("adapt: parse postgres dsn: %w", err)
	}
	return &PostgresDataSource{
		dsn: dsn,
		db:  stdlib.OpenDB(*cfg),
	}, nil
}

func (ds *PostgresDataSource) Conn(ctx context.Context) (Conn, error) {
	return openConn(ctx, ds.db, nil, dialectPostgres)
}

func (ds *PostgresDataSource) ConnAs(ctx context.Context, username, password string) (Conn, error) {
	cfg, err := pgx.ParseConfig(ds.dsn)
	if err != nil {
		return nil, fmt.Errorf("adapt: parse postgres dsn: %w", err)
	}
	cfg.User = username
	cfg.Password = password

	pool := stdlib.OpenDB(*cfg)
	return openConn(ctx, pool, pool, dialectPostgres)
}

func (ds *PostgresDataSource) Dialect() string {
	return dialectPostgres
}

// DB returns the pool used for the default credentials
func (ds *PostgresDataSource) DB() *sql.DB {
	return ds.db
}

// Close closes the pool of the default credentials
func (ds *PostgresDataSource) Close() error {
	return ds.db.Close()
}
