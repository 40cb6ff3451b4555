package adapt

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQLDataSource is a DataSource for MySQL and MariaDB backed by
// go-sql-driver/mysql.
type MySQLDataSource struct {
	cfg *mysql.Config
	db  *sql.DB
}

// NewMySQLDataSource parses dsn and opens a connection pool for the default
// credentials contained in it. parseTime is always enabled, as adapt's
// meta-table stores timestamps.
func NewMySQLDataSource(dsn string) (*MySQLDataSource, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("adapt: parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	db, err := openMySQL(cfg)
	if err != nil {
		return nil, err
	}
	return &MySQLDataSource{cfg: cfg, db: db}, nil
}

func openMySQL(cfg *mysql.Config) (*sql.DB, error) {
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("adapt: create mysql connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func (ds *MySQLDataSource) Conn(ctx context.Context) (Conn, error) {
	return openConn(ctx, ds.db, nil, dialectMySQL)
}

func (ds *MySQLDataSource) ConnAs(ctx context.Context, username, password string) (Conn, error) {
	cfg := ds.cfg.Clone()
	cfg.User = username
	cfg.Passwd = password

	pool, err := openMySQL(cfg)
	if err != nil {
		return nil, err
	}
	return openConn(ctx, pool, pool, dialectMySQL)
}

func (ds *MySQLDataSource) Dialect() string {
	return dialectMySQL
}

// DB returns the pool used for the default credentials
func (ds *MySQLDataSource) DB() *sql.DB {
	return ds.db
}

// Close closes the pool of the default credentials
func (ds *MySQLDataSource) Close() error {
	return ds.db.Close()
}
