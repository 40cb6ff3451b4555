package adapt

import (
	"context"
	"database/sql"
	"errors"
)

// DBTarget is a container for a sql execution target (either a Conn or sql.Tx)
type DBTarget interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Conn is a single database connection handed out by a DataSource. It is
// satisfied by *sql.Conn. Whoever opened a Conn is responsible for closing it.
type Conn interface {
	DBTarget
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// DataSource opens connections to the database shared by all schemas of a
// tenant configuration.
type DataSource interface {
	// Conn opens a connection using the default credentials of the datasource.
	Conn(ctx context.Context) (Conn, error)
	// ConnAs opens a connection authenticated with username and password.
	ConnAs(ctx context.Context, username, password string) (Conn, error)
}

// DialectProvider can optionally be implemented by a DataSource to report the
// name of its SQL dialect ("postgres", "mysql" or "sqlite"). Without it the
// dialect is detected by probing the connection.
type DialectProvider interface {
	Dialect() string
}

type dbDataSource struct {
	db      *sql.DB
	dialect string
}

// FromDB wraps an existing *sql.DB into a DataSource. dialect may be empty to
// detect it from the connection. The returned DataSource doesn't support
// explicit credentials, as database/sql offers no driver-agnostic way to
// re-authenticate a pool.
func FromDB(db *sql.DB, dialect string) DataSource {
	return &dbDataSource{db: db, dialect: dialect}
}

func (ds *dbDataSource) Conn(ctx context.Context) (Conn, error) {
	return openConn(ctx, ds.db, nil, ds.dialect)
}

func (ds *dbDataSource) ConnAs(_ context.Context, _, _ string) (Conn, error) {
	return nil, ErrCredentialsUnsupported
}

func (ds *dbDataSource) Dialect() string {
	return ds.dialect
}

// Close closes the underlying pool
func (ds *dbDataSource) Close() error {
	return ds.db.Close()
}

// sqlConn is the Conn handed out by the datasources of this package. It
// reports the dialect of its datasource and, for connections opened with
// explicit credentials, owns a pool that only exists for this connection.
type sqlConn struct {
	*sql.Conn
	pool    *sql.DB
	dialect string
}

// openConn takes a connection from db. When owned is set it is closed together
// with the connection, or right away when no connection can be established.
func openConn(ctx context.Context, db *sql.DB, owned *sql.DB, dialect string) (Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		if owned != nil {
			_ = owned.Close()
		}
		return nil, err
	}
	return &sqlConn{Conn: conn, pool: owned, dialect: dialect}, nil
}

func (c *sqlConn) Close() error {
	err := c.Conn.Close()
	if c.pool != nil {
		err = errors.Join(err, c.pool.Close())
	}
	return err
}

func (c *sqlConn) Dialect() string {
	return c.dialect
}

// dialectOf returns the dialect reported by v or an empty string
func dialectOf(v interface{}) string {
	if dp, ok := v.(DialectProvider); ok {
		return dp.Dialect()
	}
	return ""
}
