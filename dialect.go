package adapt

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
)

const (
	dialectPostgres = "postgres"
	dialectMySQL    = "mysql"
	dialectSQLite   = "sqlite"
)

// Dialect provides the database specific (query, args) pairs adapt needs to
// maintain its meta-table inside a tenant's schema. Except for DropAll a
// Dialect never executes anything itself. All meta-table statements use the
// unqualified table name, as UseSchema already selected the tenant's schema.
type Dialect interface {
	// Name reports the name of this Dialect. It is mainly used for logging.
	Name() string
	// UseSchema must return the statement that makes schema the default
	// schema of the connection. An empty query means nothing needs to be
	// executed. An empty schema must restore the database's default, as
	// pooled connections keep whatever schema a previous session selected.
	UseSchema(schema string) (query string, err error)
	// CurrentSchema must return a query selecting the connection's current
	// default schema (nullable), or an empty query when UseSchema("") can
	// restore the default without knowing it.
	CurrentSchema() (query string)
	// CreateMetaTable must return a statement that creates the meta-table if
	// it doesn't exist yet.
	CreateMetaTable(table string) (query string)
	// SupportsLocks reports whether the dialect supports locking or not. This
	// influences if AcquireLock and ReleaseLock are used.
	SupportsLocks() bool
	// AcquireLock must return a query that blocks until an exclusive lock for
	// the schema's meta-table is held by the connection.
	AcquireLock(schema, table string) (query string, args []interface{})
	// ReleaseLock must return a query that releases the lock again.
	ReleaseLock(schema, table string) (query string, args []interface{})
	// ListMigrations must return a database query that selects all Migration
	// data in the following order: ID, Executor, Started, Finished, Hash, Adapt
	// Deployment, DeploymentOrder, Down.
	ListMigrations(table string) (query string)
	// AddMigration must return a query and its args inserting m.
	AddMigration(table string, m *Migration) (query string, args []interface{})
	// SetMigrationToFinished must return a query and its args setting the
	// finished time of migrationID to now.
	SetMigrationToFinished(table, migrationID string) (query string, args []interface{})
	// DeleteMigration must return a query and its args deleting migrationID.
	DeleteMigration(table, migrationID string) (query string, args []interface{})
	// SupportsTx reports whether migrations can be run inside transactions.
	SupportsTx() bool
	// DropAll destroys every object in schema (or the connection's current
	// schema when empty).
	DropAll(ctx context.Context, target DBTarget, schema string, log *slog.Logger) error
}

// DialectByName returns the built-in Dialect for "postgres", "mysql" or
// "sqlite".
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case dialectPostgres, "postgresql", "pgx":
		return &postgresDialect{}, nil
	case dialectMySQL, "mariadb":
		return &mysqlDialect{}, nil
	case dialectSQLite, "sqlite3":
		return &sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("adapt: unknown dialect %q", name)
	}
}

// detectDialect uses hint when set and otherwise probes the connection
func detectDialect(ctx context.Context, conn DBTarget, hint string, log *slog.Logger) (Dialect, error) {
	if hint != "" {
		return DialectByName(hint)
	}

	var version string
	if err := conn.QueryRowContext(ctx, "SELECT version()").Scan(&version); err == nil {
		log.Debug("detected database version", "version", version)
		if strings.Contains(strings.ToLower(version), "postgresql") {
			return &postgresDialect{}, nil
		}
		return &mysqlDialect{}, nil
	}

	if err := conn.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err == nil {
		log.Debug("detected sqlite version", "version", version)
		return &sqliteDialect{}, nil
	}

	log.Error("unable to detect database dialect")
	return nil, fmt.Errorf("adapt: unable to detect database dialect")
}

// hashLockKey produces a stable int64 hash from a string key for use with
// advisory locks.
func hashLockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}

func quoteIdent(ident, quote string) string {
	return quote + strings.ReplaceAll(ident, quote, quote+quote) + quote
}
