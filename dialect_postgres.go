package adapt

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type postgresDialect struct{}

func (d *postgresDialect) Name() string {
	return "dialect_postgres"
}

func (d *postgresDialect) UseSchema(schema string) (string, error) {
	if schema == "" {
		return "RESET search_path", nil
	}
	return "SET search_path TO " + quoteIdent(schema, `"`), nil
}

func (d *postgresDialect) CurrentSchema() string {
	return ""
}

func (d *postgresDialect) CreateMetaTable(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s
(
    id               TEXT         NOT NULL,
    executor         TEXT         NOT NULL,
    started          TIMESTAMP(6) NOT NULL,
    finished         TIMESTAMP(6),
    hash             TEXT,
    adapt            TEXT         NOT NULL,
    deployment       TEXT         NOT NULL,
    deployment_order INTEGER      NOT NULL,
    down             BYTEA,
    PRIMARY KEY (id),
    UNIQUE (deployment, deployment_order)
)`, table)
}

func (d *postgresDialect) SupportsLocks() bool {
	return true
}

func (d *postgresDialect) AcquireLock(schema, table string) (string, []interface{}) {
	// session level advisory lock, released explicitly or when the connection closes
	return "SELECT pg_advisory_lock($1)", []interface{}{hashLockKey(schema + "." + table)}
}

func (d *postgresDialect) ReleaseLock(schema, table string) (string, []interface{}) {
	return "SELECT pg_advisory_unlock($1)", []interface{}{hashLockKey(schema + "." + table)}
}

func (d *postgresDialect) ListMigrations(table string) string {
	return fmt.Sprintf("SELECT id, executor, started, finished, hash, adapt, deployment, deployment_order, down FROM %s ORDER BY id", table)
}

func (d *postgresDialect) AddMigration(table string, m *Migration) (string, []interface{}) {
	return fmt.Sprintf("INSERT INTO %s (id, executor, started, hash, adapt, deployment, deployment_order, down) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)", table),
		[]interface{}{m.ID, m.Executor, m.Started, m.Hash, m.Adapt, m.Deployment, m.DeploymentOrder, m.Down}
}

func (d *postgresDialect) SetMigrationToFinished(table, migrationID string) (string, []interface{}) {
	return fmt.Sprintf("UPDATE %s SET finished=$1 WHERE id=$2", table),
		[]interface{}{time.Now().UTC(), migrationID}
}

func (d *postgresDialect) DeleteMigration(table, migrationID string) (string, []interface{}) {
	return fmt.Sprintf("DELETE FROM %s WHERE id=$1", table), []interface{}{migrationID}
}

func (d *postgresDialect) SupportsTx() bool {
	return true
}

func (d *postgresDialect) DropAll(ctx context.Context, target DBTarget, schema string, log *slog.Logger) error {
	if schema == "" {
		if err := target.QueryRowContext(ctx, "SELECT current_schema()").Scan(&schema); err != nil {
			log.Error("failed to resolve current schema", "error", err)
			return err
		}
	}

	quoted := quoteIdent(schema, `"`)
	for _, stmt := range []string{
		"DROP SCHEMA IF EXISTS " + quoted + " CASCADE",
		"CREATE SCHEMA " + quoted,
	} {
		log.Debug("executing statement", "statement", stmt)
		if _, err := target.ExecContext(ctx, stmt); err != nil {
			log.Error("failed executing statement", "statement", stmt, "error", err)
			return err
		}
	}

	return nil
}
