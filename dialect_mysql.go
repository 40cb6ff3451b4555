package adapt

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type mysqlDialect struct{}

func (d *mysqlDialect) Name() string {
	return "dialect_mysql"
}

func (d *mysqlDialect) UseSchema(schema string) (string, error) {
	if schema == "" {
		return "", nil
	}
	return "USE " + quoteIdent(schema, "`"), nil
}

func (d *mysqlDialect) CurrentSchema() string {
	return "SELECT DATABASE()"
}

func (d *mysqlDialect) CreateMetaTable(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s
(
    id               VARCHAR(255) NOT NULL,
    executor         VARCHAR(255) NOT NULL,
    started          TIMESTAMP(6) NOT NULL,
    finished         TIMESTAMP(6) NULL,
    hash             VARCHAR(255),
    adapt            VARCHAR(32)  NOT NULL,
    deployment       VARCHAR(255) NOT NULL,
    deployment_order INT          NOT NULL,
    down             MEDIUMBLOB,
    PRIMARY KEY (id),
    UNIQUE (deployment, deployment_order)
)`, table)
}

func (d *mysqlDialect) SupportsLocks() bool {
	return true
}

func (d *mysqlDialect) lockName(schema, table string) string {
	// GET_LOCK names are limited to 64 characters
	return fmt.Sprintf("adapt_%d", hashLockKey(schema+"."+table))
}

func (d *mysqlDialect) AcquireLock(schema, table string) (string, []interface{}) {
	// https://dev.mysql.com/doc/refman/8.0/en/locking-functions.html
	return "SELECT GET_LOCK(?, -1)", []interface{}{d.lockName(schema, table)}
}

func (d *mysqlDialect) ReleaseLock(schema, table string) (string, []interface{}) {
	return "SELECT RELEASE_LOCK(?)", []interface{}{d.lockName(schema, table)}
}

func (d *mysqlDialect) ListMigrations(table string) string {
	return fmt.Sprintf("SELECT id, executor, started, finished, hash, adapt, deployment, deployment_order, down FROM %s ORDER BY id", table)
}

func (d *mysqlDialect) AddMigration(table string, m *Migration) (string, []interface{}) {
	return fmt.Sprintf("INSERT INTO %s (id, executor, started, hash, adapt, deployment, deployment_order, down) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", table),
		[]interface{}{m.ID, m.Executor, m.Started, m.Hash, m.Adapt, m.Deployment, m.DeploymentOrder, m.Down}
}

func (d *mysqlDialect) SetMigrationToFinished(table, migrationID string) (string, []interface{}) {
	return fmt.Sprintf("UPDATE %s SET finished=? WHERE id=?", table),
		[]interface{}{time.Now().UTC(), migrationID}
}

func (d *mysqlDialect) DeleteMigration(table, migrationID string) (string, []interface{}) {
	return fmt.Sprintf("DELETE FROM %s WHERE id=?", table), []interface{}{migrationID}
}

func (d *mysqlDialect) SupportsTx() bool {
	return true
}

func (d *mysqlDialect) DropAll(ctx context.Context, target DBTarget, schema string, log *slog.Logger) (err error) {
	if schema == "" {
		if err := target.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&schema); err != nil {
			log.Error("failed to resolve current database", "error", err)
			return err
		}
	}

	rows, err := target.QueryContext(ctx,
		"SELECT table_name, table_type FROM information_schema.tables WHERE table_schema = ? ORDER BY table_name", schema)
	if err != nil {
		log.Error("failed to list tables", "error", err)
		return err
	}
	var views, tables []string
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			_ = rows.Close()
			return err
		}
		qualified := quoteIdent(schema, "`") + "." + quoteIdent(name, "`")
		if typ == "VIEW" {
			views = append(views, "DROP VIEW IF EXISTS "+qualified)
		} else {
			tables = append(tables, "DROP TABLE IF EXISTS "+qualified)
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := target.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return err
	}
	defer func() {
		if _, fkErr := target.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1"); fkErr != nil && err == nil {
			err = fkErr
		}
	}()

	for _, stmt := range append(views, tables...) {
		log.Debug("executing statement", "statement", stmt)
		if _, err := target.ExecContext(ctx, stmt); err != nil {
			log.Error("failed executing statement", "statement", stmt, "error", err)
			return err
		}
	}

	return nil
}
