package adapt

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type sqliteDialect struct{}

func (d *sqliteDialect) Name() string {
	return "dialect_sqlite"
}

func (d *sqliteDialect) UseSchema(schema string) (string, error) {
	// attached databases are no isolated namespaces for unqualified names
	if schema == "" || schema == "main" {
		return "", nil
	}
	return "", fmt.Errorf("adapt.sqliteDialect: schema %q: %w", schema, ErrSchemaUnsupported)
}

func (d *sqliteDialect) CreateMetaTable(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s
(
    id               TEXT     NOT NULL,
    executor         TEXT     NOT NULL,
    started          DATETIME NOT NULL,
    finished         DATETIME,
    hash             TEXT,
    adapt            TEXT     NOT NULL,
    deployment       TEXT     NOT NULL,
    deployment_order INT      NOT NULL,
    down             BLOB,
    PRIMARY KEY (id),
    UNIQUE (deployment, deployment_order)
)`, table)
}

func (d *sqliteDialect) SupportsLocks() bool {
	return false
}

func (d *sqliteDialect) CurrentSchema() string {
	return ""
}

func (d *sqliteDialect) AcquireLock(_, _ string) (string, []interface{}) {
	return "", nil
}

func (d *sqliteDialect) ReleaseLock(_, _ string) (string, []interface{}) {
	return "", nil
}

func (d *sqliteDialect) ListMigrations(table string) string {
	return fmt.Sprintf("SELECT id, executor, started, finished, hash, adapt, deployment, deployment_order, down FROM %s ORDER BY id", table)
}

func (d *sqliteDialect) AddMigration(table string, m *Migration) (string, []interface{}) {
	return fmt.Sprintf("INSERT INTO %s (id, executor, started, hash, adapt, deployment, deployment_order, down) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", table),
		[]interface{}{m.ID, m.Executor, m.Started, m.Hash, m.Adapt, m.Deployment, m.DeploymentOrder, m.Down}
}

func (d *sqliteDialect) SetMigrationToFinished(table, migrationID string) (string, []interface{}) {
	return fmt.Sprintf("UPDATE %s SET finished=? WHERE id=?", table),
		[]interface{}{time.Now().UTC(), migrationID}
}

func (d *sqliteDialect) DeleteMigration(table, migrationID string) (string, []interface{}) {
	return fmt.Sprintf("DELETE FROM %s WHERE id=?", table), []interface{}{migrationID}
}

func (d *sqliteDialect) SupportsTx() bool {
	return true
}

func (d *sqliteDialect) DropAll(ctx context.Context, target DBTarget, schema string, log *slog.Logger) (err error) {
	if _, err := d.UseSchema(schema); err != nil {
		return err
	}

	rows, err := target.QueryContext(ctx,
		"SELECT type, name FROM sqlite_master WHERE type IN ('view', 'trigger', 'table') AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		log.Error("failed to list schema objects", "error", err)
		return err
	}
	var views, triggers, tables []string
	for rows.Next() {
		var typ, name string
		if err := rows.Scan(&typ, &name); err != nil {
			_ = rows.Close()
			return err
		}
		switch typ {
		case "view":
			views = append(views, "DROP VIEW IF EXISTS "+quoteIdent(name, `"`))
		case "trigger":
			triggers = append(triggers, "DROP TRIGGER IF EXISTS "+quoteIdent(name, `"`))
		default:
			tables = append(tables, "DROP TABLE IF EXISTS "+quoteIdent(name, `"`))
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var foreignKeys bool
	if err := target.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		return err
	}
	if foreignKeys {
		if _, err := target.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return err
		}
		defer func() {
			if _, fkErr := target.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil && err == nil {
				err = fkErr
			}
		}()
	}

	stmts := append(append(views, triggers...), tables...)
	for _, stmt := range stmts {
		log.Debug("executing statement", "statement", stmt)
		if _, err := target.ExecContext(ctx, stmt); err != nil {
			log.Error("failed executing statement", "statement", stmt, "error", err)
			return err
		}
	}

	return nil
}
