package adapt

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (e *exec) migrateWithSqlStatements(ctx context.Context, parsed *ParsedMigration, beforeFinishCallback func(target DBTarget) error) error {
	parsed = withParameters(parsed, e.params)
	e.log.Debug("parsed migration has n statements", "n", len(parsed.Stmts))

	run := func(target DBTarget) error {
		for _, s := range parsed.Stmts {
			e.log.Debug("executing statement", "statement", s)

			started := time.Now()
			if _, err := target.ExecContext(ctx, s); err != nil {
				e.log.Error("failed executing statement", "statement", s, "error", err)
				return err
			}

			e.log.Debug("executing statement took", "duration", time.Since(started))
		}

		if beforeFinishCallback != nil {
			e.log.Debug("beforeFinishCallback is provided. calling so cleanup can be performed within the (eventually running) same transaction")

			err := beforeFinishCallback(target)
			if err != nil {
				e.log.Error("beforeFinishCallback failed", "error", err)
				return err
			}
			e.log.Debug("beforeFinishCallback successful")
		}

		return nil
	}

	if !e.session.dialect.SupportsTx() {
		e.log.Debug("executing statements without transaction, because dialect doesn't support transactions")
		return run(e.session.conn)
	}
	if !parsed.UseTx {
		e.log.Debug("executing statements without transaction, because transactions are disabled for this migration specifically")
		return run(e.session.conn)
	}

	e.log.Debug("executing statements in transaction")
	return e.inTx(ctx, func(tx *sql.Tx) error {
		return run(tx)
	})
}

// inTx runs fn inside a transaction on the bound connection. The transaction
// is committed when fn succeeds and rolled back otherwise.
func (e *exec) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	e.log.Debug("starting tx")
	tx, err := e.session.conn.BeginTx(ctx, e.session.engine.txOpts)
	if err != nil {
		e.log.Error("failed to begin tx", "error", err)
		return err
	}
	defer func() {
		if err != nil {
			e.log.Warn("exec failed. trying to rollback tx", "error", err)
			if errRb := tx.Rollback(); errRb != nil {
				e.log.Error("rollback failed too", "error", errRb)
				err = fmt.Errorf("adapt: exec failed (%w) and rollback failed (%v). Manual cleanup is necessary", err, errRb)
				return
			}

			e.log.Info("rollback successful")
			err = fmt.Errorf("adapt: exec failed but rollback succeeded. Integrity should be protected, but manual cleanup is probably necessary: %w", err)
			return
		}

		e.log.Debug("committing tx")
		err = tx.Commit()
		if err != nil {
			e.log.Error("commit failed", "error", err)
		}
	}()

	return fn(tx)
}
