package adapt

import (
	"context"
	"database/sql"
	"fmt"
)

func (e *exec) migrateWithHook(ctx context.Context, migrationID string, source HookSource) error {
	hook := source.GetHook(migrationID)

	switch {
	case hook.MigrateUp != nil:
		e.log.Debug("executing migration using hook.MigrateUp")
		if err := hook.MigrateUp(ctx); err != nil {
			e.log.Error("failed to migrate using hook.MigrateUp", "error", err)
			return err
		}
		return nil
	case hook.MigrateUpConn != nil:
		e.log.Debug("executing migration using hook.MigrateUpConn")
		if err := hook.MigrateUpConn(ctx, e.session.conn); err != nil {
			e.log.Error("failed to migrate using hook.MigrateUpConn", "error", err)
			return err
		}
		return nil
	case hook.MigrateUpTx != nil:
		if !e.session.dialect.SupportsTx() {
			e.log.Error("dialect doesn't support transactions, but Hook uses MigrateUpTx")
			return fmt.Errorf("adapt: hook %q uses MigrateUpTx without transaction support: %w", migrationID, ErrInvalidSource)
		}
		e.log.Debug("executing migration using hook.MigrateUpTx")
		return e.inTx(ctx, func(tx *sql.Tx) error {
			err := hook.MigrateUpTx(ctx, tx)
			if err != nil {
				e.log.Error("failed to migrate using hook.MigrateUpTx", "error", err)
			}
			return err
		})
	}

	e.log.Error("all hook callbacks are nil. nothing to do ?")
	return fmt.Errorf("adapt: hook %q has no callback: %w", migrationID, ErrInvalidSource)
}
