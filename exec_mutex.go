package adapt

import "context"

func (e *exec) acquireLock(ctx context.Context) error {
	if e.optDisableLocks {
		e.log.Debug("locking disabled by option")
		return nil
	}

	if !e.session.dialect.SupportsLocks() {
		e.log.Debug("locking not supported by dialect")
		return nil
	}

	e.log.Debug("locking enabled and supported by dialect. Going to acquire an exclusive lock")
	err := e.store.AcquireLock(ctx)
	if err != nil {
		e.log.Error("failed to acquire lock", "error", err)
		return err
	}

	e.lockAcquired = true
	e.log.Info("acquired an exclusive lock")

	return nil
}

func (e *exec) releaseLock(ctx context.Context) error {
	if !e.lockAcquired {
		return nil
	}

	e.log.Debug("releasing lock")
	err := e.store.ReleaseLock(ctx)
	if err != nil {
		e.log.Error("failed to release lock", "error", err)
		return err
	}

	e.lockAcquired = false
	e.log.Info("released lock")

	return nil
}
