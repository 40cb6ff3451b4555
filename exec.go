package adapt

import (
	"context"
	"log/slog"
)

// exec holds the state of a single Session.Update against the bound schema
type exec struct {
	session  *session
	store    *metaStore
	selector *selector
	params   map[string]string
	log      *slog.Logger

	optDisableLocks               bool
	optDisableHashIntegrityChecks bool

	available      []*AvailableMigration
	lockAcquired   bool
	applied        []*Migration
	unknownApplied []*Migration
}

func newExec(s *session, sel *selector) *exec {
	log := s.log.With("schema", s.schema)
	return &exec{
		session: s,
		store: &metaStore{
			dialect: s.dialect,
			table:   s.engine.metaTable,
			schema:  s.schema,
			target:  s.conn,
			log:     log,
		},
		selector:                      sel,
		params:                        s.params,
		log:                           log,
		optDisableLocks:               s.engine.optDisableLocks,
		optDisableHashIntegrityChecks: s.engine.optDisableHashIntegrityChecks,
		available:                     s.available,
	}
}

func (e *exec) run(ctx context.Context) (err error) {
	err = e.stageHealthCheck(ctx)
	if err != nil {
		return err
	}

	err = e.acquireLock(ctx)
	if err != nil {
		return err
	}
	if e.lockAcquired {
		defer func() {
			unlockErr := e.releaseLock(ctx)
			if unlockErr != nil && err == nil {
				err = unlockErr
			}
		}()
	}

	err = e.stagePrepareRemote(ctx)
	if err != nil {
		return err
	}

	err = e.stageStart(ctx)
	if err != nil {
		return err
	}

	return nil
}
