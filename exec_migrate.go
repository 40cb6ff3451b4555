package adapt

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

func (e *exec) stageMigrate(ctx context.Context) error {
	e.log.Debug("migrate")

	// generate deployment ID
	dID, err := genDeploymentID()
	if err != nil {
		e.log.Error("failed to generate deployment id", "error", err)
		return err
	}

	// find all needed migrations and drop those the run's filters exclude
	needed, err := e.selectMigrations(findNeededMigrations(e.applied, e.available, e.log))
	if err != nil {
		return err
	}
	if len(needed) == 0 {
		e.log.Info("all migrations already applied. everything up-to-date")
		return nil
	}

	// sequentially apply needed migrations
	for dOrder, migration := range needed {
		// convert all information to a Migration object
		meta, err := convertToMigration(migration, e.session.engine.executor, dID, dOrder, e.log)
		if err != nil {
			return err
		}

		// apply migration
		err = e.migrate(ctx, migration, meta)
		if err != nil {
			return err
		}
	}

	e.log.Info("migrate successful", "applied_amount", len(needed), "deployment", dID)
	return nil
}

func (e *exec) selectMigrations(needed []*AvailableMigration) ([]*AvailableMigration, error) {
	selected := make([]*AvailableMigration, 0, len(needed))
	for _, m := range needed {
		ok, err := e.selector.selects(m)
		if err != nil {
			e.log.Error("failed to evaluate filters", "migration_id", m.ID, "error", err)
			return nil, err
		}
		if !ok {
			e.log.Debug("migration excluded by contexts or labels", "migration_id", m.ID)
			continue
		}
		selected = append(selected, m)
	}
	return selected, nil
}

func genDeploymentID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return "ADAPT-" + id.String(), nil
}

func findNeededMigrations(applied []*Migration, available []*AvailableMigration, log *slog.Logger) []*AvailableMigration {
	// if there aren't any applied just return all available
	if len(applied) == 0 {
		return available
	}

	// store all needed migrations
	needed := make([]*AvailableMigration, 0)

	dbIdx := 0
	for memIdx := 0; memIdx < len(available); memIdx++ {
		// migration at current moving index-positions are equal. Therefore this migration
		// was already applied
		if applied[dbIdx].ID == available[memIdx].ID {
			// move db index-position
			dbIdx++

			// database has new further migrations => add all "remaining" new migrations
			// into needed and stop
			if dbIdx == len(applied) {
				needed = append(needed, available[memIdx+1:]...)
				break
			}

			continue
		}

		// current migration in memory is not applied. This is a "hole" inside our db (most
		// often caused by merges or by filters of earlier runs). Increase memIdx until hole
		// in db is closed.
		needed = append(needed, available[memIdx])
		log.Info("found migration hole. Adding local migrations until hole is closed", "migration_id", available[memIdx].ID)
	}

	return needed
}

func convertToMigration(a *AvailableMigration, executor string, deployment string, deploymentOrder int, log *slog.Logger) (*Migration, error) {
	meta := &Migration{
		ID:              a.ID,
		Executor:        executor,
		Started:         time.Now().UTC(),
		Adapt:           Version,
		Deployment:      deployment,
		DeploymentOrder: deploymentOrder,
	}

	if a.Hash != nil {
		meta.Hash = a.Hash
	}

	var parsed *ParsedMigration
	switch src := a.Source.(type) {
	case SqlStatementsSource:
		var err error
		parsed, err = src.GetParsedDownMigration(meta.ID)
		if err != nil {
			log.Error("failed to get parsed down migration", "error", err)
			return nil, err
		}
	case HookSource:
		hook := src.GetHook(meta.ID)
		if hook.MigrateDown != nil {
			parsed = hook.MigrateDown()
		}
	}
	if parsed == nil {
		log.Debug("unable to find down migration for id", "id", meta.ID)
	} else {
		buf, err := json.Marshal(parsed)
		if err != nil {
			log.Error("failed to json encode parsed down migration", "error", err)
			return nil, err
		}

		meta.Down = &buf
	}

	return meta, nil
}

func (e *exec) migrate(ctx context.Context, migration *AvailableMigration, meta *Migration) (err error) {
	log := e.log.With("migration_id", migration.ID)

	defer func(started time.Time) {
		if err == nil {
			log.Debug("migration finished successfully after", "took_duration", time.Since(started))
		} else {
			log.Debug("migration errored after", "took_duration", time.Since(started))
		}
	}(time.Now())

	log.Info("applying migration", "deployment", meta.Deployment, "deployment_order", meta.DeploymentOrder)

	// add meta information that we started this migration
	err = e.store.AddMigration(ctx, meta)
	if err != nil {
		log.Error("failed to add migration to meta-table", "error", err)
		return err
	}

	// switch between the source type of the migration
	switch src := migration.Source.(type) {
	case SqlStatementsSource:
		err = e.migrateWithSqlStatements(ctx, migration.ParsedUp, nil)
	case HookSource:
		err = e.migrateWithHook(ctx, meta.ID, src)
	}
	if err != nil {
		return err
	}

	// migration finished successful -> add label to store to signal that everything is ok
	err = e.store.SetMigrationToFinished(ctx, migration.ID)
	if err != nil {
		log.Error("failed to set migration to finished", "error", err)
		return err
	}
	return nil
}
