package adapt

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// metaStore executes the (query, args) pairs of a Dialect against the
// connection a Session is currently bound to.
type metaStore struct {
	dialect Dialect
	table   string
	schema  string
	target  DBTarget
	log     *slog.Logger
}

func (s *metaStore) Healthy(ctx context.Context) error {
	_, err := s.target.ExecContext(ctx, s.dialect.CreateMetaTable(s.table))
	if err != nil {
		s.log.Error("failed to create or check if table exists", "table", s.table, "error", err)
		return err
	}
	return nil
}

func (s *metaStore) AcquireLock(ctx context.Context) error {
	query, args := s.dialect.AcquireLock(s.schema, s.table)
	if len(query) == 0 {
		return nil
	}
	_, err := s.target.ExecContext(ctx, query, args...)
	return err
}

func (s *metaStore) ReleaseLock(ctx context.Context) error {
	query, args := s.dialect.ReleaseLock(s.schema, s.table)
	if len(query) == 0 {
		return nil
	}
	_, err := s.target.ExecContext(ctx, query, args...)
	return err
}

func (s *metaStore) ListMigrations(ctx context.Context) ([]*Migration, error) {
	var migrations []*Migration

	rows, err := s.target.QueryContext(ctx, s.dialect.ListMigrations(s.table))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var id, executor, adapt, deployment string
		var deploymentOrder int
		var started time.Time
		var finished sql.NullTime
		var hash sql.NullString
		var down *[]byte

		err = rows.Scan(&id, &executor, &started, &finished, &hash, &adapt, &deployment, &deploymentOrder, &down)
		if err != nil {
			return nil, err
		}

		m := &Migration{
			ID:              id,
			Executor:        executor,
			Started:         started,
			Adapt:           adapt,
			Deployment:      deployment,
			DeploymentOrder: deploymentOrder,
			Down:            down,
		}
		if finished.Valid && finished.Time.Year() > 1 {
			m.Finished = &(finished.Time)
		}
		if hash.Valid {
			m.Hash = &(hash.String)
		}

		migrations = append(migrations, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return migrations, nil
}

func (s *metaStore) AddMigration(ctx context.Context, m *Migration) error {
	query, args := s.dialect.AddMigration(s.table, m)
	_, err := s.target.ExecContext(ctx, query, args...)
	return err
}

func (s *metaStore) SetMigrationToFinished(ctx context.Context, migrationID string) error {
	query, args := s.dialect.SetMigrationToFinished(s.table, migrationID)
	_, err := s.target.ExecContext(ctx, query, args...)
	return err
}

// DeleteMigration uses target instead of the bound connection, so the delete
// can join a running down migration's transaction.
func (s *metaStore) DeleteMigration(ctx context.Context, migrationID string, target DBTarget) error {
	query, args := s.dialect.DeleteMigration(s.table, migrationID)
	_, err := target.ExecContext(ctx, query, args...)
	return err
}
