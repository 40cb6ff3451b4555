package adapt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type session struct {
	engine    *Engine
	log       *slog.Logger
	dialect   Dialect
	available []*AvailableMigration
	params    map[string]string

	// baseSchema is the connection default observed while building the
	// session. It is selected whenever no schema is set and restored
	// before a handle goes back to its pool.
	baseSchema string

	conn     Conn
	schema   string
	switched bool
}

func (s *session) SetChangeLogParameter(key, value string) {
	s.params[key] = value
}

func (s *session) Bind(conn Conn) error {
	if s.conn != nil {
		return ErrSessionBound
	}
	if conn == nil {
		return fmt.Errorf("adapt.session: cannot bind nil connection")
	}
	s.conn = conn
	return nil
}

func (s *session) Bound() bool {
	return s.conn != nil
}

func (s *session) SetDefaultSchema(schema string) {
	s.schema = schema
}

// useSchema selects the session's schema on the bound handle, falling back to
// baseSchema when no schema is set.
func (s *session) useSchema(ctx context.Context, log *slog.Logger) error {
	schema := s.schema
	if schema == "" {
		schema = s.baseSchema
	}

	query, err := s.dialect.UseSchema(schema)
	if err != nil {
		log.Error("dialect cannot use schema", "error", err)
		return err
	}
	if len(query) == 0 {
		return nil
	}

	s.switched = true
	if _, err := s.conn.ExecContext(ctx, query); err != nil {
		log.Error("failed to select schema", "statement", query, "error", err)
		return err
	}
	return nil
}

// restoreSchema undoes useSchema, so the next user of the pooled handle
// starts on the database default.
func (s *session) restoreSchema() error {
	if !s.switched {
		return nil
	}
	s.switched = false

	query, err := s.dialect.UseSchema(s.baseSchema)
	if err != nil || len(query) == 0 {
		return err
	}
	_, err = s.conn.ExecContext(context.Background(), query)
	return err
}

func (s *session) DropAll(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("adapt.session: drop all on unbound session")
	}

	log := s.log.With("schema", s.schema)
	if err := s.useSchema(ctx, log); err != nil {
		return err
	}
	log.Debug("dropping all objects")
	if err := s.dialect.DropAll(ctx, s.conn, s.schema, log); err != nil {
		log.Error("failed to drop all objects", "error", err)
		return err
	}

	log.Info("dropped all objects")
	return nil
}

func (s *session) Update(ctx context.Context, contexts []string, labels string) error {
	if s.conn == nil {
		return fmt.Errorf("adapt.session: update on unbound session")
	}

	sel, err := newSelector(contexts, labels)
	if err != nil {
		return err
	}

	return newExec(s, sel).run(ctx)
}

func (s *session) Close() error {
	if s.conn == nil {
		return nil
	}
	resetErr := s.restoreSchema()
	if resetErr != nil {
		s.log.Warn("failed to restore default schema", "schema", s.baseSchema, "error", resetErr)
	}
	err := s.conn.Close()
	s.conn = nil
	return errors.Join(resetErr, err)
}
