package adapt

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	// Version is the package's version string used to store in meta tables
	Version = "adapt@v2.0.0"

	// DefaultMetaTable is the name of the meta-table created inside every schema
	DefaultMetaTable = "_adapt_migrations"
)

// EngineOption can modify the behaviour of the Engine and/or provide additional
// configuration values, like a custom *slog.Logger
type EngineOption func(*Engine) error

// EngineLogger provides a custom *slog.Logger to the Engine. It will be used
// within the whole engine and passed down to Source children.
func EngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) error {
		e.log = log
		return nil
	}
}

// EngineExecutor sets the executor name stored with every applied migration.
// Usually this should be combination of name and version like
// "myService@v1.17.0". By default Version is used.
func EngineExecutor(executor string) EngineOption {
	return func(e *Engine) error {
		executor = strings.TrimSpace(executor)
		if len(executor) == 0 {
			return fmt.Errorf("adapt.Engine: executor cannot be empty")
		}
		e.executor = executor
		return nil
	}
}

// DisableHashIntegrityChecks disables the hash integrity checks of SqlStatementsSource
// migrations against the already applied ones. By default adapt always performs these
// checks to protect against unwanted changes to SQL-Statements scripts after they have
// already been applied to a schema. Disabling it should be done with caution!
func DisableHashIntegrityChecks(e *Engine) error {
	e.optDisableHashIntegrityChecks = true
	return nil
}

// DisableLocks disables acquiring/releasing the per-schema lock, even if the
// Dialect supports locking.
func DisableLocks(e *Engine) error {
	e.optDisableLocks = true
	return nil
}

// MetaTableName sets the name of the meta-table created in every schema. By
// default DefaultMetaTable is used.
func MetaTableName(table string) EngineOption {
	return func(e *Engine) error {
		table = strings.TrimSpace(table)
		if len(table) == 0 {
			return fmt.Errorf("adapt.Engine: table name cannot be empty")
		}
		e.metaTable = table
		return nil
	}
}

// CodeMigrations adds Go-code migrations to the changelog of every Session.
func CodeMigrations(hooks map[string]Hook) EngineOption {
	return func(e *Engine) error {
		e.hooks = hooks
		return nil
	}
}

// ForceDialect disables dialect detection and always uses d.
func ForceDialect(d Dialect) EngineOption {
	return func(e *Engine) error {
		e.dialect = d
		return nil
	}
}

// TxOptions sets the options used when a migration is executed inside a
// transaction.
func TxOptions(opts *sql.TxOptions) EngineOption {
	return func(e *Engine) error {
		e.txOpts = opts
		return nil
	}
}

// Engine is the adapt Applier. It migrates changelogs of SQL files and Go-code
// hooks and keeps track of applied migrations in a meta-table per schema.
type Engine struct {
	log       *slog.Logger
	executor  string
	metaTable string
	hooks     map[string]Hook
	dialect   Dialect
	txOpts    *sql.TxOptions

	optDisableLocks               bool
	optDisableHashIntegrityChecks bool
}

// NewEngine creates an Engine and applies all options.
func NewEngine(options ...EngineOption) (*Engine, error) {
	e := &Engine{
		log:       slog.New(slog.NewTextHandler(os.Stdout, nil)),
		executor:  Version,
		metaTable: DefaultMetaTable,
	}

	for _, opt := range options {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	// name logger
	e.log = e.log.With("logged_from", Version)

	return e, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (e *Engine) NewSession(ctx context.Context, conn Conn, changelog string, accessor ResourceAccessor) (Session, error) {
	log := e.log.With("changelog", changelog)

	dialect := e.dialect
	if dialect == nil {
		var err error
		dialect, err = detectDialect(ctx, conn, dialectOf(conn), log)
		if err != nil {
			return nil, err
		}
	}
	log = log.With("adapt_dialect", dialect.Name())

	var baseSchema sql.NullString
	if query := dialect.CurrentSchema(); len(query) > 0 {
		if err := conn.QueryRowContext(ctx, query).Scan(&baseSchema); err != nil {
			log.Error("failed to resolve default schema", "error", err)
			return nil, err
		}
		log.Debug("resolved default schema", "schema", baseSchema.String)
	}

	sources, err := loadChangelog(accessor, changelog, log)
	if err != nil {
		return nil, err
	}
	if len(e.hooks) > 0 {
		sources = append(sources, NewCodePackageSource(e.hooks))
	}

	err = initSources(sources, log)
	if err != nil {
		return nil, err
	}

	available, err := mergeSources(sources, log)
	if err != nil {
		return nil, err
	}

	return &session{
		engine:     e,
		log:        log,
		dialect:    dialect,
		available:  available,
		params:     make(map[string]string),
		baseSchema: baseSchema.String,
	}, nil
}
