package adapt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
)

// ReadyObserver is implemented by components that must run once the host
// application finished initializing.
type ReadyObserver interface {
	OnApplicationReady(ctx context.Context) error
}

// Option can modify the behaviour of the Orchestrator and/or provide additional
// configuration values, like a custom *slog.Logger
type Option func(*Orchestrator) error

// Logger provides a custom *slog.Logger to the Orchestrator. Unless an Applier
// is passed with WithApplier it is handed down to the Engine as well.
func Logger(log *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if log == nil {
			return fmt.Errorf("adapt.Orchestrator: logger cannot be nil")
		}
		o.log = log
		return nil
	}
}

// DisableLogger fully disables logging output
func DisableLogger(o *Orchestrator) error {
	o.log = discardLogger()
	return nil
}

// Metrics registers the Orchestrator's Prometheus collectors with reg
func Metrics(reg prometheus.Registerer) Option {
	return func(o *Orchestrator) error {
		m, err := newMetrics(reg)
		if err != nil {
			return err
		}
		o.metrics = m
		return nil
	}
}

// WithApplier replaces the Engine with a custom Applier
func WithApplier(applier Applier) Option {
	return func(o *Orchestrator) error {
		if applier == nil {
			return fmt.Errorf("adapt.Orchestrator: applier cannot be nil")
		}
		o.applier = applier
		return nil
	}
}

// WithGate replaces the default NewEnvGate run-gate
func WithGate(gate RunGate) Option {
	return func(o *Orchestrator) error {
		if gate == nil {
			return fmt.Errorf("adapt.Orchestrator: run-gate cannot be nil")
		}
		o.gate = gate
		return nil
	}
}

// WithEngineOptions configures the Engine created when no custom Applier is
// used.
func WithEngineOptions(options ...EngineOption) Option {
	return func(o *Orchestrator) error {
		o.engineOptions = append(o.engineOptions, options...)
		return nil
	}
}

var hostname = os.Hostname

// Orchestrator migrates the schemas of a fixed set of tenant configurations
// at application startup.
type Orchestrator struct {
	log           *slog.Logger
	tenants       []TenantConfig
	applier       Applier
	engineOptions []EngineOption
	gate          RunGate
	metrics       *metrics

	run bool
}

// NewOrchestrator resolves the tenants and the run-gate once. Neither is
// queried again by PerformUpdate.
func NewOrchestrator(tenants []TenantConfig, options ...Option) (*Orchestrator, error) {
	if len(tenants) == 0 {
		return nil, ErrNoTenants
	}
	for idx, t := range tenants {
		if t == nil {
			return nil, fmt.Errorf("%w: tenant at index %d is nil", ErrInvalidTenant, idx)
		}
	}

	o := &Orchestrator{
		log:     slog.New(slog.NewTextHandler(os.Stdout, nil)),
		tenants: append([]TenantConfig(nil), tenants...),
		gate:    NewEnvGate(),
	}

	for _, opt := range options {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	// name logger
	o.log = o.log.With("logged_from", Version)

	if o.applier == nil {
		engine, err := NewEngine(append([]EngineOption{EngineLogger(o.log)}, o.engineOptions...)...)
		if err != nil {
			return nil, err
		}
		o.applier = engine
	}

	o.log.Info("booting", "tenants", len(o.tenants))

	run, description, err := o.gate.ShouldRun()
	if err != nil {
		o.log.Error("failed to resolve run-gate", "error", err)
		return nil, err
	}
	o.run = run
	if !run {
		host, err := hostname()
		if err != nil {
			o.log.Warn("unable to resolve hostname", "error", err)
			host = "unknown"
		}
		o.log.Info("migrations are disabled on this host", "host", host, "setting", description)
	}

	return o, nil
}

// OnApplicationReady performs all updates. The host calls it exactly once.
func (o *Orchestrator) OnApplicationReady(ctx context.Context) error {
	return o.PerformUpdate(ctx)
}

// PerformUpdate migrates every schema of every tenant in order. The first
// failure aborts all remaining work and is returned as *StartupError. When
// the run-gate is disabled PerformUpdate does nothing.
func (o *Orchestrator) PerformUpdate(ctx context.Context) error {
	if !o.run {
		o.log.Info("run-gate disabled. Skipping all tenants", "tenants", len(o.tenants))
		o.metrics.skipped(len(o.tenants))
		return nil
	}

	for _, cfg := range o.tenants {
		if err := o.updateTenant(ctx, cfg); err != nil {
			return err
		}
	}

	o.log.Info("all tenants up-to-date", "tenants", len(o.tenants))
	return nil
}

func (o *Orchestrator) updateTenant(ctx context.Context, cfg TenantConfig) error {
	name := tenantName(cfg)
	log := o.log.With("tenant", name)
	log.Debug("updating tenant")

	session, err := o.buildSession(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build session", "error", err)
		return &StartupError{Tenant: name, Err: err}
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("failed to dispose session", "error", err)
		}
	}()

	targets := cfg.Schemas()
	if len(targets) == 0 {
		targets = []string{cfg.DefaultSchema()}
	}

	for _, schema := range targets {
		if err := o.updateSchema(ctx, cfg, session, name, schema, log); err != nil {
			log.Error("schema update failed. Aborting", "schema", schema, "error", err)
			return &StartupError{Tenant: name, Schema: schema, Err: err}
		}
	}

	log.Info("tenant up-to-date", "schemas", len(targets))
	return nil
}

// buildSession creates the tenant's session from a bootstrap connection that
// is closed before buildSession returns.
func (o *Orchestrator) buildSession(ctx context.Context, cfg TenantConfig, log *slog.Logger) (Session, error) {
	conn, err := cfg.DataSource().Conn(ctx)
	if err != nil {
		return nil, databaseError(err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn("failed to close bootstrap connection", "error", err)
		}
	}()

	accessor := cfg.ResourceAccessor()
	if accessor == nil {
		accessor = NewFilesystemAccessor("")
	}

	session, err := o.applier.NewSession(ctx, conn, cfg.ChangeLog(), accessor)
	if err != nil {
		return nil, err
	}

	params := cfg.Parameters()
	keys := lo.Keys(params)
	sort.Strings(keys)
	for _, key := range keys {
		session.SetChangeLogParameter(key, params[key])
	}

	log.Debug("session built", "parameters", len(keys))
	return session, nil
}

func (o *Orchestrator) updateSchema(ctx context.Context, cfg TenantConfig, session Session, tenant, schema string, log *slog.Logger) (err error) {
	log = log.With("schema", schema)
	defer func(started time.Time) {
		o.metrics.observeUpdate(tenant, started, err)
	}(time.Now())

	var conn Conn
	if username, password, ok := credentialsFor(cfg.SchemaCredentials(), schema); ok {
		log.Debug("opening connection with schema credentials", "username", username)
		conn, err = cfg.DataSource().ConnAs(ctx, username, password)
	} else {
		log.Debug("opening connection with default credentials")
		conn, err = cfg.DataSource().Conn(ctx)
	}
	if err != nil {
		return databaseError(err)
	}

	attached := false
	defer func() {
		if attached {
			if cerr := session.Close(); cerr != nil {
				log.Warn("failed to close session handle", "error", cerr)
			}
			return
		}
		releaseConn(conn, log)
	}()

	if err = session.Bind(conn); err != nil {
		return databaseError(err)
	}
	attached = true
	session.SetDefaultSchema(schema)

	if cfg.DropFirst() {
		if err = session.DropAll(ctx); err != nil {
			return err
		}
	}

	// migration errors stay as the applier reported them
	if err = session.Update(ctx, cfg.Contexts(), cfg.Labels()); err != nil {
		return err
	}

	log.Info("schema up-to-date")
	return nil
}

// releaseConn rolls back and closes a connection that never got attached to
// a session. Errors are only logged.
func releaseConn(conn Conn, log *slog.Logger) {
	if rb, ok := conn.(interface{ Rollback() error }); ok {
		if err := rb.Rollback(); err != nil {
			log.Warn("failed to rollback unattached connection", "error", err)
		}
	}
	if err := conn.Close(); err != nil {
		log.Warn("failed to close unattached connection", "error", err)
	}
}

// databaseError wraps err into ErrDatabase unless it already is one
func databaseError(err error) error {
	if errors.Is(err, ErrDatabase) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDatabase, err)
}
