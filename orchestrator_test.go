package adapt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	rec     *recorder
	ds      *fakeDataSource
	applier *fakeApplier
}

func newFixture() *orchestratorFixture {
	rec := &recorder{}
	return &orchestratorFixture{
		rec:     rec,
		ds:      &fakeDataSource{rec: rec},
		applier: &fakeApplier{rec: rec, updateErrs: map[string]error{}},
	}
}

func (f *orchestratorFixture) tenant(t *testing.T, changelog string, options ...TenantOption) TenantConfig {
	t.Helper()
	cfg, err := NewTenant(changelog, f.ds, options...)
	require.NoError(t, err)
	return cfg
}

func (f *orchestratorFixture) orchestrator(t *testing.T, tenants []TenantConfig, options ...Option) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(tenants, append([]Option{
		DisableLogger,
		WithApplier(f.applier),
		WithGate(StaticGate(true)),
	}, options...)...)
	require.NoError(t, err)
	return o
}

func TestNewOrchestrator_Errors(t *testing.T) {
	f := newFixture()

	_, err := NewOrchestrator(nil, DisableLogger)
	assert.ErrorIs(t, err, ErrNoTenants)

	_, err = NewOrchestrator([]TenantConfig{f.tenant(t, "a"), nil}, DisableLogger)
	assert.ErrorIs(t, err, ErrInvalidTenant)

	t.Setenv("ADAPT_SHOULD_RUN", "sometimes")
	_, err = NewOrchestrator([]TenantConfig{f.tenant(t, "a")}, DisableLogger, WithApplier(f.applier))
	assert.Error(t, err)

	_, err = NewOrchestrator([]TenantConfig{f.tenant(t, "a")}, WithApplier(nil))
	assert.Error(t, err)
}

func TestOrchestrator_GateDisabled(t *testing.T) {
	f := newFixture()
	reg := prometheus.NewRegistry()

	original := hostname
	hostname = func() (string, error) { return "", errors.New("no hostname") }
	t.Cleanup(func() { hostname = original })

	o, err := NewOrchestrator(
		[]TenantConfig{f.tenant(t, "a", TenantSchemas("s1")), f.tenant(t, "b")},
		DisableLogger,
		WithApplier(f.applier),
		WithGate(StaticGate(false)),
		Metrics(reg),
	)
	require.NoError(t, err)

	require.NoError(t, o.PerformUpdate(context.Background()))
	assert.Zero(t, f.ds.opens)
	assert.Empty(t, f.rec.events)
	assert.Equal(t, 2.0, testutil.ToFloat64(o.metrics.tenantsSkipped))
}

func TestOrchestrator_EnvGate(t *testing.T) {
	f := newFixture()
	t.Setenv("ADAPT_SHOULD_RUN", "false")

	o, err := NewOrchestrator([]TenantConfig{f.tenant(t, "a")}, DisableLogger, WithApplier(f.applier))
	require.NoError(t, err)

	var observer ReadyObserver = o
	require.NoError(t, observer.OnApplicationReady(context.Background()))
	assert.Zero(t, f.ds.opens)
}

func TestOrchestrator_Ordering(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, []TenantConfig{
		f.tenant(t, "first", TenantSchemas("s1", "s2", "s3")),
		f.tenant(t, "second", TenantSchemas("t1")),
	})

	require.NoError(t, o.PerformUpdate(context.Background()))
	assert.Equal(t, []string{
		"open default", "session first",
		"open default", "update s1",
		"open default", "update s2",
		"open default", "update s3",
		"open default", "session second",
		"open default", "update t1",
	}, f.rec.events)
	assert.Equal(t, f.ds.opens, f.ds.closes)
	assert.Empty(t, f.ds.unbalanced())
}

func TestOrchestrator_FailFast(t *testing.T) {
	f := newFixture()
	cause := errors.New("changeset 42 failed")
	f.applier.updateErrs["s2"] = cause

	o := f.orchestrator(t, []TenantConfig{
		f.tenant(t, "first", TenantSchemas("s1", "s2", "s3"), TenantName("billing")),
		f.tenant(t, "second", TenantSchemas("t1")),
	})

	err := o.PerformUpdate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartupFailed)
	assert.NotErrorIs(t, err, ErrDatabase)
	assert.ErrorIs(t, err, cause)

	var startupErr *StartupError
	require.ErrorAs(t, err, &startupErr)
	assert.Equal(t, "billing", startupErr.Tenant)
	assert.Equal(t, "s2", startupErr.Schema)

	assert.NotContains(t, f.rec.events, "update s3")
	assert.NotContains(t, f.rec.events, "session second")
	assert.Equal(t, f.ds.opens, f.ds.closes)
	assert.Empty(t, f.ds.unbalanced())
}

func TestOrchestrator_DefaultSchemaFallback(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, []TenantConfig{f.tenant(t, "a", TenantDefaultSchema("public"))})

	require.NoError(t, o.PerformUpdate(context.Background()))
	assert.Equal(t, []string{"open default", "session a", "open default", "update public"}, f.rec.events)
}

func TestOrchestrator_NullDefaultSchema(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, []TenantConfig{f.tenant(t, "a")})

	require.NoError(t, o.PerformUpdate(context.Background()))
	assert.Equal(t, []string{"open default", "session a", "open default", "update "}, f.rec.events)
}

func TestOrchestrator_Credentials(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, []TenantConfig{f.tenant(t, "a",
		TenantSchemas("s1", "s2", "s3"),
		TenantSchemaCredentials(map[string][]string{
			"s1": {"u", "p"},
			"s3": {"malformed"},
		}),
	)})

	require.NoError(t, o.PerformUpdate(context.Background()))
	assert.Equal(t, []string{
		"open default", "session a",
		"open u", "update s1",
		"open default", "update s2",
		"open default", "update s3",
	}, f.rec.events)
}

func TestOrchestrator_DropFirst(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, []TenantConfig{f.tenant(t, "a", TenantSchemas("s1", "s2"), TenantDropFirst(true))})

	require.NoError(t, o.PerformUpdate(context.Background()))
	assert.Equal(t, []string{
		"open default", "session a",
		"open default", "drop s1", "update s1",
		"open default", "drop s2", "update s2",
	}, f.rec.events)
}

func TestOrchestrator_ParametersSorted(t *testing.T) {
	f := newFixture()
	o := f.orchestrator(t, []TenantConfig{f.tenant(t, "a", TenantParameters(map[string]string{
		"zone":   "eu",
		"app":    "billing",
		"region": "west",
	}))})

	require.NoError(t, o.PerformUpdate(context.Background()))
	assert.Equal(t, []string{
		"open default", "session a",
		"param app=billing", "param region=west", "param zone=eu",
		"open default", "update ",
	}, f.rec.events)
	assert.Equal(t, 2, f.ds.closes)
}

func TestOrchestrator_ConnectionFailure(t *testing.T) {
	f := newFixture()
	f.ds.failOpen = 3
	o := f.orchestrator(t, []TenantConfig{f.tenant(t, "a", TenantSchemas("s1", "s2", "s3"))})

	err := o.PerformUpdate(context.Background())
	assert.ErrorIs(t, err, ErrStartupFailed)
	assert.ErrorIs(t, err, ErrDatabase)
	assert.NotContains(t, f.rec.events, "update s2")
	assert.NotContains(t, f.rec.events, "update s3")
	assert.Empty(t, f.ds.unbalanced())
}

func TestOrchestrator_SessionBuildFailure(t *testing.T) {
	f := newFixture()
	f.applier.buildErr = errors.New("changelog not found")
	o := f.orchestrator(t, []TenantConfig{f.tenant(t, "a", TenantSchemas("s1"))})

	err := o.PerformUpdate(context.Background())
	assert.ErrorIs(t, err, ErrStartupFailed)
	assert.ErrorIs(t, err, f.applier.buildErr)
	assert.Equal(t, 1, f.ds.opens)
	assert.Empty(t, f.ds.unbalanced())
}

func TestOrchestrator_UnattachedConnectionIsRolledBack(t *testing.T) {
	f := newFixture()
	f.applier.bindErr = errors.New("bind refused")
	o := f.orchestrator(t, []TenantConfig{f.tenant(t, "a", TenantSchemas("s1"))})

	err := o.PerformUpdate(context.Background())
	assert.ErrorIs(t, err, ErrStartupFailed)

	require.Len(t, f.ds.conns, 2)
	schemaConn := f.ds.conns[1]
	assert.Equal(t, 1, schemaConn.rollbacks)
	assert.Equal(t, 1, schemaConn.closed)
	assert.Zero(t, f.ds.conns[0].rollbacks)
}

func TestOrchestrator_DropFailure(t *testing.T) {
	f := newFixture()
	f.applier.dropErr = errors.New("permission denied")
	o := f.orchestrator(t, []TenantConfig{f.tenant(t, "a", TenantSchemas("s1", "s2"), TenantDropFirst(true))})

	err := o.PerformUpdate(context.Background())
	assert.ErrorIs(t, err, f.applier.dropErr)
	assert.NotErrorIs(t, err, ErrDatabase)
	assert.NotContains(t, f.rec.events, "update s1")
	assert.Empty(t, f.ds.unbalanced())
}

func TestOrchestrator_Metrics(t *testing.T) {
	f := newFixture()
	f.applier.updateErrs["s2"] = errors.New("boom")
	reg := prometheus.NewRegistry()
	o := f.orchestrator(t, []TenantConfig{f.tenant(t, "a", TenantSchemas("s1", "s2"))}, Metrics(reg))

	require.Error(t, o.PerformUpdate(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.metrics.schemaUpdates.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.metrics.schemaUpdates.WithLabelValues("failure")))

	_, err := NewOrchestrator([]TenantConfig{f.tenant(t, "a")}, DisableLogger, WithApplier(f.applier), Metrics(reg))
	assert.Error(t, err, "registering the collectors twice must fail")
}

func TestOrchestrator_SecondPassIsNoop(t *testing.T) {
	ds, err := NewSQLiteDataSource(filepath.Join(t.TempDir(), "adapt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	cfg, err := NewTenant("changelog.yaml", ds,
		TenantResourceAccessor(NewMemoryAccessor(map[string]string{
			"changelog.yaml": `
changesets:
  - id: 20240101_0001_accounts
    up: |
      CREATE TABLE accounts (id INTEGER PRIMARY KEY, region TEXT DEFAULT '${region}');
    down: DROP TABLE accounts;
`,
		})),
		TenantParameters(map[string]string{"region": "eu"}),
	)
	require.NoError(t, err)

	o, err := NewOrchestrator([]TenantConfig{cfg},
		DisableLogger,
		WithGate(StaticGate(true)),
		WithEngineOptions(EngineLogger(discardLogger()), EngineExecutor("adapt-tester@v1.1.7")),
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, o.PerformUpdate(ctx))
	require.NoError(t, o.PerformUpdate(ctx))

	var n int
	require.NoError(t, ds.DB().QueryRow("SELECT count(*) FROM "+DefaultMetaTable).Scan(&n))
	assert.Equal(t, 1, n)

	var executor string
	require.NoError(t, ds.DB().QueryRow("SELECT executor FROM "+DefaultMetaTable).Scan(&executor))
	assert.Equal(t, "adapt-tester@v1.1.7", executor)
}

func TestOrchestrator_MigrationErrorIsNotDatabaseError(t *testing.T) {
	ds, err := NewSQLiteDataSource(filepath.Join(t.TempDir(), "adapt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	cfg, err := NewTenant("db", ds,
		TenantResourceAccessor(NewMemoryAccessor(map[string]string{
			"db/1_init.up.sql": "CREATE TABLE accounts (id INTEGER);",
		})),
		TenantLabels("billing and ("),
	)
	require.NoError(t, err)

	o, err := NewOrchestrator([]TenantConfig{cfg},
		DisableLogger,
		WithGate(StaticGate(true)),
		WithEngineOptions(EngineLogger(discardLogger())),
	)
	require.NoError(t, err)

	err = o.PerformUpdate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartupFailed)
	assert.NotErrorIs(t, err, ErrDatabase)
	assert.Contains(t, err.Error(), "label expression")
}
