package adapt

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestSQLite(t *testing.T) *SQLiteDataSource {
	t.Helper()
	ds, err := NewSQLiteDataSource(filepath.Join(t.TempDir(), "adapt.db"))
	if err != nil {
		t.Fatalf("NewSQLiteDataSource() error = %v", err)
	}
	t.Cleanup(func() {
		_ = ds.Close()
	})
	return ds
}

type updateRun struct {
	params    map[string]string
	contexts  []string
	labels    string
	dropFirst bool
}

// update drives a single schema update the same way the Orchestrator does
func update(t *testing.T, e *Engine, ds DataSource, accessor ResourceAccessor, changelog string, run updateRun) error {
	t.Helper()
	ctx := context.Background()

	bootstrap, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	session, err := e.NewSession(ctx, bootstrap, changelog, accessor)
	_ = bootstrap.Close()
	if err != nil {
		return err
	}
	for k, v := range run.params {
		session.SetChangeLogParameter(k, v)
	}

	conn, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	if err := session.Bind(conn); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer func() {
		_ = session.Close()
	}()
	session.SetDefaultSchema("")

	if run.dropFirst {
		if err := session.DropAll(ctx); err != nil {
			return err
		}
	}
	return session.Update(ctx, run.contexts, run.labels)
}

func appliedIDs(t *testing.T, ds *SQLiteDataSource) []string {
	t.Helper()
	rows, err := ds.DB().Query("SELECT id FROM " + DefaultMetaTable + " WHERE finished IS NOT NULL ORDER BY id")
	if err != nil {
		t.Fatalf("query meta-table: %v", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan meta-table: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func tableExists(t *testing.T, ds *SQLiteDataSource, name string) bool {
	t.Helper()
	var n int
	err := ds.DB().QueryRow("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestEngine_Update(t *testing.T) {
	ds := newTestSQLite(t)
	accessor := NewMemoryAccessor(map[string]string{
		"db/20201115_1214_init.up.sql":     "CREATE TABLE accounts (id INTEGER PRIMARY KEY, owner TEXT NOT NULL DEFAULT '${owner}');",
		"db/20201115_1214_init.down.sql":   "DROP TABLE accounts;",
		"db/20201115_1215_seed.up.sql":     "-- +adapt Contexts test\nINSERT INTO accounts (id) VALUES (1);",
		"db/20201115_1216_invoices.up.sql": "-- +adapt Labels billing\nCREATE TABLE invoices (id INTEGER);",
	})

	var hookCalls int
	e, err := NewEngine(
		EngineLogger(discardLogger()),
		EngineExecutor("adapt-tester@v1.1.7"),
		CodeMigrations(map[string]Hook{
			"20201115_1300_audit": {
				MigrateUpConn: func(ctx context.Context, target DBTarget) error {
					hookCalls++
					_, err := target.ExecContext(ctx, "CREATE TABLE audit (id INTEGER)")
					return err
				},
			},
		}),
	)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	prod := updateRun{
		params:   map[string]string{"owner": "alice"},
		contexts: []string{"prod"},
		labels:   "!billing",
	}

	// first pass skips the seed (context) and the invoices (label)
	if err := update(t, e, ds, accessor, "db", prod); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	want := []string{"20201115_1214_init", "20201115_1300_audit"}
	if got := appliedIDs(t, ds); !reflect.DeepEqual(got, want) {
		t.Errorf("applied = %v, want %v", got, want)
	}
	if tableExists(t, ds, "invoices") {
		t.Errorf("invoices created although label was excluded")
	}

	// second pass is a no-op
	if err := update(t, e, ds, accessor, "db", prod); err != nil {
		t.Fatalf("second Update() error = %v", err)
	}
	if got := appliedIDs(t, ds); !reflect.DeepEqual(got, want) {
		t.Errorf("applied after second pass = %v, want %v", got, want)
	}
	if hookCalls != 1 {
		t.Errorf("hook called %d times, want 1", hookCalls)
	}

	// the filtered migrations are picked up as holes
	test := updateRun{
		params:   map[string]string{"owner": "alice"},
		contexts: []string{"TEST"},
		labels:   "billing",
	}
	if err := update(t, e, ds, accessor, "db", test); err != nil {
		t.Fatalf("Update() with test context error = %v", err)
	}
	want = []string{"20201115_1214_init", "20201115_1215_seed", "20201115_1216_invoices", "20201115_1300_audit"}
	if got := appliedIDs(t, ds); !reflect.DeepEqual(got, want) {
		t.Errorf("applied = %v, want %v", got, want)
	}

	var owner string
	if err := ds.DB().QueryRow("SELECT owner FROM accounts WHERE id = 1").Scan(&owner); err != nil {
		t.Fatalf("select owner: %v", err)
	}
	if owner != "alice" {
		t.Errorf("owner = %q, parameter not substituted", owner)
	}
}

func TestEngine_DropAll(t *testing.T) {
	ds := newTestSQLite(t)
	accessor := NewMemoryAccessor(map[string]string{
		"db/1_init.up.sql": "CREATE TABLE accounts (id INTEGER PRIMARY KEY);\nINSERT INTO accounts (id) VALUES (1);",
	})
	e, err := NewEngine(EngineLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	if _, err := ds.DB().Exec("CREATE TABLE leftover (id INTEGER)"); err != nil {
		t.Fatalf("create leftover: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := update(t, e, ds, accessor, "db", updateRun{dropFirst: true}); err != nil {
			t.Fatalf("Update() pass %d error = %v", i, err)
		}

		var n int
		if err := ds.DB().QueryRow("SELECT count(*) FROM accounts").Scan(&n); err != nil {
			t.Fatalf("count accounts: %v", err)
		}
		if n != 1 {
			t.Errorf("pass %d: accounts has %d rows, want 1", i, n)
		}
	}
	if tableExists(t, ds, "leftover") {
		t.Errorf("DropAll kept table leftover")
	}
}

func TestEngine_Rollback(t *testing.T) {
	ds := newTestSQLite(t)
	e, err := NewEngine(EngineLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	full := NewMemoryAccessor(map[string]string{
		"db/1_init.up.sql":    "CREATE TABLE accounts (id INTEGER);",
		"db/1_init.down.sql":  "DROP TABLE accounts;",
		"db/2_extra.up.sql":   "CREATE TABLE extra (id INTEGER);",
		"db/2_extra.down.sql": "DROP TABLE extra;",
	})
	if err := update(t, e, ds, full, "db", updateRun{}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	reduced := NewMemoryAccessor(map[string]string{
		"db/1_init.up.sql":   "CREATE TABLE accounts (id INTEGER);",
		"db/1_init.down.sql": "DROP TABLE accounts;",
	})
	if err := update(t, e, ds, reduced, "db", updateRun{}); err != nil {
		t.Fatalf("Update() with reduced changelog error = %v", err)
	}

	if got, want := appliedIDs(t, ds), []string{"1_init"}; !reflect.DeepEqual(got, want) {
		t.Errorf("applied = %v, want %v", got, want)
	}
	if tableExists(t, ds, "extra") {
		t.Errorf("rollback kept table extra")
	}
}

func TestEngine_Update_Error(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		hooks map[string]Hook
		is    error
	}{
		{"invalid code source (empty hook)", nil, map[string]Hook{"ID": {}}, ErrInvalidSource},
		{"invalid id", map[string]string{"db/invalid_id": "CREATE TABLE a (id INTEGER);"}, nil, ErrInvalidSource},
		{"only down", map[string]string{"db/init.down.sql": "DROP TABLE a;"}, nil, ErrInvalidSource},
		{"failing statement", map[string]string{"db/init.up.sql": "CREATE TABLE;"}, nil, nil},
		{"failing hook", nil, map[string]Hook{"1_hook": {
			MigrateUp: func(context.Context) error { return errors.New("boom") },
		}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := newTestSQLite(t)
			files := map[string]string{"db/0_base.up.sql": "CREATE TABLE base (id INTEGER);"}
			for k, v := range tt.files {
				files[k] = v
			}

			e, err := NewEngine(EngineLogger(discardLogger()), CodeMigrations(tt.hooks))
			if err != nil {
				t.Fatalf("NewEngine() error = %v", err)
			}

			err = update(t, e, ds, NewMemoryAccessor(files), "db", updateRun{})
			if err == nil {
				t.Fatalf("Update() got nil error, but expected one")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Update() error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestEngine_HashIntegrity(t *testing.T) {
	ds := newTestSQLite(t)
	e, err := NewEngine(EngineLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	original := NewMemoryAccessor(map[string]string{"db/1_init.up.sql": "CREATE TABLE a (id INTEGER);"})
	if err := update(t, e, ds, original, "db", updateRun{}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	changed := NewMemoryAccessor(map[string]string{"db/1_init.up.sql": "CREATE TABLE a (id INTEGER, name TEXT);"})
	err = update(t, e, ds, changed, "db", updateRun{})
	if !errors.Is(err, ErrIntegrityProtection) {
		t.Errorf("Update() error = %v, want %v", err, ErrIntegrityProtection)
	}

	lenient, err := NewEngine(EngineLogger(discardLogger()), DisableHashIntegrityChecks)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := update(t, lenient, ds, changed, "db", updateRun{}); err != nil {
		t.Errorf("Update() without hash checks error = %v", err)
	}
}

func TestEngine_UnsupportedSchema(t *testing.T) {
	ds := newTestSQLite(t)
	e, err := NewEngine(EngineLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	ctx := context.Background()
	bootstrap, _ := ds.Conn(ctx)
	session, err := e.NewSession(ctx, bootstrap, "db", NewMemoryAccessor(map[string]string{"db/1.up.sql": "SELECT 1;"}))
	_ = bootstrap.Close()
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	conn, _ := ds.Conn(ctx)
	if err := session.Bind(conn); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer func() {
		_ = session.Close()
	}()
	if err := session.Bind(conn); !errors.Is(err, ErrSessionBound) {
		t.Errorf("second Bind() error = %v, want %v", err, ErrSessionBound)
	}

	session.SetDefaultSchema("tenant_a")
	if err := session.Update(ctx, nil, ""); !errors.Is(err, ErrSchemaUnsupported) {
		t.Errorf("Update() error = %v, want %v", err, ErrSchemaUnsupported)
	}
}
