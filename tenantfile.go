package adapt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TenantFile is a set of tenant configurations loaded from YAML, together
// with the datasources opened for them.
//
// Example:
//
//	tenants:
//	  - name: billing
//	    changelog: changelog.yaml
//	    resourceRoot: ./migrations
//	    datasource:
//	      driver: postgres
//	      dsn: ${BILLING_DSN}
//	    schemas: [tenant_a, tenant_b]
//	    schemaCredentials:
//	      tenant_b: [tenant_b, ${TENANT_B_PASSWORD}]
//	    parameters:
//	      owner: app
//	    contexts: [prod]
//	    labels: "!experimental"
type TenantFile struct {
	tenants     []TenantConfig
	datasources []io.Closer
}

type tenantFileDocument struct {
	Tenants []tenantFileEntry `yaml:"tenants"`
}

type tenantFileEntry struct {
	Name              string              `yaml:"name"`
	ChangeLog         string              `yaml:"changelog"`
	ResourceRoot      string              `yaml:"resourceRoot"`
	DataSource        tenantFileSource    `yaml:"datasource"`
	DefaultSchema     string              `yaml:"defaultSchema"`
	Schemas           []string            `yaml:"schemas"`
	SchemaCredentials map[string][]string `yaml:"schemaCredentials"`
	Parameters        map[string]string   `yaml:"parameters"`
	Contexts          []string            `yaml:"contexts"`
	Labels            string              `yaml:"labels"`
	DropFirst         bool                `yaml:"dropFirst"`
}

type tenantFileSource struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoadTenantFile parses the YAML file at path and opens one datasource per
// tenant. "${VAR}" references inside dsn and schemaCredentials are expanded
// from the environment. A relative resourceRoot is resolved against the
// directory of path.
func LoadTenantFile(path string) (*TenantFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	var doc tenantFileDocument
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("adapt: decode tenant file %q: %w", path, err)
	}
	if len(doc.Tenants) == 0 {
		return nil, fmt.Errorf("adapt: tenant file %q: %w", path, ErrNoTenants)
	}

	tf := &TenantFile{}
	for idx, entry := range doc.Tenants {
		cfg, closer, err := entry.build(filepath.Dir(path))
		if err != nil {
			_ = tf.Close()
			return nil, fmt.Errorf("adapt: tenant file %q entry %d: %w", path, idx, err)
		}
		tf.tenants = append(tf.tenants, cfg)
		tf.datasources = append(tf.datasources, closer)
	}

	return tf, nil
}

func (entry tenantFileEntry) build(dir string) (TenantConfig, io.Closer, error) {
	if strings.TrimSpace(entry.ChangeLog) == "" {
		return nil, nil, fmt.Errorf("%w: changelog cannot be empty", ErrInvalidTenant)
	}

	ds, err := openDataSource(entry.DataSource.Driver, os.ExpandEnv(entry.DataSource.DSN))
	if err != nil {
		return nil, nil, err
	}

	root := entry.ResourceRoot
	if !filepath.IsAbs(root) {
		root = filepath.Join(dir, root)
	}

	credentials := make(map[string][]string, len(entry.SchemaCredentials))
	for schema, parts := range entry.SchemaCredentials {
		expanded := make([]string, len(parts))
		for i, p := range parts {
			expanded[i] = os.ExpandEnv(p)
		}
		credentials[schema] = expanded
	}

	cfg, err := NewTenant(entry.ChangeLog, ds,
		TenantName(entry.Name),
		TenantResourceAccessor(NewFilesystemAccessor(root)),
		TenantDefaultSchema(entry.DefaultSchema),
		TenantSchemas(entry.Schemas...),
		TenantSchemaCredentials(credentials),
		TenantParameters(entry.Parameters),
		TenantContexts(entry.Contexts...),
		TenantLabels(entry.Labels),
		TenantDropFirst(entry.DropFirst),
	)
	if err != nil {
		_ = ds.Close()
		return nil, nil, err
	}
	return cfg, ds, nil
}

type closableDataSource interface {
	DataSource
	io.Closer
}

func openDataSource(driver, dsn string) (closableDataSource, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: datasource dsn cannot be empty", ErrInvalidTenant)
	}

	switch strings.ToLower(driver) {
	case dialectPostgres, "postgresql", "pgx":
		return NewPostgresDataSource(dsn)
	case dialectMySQL, "mariadb":
		return NewMySQLDataSource(dsn)
	case dialectSQLite, "sqlite3":
		return NewSQLiteDataSource(dsn)
	default:
		return nil, fmt.Errorf("%w: unknown datasource driver %q", ErrInvalidTenant, driver)
	}
}

// Tenants returns the loaded tenant configurations in file order
func (tf *TenantFile) Tenants() []TenantConfig {
	return append([]TenantConfig(nil), tf.tenants...)
}

// Close closes every datasource opened by LoadTenantFile
func (tf *TenantFile) Close() error {
	var errs []error
	for _, ds := range tf.datasources {
		errs = append(errs, ds.Close())
	}
	tf.datasources = nil
	return errors.Join(errs...)
}
