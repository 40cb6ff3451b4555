package adapt

import (
	"fmt"
	"strings"
)

// TenantConfig describes one group of schemas that share a changelog and a
// DataSource. Every optional accessor has a sensible default provided by
// TenantDefaults, so implementations usually only define ChangeLog and
// DataSource.
type TenantConfig interface {
	// ChangeLog is the reference to the changelog, resolved through
	// ResourceAccessor. It must not be empty.
	ChangeLog() string
	// DataSource opens the connections of this tenant. It must not be nil.
	DataSource() DataSource
	// ResourceAccessor resolves ChangeLog and every file it references.
	ResourceAccessor() ResourceAccessor
	// DefaultSchema is migrated when Schemas is empty. An empty string lets
	// the database decide.
	DefaultSchema() string
	// Schemas lists the schemas migrated in order.
	Schemas() []string
	// SchemaCredentials maps a schema to {username, password}. Entries that
	// don't have exactly two parts are ignored.
	SchemaCredentials() map[string][]string
	// Parameters are substituted for "${name}" placeholders in the changelog.
	Parameters() map[string]string
	// Contexts selects changesets by context. Empty selects all.
	Contexts() []string
	// Labels is a boolean label expression like "billing and !jira-123",
	// using and, or, not, !, commas and parentheses. A label name is any run
	// of characters other than whitespace, commas, parentheses and "!".
	// Empty selects all.
	Labels() string
	// DropFirst destroys every object of a schema before it is migrated.
	DropFirst() bool
}

// TenantDefaults implements every optional accessor of TenantConfig. Embed it
// and override only what differs.
type TenantDefaults struct{}

// ResourceAccessor reads from the working directory of the process
func (TenantDefaults) ResourceAccessor() ResourceAccessor { return NewFilesystemAccessor("") }

func (TenantDefaults) DefaultSchema() string                  { return "" }
func (TenantDefaults) Schemas() []string                      { return nil }
func (TenantDefaults) SchemaCredentials() map[string][]string { return nil }
func (TenantDefaults) Parameters() map[string]string          { return nil }
func (TenantDefaults) Contexts() []string                     { return nil }
func (TenantDefaults) Labels() string                         { return "" }
func (TenantDefaults) DropFirst() bool                        { return false }

// TenantOption configures a TenantConfig created by NewTenant
type TenantOption func(*tenant)

// TenantName sets the name used for logging and inside StartupError
func TenantName(name string) TenantOption {
	return func(t *tenant) { t.name = name }
}

// TenantResourceAccessor sets the accessor resolving the changelog
func TenantResourceAccessor(accessor ResourceAccessor) TenantOption {
	return func(t *tenant) { t.accessor = accessor }
}

// TenantDefaultSchema sets the schema migrated when no schemas are listed
func TenantDefaultSchema(schema string) TenantOption {
	return func(t *tenant) { t.defaultSchema = schema }
}

// TenantSchemas sets the ordered list of schemas
func TenantSchemas(schemas ...string) TenantOption {
	return func(t *tenant) { t.schemas = append([]string(nil), schemas...) }
}

// TenantSchemaCredentials sets the per-schema {username, password} pairs
func TenantSchemaCredentials(credentials map[string][]string) TenantOption {
	return func(t *tenant) { t.credentials = copyCredentials(credentials) }
}

// TenantParameters sets the changelog parameters
func TenantParameters(params map[string]string) TenantOption {
	return func(t *tenant) { t.params = copyParameters(params) }
}

// TenantContexts sets the contexts selecting changesets
func TenantContexts(contexts ...string) TenantOption {
	return func(t *tenant) { t.contexts = append([]string(nil), contexts...) }
}

// TenantLabels sets the label expression selecting changesets
func TenantLabels(labels string) TenantOption {
	return func(t *tenant) { t.labels = labels }
}

// TenantDropFirst enables dropping every object before migrating a schema
func TenantDropFirst(dropFirst bool) TenantOption {
	return func(t *tenant) { t.dropFirst = dropFirst }
}

type tenant struct {
	name          string
	changelog     string
	ds            DataSource
	accessor      ResourceAccessor
	defaultSchema string
	schemas       []string
	credentials   map[string][]string
	params        map[string]string
	contexts      []string
	labels        string
	dropFirst     bool
}

// NewTenant creates an immutable TenantConfig. Slices and maps passed through
// options are copied, and copies are returned by every accessor.
func NewTenant(changelog string, ds DataSource, options ...TenantOption) (TenantConfig, error) {
	if strings.TrimSpace(changelog) == "" {
		return nil, fmt.Errorf("%w: changelog cannot be empty", ErrInvalidTenant)
	}
	if ds == nil {
		return nil, fmt.Errorf("%w: datasource cannot be nil", ErrInvalidTenant)
	}

	t := &tenant{
		changelog: changelog,
		ds:        ds,
	}
	for _, opt := range options {
		opt(t)
	}
	if t.accessor == nil {
		t.accessor = NewFilesystemAccessor("")
	}
	return t, nil
}

func (t *tenant) Name() string {
	if t.name != "" {
		return t.name
	}
	return t.changelog
}

func (t *tenant) ChangeLog() string                      { return t.changelog }
func (t *tenant) DataSource() DataSource                 { return t.ds }
func (t *tenant) ResourceAccessor() ResourceAccessor     { return t.accessor }
func (t *tenant) DefaultSchema() string                  { return t.defaultSchema }
func (t *tenant) Schemas() []string                      { return append([]string(nil), t.schemas...) }
func (t *tenant) SchemaCredentials() map[string][]string { return copyCredentials(t.credentials) }
func (t *tenant) Parameters() map[string]string          { return copyParameters(t.params) }
func (t *tenant) Contexts() []string                     { return append([]string(nil), t.contexts...) }
func (t *tenant) Labels() string                         { return t.labels }
func (t *tenant) DropFirst() bool                        { return t.dropFirst }

func copyCredentials(in map[string][]string) map[string][]string {
	if in == nil {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func copyParameters(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// tenantName reports the name of cfg for logging. Configurations may provide
// one with a Name method, otherwise the changelog is used.
func tenantName(cfg TenantConfig) string {
	if named, ok := cfg.(interface{ Name() string }); ok {
		if name := named.Name(); name != "" {
			return name
		}
	}
	return cfg.ChangeLog()
}

// credentialsFor returns username and password for schema when the entry is
// well-formed
func credentialsFor(credentials map[string][]string, schema string) (username, password string, ok bool) {
	entry, found := credentials[schema]
	if !found || len(entry) != 2 {
		return "", "", false
	}
	return entry[0], entry[1], true
}
