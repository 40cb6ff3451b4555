package adapt

import (
	"errors"
	"fmt"
)

var ErrIntegrityProtection = errors.New("adapt: abort due to integrity protection rules. See log output for details")
var ErrInvalidSource = errors.New("adapt: source violated a precondition. See log output for details")

var (
	// ErrDatabase is the uniform category for failed database operations, like
	// opening a connection for a schema.
	ErrDatabase = errors.New("adapt: database operation failed")
	// ErrStartupFailed is reported by every error returned from
	// Orchestrator.PerformUpdate. Startup of the application should be aborted.
	ErrStartupFailed = errors.New("adapt: unrecoverable startup failure")
	// ErrNoTenants is returned by NewOrchestrator when no TenantConfig was passed.
	ErrNoTenants = errors.New("adapt: at least one tenant configuration is required")
	// ErrInvalidTenant is returned when a TenantConfig misses required values.
	ErrInvalidTenant = errors.New("adapt: invalid tenant configuration")
	// ErrSessionBound is returned by Session.Bind when the session still holds a
	// database handle.
	ErrSessionBound = errors.New("adapt: session is already bound to a connection")
	// ErrCredentialsUnsupported is returned by DataSource.ConnAs for datasources
	// without user/password authentication.
	ErrCredentialsUnsupported = errors.New("adapt: datasource doesn't support explicit credentials")
	// ErrSchemaUnsupported is returned when a dialect cannot switch to the
	// requested schema.
	ErrSchemaUnsupported = errors.New("adapt: dialect doesn't support the requested schema")
)

// StartupError wraps the first failure of Orchestrator.PerformUpdate. It
// unwraps to ErrStartupFailed and to the original cause.
type StartupError struct {
	// Tenant is the name of the tenant configuration that failed
	Tenant string
	// Schema is the schema that was migrated when the failure happened. It is
	// empty when building the session failed or the default schema was used.
	Schema string
	// Err is the original cause
	Err error
}

func (e *StartupError) Error() string {
	if e.Schema == "" {
		return fmt.Sprintf("%s: tenant %q: %v", ErrStartupFailed, e.Tenant, e.Err)
	}
	return fmt.Sprintf("%s: tenant %q schema %q: %v", ErrStartupFailed, e.Tenant, e.Schema, e.Err)
}

func (e *StartupError) Unwrap() []error {
	return []error{ErrStartupFailed, e.Err}
}
