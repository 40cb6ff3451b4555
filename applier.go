package adapt

import "context"

// Applier is the migration engine used by the Orchestrator. It interprets a
// changelog and creates one Session per tenant configuration.
type Applier interface {
	// NewSession builds a Session for changelog, loading every referenced file
	// through accessor. conn is only used during construction (for example to
	// detect the database dialect); the caller keeps ownership and closes it
	// afterwards. The returned Session isn't bound to any connection.
	NewSession(ctx context.Context, conn Conn, changelog string, accessor ResourceAccessor) (Session, error)
}

// Session is a parsed, parameterized changelog that can be bound to exactly one
// connection at a time. A Session must not be used concurrently.
type Session interface {
	// SetChangeLogParameter sets the value substituted for "${key}" inside the
	// changelog. It must be called before Update or DropAll.
	SetChangeLogParameter(key, value string)
	// Bind attaches conn as the session's database handle and transfers
	// ownership of conn to the session. It fails with ErrSessionBound when the
	// previous handle hasn't been closed.
	Bind(conn Conn) error
	// Bound reports whether a database handle is attached.
	Bound() bool
	// SetDefaultSchema selects the schema used by DropAll and Update. An empty
	// schema lets the database decide.
	SetDefaultSchema(schema string)
	// DropAll destroys every object inside the default schema.
	DropAll(ctx context.Context) error
	// Update applies all pending changes selected by contexts and labels. When
	// nothing is pending Update succeeds without doing anything.
	Update(ctx context.Context, contexts []string, labels string) error
	// Close closes the attached database handle (and with it the underlying
	// connection). Close on an unbound Session is a no-op.
	Close() error
}
