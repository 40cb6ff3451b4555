// Package adapt implements a simple, non-magic general purpose migration library
// that gets embedded into your application, together with an orchestrator that
// runs the same changelog against many tenant schemas sharing one datasource.
//
// The Orchestrator drives the startup migration: it checks a RunGate, builds one
// Session per TenantConfig using an Applier and migrates every schema of that
// tenant sequentially. The default Applier is the adapt Engine, which reads a
// changelog through a ResourceAccessor and applies it using a dialect specific
// meta-table.
//
// adapt can be extended through various interfaces like TenantConfig, DataSource,
// Applier, Session, Source, SqlStatementsSource, HookSource and ResourceAccessor.
package adapt
