package adapt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// recorder collects the observable steps of an orchestration run in order
type recorder struct {
	events []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

type fakeConn struct {
	ds        *fakeDataSource
	user      string
	closed    int
	rollbacks int
}

func (c *fakeConn) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}

func (c *fakeConn) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("fakeConn: queries not supported")
}

func (c *fakeConn) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

func (c *fakeConn) BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error) {
	return nil, errors.New("fakeConn: transactions not supported")
}

func (c *fakeConn) Rollback() error {
	c.rollbacks++
	return nil
}

func (c *fakeConn) Close() error {
	c.closed++
	c.ds.closes++
	return nil
}

// fakeDataSource counts opened and closed connections. failOpen makes the
// n-th open (1-based) fail.
type fakeDataSource struct {
	rec      *recorder
	opens    int
	closes   int
	failOpen int
	conns    []*fakeConn
}

func (ds *fakeDataSource) open(user string) (Conn, error) {
	ds.opens++
	if ds.failOpen == ds.opens {
		ds.rec.add("open-failed %s", user)
		return nil, errors.New("connection refused")
	}
	ds.rec.add("open %s", user)
	c := &fakeConn{ds: ds, user: user}
	ds.conns = append(ds.conns, c)
	return c, nil
}

func (ds *fakeDataSource) Conn(context.Context) (Conn, error) {
	return ds.open("default")
}

func (ds *fakeDataSource) ConnAs(_ context.Context, username, _ string) (Conn, error) {
	return ds.open(username)
}

// unbalanced reports connections that were never closed or closed
// more than once
func (ds *fakeDataSource) unbalanced() []*fakeConn {
	var out []*fakeConn
	for _, c := range ds.conns {
		if c.closed != 1 {
			out = append(out, c)
		}
	}
	return out
}

type fakeApplier struct {
	rec        *recorder
	buildErr   error
	bindErr    error
	dropErr    error
	updateErrs map[string]error
}

func (a *fakeApplier) NewSession(_ context.Context, _ Conn, changelog string, _ ResourceAccessor) (Session, error) {
	if a.buildErr != nil {
		return nil, a.buildErr
	}
	a.rec.add("session %s", changelog)
	return &fakeSession{applier: a}, nil
}

type fakeSession struct {
	applier *fakeApplier
	conn    Conn
	schema  string
}

func (s *fakeSession) SetChangeLogParameter(key, value string) {
	s.applier.rec.add("param %s=%s", key, value)
}

func (s *fakeSession) Bind(conn Conn) error {
	if s.applier.bindErr != nil {
		return s.applier.bindErr
	}
	if s.conn != nil {
		return ErrSessionBound
	}
	s.conn = conn
	return nil
}

func (s *fakeSession) Bound() bool {
	return s.conn != nil
}

func (s *fakeSession) SetDefaultSchema(schema string) {
	s.schema = schema
}

func (s *fakeSession) DropAll(context.Context) error {
	s.applier.rec.add("drop %s", s.schema)
	return s.applier.dropErr
}

func (s *fakeSession) Update(_ context.Context, contexts []string, labels string) error {
	s.applier.rec.add("update %s", s.schema)
	return s.applier.updateErrs[s.schema]
}

func (s *fakeSession) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
