package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// maxPlaceholders is the maximum number of typed placeholders per query.
const maxPlaceholders = 32

// Status is the outcome of Run.
type Status int

const (
	// StatusError means the query failed; see the returned error.
	StatusError Status = iota
	// StatusDone means the statement completed without producing rows.
	StatusDone
	// StatusRows means the statement produced at least one row.
	StatusRows
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusRows:
		return "rows"
	default:
		return "error"
	}
}

var (
	// ErrFormat reports a malformed template or a mismatch between its
	// placeholders and the supplied parameters. It is detected before the
	// connection is used.
	ErrFormat = errors.New("query format error")

	// ErrUnconsumedRows is returned when a statement produced rows but the
	// caller supplied no cursor. The rows are discarded.
	ErrUnconsumedRows = errors.New("query produced rows but no cursor was supplied")
)

// BinderError carries the backend message of a failed prepare, execute or
// step.
type BinderError struct {
	Stage string
	Query string
	Err   error
}

func (e *BinderError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Stage, e.Query, e.Err)
}

func (e *BinderError) Unwrap() error {
	return e.Err
}

// ParamKind is the placeholder letter a parameter binds to.
type ParamKind byte

// Placeholder kinds: ?s text, ?b blob, ?i 64-bit integer, ?d double.
const (
	ParamText   ParamKind = 's'
	ParamBlob   ParamKind = 'b'
	ParamInt    ParamKind = 'i'
	ParamDouble ParamKind = 'd'
)

func (k ParamKind) String() string {
	switch k {
	case ParamText:
		return "text"
	case ParamBlob:
		return "blob"
	case ParamInt:
		return "integer"
	case ParamDouble:
		return "double"
	default:
		return fmt.Sprintf("unknown(%q)", byte(k))
	}
}

// Param is a typed query parameter.
type Param struct {
	kind  ParamKind
	value any
}

// Text binds a string to a ?s placeholder.
func Text(s string) Param {
	return Param{kind: ParamText, value: s}
}

// Blob binds bytes to a ?b placeholder. The slice length is the blob length.
func Blob(b []byte) Param {
	if b == nil {
		b = []byte{}
	}
	return Param{kind: ParamBlob, value: b}
}

// Int binds an integer to a ?i placeholder.
func Int(i int64) Param {
	return Param{kind: ParamInt, value: i}
}

// Double binds a float to a ?d placeholder.
func Double(f float64) Param {
	return Param{kind: ParamDouble, value: f}
}

// Kind returns the placeholder kind of p.
func (p Param) Kind() ParamKind {
	return p.kind
}

// compile rewrites the typed placeholders of template to the driver's
// positional '?' and checks params against them in order.
func compile(template string, params []Param) (string, []any, error) {
	var (
		b     strings.Builder
		kinds []ParamKind
	)
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		if template[i] != '?' {
			b.WriteByte(template[i])
			continue
		}
		if i+1 >= len(template) {
			return "", nil, fmt.Errorf("%w: dangling '?' at end of query", ErrFormat)
		}
		kind := ParamKind(template[i+1])
		switch kind {
		case ParamText, ParamBlob, ParamInt, ParamDouble:
		default:
			return "", nil, fmt.Errorf("%w: unknown placeholder ?%c", ErrFormat, template[i+1])
		}
		if len(kinds) == maxPlaceholders {
			return "", nil, fmt.Errorf("%w: more than %d placeholders", ErrFormat, maxPlaceholders)
		}
		kinds = append(kinds, kind)
		b.WriteByte('?')
		i++
	}

	if len(kinds) != len(params) {
		return "", nil, fmt.Errorf("%w: %d placeholders but %d parameters", ErrFormat, len(kinds), len(params))
	}

	args := make([]any, len(params))
	for j, p := range params {
		if p.kind != kinds[j] {
			return "", nil, fmt.Errorf("%w: parameter %d is %s but placeholder is ?%c",
				ErrFormat, j+1, p.kind, byte(kinds[j]))
		}
		args[j] = p.value
	}
	return b.String(), args, nil
}

// Run prepares template, binds params in order and steps the statement
// once.
//
// If the statement yields a row and cur is not nil, cur takes ownership of
// the statement and StatusRows is returned; iterate with cur.Next and
// release with cur.Close. A statement that completes without rows returns
// StatusDone. Rows produced without a cursor are discarded and reported
// as ErrUnconsumedRows.
func (c *Conn) Run(ctx context.Context, cur *Cursor, template string, params ...Param) (Status, error) {
	if cur != nil {
		cur.Close()
	}

	query, args, err := compile(template, params)
	if err != nil {
		c.logger.WarnContext(ctx, "Query rejected", "query", template, "error", err)
		return StatusError, err
	}
	if c.conn == nil {
		return StatusError, ErrClosed
	}

	stmt, err := c.conn.PreparexContext(ctx, query)
	if err != nil {
		return StatusError, c.fail(ctx, "prepare", query, err)
	}

	rows, err := stmt.QueryxContext(ctx, args...)
	if err != nil {
		closeStmt(stmt)
		return StatusError, c.fail(ctx, "execute", query, err)
	}

	if !rows.Next() {
		stepErr := rows.Err()
		_ = rows.Close()
		closeStmt(stmt)
		if stepErr != nil {
			return StatusError, c.fail(ctx, "step", query, stepErr)
		}
		return StatusDone, nil
	}

	if cur == nil {
		_ = rows.Close()
		closeStmt(stmt)
		c.logger.WarnContext(ctx, "Query produced rows without a cursor, discarding", "query", query)
		return StatusRows, ErrUnconsumedRows
	}

	cur.stmt = stmt
	cur.rows = rows
	cur.pending = true
	return StatusRows, nil
}

func (c *Conn) fail(ctx context.Context, stage, query string, err error) error {
	c.logger.WarnContext(ctx, "Query error", "stage", stage, "query", query, "error", err)
	return &BinderError{Stage: stage, Query: query, Err: err}
}

// Insert runs an INSERT and returns the new row id, or 0 on any failure.
func (c *Conn) Insert(ctx context.Context, template string, params ...Param) int64 {
	status, err := c.Run(ctx, nil, template, params...)
	if err != nil || status != StatusDone {
		return 0
	}

	var id int64
	if err := c.conn.QueryRowxContext(ctx, "SELECT last_insert_rowid()").Scan(&id); err != nil {
		c.logger.WarnContext(ctx, "Could not retrieve last insert ID", "error", err)
		return 0
	}
	return id
}

// Exec runs a statement that must complete without producing rows
// (UPDATE, DELETE, DDL) and reports whether it did.
func (c *Conn) Exec(ctx context.Context, template string, params ...Param) bool {
	status, err := c.Run(ctx, nil, template, params...)
	return err == nil && status == StatusDone
}

// Select is Run for queries expected to return rows.
func (c *Conn) Select(ctx context.Context, cur *Cursor, template string, params ...Param) (Status, error) {
	return c.Run(ctx, cur, template, params...)
}

// SelectOneRow runs the query and, when it returns rows, advances cur to
// the first one so its Columns are populated.
func (c *Conn) SelectOneRow(ctx context.Context, cur *Cursor, template string, params ...Param) (Status, error) {
	status, err := c.Run(ctx, cur, template, params...)
	if status == StatusRows && cur != nil {
		cur.Next()
	}
	return status, err
}

// SelectInt returns the integer in the first column of the first row, or
// 0 when there is no row or the query fails.
func (c *Conn) SelectInt(ctx context.Context, template string, params ...Param) int64 {
	var cur Cursor
	defer cur.Close()

	status, err := c.Run(ctx, &cur, template, params...)
	if err != nil || status != StatusRows || !cur.Next() {
		return 0
	}
	return cur.Int(0)
}
